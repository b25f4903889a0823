package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/eddielth/air-monitor/airquality"
	"github.com/eddielth/air-monitor/evaluator"
	"github.com/eddielth/air-monitor/transformer"
	"github.com/eddielth/air-monitor/validator"
)

type healthDatabase struct {
	Connected    bool   `json:"connected"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

type healthResponse struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Database  healthDatabase   `json:"database"`
	Stats     map[string]int64 `json:"stats,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	resp := healthResponse{Timestamp: s.now()}

	err := s.store.Ping(r.Context())
	var count int64
	if err == nil {
		count, err = s.store.CountReadings(r.Context())
	}
	if err != nil {
		resp.Status = "unhealthy"
		resp.Database = healthDatabase{Error: err.Error()}
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp.Status = "healthy"
	resp.Database = healthDatabase{Connected: true, ResponseTime: time.Since(start).String()}
	resp.Stats = map[string]int64{"total_readings": count}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) latestReading(w http.ResponseWriter, r *http.Request) {
	sample, err := s.store.LatestReading(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read latest sample", err)
		return
	}
	// data is null before the first reading
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"data": sample})
}

func (s *Server) readingHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	history, err := s.store.ReadingHistory(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read history", err)
		return
	}
	if history == nil {
		history = []airquality.SensorSample{}
	}
	s.writeJSON(w, http.StatusOK, envelope{Data: history})
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body", err)
		return
	}

	payload, err := transformer.DecodePayload(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload", err)
		return
	}
	sample, err := payload.Sample("", s.now())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload", err)
		return
	}

	if err := s.ingestor.Accept(r.Context(), sample, "http"); err != nil {
		if errors.Is(err, evaluator.ErrInvalidSample) {
			s.writeError(w, http.StatusBadRequest, "invalid payload", err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to store sample", err)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{OK: true})
}

type notificationsResponse struct {
	Data   []airquality.Notification `json:"data"`
	Status airquality.Summary        `json:"status"`
}

func (s *Server) notifications(w http.ResponseWriter, r *http.Request) {
	rep, err := s.evaluator.Notifications(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to classify latest sample", err)
		return
	}
	s.writeJSON(w, http.StatusOK, notificationsResponse{Data: rep.Notifications, Status: rep.Summary})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	th, err := s.store.LatestSettings(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read settings", err)
		return
	}
	if th == nil {
		defaults := airquality.DefaultThresholds()
		th = &defaults
	}
	s.writeJSON(w, http.StatusOK, envelope{Data: th})
}

func (s *Server) postSettings(w http.ResponseWriter, r *http.Request) {
	// fields absent from the body keep their documented defaults
	th := airquality.DefaultThresholds()
	if err := decodeBody(w, r, &th); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid settings", err)
		return
	}
	th.Mode = airquality.ParseMode(string(th.Mode))
	th.UpdatedAt = s.now()

	if err := validator.ValidateThresholds(th); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid settings", err)
		return
	}

	if err := s.store.SaveSettings(r.Context(), th); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to save settings", err)
		return
	}

	s.evaluator.Trigger()
	s.writeJSON(w, http.StatusOK, envelope{OK: true, Data: th})
}

func (s *Server) getFanState(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.LatestFanState(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read fan state", err)
		return
	}
	if st == nil {
		st = &airquality.ActuatorState{Desired: false, UpdatedAt: s.now()}
	}
	s.writeJSON(w, http.StatusOK, envelope{Data: st})
}

type fanCommandRequest struct {
	Desired *bool `json:"desired"`
}

func (s *Server) postFanState(w http.ResponseWriter, r *http.Request) {
	var req fanCommandRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid fan command", err)
		return
	}
	if req.Desired == nil {
		s.writeError(w, http.StatusBadRequest, "invalid fan command: desired is required", nil)
		return
	}

	st, err := s.evaluator.Command(r.Context(), *req.Desired)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to set fan state", err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{OK: true, Data: st})
}

func (s *Server) evaluate(w http.ResponseWriter, r *http.Request) {
	ev, err := s.evaluator.Evaluate(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "evaluation failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{Data: ev})
}
