package evaluator

import (
	"context"
	"errors"
	"fmt"

	"github.com/eddielth/air-monitor/airquality"
	"github.com/eddielth/air-monitor/logger"
	"github.com/eddielth/air-monitor/metrics"
	"github.com/eddielth/air-monitor/validator"
)

// ErrInvalidSample wraps validation failures returned by Ingestor.Accept
var ErrInvalidSample = errors.New("invalid sample")

// SampleStore persists accepted samples
type SampleStore interface {
	SaveReading(ctx context.Context, s airquality.SensorSample) error
}

// Ingestor validates and stores samples arriving from any transport, then
// asks the evaluator for a new cycle.
type Ingestor struct {
	store     SampleStore
	evaluator *Evaluator
}

// NewIngestor creates an ingestor. evaluator may be nil.
func NewIngestor(store SampleStore, evaluator *Evaluator) *Ingestor {
	return &Ingestor{store: store, evaluator: evaluator}
}

// Accept validates s, stores it and triggers an evaluation
func (in *Ingestor) Accept(ctx context.Context, s airquality.SensorSample, transport string) error {
	if err := validator.ValidateSample(s); err != nil {
		metrics.SamplesIngested.WithLabelValues(transport, "invalid").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}

	if err := in.store.SaveReading(ctx, s); err != nil {
		metrics.SamplesIngested.WithLabelValues(transport, "error").Inc()
		return fmt.Errorf("save sample: %w", err)
	}

	metrics.SamplesIngested.WithLabelValues(transport, "ok").Inc()
	metrics.LatestReading.WithLabelValues(string(airquality.PollutantCO2)).Set(s.CO2)
	metrics.LatestReading.WithLabelValues(string(airquality.PollutantCO)).Set(s.CO)
	metrics.LatestReading.WithLabelValues(string(airquality.PollutantDust)).Set(s.Dust)
	logger.Debug("accepted sample from %s via %s: co2=%g co=%g dust=%g", s.Device, transport, s.CO2, s.CO, s.Dust)

	if in.evaluator != nil {
		in.evaluator.Trigger()
	}
	return nil
}
