package transformer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/eddielth/air-monitor/airquality"
)

// SamplePayload is the normalized shape every transformer script must return
// and every untransformed payload must already have.
type SamplePayload struct {
	Device     string    `json:"device"`
	DeviceName string    `json:"device_name"` // legacy alias of device
	CO2        *float64  `json:"co2"`
	CO         *float64  `json:"co"`
	Dust       *float64  `json:"dust"`
	Timestamp  Timestamp `json:"ts"`
}

// Sample converts the payload, using fallbackDevice when the payload names
// none and received when it carries no timestamp.
func (p SamplePayload) Sample(fallbackDevice string, received time.Time) (airquality.SensorSample, error) {
	var missing []error
	if p.CO2 == nil {
		missing = append(missing, errors.New("co2 is required"))
	}
	if p.CO == nil {
		missing = append(missing, errors.New("co is required"))
	}
	if p.Dust == nil {
		missing = append(missing, errors.New("dust is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return airquality.SensorSample{}, err
	}

	device := p.Device
	if device == "" {
		device = p.DeviceName
	}
	if device == "" {
		device = fallbackDevice
	}

	ts := p.Timestamp.Time
	if ts.IsZero() {
		ts = received
	}

	return airquality.SensorSample{
		Device:    device,
		CO2:       *p.CO2,
		CO:        *p.CO,
		Dust:      *p.Dust,
		Timestamp: ts.UTC(),
	}, nil
}

// DecodePayload parses a JSON payload that is already in SamplePayload shape.
func DecodePayload(data []byte) (SamplePayload, error) {
	var p SamplePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return SamplePayload{}, fmt.Errorf("decode sample payload: %w", err)
	}
	return p, nil
}

// Timestamp accepts RFC3339 strings, unix seconds or unix milliseconds.
type Timestamp struct {
	time.Time
}

// values above this are taken as milliseconds
const millisThreshold = 1e11

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
			t.Time = parsed
			return nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q", s)
		}
		t.Time = fromUnix(n)
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid timestamp %s", string(data))
	}
	t.Time = fromUnix(n)
	return nil
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// fromUnix maps non-positive values to the zero time, which Sample
// replaces with the ingestion instant.
func fromUnix(n float64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n > millisThreshold {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}
