package validator

import (
	"errors"
	"fmt"
	"math"

	"github.com/eddielth/air-monitor/airquality"
)

// RangeValidator checks that a named value lies within [Min, Max]
type RangeValidator struct {
	Field string
	Min   float64
	Max   float64
}

// Validate checks value against the range
func (rv RangeValidator) Validate(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%s: value %v is not a finite number", rv.Field, value)
	}
	if value < rv.Min || value > rv.Max {
		return fmt.Errorf("%s: value %g out of range [%g, %g]", rv.Field, value, rv.Min, rv.Max)
	}
	return nil
}

// Sanity ranges for raw sensor values.
var (
	CO2Range  = RangeValidator{Field: "co2", Min: 0, Max: 50000}
	CORange   = RangeValidator{Field: "co", Min: 0, Max: 1000}
	DustRange = RangeValidator{Field: "dust", Min: 0, Max: 10000}
)

// ValidateSample rejects readings that no working sensor can produce.
func ValidateSample(s airquality.SensorSample) error {
	return errors.Join(
		CO2Range.Validate(s.CO2),
		CORange.Validate(s.CO),
		DustRange.Validate(s.Dust),
	)
}

// ValidateThresholds checks a settings record before it is stored: bounds
// must be finite and non-negative and each poor bound must not be below its
// moderate bound.
func ValidateThresholds(th airquality.ThresholdConfig) error {
	var errs []error

	pairs := []struct {
		name           string
		moderate, poor float64
	}{
		{"co2", th.CO2Moderate, th.CO2Poor},
		{"co", th.COModerate, th.COPoor},
		{"dust", th.DustModerate, th.DustPoor},
	}

	for _, p := range pairs {
		bound := RangeValidator{Field: p.name + " threshold", Min: 0, Max: math.MaxFloat64}
		if err := bound.Validate(p.moderate); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := bound.Validate(p.poor); err != nil {
			errs = append(errs, err)
			continue
		}
		if p.poor < p.moderate {
			errs = append(errs, fmt.Errorf("%s: poor threshold %g is below moderate threshold %g", p.name, p.poor, p.moderate))
		}
	}

	if th.Mode != airquality.ModeAuto && th.Mode != airquality.ModeManual {
		errs = append(errs, fmt.Errorf("mode: unknown mode %q", th.Mode))
	}

	return errors.Join(errs...)
}
