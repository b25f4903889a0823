package validator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eddielth/air-monitor/airquality"
)

func TestValidateSample(t *testing.T) {
	tests := []struct {
		name    string
		s       airquality.SensorSample
		wantErr string
	}{
		{"ok", airquality.SensorSample{CO2: 412, CO: 1.2, Dust: 58}, ""},
		{"zeros", airquality.SensorSample{}, ""},
		{"negative co2", airquality.SensorSample{CO2: -1}, "co2"},
		{"huge dust", airquality.SensorSample{Dust: 20000}, "dust"},
		{"nan co", airquality.SensorSample{CO: math.NaN()}, "not a finite number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSample(tt.s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateThresholds(t *testing.T) {
	assert.NoError(t, ValidateThresholds(airquality.DefaultThresholds()))

	equal := airquality.DefaultThresholds()
	equal.COPoor = equal.COModerate
	assert.NoError(t, ValidateThresholds(equal))

	inverted := airquality.DefaultThresholds()
	inverted.CO2Poor = 500
	assert.ErrorContains(t, ValidateThresholds(inverted), "co2: poor threshold 500 is below moderate threshold 700")

	negative := airquality.DefaultThresholds()
	negative.DustModerate = -5
	assert.ErrorContains(t, ValidateThresholds(negative), "dust threshold")

	badMode := airquality.DefaultThresholds()
	badMode.Mode = "turbo"
	assert.ErrorContains(t, ValidateThresholds(badMode), "unknown mode")
}
