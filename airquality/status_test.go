package airquality

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name string
		s    *SensorSample
		want Summary
	}{
		{"missing", nil, Summary{StatusUnknown, StatusUnknown, StatusUnknown, StatusUnknown}},
		{"good", sample(400, 1, 20), Summary{StatusGood, StatusGood, StatusGood, StatusGood}},
		{"co moderate", sample(400, 3, 20), Summary{StatusModerate, StatusGood, StatusModerate, StatusGood}},
		{"dust poor", sample(800, 1, 120), Summary{StatusPoor, StatusModerate, StatusGood, StatusPoor}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.s, th))
		})
	}
}

func TestOverallStatus(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, StatusUnknown, OverallStatus(nil, th))
	assert.Equal(t, StatusGood, OverallStatus(sample(700, 2, 75), th))
	assert.Equal(t, StatusModerate, OverallStatus(sample(701, 1, 20), th))
	assert.Equal(t, StatusPoor, OverallStatus(sample(400, 5.1, 20), th))
}
