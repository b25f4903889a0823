package airquality

import (
	"strings"
	"time"
)

// Mode is the fan operating mode stored with the thresholds.
type Mode string

const (
	// ModeAuto lets the evaluator drive the fan
	ModeAuto Mode = "auto"
	// ModeManual leaves the fan to operator commands only
	ModeManual Mode = "manual"
)

// ParseMode maps any value other than "manual" to ModeAuto.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeManual)) {
		return ModeManual
	}
	return ModeAuto
}

// SensorSample is one timestamped reading from an air-quality node.
// CO2 and CO are in ppm, Dust in µg/m³.
type SensorSample struct {
	Device    string    `json:"device,omitempty"`
	CO2       float64   `json:"co2"`
	CO        float64   `json:"co"`
	Dust      float64   `json:"dust"`
	Timestamp time.Time `json:"ts"`
}

// ThresholdConfig holds the moderate/poor bounds per pollutant plus the mode.
// Each poor bound is expected to be >= its moderate bound; the settings API
// enforces that, the classifier does not.
type ThresholdConfig struct {
	CO2Moderate  float64   `json:"threshold_co2_moderate" mapstructure:"co2_moderate"`
	CO2Poor      float64   `json:"threshold_co2_poor" mapstructure:"co2_poor"`
	COModerate   float64   `json:"threshold_co_moderate" mapstructure:"co_moderate"`
	COPoor       float64   `json:"threshold_co_poor" mapstructure:"co_poor"`
	DustModerate float64   `json:"threshold_dust_moderate" mapstructure:"dust_moderate"`
	DustPoor     float64   `json:"threshold_dust_poor" mapstructure:"dust_poor"`
	Mode         Mode      `json:"mode" mapstructure:"mode"`
	UpdatedAt    time.Time `json:"updated_at,omitempty" mapstructure:"-"`
}

// Documented default bounds.
const (
	DefaultCO2Moderate  = 700.0
	DefaultCO2Poor      = 1000.0
	DefaultCOModerate   = 2.0
	DefaultCOPoor       = 5.0
	DefaultDustModerate = 75.0
	DefaultDustPoor     = 100.0
)

// DefaultThresholds returns the thresholds used when no settings record exists.
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		CO2Moderate:  DefaultCO2Moderate,
		CO2Poor:      DefaultCO2Poor,
		COModerate:   DefaultCOModerate,
		COPoor:       DefaultCOPoor,
		DustModerate: DefaultDustModerate,
		DustPoor:     DefaultDustPoor,
		Mode:         ModeAuto,
	}
}

// Severity of a notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
)

// Pollutant identifies what a notification is about.
type Pollutant string

const (
	PollutantCO2     Pollutant = "co2"
	PollutantCO      Pollutant = "co"
	PollutantDust    Pollutant = "dust"
	PollutantOverall Pollutant = "overall"
)

// Level is the band a reading fell into.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
)

// Notification is produced fresh on every classification and never persisted.
// Value and Threshold are raw numbers; rounding is left to the presentation layer.
type Notification struct {
	Severity          Severity  `json:"severity"`
	Pollutant         Pollutant `json:"pollutant"`
	Level             Level     `json:"level"`
	Value             float64   `json:"value,omitempty"`
	Threshold         float64   `json:"threshold,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	Message           string    `json:"message"`
	RecommendedAction string    `json:"recommended_action"`
}

// Source records who produced an actuator state.
type Source string

const (
	SourceAuto   Source = "auto"
	SourceManual Source = "manual"
)

// ActuatorState is one record of the fan state append log. The current state
// is the most recent record; records are never modified.
type ActuatorState struct {
	ID        string    `json:"id"`
	PrevID    string    `json:"prev_id,omitempty"`
	Desired   bool      `json:"desired"`
	Source    Source    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}
