package airquality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	warnings = []Notification{{Severity: SeverityWarning, Pollutant: PollutantCO2, Level: LevelHigh}}
	normal   = []Notification{{Severity: SeveritySuccess, Pollutant: PollutantOverall, Level: LevelNormal}}
	t0       = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

func TestDecide_NoPriorState(t *testing.T) {
	assert.Equal(t, Decision{Desired: true, ShouldPersist: true, Rule: RuleInitial},
		Decide(warnings, nil, t0, DefaultHysteresisWindow))
	assert.Equal(t, Decision{Desired: false, ShouldPersist: true, Rule: RuleInitial},
		Decide(normal, nil, t0, DefaultHysteresisWindow))
	assert.Equal(t, Decision{Desired: false, ShouldPersist: true, Rule: RuleInitial},
		Decide(nil, nil, t0, DefaultHysteresisWindow))
}

func TestDecide_Unchanged(t *testing.T) {
	on := &ActuatorState{Desired: true, UpdatedAt: t0}
	off := &ActuatorState{Desired: false, UpdatedAt: t0}

	assert.Equal(t, Decision{Desired: true, Rule: RuleUnchanged}, Decide(warnings, on, t0.Add(time.Hour), DefaultHysteresisWindow))
	assert.Equal(t, Decision{Desired: false, Rule: RuleUnchanged}, Decide(normal, off, t0, DefaultHysteresisWindow))
}

func TestDecide_SwitchOnIsImmediate(t *testing.T) {
	off := &ActuatorState{Desired: false, UpdatedAt: t0}

	for _, elapsed := range []time.Duration{0, time.Millisecond, 10 * time.Second, time.Hour} {
		got := Decide(warnings, off, t0.Add(elapsed), DefaultHysteresisWindow)
		assert.Equal(t, Decision{Desired: true, ShouldPersist: true, Rule: RuleSwitchOn}, got, "elapsed=%s", elapsed)
	}
}

func TestDecide_SwitchOffDebounced(t *testing.T) {
	on := &ActuatorState{Desired: true, UpdatedAt: t0}

	for _, elapsed := range []time.Duration{0, time.Second, 10 * time.Second, 29*time.Second + 999*time.Millisecond} {
		got := Decide(normal, on, t0.Add(elapsed), DefaultHysteresisWindow)
		assert.Equal(t, Decision{Desired: true, Rule: RuleHold}, got, "elapsed=%s", elapsed)
	}

	assert.Equal(t, Decision{Desired: false, ShouldPersist: true, Rule: RuleSwitchOff},
		Decide(normal, on, t0.Add(30*time.Second), DefaultHysteresisWindow))
}

func TestDecide_Scenario(t *testing.T) {
	last := &ActuatorState{Desired: true, UpdatedAt: t0}
	window := 30 * time.Second

	first := Decide(normal, last, t0.Add(10*time.Second), window)
	assert.False(t, first.ShouldPersist)
	assert.True(t, first.Desired)

	second := Decide(normal, last, t0.Add(31*time.Second), window)
	assert.True(t, second.ShouldPersist)
	assert.False(t, second.Desired)
}

func TestDecide_Idempotent(t *testing.T) {
	cases := []*ActuatorState{
		nil,
		{Desired: true, UpdatedAt: t0},
		{Desired: false, UpdatedAt: t0},
	}
	for _, last := range cases {
		for _, n := range [][]Notification{warnings, normal, nil} {
			now := t0.Add(12 * time.Second)
			assert.Equal(t, Decide(n, last, now, DefaultHysteresisWindow), Decide(n, last, now, DefaultHysteresisWindow))
		}
	}
}

func TestDecide_ZeroWindowSwitchesOffAtOnce(t *testing.T) {
	on := &ActuatorState{Desired: true, UpdatedAt: t0}
	assert.Equal(t, Decision{Desired: false, ShouldPersist: true, Rule: RuleSwitchOff}, Decide(normal, on, t0, 0))
}
