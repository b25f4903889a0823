package airquality

import "time"

// DefaultHysteresisWindow is the minimum time the fan stays ON before an
// automatic OFF is accepted.
const DefaultHysteresisWindow = 30 * time.Second

// Rule names the decision table row that produced a Decision.
type Rule string

const (
	RuleInitial   Rule = "initial"
	RuleUnchanged Rule = "unchanged"
	RuleSwitchOn  Rule = "switch_on"
	RuleSwitchOff Rule = "switch_off"
	RuleHold      Rule = "hold"
)

// Decision is the controller verdict. When ShouldPersist is true the caller
// must append exactly one ActuatorState carrying Desired.
type Decision struct {
	Desired       bool `json:"desired"`
	ShouldPersist bool `json:"should_persist"`
	Rule          Rule `json:"rule"`
}

// Decide reconciles the target derived from notifications with the last
// accepted state. ON transitions are immediate; OFF transitions wait until
// the last state is at least window old. A nil last state is persisted
// whatever the target. Decide has no side effects and depends only on its
// arguments.
func Decide(notifications []Notification, last *ActuatorState, now time.Time, window time.Duration) Decision {
	return decideTarget(TargetOn(notifications), last, now, window)
}

func decideTarget(targetOn bool, last *ActuatorState, now time.Time, window time.Duration) Decision {
	if last == nil {
		return Decision{Desired: targetOn, ShouldPersist: true, Rule: RuleInitial}
	}

	if last.Desired == targetOn {
		return Decision{Desired: last.Desired, Rule: RuleUnchanged}
	}

	if targetOn {
		return Decision{Desired: true, ShouldPersist: true, Rule: RuleSwitchOn}
	}

	if now.Sub(last.UpdatedAt) >= window {
		return Decision{Desired: false, ShouldPersist: true, Rule: RuleSwitchOff}
	}

	return Decision{Desired: true, Rule: RuleHold}
}
