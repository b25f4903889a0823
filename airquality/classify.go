package airquality

import "time"

// Classify turns a sample into notifications. Output order is fixed:
// CO2, CO, dust, then the "normal" notification, which is only appended when
// every pollutant sits at or below its moderate bound. A nil sample yields no
// notifications.
func Classify(sample *SensorSample, th ThresholdConfig) []Notification {
	notifications := make([]Notification, 0, 3)
	if sample == nil {
		return notifications
	}

	ts := sample.Timestamp

	switch {
	case sample.CO2 > th.CO2Poor:
		notifications = append(notifications, warning(PollutantCO2, LevelHigh, sample.CO2, th.CO2Poor, ts))
	case sample.CO2 > th.CO2Moderate:
		notifications = append(notifications, warning(PollutantCO2, LevelModerate, sample.CO2, th.CO2Moderate, ts))
	}

	// CO has no moderate-only warning.
	if sample.CO > th.COPoor {
		notifications = append(notifications, warning(PollutantCO, LevelHigh, sample.CO, th.COPoor, ts))
	}

	switch {
	case sample.Dust > th.DustPoor:
		notifications = append(notifications, warning(PollutantDust, LevelHigh, sample.Dust, th.DustPoor, ts))
	case sample.Dust > th.DustModerate:
		notifications = append(notifications, warning(PollutantDust, LevelModerate, sample.Dust, th.DustModerate, ts))
	}

	if len(notifications) == 0 &&
		sample.CO2 <= th.CO2Moderate && sample.CO <= th.COModerate && sample.Dust <= th.DustModerate {
		notifications = append(notifications, Notification{
			Severity:          SeveritySuccess,
			Pollutant:         PollutantOverall,
			Level:             LevelNormal,
			Timestamp:         ts,
			Message:           "air quality normal",
			RecommendedAction: "All sensors within normal range",
		})
	}

	return notifications
}

// TargetOn reports whether any notification asks for ventilation.
func TargetOn(notifications []Notification) bool {
	for _, n := range notifications {
		if n.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

type notificationText struct {
	message string
	action  string
}

var warningTexts = map[Pollutant]map[Level]notificationText{
	PollutantCO2: {
		LevelHigh:     {"CO₂ high", "Ventilate immediately"},
		LevelModerate: {"CO₂ moderate", "Monitor CO₂ level"},
	},
	PollutantCO: {
		LevelHigh: {"CO high", "Needs attention"},
	},
	PollutantDust: {
		LevelHigh:     {"dust high", "Run air purification"},
		LevelModerate: {"dust moderate", "Monitor dust level"},
	},
}

func warning(p Pollutant, l Level, value, threshold float64, ts time.Time) Notification {
	text := warningTexts[p][l]
	return Notification{
		Severity:          SeverityWarning,
		Pollutant:         p,
		Level:             l,
		Value:             value,
		Threshold:         threshold,
		Timestamp:         ts,
		Message:           text.message,
		RecommendedAction: text.action,
	}
}
