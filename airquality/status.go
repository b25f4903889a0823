package airquality

// Status is the dashboard-level summary of a sample.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusGood     Status = "good"
	StatusModerate Status = "moderate"
	StatusPoor     Status = "poor"
)

// PollutantStatus returns the band of a single value against its bounds.
func PollutantStatus(value, moderate, poor float64) Status {
	switch {
	case value > poor:
		return StatusPoor
	case value > moderate:
		return StatusModerate
	default:
		return StatusGood
	}
}

// Summary carries the per-pollutant and overall status of a sample.
type Summary struct {
	Overall Status `json:"overall"`
	CO2     Status `json:"co2"`
	CO      Status `json:"co"`
	Dust    Status `json:"dust"`
}

// Summarize grades a sample the way the dashboard gauge does: the worst
// pollutant decides the overall status. Unlike Classify, CO does get a
// moderate band here.
func Summarize(sample *SensorSample, th ThresholdConfig) Summary {
	if sample == nil {
		return Summary{Overall: StatusUnknown, CO2: StatusUnknown, CO: StatusUnknown, Dust: StatusUnknown}
	}

	s := Summary{
		CO2:  PollutantStatus(sample.CO2, th.CO2Moderate, th.CO2Poor),
		CO:   PollutantStatus(sample.CO, th.COModerate, th.COPoor),
		Dust: PollutantStatus(sample.Dust, th.DustModerate, th.DustPoor),
	}
	s.Overall = worst(s.CO2, s.CO, s.Dust)
	return s
}

// OverallStatus is the worst pollutant status of sample, StatusUnknown
// when there is no sample.
func OverallStatus(sample *SensorSample, th ThresholdConfig) Status {
	return Summarize(sample, th).Overall
}

var statusRank = map[Status]int{
	StatusUnknown:  0,
	StatusGood:     1,
	StatusModerate: 2,
	StatusPoor:     3,
}

func worst(statuses ...Status) Status {
	out := StatusUnknown
	for _, s := range statuses {
		if statusRank[s] > statusRank[out] {
			out = s
		}
	}
	return out
}
