package sensor

import "time"

// Snapshot is one reading of every field sensor at a point in time.
type Snapshot struct {
	Time        time.Time `json:"time"`
	Moisture    float64   `json:"moisture"`    // %
	Temperature float64   `json:"temperature"` // Celsius
	PH          float64   `json:"pH"`
	CO2         float64   `json:"co2"`      // ppm
	Light       float64   `json:"light"`    // lux
	Humidity    float64   `json:"humidity"` // %
	Nitrogen    *float64  `json:"nitrogen,omitempty"`   // mg/kg
	Phosphorus  *float64  `json:"phosphorus,omitempty"` // mg/kg
	Potassium   *float64  `json:"potassium,omitempty"`  // mg/kg
}

// Status grades a single metric against its agronomic range.
type Status string

const (
	Optimal  Status = "optimal"
	Warning  Status = "warning"
	Critical Status = "critical"
	Low      Status = "low"
)

// Metric names used for status reporting.
const (
	MetricMoisture    = "moisture"
	MetricTemperature = "temperature"
	MetricPH          = "pH"
	MetricCO2         = "co2"
)

// Grade returns the status of every graded metric in the snapshot.
func (s Snapshot) Grade() map[string]Status {
	return map[string]Status{
		MetricMoisture:    gradeMoisture(s.Moisture),
		MetricTemperature: gradeTemperature(s.Temperature),
		MetricPH:          gradePH(s.PH),
		MetricCO2:         gradeCO2(s.CO2),
	}
}

func gradeMoisture(v float64) Status {
	switch {
	case v < 35:
		return Critical
	case v > 45:
		return Warning
	default:
		return Optimal
	}
}

func gradeTemperature(v float64) Status {
	switch {
	case v < 20:
		return Low
	case v > 25:
		return Critical
	default:
		return Optimal
	}
}

func gradePH(v float64) Status {
	if v < 6.0 || v > 6.8 {
		return Warning
	}
	return Optimal
}

func gradeCO2(v float64) Status {
	if v > 550 {
		return Warning
	}
	return Optimal
}
