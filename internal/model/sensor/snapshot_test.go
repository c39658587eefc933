package sensor

import "testing"

func TestGrade(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
		want map[string]Status
	}{
		{
			name: "all optimal",
			snap: Snapshot{Moisture: 40, Temperature: 22, PH: 6.4, CO2: 450},
			want: map[string]Status{MetricMoisture: Optimal, MetricTemperature: Optimal, MetricPH: Optimal, MetricCO2: Optimal},
		},
		{
			name: "dry and hot",
			snap: Snapshot{Moisture: 30, Temperature: 27, PH: 5.5, CO2: 580},
			want: map[string]Status{MetricMoisture: Critical, MetricTemperature: Critical, MetricPH: Warning, MetricCO2: Warning},
		},
		{
			name: "wet and cold",
			snap: Snapshot{Moisture: 48, Temperature: 18, PH: 7.0, CO2: 400},
			want: map[string]Status{MetricMoisture: Warning, MetricTemperature: Low, MetricPH: Warning, MetricCO2: Optimal},
		},
	}

	for _, tc := range cases {
		got := tc.snap.Grade()
		for metric, want := range tc.want {
			if got[metric] != want {
				t.Errorf("%s: %s = %s, want %s", tc.name, metric, got[metric], want)
			}
		}
	}
}
