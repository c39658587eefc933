package ai

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/greenfield-labs/smartfarm/backend/internal/model/sensor"
)

const basePrompt = `You are the Smart Farming Assistant, a friendly agronomist who helps small farmers look after their fields.
Keep answers short and practical. Use metric units. Never invent sensor values; only quote the readings given below.`

// buildSystemPrompt grounds the model in the live readings and the catalog
// answer for the question.
func buildSystemPrompt(readings *sensor.Snapshot, reference string) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if readings != nil {
		b.WriteString("\n\nCurrent field readings:\n")
		b.WriteString(describeReadings(*readings))
	}

	if reference = strings.TrimSpace(reference); reference != "" {
		b.WriteString("\n\nReference answer from the assistant's catalog (rephrase, expand or correct it against the readings):\n")
		b.WriteString(reference)
	}
	return b.String()
}

func describeReadings(s sensor.Snapshot) string {
	status := s.Grade()
	lines := []string{
		fmt.Sprintf("- soil moisture: %s%% (%s)", num(s.Moisture), status[sensor.MetricMoisture]),
		fmt.Sprintf("- temperature: %s°C (%s)", num(s.Temperature), status[sensor.MetricTemperature]),
		fmt.Sprintf("- soil pH: %s (%s)", num(s.PH), status[sensor.MetricPH]),
		fmt.Sprintf("- CO2: %s ppm (%s)", num(s.CO2), status[sensor.MetricCO2]),
		fmt.Sprintf("- light: %s lux", num(s.Light)),
		fmt.Sprintf("- humidity: %s%%", num(s.Humidity)),
	}
	if s.Nitrogen != nil && s.Phosphorus != nil && s.Potassium != nil {
		lines = append(lines, fmt.Sprintf("- NPK: %s/%s/%s mg/kg", num(*s.Nitrogen), num(*s.Phosphorus), num(*s.Potassium)))
	}
	return strings.Join(lines, "\n")
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
