package reply

import (
	"strconv"
	"strings"

	"github.com/greenfield-labs/smartfarm/backend/internal/model/sensor"
)

// Response identifiers of the canned reply catalog.
const (
	Default     = "default"
	Greeting    = "greeting"
	Moisture    = "moisture"
	Temperature = "temperature"
	PH          = "pH"
	Crops       = "crops"
	Pests       = "pests"
	Fertilizer  = "fertilizer"
)

// Suggestion set identifiers.
const (
	SuggestionsInitial    = "initial"
	SuggestionsIrrigation = "irrigation"
	SuggestionsPlanting   = "planting"
)

// Reply is a canned assistant response. Text may reference sensor values with
// {moisture}, {temperature}, {pH}, {co2}, {light} and {humidity}.
type Reply struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Render substitutes the snapshot values into the reply text.
func (r Reply) Render(snap sensor.Snapshot) string {
	if !strings.Contains(r.Text, "{") {
		return r.Text
	}
	return strings.NewReplacer(
		"{moisture}", formatValue(snap.Moisture),
		"{temperature}", formatValue(snap.Temperature),
		"{pH}", formatValue(snap.PH),
		"{co2}", formatValue(snap.CO2),
		"{light}", formatValue(snap.Light),
		"{humidity}", formatValue(snap.Humidity),
	).Replace(r.Text)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Seed provides the assistant's reply catalog.
func Seed() []Reply {
	return []Reply{
		{
			ID:   Default,
			Text: "I'm your Smart Farming Assistant. How can I help you today?",
		},
		{
			ID:   Greeting,
			Text: "Hello there, farmer! I'm your digital farming companion, ready to help your crops thrive. Ask me about soil conditions, pest management, or anything else happening in your fields! 🌱",
		},
		{
			ID:   Moisture,
			Text: "Based on your current soil moisture reading of {moisture}%, your soil is in the optimal range. No irrigation is needed at this time. I recommend checking again tomorrow morning. Remember: happy soil, happy plants!",
		},
		{
			ID:   Temperature,
			Text: "The current temperature is {temperature}°C, which is ideal for most crops. Your plants are enjoying this weather! If temperatures rise above 28°C, consider providing some shade for your more sensitive green friends.",
		},
		{
			ID:   PH,
			Text: "Your soil pH is currently {pH}, which is slightly acidic. This is perfect for crops like potatoes, tomatoes, and blueberries. They'll be thriving in these conditions! For crops that prefer more neutral soil, consider adding a bit of agricultural lime.",
		},
		{
			ID:   Crops,
			Text: "For your region and current season, I recommend planting: \n\n1. Maize/Corn - Thrives in your warm weather and will make excellent use of your soil conditions\n2. Tomatoes - Perfect match for your soil pH, and they'll love the current temperature range\n3. Leafy greens - Quick harvest cycle and great for crop rotation\n\nWould you like specific planting instructions for any of these green companions?",
		},
		{
			ID:   Pests,
			Text: "Based on your region and current conditions, keep your eyes peeled for these common troublemakers:\n\n1. Aphids - The tiny thieves that love to gather on the undersides of leaves\n2. Corn borers - Sneaky pests that leave small holes in stalks as their calling card\n3. Spider mites - These become more common in dry conditions, like tiny drought-loving ninjas\n\nWould you like some organic control methods to keep these visitors in check?",
		},
		{
			ID:   Fertilizer,
			Text: "Based on your soil data, I recommend a balanced NPK fertilizer (10-10-10) applied at 2.5kg per 100 square meters. Think of it as a nutritious feast for your soil! Apply in the early morning or evening for best results, when your plants are most ready to enjoy their meal.",
		},
	}
}

// SeedSuggestions provides the suggestion sets offered next to the chat input.
func SeedSuggestions() map[string][]string {
	return map[string][]string{
		SuggestionsInitial: {
			"Best crops for this season?",
			"What's my soil moisture level?",
			"Help me with common pests?",
			"What fertilizer should I use?",
		},
		SuggestionsIrrigation: {
			"When should I water my crops?",
			"What's the ideal soil moisture?",
			"How to improve water retention?",
			"Show me irrigation recommendations",
		},
		SuggestionsPlanting: {
			"What's the best planting depth?",
			"How far apart should I plant?",
			"When will they be ready to harvest?",
			"What nutrients do they need?",
		},
	}
}
