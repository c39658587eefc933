package tip

import "math/rand/v2"

// Seed returns the farmer's tips of the day.
func Seed() []string {
	return []string{
		"Rotate your crops to improve soil health and reduce pest problems naturally!",
		"Companion planting can help deter pests - try planting marigolds near your tomatoes!",
		"Morning is the best time to water your plants - less evaporation and time to dry before evening.",
		"Mulching helps retain soil moisture and suppresses weeds. Less work, healthier plants!",
		"Consider planting cover crops in the off-season to prevent soil erosion.",
		"Coffee grounds make excellent compost material and many plants love the acidity!",
	}
}

// Picker draws tips from a fixed list.
type Picker struct {
	tips []string
	intN func(n int) int
}

// NewPicker creates a picker over tips. A nil intN uses math/rand/v2.
func NewPicker(tips []string, intN func(n int) int) *Picker {
	if intN == nil {
		intN = rand.IntN
	}
	return &Picker{tips: append([]string(nil), tips...), intN: intN}
}

// Random returns one tip, or "" when the list is empty.
func (p *Picker) Random() string {
	if len(p.tips) == 0 {
		return ""
	}
	return p.tips[p.intN(len(p.tips))]
}

// All returns a copy of every tip.
func (p *Picker) All() []string {
	return append([]string(nil), p.tips...)
}
