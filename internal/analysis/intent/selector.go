package intent

import (
	"strings"

	"github.com/greenfield-labs/smartfarm/backend/internal/model/reply"
	"github.com/greenfield-labs/smartfarm/backend/internal/model/sensor"
)

// RuleID names a keyword group of the selector.
type RuleID string

const (
	RuleMoisture    RuleID = "moisture"
	RuleTemperature RuleID = "temperature"
	RulePH          RuleID = "ph"
	RuleCrops       RuleID = "crops"
	RulePests       RuleID = "pests"
	RuleFertilizer  RuleID = "fertilizer"
	RuleGreeting    RuleID = "greeting"
	RuleDefault     RuleID = "default"
)

// Rule maps a keyword group to a canned reply. A rule matches when the
// lower-cased input contains any of its keywords.
type Rule struct {
	ID            RuleID
	Keywords      []string
	ResponseID    string
	AttachSensors bool
	// SuggestionSet is empty when the rule leaves suggestions unchanged.
	SuggestionSet string
}

// Matches reports whether normalized (already lower-cased) input hits the rule.
func (r Rule) Matches(normalized string) bool {
	for _, word := range r.Keywords {
		if word != "" && strings.Contains(normalized, word) {
			return true
		}
	}
	return false
}

// DefaultRules is evaluated top to bottom; the first match wins. "soil
// moisture" must resolve to moisture, so moisture precedes the pH/soil group.
func DefaultRules() []Rule {
	return []Rule{
		{ID: RuleMoisture, Keywords: []string{"moisture", "water"}, ResponseID: reply.Moisture, AttachSensors: true, SuggestionSet: reply.SuggestionsIrrigation},
		{ID: RuleTemperature, Keywords: []string{"temperature", "hot", "cold"}, ResponseID: reply.Temperature, AttachSensors: true},
		{ID: RulePH, Keywords: []string{"ph", "acid", "soil"}, ResponseID: reply.PH, AttachSensors: true},
		{ID: RuleCrops, Keywords: []string{"crop", "plant", "grow"}, ResponseID: reply.Crops, SuggestionSet: reply.SuggestionsPlanting},
		{ID: RulePests, Keywords: []string{"pest", "bug", "insect"}, ResponseID: reply.Pests},
		{ID: RuleFertilizer, Keywords: []string{"fertilizer", "nutrient"}, ResponseID: reply.Fertilizer},
		{ID: RuleGreeting, Keywords: []string{"hello", "hi"}, ResponseID: reply.Greeting},
	}
}

var fallbackRule = Rule{ID: RuleDefault, ResponseID: reply.Default}

// Decision is the selector's answer for one user input.
type Decision struct {
	Rule          RuleID
	Reply         string
	AttachSensors bool
	// Suggestions is nil when the current suggestion list stays as it is.
	Suggestions []string
}

// Selector picks canned replies by ordered keyword rules.
type Selector struct {
	rules   []Rule
	replies reply.Store
}

// NewSelector creates a selector over the given rules. A nil rule slice uses DefaultRules.
func NewSelector(replies reply.Store, rules []Rule) *Selector {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Selector{rules: append([]Rule(nil), rules...), replies: replies}
}

// Match returns the first rule matching the input, or the default rule.
func (s *Selector) Match(input string) Rule {
	normalized := strings.ToLower(input)
	for _, rule := range s.rules {
		if rule.Matches(normalized) {
			return rule
		}
	}
	return fallbackRule
}

// Select resolves the reply for input. snap is only read when the matched
// rule attaches sensor data.
func (s *Selector) Select(input string, snap sensor.Snapshot) Decision {
	rule := s.Match(input)

	text := s.render(rule.ResponseID, snap)
	if strings.TrimSpace(text) == "" {
		text = s.render(reply.Default, snap)
	}

	decision := Decision{
		Rule:          rule.ID,
		Reply:         text,
		AttachSensors: rule.AttachSensors,
	}
	if rule.SuggestionSet != "" {
		if set, ok := s.replies.Suggestions(rule.SuggestionSet); ok {
			decision.Suggestions = set
		}
	}
	return decision
}

// AttachesSensors reports whether input would receive a sensor-bearing reply.
func (s *Selector) AttachesSensors(input string) bool {
	return s.Match(input).AttachSensors
}

func (s *Selector) render(responseID string, snap sensor.Snapshot) string {
	r, ok := s.replies.FindByID(responseID)
	if !ok {
		return defaultText
	}
	return r.Render(snap)
}

const defaultText = "I'm your Smart Farming Assistant. How can I help you today?"

// Opening is the decision that seeds a new conversation: the greeting and the
// initial suggestion set.
func (s *Selector) Opening() Decision {
	decision := Decision{
		Rule:  RuleGreeting,
		Reply: s.render(reply.Greeting, sensor.Snapshot{}),
	}
	if set, ok := s.replies.Suggestions(reply.SuggestionsInitial); ok {
		decision.Suggestions = set
	}
	return decision
}
