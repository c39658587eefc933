package reply

import (
	"strings"
	"testing"

	"github.com/greenfield-labs/smartfarm/backend/internal/model/sensor"
)

func TestRenderSubstitutesReadings(t *testing.T) {
	store := NewMemoryStore(Seed(), SeedSuggestions())
	r, ok := store.FindByID(Moisture)
	if !ok {
		t.Fatal("moisture reply missing")
	}

	got := r.Render(sensor.Snapshot{Moisture: 42})
	if !strings.Contains(got, "reading of 42%") {
		t.Fatalf("expected rendered moisture, got %q", got)
	}
	if strings.Contains(got, "{") {
		t.Fatalf("unrendered placeholder in %q", got)
	}
}

func TestRenderDecimalPH(t *testing.T) {
	store := NewMemoryStore(Seed(), nil)
	r, _ := store.FindByID(PH)
	if got := r.Render(sensor.Snapshot{PH: 6.2}); !strings.Contains(got, "currently 6.2,") {
		t.Fatalf("unexpected pH text: %q", got)
	}
}

func TestSuggestionsReturnsCopy(t *testing.T) {
	store := NewMemoryStore(Seed(), SeedSuggestions())
	set, ok := store.Suggestions(SuggestionsIrrigation)
	if !ok || len(set) != 4 {
		t.Fatalf("expected 4 irrigation suggestions, got %v", set)
	}
	set[0] = "mutated"

	again, _ := store.Suggestions(SuggestionsIrrigation)
	if again[0] == "mutated" {
		t.Fatal("store leaked its internal slice")
	}

	if _, ok := store.Suggestions("missing"); ok {
		t.Fatal("expected unknown set to be absent")
	}
}

func TestEveryReplyIsNonEmpty(t *testing.T) {
	for _, r := range Seed() {
		if strings.TrimSpace(r.Render(sensor.Snapshot{})) == "" {
			t.Errorf("reply %s renders empty", r.ID)
		}
	}
}
