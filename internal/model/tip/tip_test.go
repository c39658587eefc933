package tip

import "testing"

func TestRandomUsesSource(t *testing.T) {
	p := NewPicker(Seed(), func(n int) int { return n - 1 })
	if got := p.Random(); got != Seed()[5] {
		t.Fatalf("unexpected tip %q", got)
	}
}

func TestRandomEmpty(t *testing.T) {
	if got := NewPicker(nil, nil).Random(); got != "" {
		t.Fatalf("expected empty tip, got %q", got)
	}
}

func TestRandomAlwaysFromList(t *testing.T) {
	p := NewPicker(Seed(), nil)
	known := make(map[string]bool)
	for _, tip := range Seed() {
		known[tip] = true
	}
	for i := 0; i < 50; i++ {
		if tip := p.Random(); !known[tip] {
			t.Fatalf("unknown tip %q", tip)
		}
	}
}
