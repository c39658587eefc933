package telemetry

import (
	"context"
	"math/rand/v2"
	"strings"
	"testing"
	"time"
)

func newTestGenerator(seed uint64) *Generator {
	return NewGenerator(WithRand(rand.New(rand.NewPCG(seed, seed+1))))
}

func TestWindowLengthStaysConstant(t *testing.T) {
	g := newTestGenerator(1)
	if got := len(g.Snapshot().Points); got != WindowSize {
		t.Fatalf("initial window = %d, want %d", got, WindowSize)
	}

	for i := 0; i < 200; i++ {
		g.Tick()
		view := g.Snapshot()
		if len(view.Points) != WindowSize {
			t.Fatalf("tick %d: window = %d, want %d", i, len(view.Points), WindowSize)
		}
		if len(view.Alerts) > MaxAlerts {
			t.Fatalf("tick %d: alerts = %d, exceeds %d", i, len(view.Alerts), MaxAlerts)
		}
	}
}

func TestTickSlidesWindow(t *testing.T) {
	g := newTestGenerator(2)
	before := g.Snapshot().Points

	event := g.Tick()
	after := g.Snapshot().Points

	if after[WindowSize-1] != event.Point {
		t.Fatal("newest point should be the ticked point")
	}
	for i := 0; i < WindowSize-1; i++ {
		if after[i] != before[i+1] {
			t.Fatalf("point %d did not shift left", i)
		}
	}
}

func TestInitialPointsAreHourlyAndInRange(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	g := NewGenerator(WithClock(func() time.Time { return now }), WithRand(rand.New(rand.NewPCG(3, 4))))
	points := g.Snapshot().Points

	if !points[WindowSize-1].Time.Equal(now) {
		t.Fatalf("last point at %v, want %v", points[WindowSize-1].Time, now)
	}
	if !points[0].Time.Equal(now.Add(-23 * time.Hour)) {
		t.Fatalf("first point at %v, want 23h earlier", points[0].Time)
	}

	for _, p := range points {
		if p.Moisture < 30 || p.Moisture >= 50 {
			t.Errorf("moisture out of range: %v", p.Moisture)
		}
		if p.Temperature < 18 || p.Temperature >= 28 {
			t.Errorf("temperature out of range: %v", p.Temperature)
		}
		if p.PH < 5 || p.PH > 7 {
			t.Errorf("pH out of range: %v", p.PH)
		}
		if p.CO2 < 400 || p.CO2 >= 600 {
			t.Errorf("co2 out of range: %v", p.CO2)
		}
		if p.Light < 500 || p.Light >= 1000 {
			t.Errorf("light out of range: %v", p.Light)
		}
		if p.Humidity < 40 || p.Humidity >= 70 {
			t.Errorf("humidity out of range: %v", p.Humidity)
		}
	}
}

func TestAlertLogKeepsMostRecent(t *testing.T) {
	g := newTestGenerator(5)

	var raised []Alert
	for i := 0; i < 500; i++ {
		raised = append(raised, g.Tick().Alerts...)
	}
	if len(raised) < MaxAlerts {
		t.Skip("seed produced too few alerts")
	}

	got := g.Snapshot().Alerts
	want := raised[len(raised)-MaxAlerts:]
	if len(got) != MaxAlerts {
		t.Fatalf("alerts = %d, want %d", len(got), MaxAlerts)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("alert %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestEvaluateMessages(t *testing.T) {
	g := newTestGenerator(6)
	p := g.Snapshot().Current
	p.Moisture = 31
	p.Temperature = 27

	alerts := evaluate(p)
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(alerts))
	}
	if alerts[0].Message != "Low soil moisture detected: 31%" {
		t.Errorf("unexpected moisture alert %q", alerts[0].Message)
	}
	if !strings.HasPrefix(alerts[1].Message, "High temperature detected: 27") {
		t.Errorf("unexpected temperature alert %q", alerts[1].Message)
	}

	p.Moisture = 35
	p.Temperature = 25
	if alerts := evaluate(p); len(alerts) != 0 {
		t.Fatalf("thresholds are exclusive, got %v", alerts)
	}
}

func TestSubscribeReceivesTicks(t *testing.T) {
	g := newTestGenerator(7)
	events, cancel := g.Subscribe()
	defer cancel()

	tick := g.Tick()
	select {
	case got := <-events:
		if got.Point != tick.Point {
			t.Fatal("subscriber received a different point")
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	g.Tick()
	select {
	case <-events:
		t.Fatal("unsubscribed channel still receives events")
	default:
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	g := newTestGenerator(8)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		g.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := len(g.Snapshot().Points); got != WindowSize {
		t.Fatalf("window = %d after run", got)
	}
}

func TestGeneratorImplementsFeed(t *testing.T) {
	var feed Feed = newTestGenerator(9)
	snap, err := feed.Current(context.Background())
	if err != nil {
		t.Fatalf("Current err: %v", err)
	}
	if snap.Moisture == 0 {
		t.Fatal("expected a populated snapshot")
	}
}
