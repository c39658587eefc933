package telemetry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/greenfield-labs/smartfarm/backend/internal/metrics"
	"github.com/greenfield-labs/smartfarm/backend/internal/model/sensor"
)

const (
	// WindowSize is the number of points kept in the series.
	WindowSize = 24
	// MaxAlerts bounds the alert log.
	MaxAlerts = 5
	// DefaultInterval matches the dashboard refresh rate.
	DefaultInterval = 5 * time.Second

	subscriberBuffer = 8
)

// Alert is a threshold violation observed on the newest point.
type Alert struct {
	Metric  string    `json:"metric"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Event is published to subscribers after each tick.
type Event struct {
	Point  sensor.Snapshot `json:"point"`
	Alerts []Alert         `json:"alerts,omitempty"`
}

// View is a consistent copy of the generator state.
type View struct {
	Points  []sensor.Snapshot        `json:"points"`
	Alerts  []Alert                  `json:"alerts"`
	Current sensor.Snapshot          `json:"current"`
	Status  map[string]sensor.Status `json:"status"`
}

// Generator simulates field sensors as a fixed-length sliding window.
type Generator struct {
	mu     sync.RWMutex
	rng    *rand.Rand
	now    func() time.Time
	points []sensor.Snapshot
	alerts []Alert
	subs   map[chan Event]struct{}
	logger zerolog.Logger
}

// Option customises a Generator.
type Option func(*Generator)

// WithRand sets the random source, mainly for tests.
func WithRand(rng *rand.Rand) Option {
	return func(g *Generator) { g.rng = rng }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

// NewGenerator seeds a window of WindowSize hourly points ending now.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		now:    time.Now,
		subs:   make(map[chan Event]struct{}),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}

	now := g.now().UTC()
	g.points = make([]sensor.Snapshot, 0, WindowSize)
	for i := 0; i < WindowSize; i++ {
		at := now.Add(time.Duration(i-(WindowSize-1)) * time.Hour)
		g.points = append(g.points, g.randomPoint(at))
	}
	return g
}

// Tick drops the oldest point, appends a fresh one, and records alerts for it.
func (g *Generator) Tick() Event {
	g.mu.Lock()
	point := g.randomPoint(g.now().UTC())
	g.points = append(g.points[1:], point)

	raised := evaluate(point)
	g.alerts = append(g.alerts, raised...)
	if len(g.alerts) > MaxAlerts {
		g.alerts = append([]Alert(nil), g.alerts[len(g.alerts)-MaxAlerts:]...)
	}

	event := Event{Point: point, Alerts: raised}
	subs := make([]chan Event, 0, len(g.subs))
	for ch := range g.subs {
		subs = append(subs, ch)
	}
	g.mu.Unlock()

	for _, alert := range raised {
		metrics.TelemetryAlerts.WithLabelValues(alert.Metric).Inc()
		g.logger.Debug().Str("metric", alert.Metric).Msg(alert.Message)
	}

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// slow subscriber, drop
		}
	}
	return event
}

// Run ticks every interval until ctx is cancelled.
func (g *Generator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	g.logger.Info().Dur("interval", interval).Msg("telemetry simulator started")
	for {
		select {
		case <-ctx.Done():
			g.logger.Info().Msg("telemetry simulator stopped")
			return
		case <-ticker.C:
			g.Tick()
		}
	}
}

// Snapshot returns a copy of the window, alert log and latest grading.
func (g *Generator) Snapshot() View {
	g.mu.RLock()
	defer g.mu.RUnlock()

	current := g.points[len(g.points)-1]
	return View{
		Points:  append([]sensor.Snapshot(nil), g.points...),
		Alerts:  append([]Alert{}, g.alerts...),
		Current: current,
		Status:  current.Grade(),
	}
}

// Current implements Feed with the newest simulated point.
func (g *Generator) Current(_ context.Context) (sensor.Snapshot, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.points[len(g.points)-1], nil
}

// Subscribe registers for tick events. The returned func unsubscribes.
func (g *Generator) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	g.mu.Lock()
	g.subs[ch] = struct{}{}
	g.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subs, ch)
			g.mu.Unlock()
		})
	}
}

// randomPoint uses the dashboard ranges; caller must hold g.mu or own g.
func (g *Generator) randomPoint(at time.Time) sensor.Snapshot {
	return sensor.Snapshot{
		Time:        at,
		Moisture:    float64(g.rng.IntN(20) + 30),
		Temperature: float64(g.rng.IntN(10) + 18),
		PH:          math.Round((g.rng.Float64()*2+5)*10) / 10,
		CO2:         float64(g.rng.IntN(200) + 400),
		Light:       float64(g.rng.IntN(500) + 500),
		Humidity:    float64(g.rng.IntN(30) + 40),
	}
}

func evaluate(p sensor.Snapshot) []Alert {
	var alerts []Alert
	if p.Moisture < 35 {
		alerts = append(alerts, Alert{
			Metric:  sensor.MetricMoisture,
			Message: fmt.Sprintf("Low soil moisture detected: %s%%", strconv.FormatFloat(p.Moisture, 'f', -1, 64)),
			Time:    p.Time,
		})
	}
	if p.Temperature > 25 {
		alerts = append(alerts, Alert{
			Metric:  sensor.MetricTemperature,
			Message: fmt.Sprintf("High temperature detected: %s°C", strconv.FormatFloat(p.Temperature, 'f', -1, 64)),
			Time:    p.Time,
		})
	}
	return alerts
}
