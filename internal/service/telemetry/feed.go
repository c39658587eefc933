package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/greenfield-labs/smartfarm/backend/internal/model/sensor"
)

// ErrFeedUnavailable is returned when a sensor feed cannot produce a reading.
var ErrFeedUnavailable = errors.New("sensor feed unavailable")

// Feed supplies the current sensor reading on demand.
type Feed interface {
	Current(ctx context.Context) (sensor.Snapshot, error)
}

// StaticFeed always returns the same reading, stamped with the current time.
type StaticFeed struct {
	Reading sensor.Snapshot
}

// DefaultReading is the fixed snapshot the chat assistant quotes.
func DefaultReading() sensor.Snapshot {
	return sensor.Snapshot{
		Moisture:    42,
		Temperature: 24,
		PH:          6.2,
		CO2:         450,
		Light:       850,
		Humidity:    65,
	}
}

// NewStaticFeed returns a StaticFeed serving DefaultReading.
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{Reading: DefaultReading()}
}

// Current implements Feed.
func (f *StaticFeed) Current(_ context.Context) (sensor.Snapshot, error) {
	snap := f.Reading
	snap.Time = time.Now().UTC()
	return snap, nil
}

// HTTPFeed pulls readings from a remote JSON endpoint such as /api/sensor-data.
type HTTPFeed struct {
	url    string
	client *http.Client
}

// NewHTTPFeed creates a feed reading from url. A nil client uses a 5s timeout client.
func NewHTTPFeed(url string, client *http.Client) *HTTPFeed {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPFeed{url: url, client: client}
}

// Current implements Feed.
func (f *HTTPFeed) Current(ctx context.Context) (sensor.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return sensor.Snapshot{}, fmt.Errorf("build sensor request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return sensor.Snapshot{}, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return sensor.Snapshot{}, fmt.Errorf("%w: status %d: %s", ErrFeedUnavailable, resp.StatusCode, body)
	}

	var snap sensor.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return sensor.Snapshot{}, fmt.Errorf("%w: decode reading: %v", ErrFeedUnavailable, err)
	}
	if snap.Time.IsZero() {
		snap.Time = time.Now().UTC()
	}
	return snap, nil
}
