package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	telemetryService "github.com/greenfield-labs/smartfarm/backend/internal/service/telemetry"
)

func setup() (*chi.Mux, *telemetryService.Generator) {
	gen := telemetryService.NewGenerator()
	r := chi.NewRouter()
	New(gen, zerolog.Nop()).RegisterRoutes(r)
	return r, gen
}

func TestSnapshotEndpoint(t *testing.T) {
	r, _ := setup()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/telemetry", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var view telemetryService.View
	if err := json.Unmarshal(resp.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(view.Points) != telemetryService.WindowSize {
		t.Fatalf("expected %d points, got %d", telemetryService.WindowSize, len(view.Points))
	}
	if len(view.Status) != 4 {
		t.Fatalf("expected 4 graded metrics, got %v", view.Status)
	}
}

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func TestWebSocketStreamsTicks(t *testing.T) {
	r, gen := setup()
	server := httptest.NewServer(r)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/telemetry/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first inbound
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.Type != "snapshot" {
		t.Fatalf("expected snapshot first, got %s", first.Type)
	}

	gen.Tick()

	var tick inbound
	if err := conn.ReadJSON(&tick); err != nil {
		t.Fatalf("read tick: %v", err)
	}
	if tick.Type != "tick" {
		t.Fatalf("expected tick, got %s", tick.Type)
	}
	var event telemetryService.Event
	if err := json.Unmarshal(tick.Data, &event); err != nil {
		t.Fatalf("decode tick: %v", err)
	}
	if event.Point.Moisture < 30 || event.Point.Moisture > 49 {
		t.Fatalf("moisture out of range: %v", event.Point.Moisture)
	}
}
