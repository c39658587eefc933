package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	telemetryService "github.com/greenfield-labs/smartfarm/backend/internal/service/telemetry"
	"github.com/greenfield-labs/smartfarm/backend/pkg/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Handler 提供仪表盘遥测数据的 REST 与 WebSocket 接口。
type Handler struct {
	generator *telemetryService.Generator
	upgrader  websocket.Upgrader
	logger    zerolog.Logger
}

// New 创建遥测处理器
func New(generator *telemetryService.Generator, logger zerolog.Logger) *Handler {
	return &Handler{
		generator: generator,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes 注册遥测路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/telemetry", h.handleSnapshot)
	r.Get("/telemetry/ws", h.handleWebSocket)
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.generator.Snapshot())
}

// handleWebSocket sends the full view once, then one "tick" per generator
// tick. Client frames are read only to track liveness.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := h.generator.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go h.readLoop(conn, cancel)

	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("telemetry subscriber connected")

	if err := h.write(conn, "snapshot", h.generator.Snapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if err := h.write(conn, "tick", event); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("telemetry websocket read error")
			}
			return
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, kind string, data interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := conn.WriteJSON(outgoingMessage{Type: kind, Data: data, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		h.logger.Debug().Err(err).Str("type", kind).Msg("telemetry websocket write failed")
	}
	return err
}
