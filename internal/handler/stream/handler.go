package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/greenfield-labs/smartfarm/backend/internal/model/chat"
	aiService "github.com/greenfield-labs/smartfarm/backend/internal/service/ai"
	chatService "github.com/greenfield-labs/smartfarm/backend/internal/service/chat"
	"github.com/greenfield-labs/smartfarm/backend/pkg/utils"
)

// Handler manages streaming replies via Server-Sent Events. Without an
// advisor the catalog reply is sent as a single message event.
type Handler struct {
	advisor *aiService.Advisor
	chatSvc *chatService.Service
	logger  zerolog.Logger
}

// New creates a new stream handler. advisor may be nil.
func New(advisor *aiService.Advisor, chatSvc *chatService.Service, logger zerolog.Logger) *Handler {
	return &Handler{advisor: advisor, chatSvc: chatSvc, logger: logger}
}

// RegisterRoutes mounts the SSE endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string        `json:"event"`
	Content   string        `json:"content,omitempty"`
	SessionID string        `json:"sessionId,omitempty"`
	Message   *chat.Message `json:"message,omitempty"`
	Finished  bool          `json:"finished,omitempty"`
	Error     string        `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage := strings.TrimSpace(r.URL.Query().Get("message"))

	// blank input is a no-op, same as the messages endpoint
	if userMessage == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, chatService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := h.stream(r.Context(), w, flusher, sessionID, userMessage); err != nil {
		h.logger.Warn().Err(err).Str("session", sessionID).Msg("stream aborted")
		h.send(w, flusher, StreamResponse{Event: "error", SessionID: sessionID, Error: err.Error()})
	}
}

func (h *Handler) stream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID, userMessage string) error {
	h.send(w, flusher, StreamResponse{Event: "start", SessionID: sessionID})

	var (
		answer chat.Message
		err    error
	)
	if h.advisor == nil {
		answer, err = h.cannedReply(ctx, sessionID, userMessage)
	} else {
		answer, err = h.advisorReply(ctx, w, flusher, sessionID, userMessage)
	}
	if err != nil {
		return err
	}

	h.send(w, flusher, StreamResponse{Event: "message", SessionID: sessionID, Content: answer.Content, Message: &answer})
	h.send(w, flusher, StreamResponse{Event: "end", SessionID: sessionID, Finished: true})

	h.logger.Debug().Str("session", sessionID).Bool("advisor", h.advisor != nil).Msg("stream completed")
	return nil
}

func (h *Handler) cannedReply(ctx context.Context, sessionID, userMessage string) (chat.Message, error) {
	messages, err := h.chatSvc.SendText(ctx, sessionID, userMessage)
	if err != nil {
		return chat.Message{}, err
	}
	return messages[len(messages)-1], nil
}

func (h *Handler) advisorReply(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID, userMessage string) (chat.Message, error) {
	history, err := h.chatSvc.LoadTranscript(ctx, sessionID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("failed to load conversation: %w", err)
	}

	draft := h.chatSvc.Draft(ctx, userMessage)
	if _, err := h.chatSvc.SaveMessage(ctx, chat.Message{
		SessionID: sessionID,
		Sender:    chat.SenderUser,
		Content:   userMessage,
	}); err != nil {
		return chat.Message{}, err
	}

	req := aiService.Request{
		SessionID: sessionID,
		History:   history,
		Query:     userMessage,
		Readings:  draft.Readings,
		Reference: draft.Decision.Reply,
	}

	var response *schema.Message
	if h.advisor.StreamingEnabled() {
		response, err = h.streamAdvisor(ctx, w, flusher, sessionID, req)
	} else {
		response, err = h.advisor.Generate(ctx, req)
	}
	if err != nil {
		return chat.Message{}, fmt.Errorf("advisor generation failed: %w", err)
	}

	if err := h.chatSvc.UpdateSuggestions(ctx, sessionID, draft.Decision.Suggestions); err != nil {
		return chat.Message{}, err
	}
	return h.chatSvc.SaveMessage(ctx, chat.Message{
		SessionID:        sessionID,
		Sender:           chat.SenderAssistant,
		Content:          response.Content,
		AttachedReadings: draft.Readings,
	})
}

func (h *Handler) streamAdvisor(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID string, req aiService.Request) (*schema.Message, error) {
	stream, err := h.advisor.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return nil, recvErr
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			h.send(w, flusher, StreamResponse{Event: "delta", SessionID: sessionID, Content: chunk.Content})
		}
	}

	if len(chunks) == 0 {
		return nil, errors.New("advisor returned no content")
	}
	return schema.ConcatMessages(chunks)
}

func (h *Handler) send(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	if err := utils.SendSSEEvent(w, flusher, response.Event, response); err != nil {
		h.logger.Debug().Err(err).Str("event", response.Event).Msg("failed to write sse event")
	}
}
