package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/greenfield-labs/smartfarm/backend/internal/model/chat"
	chatService "github.com/greenfield-labs/smartfarm/backend/internal/service/chat"
	"github.com/greenfield-labs/smartfarm/backend/internal/service/vision"
	"github.com/greenfield-labs/smartfarm/backend/pkg/utils"
)

// DefaultMaxUpload bounds image uploads when no limit is configured.
const DefaultMaxUpload = 10 << 20

// UploadLimits bounds an image upload. Bytes limits the multipart body,
// Pixels the declared width*height. Zero values take the defaults.
type UploadLimits struct {
	Bytes  int64
	Pixels int
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc   *chatService.Service
	maxUpload int64
	maxPixels int
	logger    zerolog.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, limits UploadLimits, logger zerolog.Logger) *Handler {
	if limits.Bytes <= 0 {
		limits.Bytes = DefaultMaxUpload
	}
	if limits.Pixels <= 0 {
		limits.Pixels = vision.DefaultMaxPixels
	}
	return &Handler{chatSvc: chatSvc, maxUpload: limits.Bytes, maxPixels: limits.Pixels, logger: logger}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreateSession)
		r.Get("/{sessionID}", h.handleGetSession)
		r.Get("/{sessionID}/messages", h.handleListMessages)
		r.Post("/{sessionID}/messages", h.handleSendMessage)
		r.Post("/{sessionID}/images", h.handleUploadImage)
	})
}

type sessionResponse struct {
	chat.Session
	Messages []chat.Message `json:"messages"`
}

type exchangeResponse struct {
	Messages    []chat.Message `json:"messages"`
	Suggestions []string       `json:"suggestions"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	messages, err := h.chatSvc.LoadTranscript(r.Context(), session.ID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, sessionResponse{Session: session, Messages: messages})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatSvc.LoadTranscript(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	messages, err := h.chatSvc.SendText(r.Context(), sessionID, payload.Content)
	if errors.Is(err, chatService.ErrEmptyInput) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	suggestions, err := h.chatSvc.Suggestions(r.Context(), sessionID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, exchangeResponse{Messages: messages, Suggestions: suggestions})
}

// handleUploadImage accepts a multipart "image" field and waits for the
// classification result.
func (h *Handler) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if !h.chatSvc.ClassifierEnabled() {
		utils.RespondError(w, http.StatusServiceUnavailable, "image analysis unavailable")
		return
	}
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "multipart field \"image\" is required")
		return
	}
	defer file.Close()

	sniff := make([]byte, 512)
	n, err := io.ReadFull(file, sniff)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	sniff = sniff[:n]

	mimeType := http.DetectContentType(sniff)
	if !strings.HasPrefix(mimeType, "image/") {
		utils.RespondError(w, http.StatusUnsupportedMediaType, "only image uploads are accepted")
		return
	}

	decoded, err := vision.Decode(io.MultiReader(bytes.NewReader(sniff), file), h.maxPixels)
	if errors.Is(err, vision.ErrImageTooLarge) {
		h.logger.Warn().Err(err).Str("session", sessionID).Msg("rejected oversized upload")
		utils.RespondError(w, http.StatusRequestEntityTooLarge, "image dimensions too large")
		return
	}
	if err != nil {
		h.logger.Warn().Err(err).Str("session", sessionID).Str("mime", mimeType).Msg("rejected undecodable upload")
		utils.RespondError(w, http.StatusUnsupportedMediaType, "unsupported or corrupt image")
		return
	}

	bounds := decoded.Image.Bounds()
	upload := chatService.Upload{
		Image: decoded.Image,
		Ref: chat.ImageRef{
			Filename: header.Filename,
			MimeType: mimeType,
			Width:    bounds.Dx(),
			Height:   bounds.Dy(),
			SHA256:   decoded.SHA256,
		},
	}

	sub, err := h.chatSvc.SubmitImage(r.Context(), sessionID, upload)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	result, err := sub.Wait(r.Context())
	if err != nil {
		// client went away; the result still lands in the transcript
		return
	}

	suggestions, _ := h.chatSvc.Suggestions(r.Context(), sessionID)
	utils.RespondJSON(w, http.StatusCreated, exchangeResponse{
		Messages:    []chat.Message{sub.User, result},
		Suggestions: suggestions,
	})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrClassificationPending):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chatService.ErrClassifierUnavailable):
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, vision.ErrInvalidImage):
		utils.RespondError(w, http.StatusUnsupportedMediaType, err.Error())
	default:
		h.logger.Error().Err(err).Msg("chat request failed")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
