package tips

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greenfield-labs/smartfarm/backend/internal/model/tip"
	"github.com/greenfield-labs/smartfarm/backend/pkg/utils"
)

// Handler 农事小贴士的HTTP处理器
type Handler struct {
	picker *tip.Picker
}

// New 创建小贴士处理器
func New(picker *tip.Picker) *Handler {
	return &Handler{picker: picker}
}

// RegisterRoutes 注册小贴士路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/tips", h.handleList)
	r.Get("/tips/random", h.handleRandom)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string][]string{"tips": h.picker.All()})
}

func (h *Handler) handleRandom(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"tip": h.picker.Random()})
}
