package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/greenfield-labs/smartfarm/backend/internal/handler/chat"
	"github.com/greenfield-labs/smartfarm/backend/internal/handler/stream"
	"github.com/greenfield-labs/smartfarm/backend/internal/handler/telemetry"
	"github.com/greenfield-labs/smartfarm/backend/internal/handler/tips"
	middlewarePkg "github.com/greenfield-labs/smartfarm/backend/internal/middleware"
	"github.com/greenfield-labs/smartfarm/backend/internal/model/tip"
	aiService "github.com/greenfield-labs/smartfarm/backend/internal/service/ai"
	chatService "github.com/greenfield-labs/smartfarm/backend/internal/service/chat"
	telemetryService "github.com/greenfield-labs/smartfarm/backend/internal/service/telemetry"
	"github.com/greenfield-labs/smartfarm/backend/pkg/utils"
)

// ClassifierControl exposes model state and reload to operators.
type ClassifierControl interface {
	Ready() bool
	Labels() []string
	Reload(ctx context.Context) error
}

// Dependencies groups the services exposed over HTTP. Advisor and Classifier
// may be nil.
type Dependencies struct {
	Chat       *chatService.Service
	Telemetry  *telemetryService.Generator
	Advisor    *aiService.Advisor
	Classifier ClassifierControl
	Tips       *tip.Picker
	MaxUpload  int64
	MaxPixels  int
	Logger     zerolog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(deps.Logger))
	r.Use(middlewarePkg.Metrics)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		classifier, labels := "disabled", 0
		if deps.Classifier != nil {
			classifier = "cold"
			if deps.Classifier.Ready() {
				classifier = "ready"
			}
			labels = len(deps.Classifier.Labels())
		}
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"classifier": classifier,
			"labels":     labels,
			"advisor":    deps.Advisor != nil,
		})
	})

	picker := deps.Tips
	if picker == nil {
		picker = tip.NewPicker(tip.Seed(), nil)
	}

	r.Route("/api", func(api chi.Router) {
		chat.New(deps.Chat, chat.UploadLimits{Bytes: deps.MaxUpload, Pixels: deps.MaxPixels}, deps.Logger).RegisterRoutes(api)
		stream.New(deps.Advisor, deps.Chat, deps.Logger).RegisterRoutes(api)
		telemetry.New(deps.Telemetry, deps.Logger).RegisterRoutes(api)
		tips.New(picker).RegisterRoutes(api)

		// 重新加载分类模型并丢弃旧模型的缓存结果
		api.Post("/classifier/reload", func(w http.ResponseWriter, r *http.Request) {
			if deps.Classifier == nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "image analysis unavailable")
				return
			}
			if err := deps.Classifier.Reload(r.Context()); err != nil {
				deps.Logger.Error().Err(err).Msg("classifier reload failed")
				utils.RespondError(w, http.StatusServiceUnavailable, "model reload failed")
				return
			}
			utils.RespondJSON(w, http.StatusOK, map[string]any{"classifier": "ready"})
		})
	})

	return r
}
