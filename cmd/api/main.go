package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/greenfield-labs/smartfarm/backend/internal/analysis/intent"
	"github.com/greenfield-labs/smartfarm/backend/internal/config"
	"github.com/greenfield-labs/smartfarm/backend/internal/handler"
	"github.com/greenfield-labs/smartfarm/backend/internal/model/reply"
	"github.com/greenfield-labs/smartfarm/backend/internal/model/tip"
	"github.com/greenfield-labs/smartfarm/backend/internal/service/ai"
	"github.com/greenfield-labs/smartfarm/backend/internal/service/chat"
	"github.com/greenfield-labs/smartfarm/backend/internal/service/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := config.InitLogger(cfg.Server.LogLevel, cfg.Server.IsDevelopment())
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file, using system environment variables only")
	}

	generator := telemetry.NewGenerator(telemetry.WithLogger(logger.With().Str("component", "telemetry").Logger()))
	go generator.Run(ctx, cfg.Telemetry.Interval)

	selector := intent.NewSelector(reply.NewMemoryStore(reply.Seed(), reply.SeedSuggestions()), nil)

	opts := []chat.Option{chat.WithLogger(logger.With().Str("component", "chat").Logger())}

	var classifierCtl handler.ClassifierControl
	if cfg.Vision.Enabled() {
		visionLogger := logger.With().Str("component", "vision").Logger()
		classifier, err := cfg.Vision.NewClassifier(ctx, visionLogger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize image classifier")
		}
		opts = append(opts, chat.WithClassifier(classifier))
		classifierCtl = classifier

		go func() {
			if err := classifier.Warmup(ctx); err != nil {
				visionLogger.Warn().Err(err).Msg("model warmup failed, will retry on first upload")
			}
		}()
		logger.Info().Str("url", cfg.Vision.URL).Str("model", cfg.Vision.Model).Msg("image classifier enabled")
	} else {
		logger.Info().Msg("CLASSIFIER_URL 未配置，图像识别已关闭")
	}

	chatService := chat.NewService(selector, newFeed(cfg.Telemetry, generator), opts...)

	// Initialize advisor
	var advisor *ai.Advisor
	if cfg.AI.Enabled() {
		advisor, err = newAdvisor(ctx, cfg.AI, logger.With().Str("component", "advisor").Logger())
		if err != nil {
			logger.Warn().Err(err).Msg("continuing without advisor - 请检查 Ark 模型相关环境变量")
		} else {
			logger.Info().Bool("stream", cfg.AI.StreamResponse).Msg("advisor initialized")
		}
	} else {
		logger.Info().Msg("Ark 凭证未配置，使用内置回复")
	}

	router := handler.NewRouter(handler.Dependencies{
		Chat:       chatService,
		Telemetry:  generator,
		Advisor:    advisor,
		Classifier: classifierCtl,
		Tips:       tip.NewPicker(tip.Seed(), nil),
		MaxUpload:  cfg.Vision.MaxUploadBytes(),
		MaxPixels:  cfg.Vision.MaxPixels,
		Logger:     logger,
	})

	startServer(ctx, cfg.Server, router, logger)
}

func newFeed(cfg config.TelemetryConfig, generator *telemetry.Generator) telemetry.Feed {
	switch cfg.Feed {
	case config.FeedSimulated:
		return generator
	case config.FeedHTTP:
		return telemetry.NewHTTPFeed(cfg.FeedURL, &http.Client{Timeout: 5 * time.Second})
	default:
		return telemetry.NewStaticFeed()
	}
}

func newAdvisor(ctx context.Context, cfg config.AIConfig, logger zerolog.Logger) (*ai.Advisor, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}
	return ai.NewAdvisor(ctx, chatModel, cfg.StreamResponse, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger zerolog.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", serverCfg.Addr).Str("env", serverCfg.Env).Msg("smart farm backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
	logger.Info().Msg("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
