package vision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/greenfield-labs/smartfarm/backend/internal/metrics"
)

const loadKey = "model"

// Loader owns the shared model handle. The model is loaded lazily on first
// use; concurrent callers during a load wait for that same load. A failed
// load is not cached, so the next call retries.
type Loader struct {
	engine  Engine
	timeout time.Duration
	logger  zerolog.Logger

	mu    sync.RWMutex
	cur   handle
	gen   uint64
	group singleflight.Group
}

// handle is a loaded model tagged with the load that produced it.
type handle struct {
	model Model
	gen   uint64
}

// NewLoader creates a Loader. timeout bounds a single load; zero means no limit.
func NewLoader(engine Engine, timeout time.Duration, logger zerolog.Logger) *Loader {
	return &Loader{engine: engine, timeout: timeout, logger: logger}
}

// Get returns the cached model, loading it if needed.
func (l *Loader) Get(ctx context.Context) (Model, error) {
	h, err := l.acquire(ctx)
	return h.model, err
}

func (l *Loader) acquire(ctx context.Context) (handle, error) {
	if h := l.cached(); h.model != nil {
		return h, nil
	}

	ch := l.group.DoChan(loadKey, func() (any, error) {
		if h := l.cached(); h.model != nil {
			return h, nil
		}
		return l.load(ctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return handle{}, res.Err
		}
		return res.Val.(handle), nil
	case <-ctx.Done():
		return handle{}, ctx.Err()
	}
}

// Loaded reports whether a model handle is cached.
func (l *Loader) Loaded() bool {
	return l.cached().model != nil
}

// Reset drops the cached handle so the next Get reloads.
func (l *Loader) Reset() {
	l.mu.Lock()
	l.cur = handle{}
	l.mu.Unlock()
}

func (l *Loader) cached() handle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cur
}

// load runs detached from the caller's cancellation: other waiters share it.
func (l *Loader) load(ctx context.Context) (handle, error) {
	loadCtx := context.WithoutCancel(ctx)
	if l.timeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(loadCtx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	m, err := l.engine.Load(loadCtx)
	elapsed := time.Since(start)
	metrics.ModelLoadDuration.Observe(elapsed.Seconds())

	if err != nil {
		l.logger.Error().Err(err).Dur("elapsed", elapsed).Msg("classification model load failed")
		return handle{}, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	if m == nil {
		return handle{}, fmt.Errorf("%w: engine returned no model", ErrModelLoad)
	}

	l.mu.Lock()
	l.gen++
	h := handle{model: m, gen: l.gen}
	l.cur = h
	l.mu.Unlock()

	l.logger.Info().Dur("elapsed", elapsed).Uint64("generation", h.gen).Msg("classification model loaded")
	return h, nil
}
