package vision

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"image"
	"math"

	"github.com/cloudwego/eino/compose"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/greenfield-labs/smartfarm/backend/internal/metrics"
)

// DefaultInputSize is the square resolution the network expects.
const DefaultInputSize = 224

// Config controls preprocessing and label mapping.
type Config struct {
	InputSize     int
	Normalization Normalization
	IndexPolicy   IndexPolicy
	Labels        []string
	// CacheSize is the number of memoised results; zero disables caching.
	CacheSize int
}

func (c Config) withDefaults() Config {
	if c.InputSize <= 0 {
		c.InputSize = DefaultInputSize
	}
	if c.Normalization == "" {
		c.Normalization = NormalizeUnit
	}
	if c.IndexPolicy == "" {
		c.IndexPolicy = IndexStrict
	}
	if len(c.Labels) == 0 {
		c.Labels = DefaultLabels()
	}
	return c
}

// Classifier turns images into a single labelled prediction.
type Classifier struct {
	cfg      Config
	loader   *Loader
	cache    *lru.Cache
	pipeline compose.Runnable[image.Image, Result]
	logger   zerolog.Logger
}

// NewClassifier compiles the preprocess -> predict -> decode pipeline.
func NewClassifier(ctx context.Context, loader *Loader, cfg Config, logger zerolog.Logger) (*Classifier, error) {
	c := &Classifier{cfg: cfg.withDefaults(), loader: loader, logger: logger}

	if c.cfg.CacheSize > 0 {
		cache, err := lru.New(c.cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create result cache: %w", err)
		}
		c.cache = cache
	}

	chain := compose.NewChain[image.Image, Result]()
	chain.AppendLambda(compose.InvokableLambda(c.preprocess))
	chain.AppendLambda(compose.InvokableLambda(c.predict))
	chain.AppendLambda(compose.InvokableLambda(c.decode))

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile classifier chain: %w", err)
	}
	c.pipeline = runnable
	return c, nil
}

// Labels returns the configured vocabulary.
func (c *Classifier) Labels() []string {
	return append([]string(nil), c.cfg.Labels...)
}

// Warmup loads the model ahead of the first request.
func (c *Classifier) Warmup(ctx context.Context) error {
	_, err := c.loader.Get(ctx)
	return err
}

// Reload drops the loaded model and every memoised result, then loads the
// model again. Results computed by the previous model are never served after
// Reload returns.
func (c *Classifier) Reload(ctx context.Context) error {
	c.loader.Reset()
	if c.cache != nil {
		c.cache.Purge()
	}
	c.logger.Info().Msg("classification model reload requested")
	_, err := c.loader.Get(ctx)
	return err
}

// Ready reports whether the model is loaded.
func (c *Classifier) Ready() bool {
	return c.loader.Loaded()
}

// Classify runs one inference pass over img.
func (c *Classifier) Classify(ctx context.Context, img image.Image) (Result, error) {
	failure := &stageError{}
	ctx = context.WithValue(ctx, stageErrorKey{}, failure)

	result, err := c.pipeline.Invoke(ctx, img)
	if err != nil {
		if failure.err != nil {
			err = failure.err
		}
		metrics.Classifications.WithLabelValues("error").Inc()
		return Result{}, err
	}
	metrics.Classifications.WithLabelValues("ok").Inc()
	return result, nil
}

// scored carries the cache key next to the raw scores between stages.
type scored struct {
	key    string
	scores []float32
}

// cachedScores remembers which model load produced the scores.
type cachedScores struct {
	gen    uint64
	scores []float32
}

func (c *Classifier) preprocess(ctx context.Context, img image.Image) (Tensor, error) {
	t, err := Preprocess(img, c.cfg.InputSize, c.cfg.Normalization)
	if err != nil {
		return Tensor{}, record(ctx, err)
	}
	return t, nil
}

func (c *Classifier) predict(ctx context.Context, input Tensor) (scored, error) {
	h, err := c.loader.acquire(ctx)
	if err != nil {
		return scored{}, record(ctx, err)
	}

	key := ""
	if c.cache != nil {
		key = tensorKey(input)
		if v, ok := c.cache.Get(key); ok {
			if entry := v.(cachedScores); entry.gen == h.gen {
				metrics.ClassifierCacheHits.Inc()
				return scored{key: key, scores: entry.scores}, nil
			}
		}
	}

	scores, err := h.model.Predict(ctx, input)
	if err != nil {
		c.logger.Warn().Err(err).Msg("forward pass failed")
		return scored{}, record(ctx, fmt.Errorf("%w: %w", ErrPrediction, err))
	}
	if c.cache != nil && len(scores) > 0 {
		c.cache.Add(key, cachedScores{gen: h.gen, scores: append([]float32(nil), scores...)})
	}
	return scored{key: key, scores: scores}, nil
}

func (c *Classifier) decode(ctx context.Context, in scored) (Result, error) {
	result, err := decodeScores(in.scores, c.cfg.Labels, c.cfg.IndexPolicy)
	if err != nil {
		return Result{}, record(ctx, err)
	}
	return result, nil
}

func tensorKey(t Tensor) string {
	h := sha256.New()
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(t.Height))
	h.Write(buf[:])
	binary.LittleEndian.PutUint32(buf[:], uint32(t.Width))
	h.Write(buf[:])
	for _, v := range t.Data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// stageError keeps the typed stage error; the chain wraps errors it returns.
type stageError struct{ err error }

type stageErrorKey struct{}

func record(ctx context.Context, err error) error {
	if holder, ok := ctx.Value(stageErrorKey{}).(*stageError); ok && holder.err == nil {
		holder.err = err
	}
	return err
}
