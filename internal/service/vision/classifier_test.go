package vision

import (
	"context"
	"errors"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeModel struct {
	scores []float32
	err    error
	calls  atomic.Int32
}

func (m *fakeModel) Predict(ctx context.Context, input Tensor) ([]float32, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.scores, nil
}

type fakeEngine struct {
	model *fakeModel
	delay time.Duration
	fails atomic.Int32 // remaining failures
	loads atomic.Int32
}

func (e *fakeEngine) Load(ctx context.Context) (Model, error) {
	e.loads.Add(1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.fails.Load() > 0 {
		e.fails.Add(-1)
		return nil, errors.New("network unreachable")
	}
	return e.model, nil
}

func newTestClassifier(t *testing.T, engine Engine, cfg Config) *Classifier {
	t.Helper()
	loader := NewLoader(engine, time.Second, zerolog.Nop())
	c, err := NewClassifier(context.Background(), loader, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClassifier err: %v", err)
	}
	return c
}

func TestClassifyReturnsTopLabel(t *testing.T) {
	engine := &fakeEngine{model: &fakeModel{scores: []float32{0.05, 0.05, 0.1, 0.8}}}
	c := newTestClassifier(t, engine, Config{})

	res, err := c.Classify(context.Background(), solidImage(50, 30, color.RGBA{G: 200, A: 255}))
	if err != nil {
		t.Fatalf("Classify err: %v", err)
	}
	if res.Label != "Apple___healthy" {
		t.Fatalf("unexpected label %s", res.Label)
	}
	if res.Confidence < 0.79 || res.Confidence > 0.81 {
		t.Fatalf("unexpected confidence %v", res.Confidence)
	}
	if !c.Ready() {
		t.Fatal("expected model to be cached after first use")
	}
}

func TestClassifyCachesIdenticalInputs(t *testing.T) {
	model := &fakeModel{scores: []float32{0.9, 0.1}}
	c := newTestClassifier(t, &fakeEngine{model: model}, Config{CacheSize: 4, Labels: []string{"x", "y"}})

	img := solidImage(8, 8, color.RGBA{R: 10, A: 255})
	for i := 0; i < 3; i++ {
		if _, err := c.Classify(context.Background(), img); err != nil {
			t.Fatalf("Classify err: %v", err)
		}
	}
	if got := model.calls.Load(); got != 1 {
		t.Fatalf("model called %d times, want 1", got)
	}
}

func TestReloadInvalidatesCachedResults(t *testing.T) {
	first := &fakeModel{scores: []float32{0.9, 0.1}}
	engine := &fakeEngine{model: first}
	c := newTestClassifier(t, engine, Config{CacheSize: 4, Labels: []string{"x", "y"}})
	img := solidImage(8, 8, color.RGBA{R: 10, A: 255})

	res, err := c.Classify(context.Background(), img)
	if err != nil || res.Label != "x" {
		t.Fatalf("first model: got %+v %v", res, err)
	}

	second := &fakeModel{scores: []float32{0.2, 0.8}}
	engine.model = second
	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("Reload err: %v", err)
	}

	res, err = c.Classify(context.Background(), img)
	if err != nil || res.Label != "y" {
		t.Fatalf("after reload: got %+v %v", res, err)
	}
	if got := second.calls.Load(); got != 1 {
		t.Fatalf("reloaded model called %d times, want 1", got)
	}
	if got := engine.loads.Load(); got != 2 {
		t.Fatalf("engine loaded %d times, want 2", got)
	}
}

func TestStaleGenerationIsNotServed(t *testing.T) {
	first := &fakeModel{scores: []float32{0.9, 0.1}}
	engine := &fakeEngine{model: first}
	c := newTestClassifier(t, engine, Config{CacheSize: 4, Labels: []string{"x", "y"}})
	img := solidImage(8, 8, color.RGBA{G: 10, A: 255})

	if _, err := c.Classify(context.Background(), img); err != nil {
		t.Fatalf("Classify err: %v", err)
	}

	// drop the handle without purging, as a concurrent reload would
	engine.model = &fakeModel{scores: []float32{0.2, 0.8}}
	c.loader.Reset()

	res, err := c.Classify(context.Background(), img)
	if err != nil || res.Label != "y" {
		t.Fatalf("expected result from the new model, got %+v %v", res, err)
	}
}

func TestClassifyLoadFailureIsReportedAndRetried(t *testing.T) {
	engine := &fakeEngine{model: &fakeModel{scores: []float32{1}}}
	engine.fails.Store(1)
	c := newTestClassifier(t, engine, Config{Labels: []string{"only"}})
	img := solidImage(4, 4, color.RGBA{A: 255})

	if _, err := c.Classify(context.Background(), img); !errors.Is(err, ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
	if c.Ready() {
		t.Fatal("failed load must not be cached")
	}

	res, err := c.Classify(context.Background(), img)
	if err != nil {
		t.Fatalf("retry err: %v", err)
	}
	if res.Label != "only" {
		t.Fatalf("unexpected label %s", res.Label)
	}
	if got := engine.loads.Load(); got != 2 {
		t.Fatalf("engine loaded %d times, want 2", got)
	}
}

func TestClassifyPredictionFailure(t *testing.T) {
	engine := &fakeEngine{model: &fakeModel{err: errors.New("shape mismatch")}}
	c := newTestClassifier(t, engine, Config{})

	if _, err := c.Classify(context.Background(), solidImage(4, 4, color.RGBA{A: 255})); !errors.Is(err, ErrPrediction) {
		t.Fatalf("expected ErrPrediction, got %v", err)
	}
}

func TestClassifyStrictOverflow(t *testing.T) {
	engine := &fakeEngine{model: &fakeModel{scores: []float32{0.1, 0.1, 0.8}}}
	c := newTestClassifier(t, engine, Config{Labels: []string{"a", "b"}, IndexPolicy: IndexStrict})

	if _, err := c.Classify(context.Background(), solidImage(4, 4, color.RGBA{A: 255})); !errors.Is(err, ErrLabelOutOfRange) {
		t.Fatalf("expected ErrLabelOutOfRange, got %v", err)
	}
}

func TestLoaderSharesConcurrentLoad(t *testing.T) {
	engine := &fakeEngine{model: &fakeModel{scores: []float32{1}}, delay: 50 * time.Millisecond}
	loader := NewLoader(engine, time.Second, zerolog.Nop())

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := loader.Get(context.Background()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("Get err: %v", err)
	}
	if got := engine.loads.Load(); got != 1 {
		t.Fatalf("engine loaded %d times, want 1", got)
	}

	loader.Reset()
	if loader.Loaded() {
		t.Fatal("expected Reset to drop the handle")
	}
}

func TestLoaderWaiterCancellation(t *testing.T) {
	engine := &fakeEngine{model: &fakeModel{scores: []float32{1}}, delay: 100 * time.Millisecond}
	loader := NewLoader(engine, time.Second, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := loader.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// the detached load still completes and is cached
	time.Sleep(150 * time.Millisecond)
	if !loader.Loaded() {
		t.Fatal("expected background load to finish")
	}
}
