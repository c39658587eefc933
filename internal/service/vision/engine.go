package vision

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrModelLoad marks a failure to fetch or parse the model artifact.
	ErrModelLoad = errors.New("model load failed")
	// ErrPrediction marks a failed forward pass.
	ErrPrediction = errors.New("prediction failed")
	// ErrEmptyOutput is returned when the model produced no scores.
	ErrEmptyOutput = errors.New("model returned no scores")
	// ErrLabelOutOfRange is returned under IndexStrict when argmax has no label.
	ErrLabelOutOfRange = errors.New("predicted index outside label vocabulary")
	// ErrInvalidImage is returned for images that cannot be decoded or are empty.
	ErrInvalidImage = errors.New("invalid image")
	// ErrImageTooLarge is an ErrInvalidImage whose declared dimensions exceed the pixel cap.
	ErrImageTooLarge = fmt.Errorf("%w: too many pixels", ErrInvalidImage)
)

// Tensor is a single image in height x width x channel order.
type Tensor struct {
	Height   int
	Width    int
	Channels int
	Data     []float32
}

// At returns the value at (y, x, c).
func (t Tensor) At(y, x, c int) float32 {
	return t.Data[(y*t.Width+x)*t.Channels+c]
}

// Engine loads a classification network.
type Engine interface {
	Load(ctx context.Context) (Model, error)
}

// Model runs a forward pass and returns one score per class.
type Model interface {
	Predict(ctx context.Context, input Tensor) ([]float32, error)
}
