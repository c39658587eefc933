package vision

import (
	"fmt"
	"math"
	"strings"
)

// IndexPolicy decides what happens when argmax falls outside the vocabulary.
type IndexPolicy string

const (
	// IndexStrict fails the classification with ErrLabelOutOfRange.
	IndexStrict IndexPolicy = "strict"
	// IndexWrap maps the index modulo the vocabulary length.
	IndexWrap IndexPolicy = "wrap"
)

// ParseIndexPolicy accepts "strict" or "wrap"; empty means strict.
func ParseIndexPolicy(s string) (IndexPolicy, error) {
	switch IndexPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", IndexStrict:
		return IndexStrict, nil
	case IndexWrap:
		return IndexWrap, nil
	default:
		return "", fmt.Errorf("unknown index policy %q", s)
	}
}

// DefaultLabels is the plant disease vocabulary of the bundled model.
func DefaultLabels() []string {
	return []string{
		"Apple___Apple_scab",
		"Apple___Black_rot",
		"Apple___Cedar_apple_rust",
		"Apple___healthy",
		"Corn_(maize)___Cercospora_leaf_spot Gray_leaf_spot",
		"Corn_(maize)___Common_rust_",
		"Corn_(maize)___Northern_Leaf_Blight",
		"Corn_(maize)___healthy",
	}
}

// Result is the top class for one image.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Index      int     `json:"index"`
}

// decodeScores takes argmax over scores and maps it into labels.
func decodeScores(scores []float32, labels []string, policy IndexPolicy) (Result, error) {
	if len(scores) == 0 {
		return Result{}, ErrEmptyOutput
	}

	probs := make([]float64, len(scores))
	needSoftmax := false
	for i, s := range scores {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}, fmt.Errorf("%w: non-finite score at %d", ErrPrediction, i)
		}
		if v < 0 || v > 1 {
			needSoftmax = true
		}
		probs[i] = v
	}
	if needSoftmax {
		softmax(probs)
	}

	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}

	label, err := labelFor(best, labels, policy)
	if err != nil {
		return Result{}, err
	}

	return Result{Label: label, Confidence: clamp01(probs[best]), Index: best}, nil
}

func labelFor(index int, labels []string, policy IndexPolicy) (string, error) {
	if len(labels) == 0 {
		return "", fmt.Errorf("%w: empty vocabulary", ErrLabelOutOfRange)
	}
	if index < len(labels) {
		return labels[index], nil
	}
	if policy == IndexWrap {
		return labels[index%len(labels)], nil
	}
	return "", fmt.Errorf("%w: index %d, %d labels", ErrLabelOutOfRange, index, len(labels))
}

func softmax(v []float64) {
	maxV := v[0]
	for _, x := range v[1:] {
		if x > maxV {
			maxV = x
		}
	}
	var sum float64
	for i, x := range v {
		v[i] = math.Exp(x - maxV)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
