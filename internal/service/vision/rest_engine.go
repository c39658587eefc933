package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RESTEngine talks to a model server speaking the TensorFlow Serving REST API.
type RESTEngine struct {
	baseURL string
	name    string
	client  *http.Client
}

// NewRESTEngine creates an engine for model name served at baseURL.
func NewRESTEngine(baseURL, name string, client *http.Client) *RESTEngine {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RESTEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		name:    name,
		client:  client,
	}
}

type modelStatusResponse struct {
	ModelVersionStatus []struct {
		Version string `json:"version"`
		State   string `json:"state"`
		Status  struct {
			ErrorCode    string `json:"error_code"`
			ErrorMessage string `json:"error_message"`
		} `json:"status"`
	} `json:"model_version_status"`
}

// Load checks that a version of the model is AVAILABLE on the server.
func (e *RESTEngine) Load(ctx context.Context) (Model, error) {
	endpoint := fmt.Sprintf("%s/v1/models/%s", e.baseURL, url.PathEscape(e.name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch model status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model status: %s", readError(resp))
	}

	var status modelStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode model status: %w", err)
	}

	for _, v := range status.ModelVersionStatus {
		if v.State == "AVAILABLE" {
			return &restModel{engine: e, version: v.Version}, nil
		}
	}
	return nil, fmt.Errorf("model %q has no available version", e.name)
}

type restModel struct {
	engine  *RESTEngine
	version string
}

type predictRequest struct {
	Instances [][][][]float32 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float32 `json:"predictions"`
	Error       string      `json:"error"`
}

// Predict posts one instance and returns its score vector.
func (m *restModel) Predict(ctx context.Context, input Tensor) ([]float32, error) {
	if len(input.Data) != input.Height*input.Width*input.Channels {
		return nil, fmt.Errorf("tensor shape %dx%dx%d does not match %d values",
			input.Height, input.Width, input.Channels, len(input.Data))
	}

	payload, err := json.Marshal(predictRequest{Instances: [][][][]float32{toNested(input)}})
	if err != nil {
		return nil, fmt.Errorf("encode instances: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/models/%s/versions/%s:predict", m.engine.baseURL, url.PathEscape(m.engine.name), m.version)
	if m.version == "" {
		endpoint = fmt.Sprintf("%s/v1/models/%s:predict", m.engine.baseURL, url.PathEscape(m.engine.name))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.engine.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predict request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("predict: %s", readError(resp))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("predict: %s", out.Error)
	}
	if len(out.Predictions) == 0 {
		return nil, ErrEmptyOutput
	}
	return out.Predictions[0], nil
}

func toNested(t Tensor) [][][]float32 {
	rows := make([][][]float32, t.Height)
	for y := 0; y < t.Height; y++ {
		row := make([][]float32, t.Width)
		for x := 0; x < t.Width; x++ {
			offset := (y*t.Width + x) * t.Channels
			row[x] = t.Data[offset : offset+t.Channels]
		}
		rows[y] = row
	}
	return rows
}

func readError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
