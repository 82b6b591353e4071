package aiconnectors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// OllamaModel represents a model from Ollama API
type OllamaModel struct {
	Name       string       `json:"name"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details"`
}

// ModelDetails contains model details from Ollama
type ModelDetails struct {
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// OllamaModelsResponse represents the response from Ollama /api/tags endpoint
type OllamaModelsResponse struct {
	Models []OllamaModel `json:"models"`
}

// ProbeResult is the outcome of a reachability check against a backing service.
type ProbeResult struct {
	Service string        `json:"service"`
	URL     string        `json:"url"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ns"`
	Detail  string        `json:"detail,omitempty"`
}

const probeTimeout = 10 * time.Second

func newProbeClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(probeTimeout).
		SetHeader("Accept", "application/json")
}

// FetchOllamaModels fetches available models from an Ollama instance
func FetchOllamaModels(ctx context.Context, baseURL string) ([]OllamaModel, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}

	var out OllamaModelsResponse
	resp, err := newProbeClient(baseURL).R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/tags")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama at %s: %w", baseURL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("Ollama API returned status %d: %s", resp.StatusCode(), resp.Status())
	}
	return out.Models, nil
}

// ValidateOllamaConnection checks that Ollama is reachable and, when model is
// given, that the model has been pulled.
func ValidateOllamaConnection(ctx context.Context, baseURL, model string) error {
	models, err := FetchOllamaModels(ctx, baseURL)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		return fmt.Errorf("no models found in Ollama instance at %s", baseURL)
	}
	if model == "" {
		return nil
	}
	for _, m := range models {
		if m.Name == model || strings.TrimSuffix(m.Name, ":latest") == model {
			return nil
		}
	}
	return fmt.Errorf("model %q is not available in Ollama at %s (try: ollama pull %s)", model, baseURL, model)
}

// ProbeOllama reports whether the Ollama API answers.
func ProbeOllama(ctx context.Context, baseURL string) ProbeResult {
	start := time.Now()
	res := ProbeResult{Service: "ollama", URL: baseURL}
	models, err := FetchOllamaModels(ctx, baseURL)
	res.Latency = time.Since(start)
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	res.OK = true
	res.Detail = fmt.Sprintf("%d models", len(models))
	return res
}

// ProbeChroma calls the Chroma heartbeat endpoint.
func ProbeChroma(ctx context.Context, baseURL string) ProbeResult {
	start := time.Now()
	res := ProbeResult{Service: "chroma", URL: baseURL}
	resp, err := newProbeClient(baseURL).R().SetContext(ctx).Get("/api/v1/heartbeat")
	res.Latency = time.Since(start)
	switch {
	case err != nil:
		res.Detail = err.Error()
	case resp.IsError():
		res.Detail = fmt.Sprintf("status %d", resp.StatusCode())
	default:
		res.OK = true
	}
	return res
}
