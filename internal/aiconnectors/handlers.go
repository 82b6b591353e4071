package aiconnectors

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// ModelsResponse lists the models the configured Ollama instance can serve
type ModelsResponse struct {
	BaseURL string   `json:"base_url"`
	Models  []string `json:"models"`
}

// ValidateModelRequest asks whether a model has been pulled
type ValidateModelRequest struct {
	Model string `json:"model"`
}

// ValidateModelResponse represents the response for model validation
type ValidateModelResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// RegisterHandlers registers the model discovery endpoints on an API group
func RegisterHandlers(g *echo.Group, ollamaBaseURL string) {
	h := &handlers{baseURL: ollamaBaseURL}
	g.GET("/models", h.listModels)
	g.POST("/models/validate", h.validateModel)
}

type handlers struct {
	baseURL string
}

func (h *handlers) listModels(c echo.Context) error {
	models, err := FetchOllamaModels(c.Request().Context(), h.baseURL)
	if err != nil {
		log.Error().Err(err).Str("base_url", h.baseURL).Msg("Failed to list Ollama models")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	names := make([]string, 0, len(models))
	for _, m := range models {
		names = append(names, m.Name)
	}
	return c.JSON(http.StatusOK, ModelsResponse{BaseURL: h.baseURL, Models: names})
}

func (h *handlers) validateModel(c echo.Context) error {
	var req ValidateModelRequest
	if err := c.Bind(&req); err != nil || req.Model == "" {
		return c.JSON(http.StatusBadRequest, ValidateModelResponse{Message: "model is required"})
	}

	if err := ValidateOllamaConnection(c.Request().Context(), h.baseURL, req.Model); err != nil {
		log.Info().Err(err).Str("model", req.Model).Msg("Model validation failed")
		return c.JSON(http.StatusOK, ValidateModelResponse{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, ValidateModelResponse{Valid: true, Message: "model is available"})
}
