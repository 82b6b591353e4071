package aiconnectors

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/agentshub/internal/config"
)

const embedBatchSize = 32

// NewEmbedder builds the embedding client described by the embedder config.
func NewEmbedder(cfg config.EmbedderConfig) (embeddings.Embedder, error) {
	log.Debug().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Int("dims", cfg.EmbeddingDims).
		Msg("Creating embedder")

	var client embeddings.EmbedderClient
	switch Provider(cfg.Provider) {
	case ProviderOllama:
		baseURL := cfg.OllamaBaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		llm, err := ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(baseURL))
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}
		client = llm
	case ProviderOpenAI:
		llm, err := openai.New(openai.WithEmbeddingModel(cfg.Model), openai.WithToken(cfg.APIKey))
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", cfg.Provider)
	}

	return NewEmbedderFromClient(client)
}

// NewEmbedderFromClient wraps any embedding client with batching.
func NewEmbedderFromClient(client embeddings.EmbedderClient) (embeddings.Embedder, error) {
	return embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(embedBatchSize),
		embeddings.WithStripNewLines(true),
	)
}
