package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables that override file settings.
const EnvPrefix = "AGENTSHUB_"

// Config represents the application configuration
type Config struct {
	Knowledge KnowledgeConfig `koanf:"knowledge"`
	Server    ServerConfig    `koanf:"server"`
	Session   SessionConfig   `koanf:"session"`
	Cache     CacheConfig     `koanf:"cache"`
	JobQueue  JobQueueConfig  `koanf:"jobqueue"`
	Learning  LearningConfig  `koanf:"learning"`
	Guard     GuardConfig     `koanf:"guard"`
	Log       LogConfig       `koanf:"log"`
}

// KnowledgeConfig selects the vector store, LLM and embedder every agent is
// configured with.
type KnowledgeConfig struct {
	VectorStore  VectorStoreConfig `koanf:"vector_store"`
	LLM          LLMConfig         `koanf:"llm"`
	Embedder     EmbedderConfig    `koanf:"embedder"`
	DocsDir      string            `koanf:"docs_dir"`
	ChunkSize    int               `koanf:"chunk_size"`
	ChunkOverlap int               `koanf:"chunk_overlap"`
	TopK         int               `koanf:"top_k"`
}

type VectorStoreConfig struct {
	Provider       string `koanf:"provider"`
	CollectionName string `koanf:"collection_name"`
	Path           string `koanf:"path"`
	URL            string `koanf:"url"`
	DSN            string `koanf:"dsn"`
}

type LLMConfig struct {
	Provider      string  `koanf:"provider"`
	Model         string  `koanf:"model"`
	Temperature   float64 `koanf:"temperature"`
	MaxTokens     int     `koanf:"max_tokens"`
	OllamaBaseURL string  `koanf:"ollama_base_url"`
	APIKey        string  `koanf:"api_key"`
}

type EmbedderConfig struct {
	Provider      string `koanf:"provider"`
	Model         string `koanf:"model"`
	OllamaBaseURL string `koanf:"ollama_base_url"`
	EmbeddingDims int    `koanf:"embedding_dims"`
	APIKey        string `koanf:"api_key"`
}

type ServerConfig struct {
	Port      int     `koanf:"port"`
	JWTSecret string  `koanf:"jwt_secret"`
	RateLimit float64 `koanf:"rate_limit"`
}

type SessionConfig struct {
	Store string `koanf:"store"`
	DSN   string `koanf:"dsn"`
}

type CacheConfig struct {
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	TTL           time.Duration `koanf:"ttl"`
}

type JobQueueConfig struct {
	DatabaseURL string `koanf:"database_url"`
	MaxWorkers  int    `koanf:"max_workers"`
}

type LearningConfig struct {
	MaxVisits int `koanf:"max_visits"`
}

type GuardConfig struct {
	Enabled   bool    `koanf:"enabled"`
	Threshold float64 `koanf:"threshold"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	RunDir string `koanf:"run_dir"`
}

// Defaults returns the built-in configuration values keyed by koanf path.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"knowledge.vector_store.provider":        "chroma",
		"knowledge.vector_store.collection_name": "praison",
		"knowledge.vector_store.path":            ".praison",
		"knowledge.vector_store.url":             "http://localhost:8000",
		"knowledge.vector_store.dsn":             "",
		"knowledge.llm.provider":                 "ollama",
		"knowledge.llm.model":                    "deepseek-r1:latest",
		"knowledge.llm.temperature":              0.0,
		"knowledge.llm.max_tokens":               8000,
		"knowledge.llm.ollama_base_url":          "http://localhost:11434",
		"knowledge.embedder.provider":            "ollama",
		"knowledge.embedder.model":               "nomic-embed-text:latest",
		"knowledge.embedder.ollama_base_url":     "http://localhost:11434",
		"knowledge.embedder.embedding_dims":      1536,
		"knowledge.docs_dir":                     "docs/resources",
		"knowledge.chunk_size":                   1000,
		"knowledge.chunk_overlap":                200,
		"knowledge.top_k":                        4,
		"server.port":                            8501,
		"server.jwt_secret":                      "",
		"server.rate_limit":                      10.0,
		"session.store":                          "memory",
		"session.dsn":                            "agentshub.db",
		"cache.redis_addr":                       "",
		"cache.redis_db":                         0,
		"cache.ttl":                              "1h",
		"jobqueue.database_url":                  "",
		"jobqueue.max_workers":                   4,
		"learning.max_visits":                    3,
		"guard.enabled":                          true,
		"guard.threshold":                        0.7,
		"log.level":                              "info",
		"log.format":                             "console",
		"log.run_dir":                            "run_logs",
	}
}

// LoadConfig loads the configuration from configPath, or from the first
// default location that exists when configPath is empty.
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		// a file named explicitly must exist
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./agentshub.toml", "$HOME/.agentshub.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// AGENTSHUB_KNOWLEDGE_LLM_MODEL -> knowledge.llm.model
	k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", -1)
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# AgentsHub Configuration

[knowledge]
docs_dir = "docs/resources"
chunk_size = 1000
chunk_overlap = 200
top_k = 4

[knowledge.vector_store]
provider = "chroma"          # chroma | pgvector | memory
collection_name = "praison"
path = ".praison"
url = "http://localhost:8000"

[knowledge.llm]
provider = "ollama"
model = "deepseek-r1:latest"
temperature = 0
max_tokens = 8000
ollama_base_url = "http://localhost:11434"

[knowledge.embedder]
provider = "ollama"
model = "nomic-embed-text:latest"
ollama_base_url = "http://localhost:11434"
embedding_dims = 1536

[server]
port = 8501
rate_limit = 10

[session]
store = "memory"             # memory | sqlite | postgres
dsn = "agentshub.db"

[learning]
max_visits = 3

[log]
level = "info"
format = "console"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	kc := config.Knowledge

	switch kc.VectorStore.Provider {
	case "chroma":
		if kc.VectorStore.URL == "" {
			return fmt.Errorf("chroma url is required")
		}
	case "pgvector":
		if kc.VectorStore.DSN == "" {
			return fmt.Errorf("pgvector dsn is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported vector store provider: %s", kc.VectorStore.Provider)
	}

	if kc.VectorStore.CollectionName == "" {
		return fmt.Errorf("vector store collection_name is required")
	}

	switch kc.LLM.Provider {
	case "ollama", "openai", "claude", "gemini", "cohere":
	default:
		return fmt.Errorf("unsupported llm provider: %s", kc.LLM.Provider)
	}

	if kc.LLM.Temperature < 0 || kc.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be between 0 and 2, got %v", kc.LLM.Temperature)
	}

	if kc.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm max_tokens must be positive")
	}

	switch kc.Embedder.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unsupported embedder provider: %s", kc.Embedder.Provider)
	}

	if kc.Embedder.EmbeddingDims <= 0 {
		return fmt.Errorf("embedder embedding_dims must be positive")
	}

	if kc.ChunkSize <= 0 || kc.ChunkOverlap < 0 || kc.ChunkOverlap >= kc.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", kc.ChunkOverlap, kc.ChunkSize)
	}

	switch config.Session.Store {
	case "memory":
	case "sqlite", "postgres":
		if config.Session.DSN == "" {
			return fmt.Errorf("session dsn is required for %s store", config.Session.Store)
		}
	default:
		return fmt.Errorf("unsupported session store: %s", config.Session.Store)
	}

	if config.Learning.MaxVisits < 1 {
		return fmt.Errorf("learning max_visits must be at least 1")
	}

	return nil
}
