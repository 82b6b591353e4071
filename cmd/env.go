package cmd

import (
	"fmt"
	"io"
	"slices"

	"github.com/agentshub/internal/config"
)

// ConfigCheckResult holds the result of configuration validation
type ConfigCheckResult struct {
	Missing  []string          // Required settings that are empty
	Present  map[string]string // Secret settings that are set (masked values)
	Warnings []string          // Non-fatal warnings
}

// CheckConfig reports secrets the selected providers need and settings that
// work but are probably unintended.
func CheckConfig(cfg *config.Config) *ConfigCheckResult {
	result := &ConfigCheckResult{
		Missing:  []string{},
		Present:  make(map[string]string),
		Warnings: []string{},
	}

	secret := func(key, value string, required bool) {
		switch {
		case value != "":
			result.Present[key] = maskSecret(value)
		case required:
			result.Missing = append(result.Missing, key)
		}
	}

	kc := cfg.Knowledge
	secret("knowledge.llm.api_key", kc.LLM.APIKey, kc.LLM.Provider != "ollama")
	secret("knowledge.embedder.api_key", kc.Embedder.APIKey, kc.Embedder.Provider != "ollama")
	secret("knowledge.vector_store.dsn", kc.VectorStore.DSN, kc.VectorStore.Provider == "pgvector")
	secret("session.dsn", cfg.Session.DSN, cfg.Session.Store == "postgres")
	secret("jobqueue.database_url", cfg.JobQueue.DatabaseURL, false)
	secret("server.jwt_secret", cfg.Server.JWTSecret, false)

	if cfg.Server.JWTSecret == "" {
		result.Warnings = append(result.Warnings, "server.jwt_secret is empty; session cookies are invalidated on restart")
	}
	if cfg.Session.Store == "memory" {
		result.Warnings = append(result.Warnings, "session.store is memory; chat history is lost on restart")
	}
	if !cfg.Guard.Enabled {
		result.Warnings = append(result.Warnings, "guard is disabled; prompts are not screened for injection")
	}
	if cfg.Cache.RedisAddr == "" && kc.LLM.Temperature == 0 {
		result.Warnings = append(result.Warnings, "cache.redis_addr is empty; deterministic answers are not cached")
	}

	slices.Sort(result.Missing)
	return result
}

// PrintConfigCheck prints the configuration check results
func PrintConfigCheck(w io.Writer, result *ConfigCheckResult) {
	fmt.Fprintln(w, "=== Configuration Check ===")
	fmt.Fprintln(w, "")

	if len(result.Missing) > 0 {
		fmt.Fprintln(w, "❌ Missing required settings:")
		for _, v := range result.Missing {
			fmt.Fprintf(w, "   - %s\n", v)
		}
		fmt.Fprintln(w, "")
	}

	if len(result.Present) > 0 {
		fmt.Fprintln(w, "✓ Configured secrets:")
		keys := make([]string, 0, len(result.Present))
		for k := range result.Present {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "   - %s = %s\n", k, result.Present[k])
		}
		fmt.Fprintln(w, "")
	}

	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠ Warning: %s\n", warn)
	}

	if len(result.Missing) == 0 {
		fmt.Fprintln(w, "✓ All required configuration is present")
	}

	fmt.Fprintln(w, "============================")
}

// maskSecret masks a secret value for display, showing only first and last 2 chars
func maskSecret(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}
