// Package config loads application configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v6"
)

// Config holds every knob the service reads from the environment.
type Config struct {
	// HTTP API
	Addr    string `env:"ATOMIZER_ADDR" envDefault:":8080"`
	BaseURL string `env:"ATOMIZER_BASE_URL" envDefault:"http://localhost:8080"`

	// Database
	LibsqlURL       string `env:"LIBSQL_URL" envDefault:"file:./atomizer.db"`
	LibsqlAuthToken string `env:"LIBSQL_AUTH_TOKEN"`

	// LLM
	AnthropicAPIKey string  `env:"ANTHROPIC_API_KEY"`
	Model           string  `env:"ATOMIZER_MODEL" envDefault:"claude-sonnet-4-20250514"`
	MaxTokens       int     `env:"ATOMIZER_MAX_TOKENS" envDefault:"4000"`
	Temperature     float64 `env:"ATOMIZER_TEMPERATURE" envDefault:"0.7"`
	LLMRatePerSec   float64 `env:"ATOMIZER_LLM_RATE" envDefault:"0.5"`

	// Embeddings (provider selection is read by the embeddings package)
	EmbeddingDims int `env:"EMBEDDING_DIMS" envDefault:"1536"`

	// Synthesis
	DissimilarPoolSize int `env:"ATOMIZER_DISSIMILAR_POOL" envDefault:"5"`
	CandidateVectors   int `env:"ATOMIZER_CANDIDATE_VECTORS" envDefault:"100"`

	// Concept graph
	GraphVectorCap int `env:"ATOMIZER_GRAPH_CAP" envDefault:"500"`

	// Reconciliation worker
	ReconcileInterval string `env:"ATOMIZER_RECONCILE_INTERVAL" envDefault:"60s"`
	ReconcileRetries  int    `env:"ATOMIZER_RECONCILE_RETRIES" envDefault:"3"`

	// Social publishing
	SocialDryRun bool   `env:"SOCIAL_DRY_RUN" envDefault:"true"`
	AgentBio     string `env:"ATOMIZER_AGENT_BIO"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}
