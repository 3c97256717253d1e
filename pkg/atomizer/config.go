package atomizer

import (
	"time"

	"github.com/atomizerhq/atomizer/internal/config"
	"github.com/atomizerhq/atomizer/internal/database"
)

// Config exposes a stable wrapper for embedding the service as a library.
type Config struct {
	DatabaseURL   string
	AuthToken     string
	EmbeddingDims int

	AnthropicAPIKey string
	Model           string
	MaxTokens       int
	Temperature     float64
	LLMRatePerSec   float64

	BaseURL  string
	AgentBio string

	DissimilarPoolSize int
	CandidateVectors   int
	GraphVectorCap     int

	ReconcileInterval time.Duration
	ReconcileRetries  int

	SocialDryRun bool
}

// FromEnv builds a Config from the process environment.
func FromEnv() (*Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	interval, err := time.ParseDuration(cfg.ReconcileInterval)
	if err != nil {
		interval = time.Minute
	}
	return &Config{
		DatabaseURL:        cfg.LibsqlURL,
		AuthToken:          cfg.LibsqlAuthToken,
		EmbeddingDims:      cfg.EmbeddingDims,
		AnthropicAPIKey:    cfg.AnthropicAPIKey,
		Model:              cfg.Model,
		MaxTokens:          cfg.MaxTokens,
		Temperature:        cfg.Temperature,
		LLMRatePerSec:      cfg.LLMRatePerSec,
		BaseURL:            cfg.BaseURL,
		AgentBio:           cfg.AgentBio,
		DissimilarPoolSize: cfg.DissimilarPoolSize,
		CandidateVectors:   cfg.CandidateVectors,
		GraphVectorCap:     cfg.GraphVectorCap,
		ReconcileInterval:  interval,
		ReconcileRetries:   cfg.ReconcileRetries,
		SocialDryRun:       cfg.SocialDryRun,
	}, nil
}

func (c *Config) toDatabase() *database.Config {
	return &database.Config{
		URL:           c.DatabaseURL,
		AuthToken:     c.AuthToken,
		EmbeddingDims: c.EmbeddingDims,
	}
}
