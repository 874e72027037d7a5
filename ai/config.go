package ai

import (
	"errors"

	"github.com/snagtrack/snagtrack/internal/profile"
)

// Config represents embedding provider configuration.
type Config struct {
	Embedding EmbeddingConfig
	Enabled   bool
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
}

// NewConfigFromProfile creates embedding config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	return &Config{
		Enabled: p.IsEmbeddingEnabled(),
		Embedding: EmbeddingConfig{
			Provider:   p.EmbeddingProvider,
			Model:      p.EmbeddingModel,
			APIKey:     p.EmbeddingAPIKey,
			BaseURL:    p.EmbeddingBaseURL,
			Dimensions: p.EmbeddingDimensions,
		},
	}
}

// Validate validates the config.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Embedding.Model == "" {
		return errors.New("embedding model required")
	}
	if c.Embedding.Dimensions <= 0 {
		return errors.New("embedding dimensions must be positive")
	}
	return nil
}
