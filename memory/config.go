package memory

import (
	"fmt"
	"time"
)

// Config holds FusionManager configuration.
type Config struct {
	// ShortTermWindow is W: the short-term tier holds at most 2×W turns.
	// Default: 6. Zero disables the short-term tier.
	ShortTermWindow int

	// ResultCount is K, the default number of long-term records per fetch.
	// Default: 5. Zero disables long-term retrieval.
	ResultCount int

	// EmbeddingModel names the model the semantic index embeds with.
	// It is informational for the managers; adapters read it to pick a model.
	// Default: sentence-transformers/all-MiniLM-L6-v2
	EmbeddingModel string

	// ProbeTimeout bounds each adapter reachability probe at construction.
	// Default: 2s
	ProbeTimeout time.Duration
}

// Default history page sizes.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ShortTermWindow: 6,
		ResultCount:     5,
		EmbeddingModel:  "sentence-transformers/all-MiniLM-L6-v2",
		ProbeTimeout:    2 * time.Second,
	}
}

// Validate rejects negative sizes.
func (c *Config) Validate() error {
	if c.ShortTermWindow < 0 {
		return fmt.Errorf("short-term window must be >= 0, got %d", c.ShortTermWindow)
	}
	if c.ResultCount < 0 {
		return fmt.Errorf("result count must be >= 0, got %d", c.ResultCount)
	}
	if c.ProbeTimeout < 0 {
		return fmt.Errorf("probe timeout must be >= 0, got %s", c.ProbeTimeout)
	}
	return nil
}

// shortTermLimit is the number of turns the short-term tier holds.
func (c *Config) shortTermLimit() int {
	return 2 * c.ShortTermWindow
}

func (c *Config) probeTimeout() time.Duration {
	if c.ProbeTimeout <= 0 {
		return 2 * time.Second
	}
	return c.ProbeTimeout
}
