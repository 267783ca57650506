//go:build cgo

package fastembed

import (
	"context"
	"fmt"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// Embedder generates embeddings with a local FastEmbed model.
type Embedder struct {
	mu    sync.RWMutex
	model *fastembed.FlagEmbedding
	dims  int
}

// New downloads (on first use) and loads the configured model.
func New(cfg Config) (*Embedder, error) {
	id, dims, err := resolveModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "local_cache"
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = 512
	}

	showProgress := false
	model, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                fastembed.EmbeddingModel(id),
		CacheDir:             cfg.CacheDir,
		MaxLength:            cfg.MaxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed: %w", err)
	}
	return &Embedder{model: model, dims: dims}, nil
}

// Embed returns the passage embedding of text. Records and queries share
// one embedding space.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	out, err := e.model.PassageEmbed([]string{text}, 1)
	if err != nil {
		return nil, fmt.Errorf("fastembed: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("fastembed: expected 1 embedding, got %d", len(out))
	}
	return out[0], nil
}

// Dimensions returns the embedding size of the loaded model.
func (e *Embedder) Dimensions() int { return e.dims }

// Close releases the model.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		return e.model.Destroy()
	}
	return nil
}
