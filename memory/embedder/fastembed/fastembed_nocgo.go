//go:build !cgo

package fastembed

import "context"

// Embedder is a stub for builds without cgo.
type Embedder struct{}

// New validates the model name, then fails with ErrNotAvailable.
func New(cfg Config) (*Embedder, error) {
	if _, _, err := resolveModel(cfg.Model); err != nil {
		return nil, err
	}
	return nil, ErrNotAvailable
}

func (e *Embedder) Embed(context.Context, string) ([]float32, error) { return nil, ErrNotAvailable }

func (e *Embedder) Dimensions() int { return 0 }

func (e *Embedder) Close() error { return nil }
