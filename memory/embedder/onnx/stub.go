//go:build !onnx

package onnx

import (
	"context"

	"go.uber.org/zap"
)

// Embedder is unavailable in builds without the onnx tag.
type Embedder struct{}

// New always fails with ErrNotCompiled.
func New(Config, *zap.Logger) (*Embedder, error) {
	return nil, ErrNotCompiled
}

func (e *Embedder) Embed(context.Context, string) ([]float32, error) { return nil, ErrNotCompiled }

func (e *Embedder) Dimensions() int { return 0 }

func (e *Embedder) Close() error { return nil }
