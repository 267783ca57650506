package onnx

import "errors"

// ErrNotCompiled is returned by New in builds without the onnx tag.
var ErrNotCompiled = errors.New("onnx embedder not compiled in (build with -tags onnx)")

// Config configures the ONNX embedder.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json file.
	TokenizerPath string

	// SharedLibraryPath locates libonnxruntime. Empty uses the system default.
	SharedLibraryPath string

	// Dimensions is the embedding vector size. Default: 384 (all-MiniLM-L6-v2)
	Dimensions int

	// MaxSequenceLength bounds tokens per input. Default: 128
	MaxSequenceLength int
}

func (c *Config) applyDefaults() {
	if c.Dimensions == 0 {
		c.Dimensions = 384
	}
	if c.MaxSequenceLength == 0 {
		c.MaxSequenceLength = 128
	}
}
