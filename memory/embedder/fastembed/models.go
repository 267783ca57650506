// Package fastembed embeds text locally with FastEmbed ONNX models.
// It needs cgo; builds without cgo get a stub whose constructor fails.
package fastembed

import (
	"errors"
	"fmt"
)

// ErrNotAvailable is returned by New in builds without cgo.
var ErrNotAvailable = errors.New("fastembed: not available (binary built without cgo)")

// DefaultModel matches the default embedding model of the memory config.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// Config configures the FastEmbed embedder.
type Config struct {
	// Model is a Hugging Face model name or a fastembed model name.
	// Default: DefaultModel
	Model string

	// CacheDir holds downloaded model files. Default: ./local_cache
	CacheDir string

	// MaxLength is the maximum input sequence length. Default: 512
	MaxLength int
}

// knownModels maps accepted model names to fastembed model ids and dimensions.
var knownModels = map[string]struct {
	id   string
	dims int
}{
	"sentence-transformers/all-MiniLM-L6-v2": {"fast-all-MiniLM-L6-v2", 384},
	"BAAI/bge-small-en-v1.5":                 {"fast-bge-small-en-v1.5", 384},
	"BAAI/bge-base-en-v1.5":                  {"fast-bge-base-en-v1.5", 768},
	"fast-all-MiniLM-L6-v2":                  {"fast-all-MiniLM-L6-v2", 384},
	"fast-bge-small-en-v1.5":                 {"fast-bge-small-en-v1.5", 384},
	"fast-bge-base-en-v1.5":                  {"fast-bge-base-en-v1.5", 768},
}

// resolveModel returns the fastembed model id and dimensions for name.
func resolveModel(name string) (string, int, error) {
	if name == "" {
		name = DefaultModel
	}
	m, ok := knownModels[name]
	if !ok {
		return "", 0, fmt.Errorf("fastembed: unsupported model %q", name)
	}
	return m.id, m.dims, nil
}
