package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nimmem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Memory.ShortTermWindow)
	assert.Equal(t, 5, cfg.Memory.ResultCount)
	assert.Equal(t, "sentence-transformers/all-MiniLM-L6-v2", cfg.Embedding.Model)
	assert.Equal(t, BackendChromem, cfg.Index.Backend)
	assert.Equal(t, "agentic_memory", cfg.Mongo.Database)

	mem := cfg.MemoryConfig()
	assert.Equal(t, 6, mem.ShortTermWindow)
	assert.Equal(t, 2*time.Second, mem.ProbeTimeout)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
memory:
  short_term_window: 0
  result_count: 3
index:
  backend: qdrant
  qdrant_host: qdrant.internal
server:
  shutdown_timeout: 30s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Memory.ShortTermWindow, "an explicit zero must not be replaced by the default")
	assert.Equal(t, 3, cfg.Memory.ResultCount)
	assert.Equal(t, BackendQdrant, cfg.Index.Backend)
	assert.Equal(t, "qdrant.internal", cfg.Index.QdrantHost)
	assert.Equal(t, 6334, cfg.Index.QdrantPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_EnvPrecedence(t *testing.T) {
	path := writeConfig(t, "memory:\n  short_term_window: 4\n")
	t.Setenv("SHORT_TERM_WINDOW", "8")
	t.Setenv("NIMMEM_MEMORY_SHORT_TERM_WINDOW", "10")
	t.Setenv("MONGO_URI", "mongodb://mongo:27017")
	t.Setenv("NIMMEM_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Memory.ShortTermWindow)
	assert.Equal(t, "mongodb://mongo:27017", cfg.Mongo.URI)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_LegacyEnvBeatsFile(t *testing.T) {
	path := writeConfig(t, "memory:\n  short_term_window: 4\n")
	t.Setenv("SHORT_TERM_WINDOW", "8")
	t.Setenv("QDRANT_URL", "http://vectors.local:6333")
	t.Setenv("CHROMA_DB_DIR", "/data/chroma")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Memory.ShortTermWindow)
	assert.Equal(t, "vectors.local", cfg.Index.QdrantHost)
	assert.Equal(t, 6334, cfg.Index.QdrantPort)
	assert.Equal(t, "/data/chroma", cfg.Index.Path)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"negative window", "memory:\n  short_term_window: -1\n", "short-term window"},
		{"negative count", "memory:\n  result_count: -2\n", "result count"},
		{"unknown index", "index:\n  backend: pinecone\n", "index.backend"},
		{"unknown store", "conversation:\n  backend: redis\n", "conversation.backend"},
		{"qdrant without host", "index:\n  backend: qdrant\n", "qdrant_host"},
		{"postgres without url", "facts:\n  backend: postgres\n", "postgres.url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_FileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	big := writeConfig(t, "# "+strings.Repeat("x", maxConfigFileSize+1))
	_, err = Load(big)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}
