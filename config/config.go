// Package config loads nimmem configuration.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/becomeliminal/nim-memory/memory"
)

// Backend names.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendChromem  = "chromem"
	BackendQdrant   = "qdrant"
)

// Embedding providers.
const (
	EmbedderMock      = "mock"
	EmbedderONNX      = "onnx"
	EmbedderFastEmbed = "fastembed"
)

// Fact extractors.
const (
	ExtractorClaude    = "claude"
	ExtractorHeuristic = "heuristic"
)

// Config is the complete nimmem configuration.
type Config struct {
	Memory       MemoryConfig       `koanf:"memory"`
	Embedding    EmbeddingConfig    `koanf:"embedding"`
	Index        IndexConfig        `koanf:"index"`
	Conversation ConversationConfig `koanf:"conversation"`
	Facts        FactsConfig        `koanf:"facts"`
	Mongo        MongoConfig        `koanf:"mongo"`
	Postgres     PostgresConfig     `koanf:"postgres"`
	Anthropic    AnthropicConfig    `koanf:"anthropic"`
	Server       ServerConfig       `koanf:"server"`
	Temporal     TemporalConfig     `koanf:"temporal"`
	Log          LogConfig          `koanf:"log"`
}

// MemoryConfig tunes the fusion engine.
type MemoryConfig struct {
	ShortTermWindow int           `koanf:"short_term_window"` // exchanges kept in short-term memory
	ResultCount     int           `koanf:"result_count"`      // long-term results per query
	ProbeTimeout    time.Duration `koanf:"probe_timeout"`
	ContextChars    int           `koanf:"context_chars"` // prompt budget for past conversations
}

// EmbeddingConfig selects and configures the embedder.
type EmbeddingConfig struct {
	Provider          string        `koanf:"provider"`
	Model             string        `koanf:"model"`
	CacheDir          string        `koanf:"cache_dir"`
	ModelPath         string        `koanf:"model_path"`
	TokenizerPath     string        `koanf:"tokenizer_path"`
	SharedLibraryPath string        `koanf:"shared_library_path"`
	CacheSize         int64         `koanf:"cache_size"` // cached embeddings; 0 disables the cache
	CacheTTL          time.Duration `koanf:"cache_ttl"`
}

// IndexConfig selects the semantic index.
type IndexConfig struct {
	Backend      string `koanf:"backend"`
	Path         string `koanf:"path"` // chromem persistence directory
	Compress     bool   `koanf:"compress"`
	QdrantHost   string `koanf:"qdrant_host"`
	QdrantPort   int    `koanf:"qdrant_port"`
	QdrantAPIKey string `koanf:"qdrant_api_key"`
	QdrantTLS    bool   `koanf:"qdrant_tls"`
}

// ConversationConfig selects the conversation store.
type ConversationConfig struct {
	Backend string `koanf:"backend"`
}

// FactsConfig selects the fact store and extractor.
type FactsConfig struct {
	Backend           string  `koanf:"backend"`
	Extractor         string  `koanf:"extractor"`
	ExtractorModel    string  `koanf:"extractor_model"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// MongoConfig configures the MongoDB adapter.
type MongoConfig struct {
	URI      string `koanf:"uri"`
	Database string `koanf:"database"`
}

// PostgresConfig configures the Postgres adapter.
type PostgresConfig struct {
	URL string `koanf:"url"`
}

// AnthropicConfig configures the Claude responder and extractor.
type AnthropicConfig struct {
	APIKey    string `koanf:"api_key"`
	BaseURL   string `koanf:"base_url"`
	Model     string `koanf:"model"`
	MaxTokens int64  `koanf:"max_tokens"`
}

// ServerConfig configures the HTTP/WebSocket server.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// TemporalConfig configures the Temporal client and worker.
type TemporalConfig struct {
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	mem := memory.DefaultConfig()
	return &Config{
		Memory: MemoryConfig{
			ShortTermWindow: mem.ShortTermWindow,
			ResultCount:     mem.ResultCount,
			ProbeTimeout:    mem.ProbeTimeout,
			ContextChars:    2000,
		},
		Embedding: EmbeddingConfig{
			Provider:  EmbedderMock,
			Model:     mem.EmbeddingModel,
			CacheSize: 10000,
			CacheTTL:  24 * time.Hour,
		},
		Index: IndexConfig{
			Backend:    BackendChromem,
			Path:       "./chroma_db",
			QdrantPort: 6334,
		},
		Conversation: ConversationConfig{Backend: BackendMemory},
		Facts: FactsConfig{
			Backend:   BackendMemory,
			Extractor: ExtractorHeuristic,
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "agentic_memory",
		},
		Anthropic: AnthropicConfig{MaxTokens: 4096},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Temporal: TemporalConfig{
			HostPort:  "localhost:7233",
			Namespace: "default",
			TaskQueue: "nimmem-turns",
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// MemoryConfig returns the fusion engine configuration.
func (c *Config) MemoryConfig() *memory.Config {
	return &memory.Config{
		ShortTermWindow: c.Memory.ShortTermWindow,
		ResultCount:     c.Memory.ResultCount,
		EmbeddingModel:  c.Embedding.Model,
		ProbeTimeout:    c.Memory.ProbeTimeout,
	}
}

// Validate rejects configurations no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if err := c.MemoryConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Memory.ContextChars < 0 {
		errs = append(errs, fmt.Errorf("memory.context_chars must be >= 0, got %d", c.Memory.ContextChars))
	}
	check := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unknown value %q (allowed: %v)", field, value, allowed))
	}
	check("embedding.provider", c.Embedding.Provider, EmbedderMock, EmbedderONNX, EmbedderFastEmbed)
	check("index.backend", c.Index.Backend, BackendNone, BackendChromem, BackendQdrant)
	check("conversation.backend", c.Conversation.Backend, BackendNone, BackendMemory, BackendMongo, BackendPostgres)
	check("facts.backend", c.Facts.Backend, BackendNone, BackendMemory, BackendMongo, BackendPostgres)
	check("facts.extractor", c.Facts.Extractor, BackendNone, ExtractorHeuristic, ExtractorClaude)
	check("log.format", c.Log.Format, "console", "json")

	if c.Embedding.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("embedding.cache_size must be >= 0, got %d", c.Embedding.CacheSize))
	}
	if c.Index.Backend == BackendQdrant && c.Index.QdrantHost == "" {
		errs = append(errs, errors.New("index.qdrant_host is required for the qdrant backend"))
	}
	if (c.Conversation.Backend == BackendPostgres || c.Facts.Backend == BackendPostgres) && c.Postgres.URL == "" {
		errs = append(errs, errors.New("postgres.url is required for the postgres backend"))
	}
	return errors.Join(errs...)
}
