package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/cache"
	"github.com/becomeliminal/nim-memory/memory/embedder/fastembed"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
	"github.com/becomeliminal/nim-memory/memory/embedder/onnx"
	"github.com/becomeliminal/nim-memory/memory/extractor/claude"
	"github.com/becomeliminal/nim-memory/memory/extractor/heuristic"
	"github.com/becomeliminal/nim-memory/memory/store/chromem"
	"github.com/becomeliminal/nim-memory/memory/store/inmem"
	"github.com/becomeliminal/nim-memory/memory/store/mongo"
	"github.com/becomeliminal/nim-memory/memory/store/postgres"
	"github.com/becomeliminal/nim-memory/memory/store/qdrant"
)

// turnStore is implemented by every conversation/fact store adapter.
type turnStore interface {
	memory.ConversationStore
	memory.FactStore
}

// runtime owns the adapters shared by every session of the process.
type runtime struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *memory.Metrics
	backends memory.Backends

	stores  map[string]turnStore
	closers []func()
}

// newRuntime builds the configured adapters. An adapter that cannot be built
// is logged and left nil; memory.New then treats it as unavailable.
func newRuntime(ctx context.Context, cfg *config.Config, logger *zap.Logger) *runtime {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  memory.NewMetrics(reg),
		stores:   make(map[string]turnStore),
	}

	if s := rt.store(ctx, cfg.Conversation.Backend); s != nil {
		rt.backends.Conversations = s
	}
	if s := rt.store(ctx, cfg.Facts.Backend); s != nil {
		rt.backends.Facts = s
	}
	if idx := rt.index(); idx != nil {
		rt.backends.Index = idx
	}
	if ex := rt.extractor(); ex != nil {
		rt.backends.Extractor = ex
	}
	return rt
}

// managers returns a factory creating one probed manager per session.
func (rt *runtime) managers() memory.Factory {
	return func(ctx context.Context, ns core.Namespace) memory.Manager {
		return memory.New(ctx, ns, rt.cfg.MemoryConfig(), rt.backends,
			memory.WithLogger(rt.logger),
			memory.WithMetrics(rt.metrics))
	}
}

// responder builds the Claude responder.
func (rt *runtime) responder() (engine.Responder, error) {
	if rt.cfg.Anthropic.APIKey == "" {
		return nil, errors.New("anthropic.api_key (or ANTHROPIC_API_KEY) is required")
	}
	return engine.NewClaudeResponder(engine.ClaudeConfig{
		APIKey:    rt.cfg.Anthropic.APIKey,
		BaseURL:   rt.cfg.Anthropic.BaseURL,
		Model:     rt.cfg.Anthropic.Model,
		MaxTokens: rt.cfg.Anthropic.MaxTokens,
	})
}

// engine builds the chat engine around responder.
func (rt *runtime) engine(responder engine.Responder) *engine.Engine {
	opts := []engine.Option{
		engine.WithLogger(rt.logger),
		engine.WithContextChars(rt.cfg.Memory.ContextChars),
	}
	if rt.backends.Conversations != nil {
		opts = append(opts, engine.WithConversationStore(rt.backends.Conversations))
	}
	return engine.New(responder, opts...)
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func (rt *runtime) unavailable(component, backend string, err error) {
	rt.logger.Warn("memory backend disabled",
		zap.String("component", component),
		zap.String("backend", backend),
		zap.Error(err))
}

// store returns the adapter for a store backend, sharing one instance per
// backend between the conversation and fact roles.
func (rt *runtime) store(ctx context.Context, backend string) turnStore {
	if s, ok := rt.stores[backend]; ok {
		return s
	}

	var s turnStore
	switch backend {
	case config.BackendNone:
		return nil
	case config.BackendMemory:
		s = inmem.New()
	case config.BackendMongo:
		m, err := mongo.New(ctx, mongo.Config{URI: rt.cfg.Mongo.URI, Database: rt.cfg.Mongo.Database})
		if err != nil {
			rt.unavailable("store", backend, err)
			return nil
		}
		if err := m.EnsureIndexes(ctx); err != nil {
			rt.logger.Warn("mongo indexes not created", zap.Error(err))
		}
		rt.closers = append(rt.closers, func() { _ = m.Close(context.Background()) })
		s = m
	case config.BackendPostgres:
		p, err := postgres.New(ctx, rt.cfg.Postgres.URL)
		if err != nil {
			rt.unavailable("store", backend, err)
			return nil
		}
		rt.closers = append(rt.closers, func() { _ = p.Close() })
		s = p
	default:
		rt.unavailable("store", backend, fmt.Errorf("unknown backend"))
		return nil
	}
	rt.stores[backend] = s
	return s
}

func (rt *runtime) embedder() (memory.Embedder, error) {
	ec := rt.cfg.Embedding

	var inner memory.Embedder
	switch ec.Provider {
	case config.EmbedderMock:
		inner = mock.New()
	case config.EmbedderONNX:
		e, err := onnx.New(onnx.Config{
			ModelPath:         ec.ModelPath,
			TokenizerPath:     ec.TokenizerPath,
			SharedLibraryPath: ec.SharedLibraryPath,
		}, rt.logger)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = e.Close() })
		inner = e
	case config.EmbedderFastEmbed:
		e, err := fastembed.New(fastembed.Config{Model: ec.Model, CacheDir: ec.CacheDir})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = e.Close() })
		inner = e
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", ec.Provider)
	}

	if ec.CacheSize <= 0 {
		return inner, nil
	}
	cached, err := cache.New(inner, cache.Config{Model: ec.Model, MaxEntries: ec.CacheSize, TTL: ec.CacheTTL}, rt.registry)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, cached.Close)
	return cached, nil
}

func (rt *runtime) index() memory.SemanticIndex {
	ic := rt.cfg.Index
	if ic.Backend == config.BackendNone {
		return nil
	}
	emb, err := rt.embedder()
	if err != nil {
		rt.unavailable("embedder", rt.cfg.Embedding.Provider, err)
		return nil
	}

	switch ic.Backend {
	case config.BackendChromem:
		idx, err := chromem.New(chromem.Config{Path: ic.Path, Compress: ic.Compress}, emb, rt.logger)
		if err != nil {
			rt.unavailable("index", ic.Backend, err)
			return nil
		}
		return idx
	case config.BackendQdrant:
		idx, err := qdrant.New(qdrant.Config{
			Host:   ic.QdrantHost,
			Port:   ic.QdrantPort,
			APIKey: ic.QdrantAPIKey,
			UseTLS: ic.QdrantTLS,
		}, emb, rt.logger)
		if err != nil {
			rt.unavailable("index", ic.Backend, err)
			return nil
		}
		rt.closers = append(rt.closers, func() { _ = idx.Close() })
		return idx
	}
	rt.unavailable("index", ic.Backend, fmt.Errorf("unknown backend"))
	return nil
}

func (rt *runtime) extractor() memory.FactExtractor {
	fc := rt.cfg.Facts
	switch fc.Extractor {
	case config.BackendNone:
		return nil
	case config.ExtractorHeuristic:
		return heuristic.New()
	case config.ExtractorClaude:
		ex, err := claude.New(claude.Config{
			APIKey:            rt.cfg.Anthropic.APIKey,
			BaseURL:           rt.cfg.Anthropic.BaseURL,
			Model:             fc.ExtractorModel,
			RequestsPerSecond: fc.RequestsPerSecond,
		}, rt.logger)
		if err != nil {
			rt.unavailable("extractor", fc.Extractor, err)
			return nil
		}
		return ex
	}
	rt.unavailable("extractor", fc.Extractor, fmt.Errorf("unknown extractor"))
	return nil
}
