// Package cache memoizes embeddings in a bounded ristretto cache.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/becomeliminal/nim-memory/memory"
)

// Config configures the cache.
type Config struct {
	// Model namespaces keys, so two models never share entries.
	Model string

	// MaxEntries bounds the number of cached vectors. Default: 10000
	MaxEntries int64

	// TTL expires entries. Default: 24h
	TTL time.Duration
}

// Embedder wraps another embedder with a cache keyed by sha256(model NUL text).
type Embedder struct {
	inner  memory.Embedder
	cache  *ristretto.Cache
	model  string
	ttl    time.Duration
	lookup *prometheus.CounterVec
}

var _ memory.Embedder = (*Embedder)(nil)

// New wraps inner. A nil reg leaves the hit/miss counters unregistered.
func New(inner memory.Embedder, cfg Config, reg prometheus.Registerer) (*Embedder, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.MaxEntries * 10,
		MaxCost:     cfg.MaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &Embedder{
		inner: inner,
		cache: c,
		model: cfg.Model,
		ttl:   cfg.TTL,
		lookup: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimmem",
			Subsystem: "embedding_cache",
			Name:      "lookups_total",
			Help:      "Embedding cache lookups by result.",
		}, []string{"result"}),
	}, nil
}

// Embed returns the cached vector for text, computing it on a miss.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if v, ok := e.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			e.lookup.WithLabelValues("hit").Inc()
			return append([]float32(nil), vec...), nil
		}
	}
	e.lookup.WithLabelValues("miss").Inc()

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.SetWithTTL(key, append([]float32(nil), vec...), 1, e.ttl)
	return vec, nil
}

// Dimensions returns the wrapped embedder's dimensions.
func (e *Embedder) Dimensions() int { return e.inner.Dimensions() }

// Wait blocks until pending writes are visible to Get.
func (e *Embedder) Wait() { e.cache.Wait() }

// Close stops the cache's background goroutines.
func (e *Embedder) Close() { e.cache.Close() }

func (e *Embedder) key(text string) string {
	sum := sha256.Sum256([]byte(e.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
