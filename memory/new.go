package memory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/becomeliminal/nim-memory/core"
)

// New builds the Manager for one session.
//
// Each non-nil adapter implementing Pinger is probed with the configured
// timeout; adapters that fail are dropped. When no storage adapter survives,
// or the namespace or config is invalid, a FallbackManager is returned.
// New never fails.
func New(ctx context.Context, ns core.Namespace, config *Config, backends Backends, opts ...Option) Manager {
	if config == nil {
		config = DefaultConfig()
	}
	o := buildOptions(opts)
	logger := o.logger.Named("memory")

	if !ns.Valid() {
		logger.Info("invalid session identity, using fallback memory",
			zap.String("user_id", ns.UserID), zap.String("thread_id", ns.ThreadID))
		o.metrics.fallback()
		return NewFallbackManager(ns, opts...)
	}
	if err := config.Validate(); err != nil {
		logger.Info("invalid memory config, using fallback memory", zap.Error(err))
		o.metrics.fallback()
		return NewFallbackManager(ns, opts...)
	}

	probed := Backends{
		Conversations: probe(ctx, config, logger, "conversations", backends.Conversations),
		Index:         probe(ctx, config, logger, "index", backends.Index),
		Facts:         probe(ctx, config, logger, "facts", backends.Facts),
		Extractor:     probe(ctx, config, logger, "extractor", backends.Extractor),
	}

	m := NewFusionManager(ns, config, probed, opts...)
	if !m.Availability().Any() {
		logger.Info("no memory backend available, using fallback memory", zap.String("namespace", ns.String()))
		o.metrics.fallback()
		return NewFallbackManager(ns, opts...)
	}
	return m
}

// probe returns adapter when it is reachable, or the zero value otherwise.
func probe[T any](ctx context.Context, config *Config, logger *zap.Logger, name string, adapter T) T {
	var zero T
	if any(adapter) == nil {
		return zero
	}
	p, ok := any(adapter).(Pinger)
	if !ok {
		return adapter
	}

	pctx, cancel := context.WithTimeout(ctx, config.probeTimeout())
	defer cancel()
	if err := p.Ping(pctx); err != nil {
		logger.Warn("memory backend unavailable",
			zap.String("backend", name),
			zap.Error(fmt.Errorf("%w: %w", ErrBackendUnavailable, err)))
		return zero
	}
	return adapter
}
