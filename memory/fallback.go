package memory

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/becomeliminal/nim-memory/core"
)

// FallbackManager is the degraded Manager used when no backend is usable.
// Reads return neutral values and writes are logged no-ops, so callers never
// branch on whether memory is available.
type FallbackManager struct {
	ns     core.Namespace
	logger *zap.Logger
}

var _ Manager = (*FallbackManager)(nil)

// NewFallbackManager creates a FallbackManager for the namespace.
func NewFallbackManager(ns core.Namespace, opts ...Option) *FallbackManager {
	o := buildOptions(opts)
	return &FallbackManager{
		ns:     ns,
		logger: o.logger.Named("memory").With(zap.String("user_id", ns.UserID), zap.String("thread_id", ns.ThreadID)),
	}
}

func (f *FallbackManager) Identity() core.Namespace { return f.ns }

func (f *FallbackManager) FetchShortTerm(context.Context) []core.Turn { return []core.Turn{} }

func (f *FallbackManager) FetchLongTerm(context.Context, string, int) []core.SemanticRecord {
	return []core.SemanticRecord{}
}

func (f *FallbackManager) GetUserFacts(context.Context) core.FactSheet {
	return core.EmptyFactSheet(f.ns.UserID)
}

func (f *FallbackManager) FetchContext(context.Context, string) core.MemoryContext {
	return core.MemoryContext{
		ShortTerm: []core.Turn{},
		LongTerm:  []core.SemanticRecord{},
		Facts:     core.EmptyFactSheet(f.ns.UserID),
		Summary:   NoContextSummary,
	}
}

func (f *FallbackManager) FetchHistory(context.Context, int, int) []core.Turn { return []core.Turn{} }

func (f *FallbackManager) ApplyTurn(context.Context, string, string) {
	f.logger.Debug("memory unavailable, skipping apply turn")
}

func (f *FallbackManager) ApplyTurnAt(context.Context, string, string, time.Time) {
	f.logger.Debug("memory unavailable, skipping apply turn")
}

// Deprecated: use ApplyTurn.
func (f *FallbackManager) Update(context.Context, string, string) {
	f.logger.Debug("memory unavailable, skipping update")
}
