package memory

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/becomeliminal/nim-memory/core"
)

// Availability records which adapters passed the construction probe.
type Availability struct {
	Conversations bool
	Index         bool
	Facts         bool
	Extractor     bool
}

// Any reports whether at least one storage adapter is usable.
func (a Availability) Any() bool {
	return a.Conversations || a.Index || a.Facts
}

// FusionManager is the live Manager for one (user, thread) session.
//
// It holds no durable state of its own. Reads go to the adapters and writes
// fan out to them; the only process-local state is the short-term cache,
// which is why one instance should serve one active session.
type FusionManager struct {
	ns     core.Namespace
	config Config

	conversations ConversationStore
	index         SemanticIndex
	facts         FactStore
	extractor     FactExtractor
	avail         Availability

	cache   *shortTermCache
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
	newID   func() string
}

var _ Manager = (*FusionManager)(nil)

// NewFusionManager creates a FusionManager over the given adapters without
// probing them. Nil adapters are treated as unavailable. A nil config selects
// DefaultConfig.
func NewFusionManager(ns core.Namespace, config *Config, backends Backends, opts ...Option) *FusionManager {
	if config == nil {
		config = DefaultConfig()
	}
	o := buildOptions(opts)

	m := &FusionManager{
		ns:            ns,
		config:        *config,
		conversations: backends.Conversations,
		index:         backends.Index,
		facts:         backends.Facts,
		extractor:     backends.Extractor,
		avail: Availability{
			Conversations: backends.Conversations != nil,
			Index:         backends.Index != nil,
			Facts:         backends.Facts != nil,
			Extractor:     backends.Extractor != nil,
		},
		cache:   newShortTermCache(config.shortTermLimit()),
		logger:  o.logger.Named("memory").With(zap.String("user_id", ns.UserID), zap.String("thread_id", ns.ThreadID)),
		metrics: o.metrics,
		now:     o.now,
		newID:   o.newID,
	}
	return m
}

// Identity returns the session namespace.
func (m *FusionManager) Identity() core.Namespace { return m.ns }

// Availability returns the adapter availability recorded at construction.
func (m *FusionManager) Availability() Availability { return m.avail }

// FetchShortTerm returns the newest 2×W turns, oldest first.
func (m *FusionManager) FetchShortTerm(ctx context.Context) []core.Turn {
	limit := m.config.shortTermLimit()
	if limit <= 0 || !m.avail.Conversations {
		return []core.Turn{}
	}

	recent, err := m.conversations.QueryRecent(ctx, m.ns.UserID, m.ns.ThreadID, limit)
	if err != nil {
		m.readFailed("fetch_short_term", err)
		return []core.Turn{}
	}
	if len(recent) > limit {
		recent = recent[:limit]
	}

	turns := reconcile(reverseTurns(recent), m.cache.snapshot(), limit)
	m.metrics.operation("fetch_short_term", outcomeOK)
	return turns
}

// FetchLongTerm returns the k most similar records of this namespace.
func (m *FusionManager) FetchLongTerm(ctx context.Context, query string, k int) []core.SemanticRecord {
	if k < 0 {
		k = m.config.ResultCount
	}
	if k == 0 || query == "" || !m.avail.Index {
		return []core.SemanticRecord{}
	}

	found, err := m.index.Search(ctx, m.ns, query, k)
	if err != nil {
		m.readFailed("fetch_long_term", err)
		return []core.SemanticRecord{}
	}

	records := make([]core.SemanticRecord, 0, len(found))
	for _, rec := range found {
		if rec.Metadata.Namespace() != m.ns {
			m.logger.Warn("dropping record from foreign namespace",
				zap.String("record_id", rec.ID),
				zap.String("namespace", rec.Metadata.Namespace().String()))
			continue
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].Metadata.Timestamp.After(records[j].Metadata.Timestamp)
	})
	if len(records) > k {
		records = records[:k]
	}

	m.metrics.operation("fetch_long_term", outcomeOK)
	return records
}

// GetUserFacts returns the user's fact sheet, or an empty one.
func (m *FusionManager) GetUserFacts(ctx context.Context) core.FactSheet {
	if !m.avail.Facts {
		return core.EmptyFactSheet(m.ns.UserID)
	}

	sheet, err := m.facts.Get(ctx, m.ns.UserID)
	if err != nil {
		m.readFailed("get_user_facts", err)
		return core.EmptyFactSheet(m.ns.UserID)
	}
	if sheet == nil {
		return core.EmptyFactSheet(m.ns.UserID)
	}

	out := core.FactSheet{
		UserID:     m.ns.UserID,
		Facts:      make(map[string]string, len(sheet.Facts)),
		LastUpdate: sheet.LastUpdate,
	}
	for k, v := range sheet.Facts {
		out.Facts[k] = v
	}
	m.metrics.operation("get_user_facts", outcomeOK)
	return out
}

// FetchContext fuses all three tiers. An empty query is replaced by the
// latest user turn of the short-term window.
func (m *FusionManager) FetchContext(ctx context.Context, query string) core.MemoryContext {
	mc := core.MemoryContext{
		ShortTerm: m.FetchShortTerm(ctx),
		Facts:     m.GetUserFacts(ctx),
	}
	if query == "" {
		query = latestUserMessage(mc.ShortTerm)
	}
	mc.LongTerm = m.FetchLongTerm(ctx, query, -1)
	mc.Summary = Summarize(mc)

	m.logger.Debug("fetched context",
		zap.Int("short_term", len(mc.ShortTerm)),
		zap.Int("long_term", len(mc.LongTerm)),
		zap.Int("facts", mc.Facts.Len()))
	return mc
}

// FetchHistory returns one oldest-first page of the stored conversation.
func (m *FusionManager) FetchHistory(ctx context.Context, page, pageSize int) []core.Turn {
	if !m.avail.Conversations {
		return []core.Turn{}
	}
	page, pageSize = normalizePage(page, pageSize)

	turns, err := m.conversations.History(ctx, m.ns.UserID, m.ns.ThreadID, page*pageSize, pageSize)
	if err != nil {
		m.readFailed("fetch_history", err)
		return []core.Turn{}
	}
	if turns == nil {
		turns = []core.Turn{}
	}
	m.metrics.operation("fetch_history", outcomeOK)
	return turns
}

// ApplyTurn records a completed exchange. It never writes to the
// conversation store.
func (m *FusionManager) ApplyTurn(ctx context.Context, userMessage, assistantResponse string) {
	m.ApplyTurnAt(ctx, userMessage, assistantResponse, m.now())
}

// ApplyTurnAt records the exchange under at, the timestamp the application
// used when persisting it. A zero at uses the manager clock.
func (m *FusionManager) ApplyTurnAt(ctx context.Context, userMessage, assistantResponse string, at time.Time) {
	if at.IsZero() {
		at = m.now()
	}
	m.applyTurn(ctx, userMessage, assistantResponse, at)
	m.metrics.operation("apply_turn", outcomeOK)
}

// Update records the exchange like ApplyTurn and appends it to the
// conversation store once.
//
// Deprecated: use ApplyTurn after persisting the turn in the application.
func (m *FusionManager) Update(ctx context.Context, userMessage, assistantResponse string) {
	at := m.now()
	m.applyTurn(ctx, userMessage, assistantResponse, at)

	outcome := outcomeOK
	if err := m.appendConversation(ctx, userMessage, assistantResponse, at); err != nil {
		m.writeFailed("conversation", err)
		outcome = outcomeDegraded
	}
	m.metrics.operation("update", outcome)
}

// applyTurn runs the three side effects in order. A failing step is logged
// and skipped; it never prevents the next one.
func (m *FusionManager) applyTurn(ctx context.Context, userMessage, assistantResponse string, at time.Time) {
	if err := m.indexTurn(ctx, userMessage, assistantResponse, at); err != nil {
		m.writeFailed("semantic", err)
	}
	if err := m.mergeFacts(ctx, userMessage, at); err != nil {
		m.writeFailed("facts", err)
	}
	if err := ctx.Err(); err != nil {
		m.writeFailed("short_term", err)
		return
	}
	m.cache.add(core.NewTurnPair(userMessage, assistantResponse, at)...)
}

func (m *FusionManager) indexTurn(ctx context.Context, userMessage, assistantResponse string, at time.Time) error {
	if !m.avail.Index {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rec := core.SemanticRecord{
		ID:   m.newID(),
		Text: core.CombinedText(userMessage, assistantResponse),
		Metadata: core.RecordMetadata{
			UserID:    m.ns.UserID,
			ThreadID:  m.ns.ThreadID,
			Timestamp: at,
		},
	}
	return m.index.Upsert(ctx, m.ns, rec)
}

// mergeFacts extracts facts from the user message only and merges them into
// the stored sheet. Nothing is written when extraction yields nothing or the
// existing sheet cannot be read.
//
// The read-merge-write is not locked. Concurrent turns for the same user race
// and the last Put wins, so facts from an interleaved merge can be lost.
func (m *FusionManager) mergeFacts(ctx context.Context, userMessage string, at time.Time) error {
	if !m.avail.Facts || !m.avail.Extractor {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	extracted, err := m.extractor.Extract(ctx, userMessage)
	if err != nil {
		return err
	}
	extracted = cleanFacts(extracted)
	if len(extracted) == 0 {
		return nil
	}

	existing, err := m.facts.Get(ctx, m.ns.UserID)
	if err != nil {
		return err
	}
	var current map[string]string
	if existing != nil {
		current = existing.Facts
	}

	if err := m.facts.Put(ctx, m.ns.UserID, MergeFacts(current, extracted), at); err != nil {
		return err
	}
	m.logger.Debug("merged facts", zap.Int("extracted", len(extracted)))
	return nil
}

func (m *FusionManager) appendConversation(ctx context.Context, userMessage, assistantResponse string, at time.Time) error {
	if !m.avail.Conversations {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.conversations.Append(ctx, m.ns.UserID, m.ns.ThreadID, core.NewTurnPair(userMessage, assistantResponse, at)...)
}

func (m *FusionManager) readFailed(op string, err error) {
	m.logger.Warn("memory read degraded",
		zap.String("operation", op),
		zap.String("kind", Classify(err)),
		zap.Error(err))
	m.metrics.stepFailure(op, err)
	m.metrics.operation(op, outcomeDegraded)
}

func (m *FusionManager) writeFailed(step string, err error) {
	m.logger.Warn("memory write step skipped",
		zap.String("step", step),
		zap.String("kind", Classify(err)),
		zap.Error(err))
	m.metrics.stepFailure(step, err)
}

func latestUserMessage(turns []core.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == core.RoleUser {
			return turns[i].Content
		}
	}
	return ""
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}
