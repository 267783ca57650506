package memory_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

func TestNew_AllUnavailableSelectsFallback(t *testing.T) {
	ctx := context.Background()
	obs, logs := observer.New(zapcore.InfoLevel)
	reg := prometheus.NewRegistry()

	store := &countingStore{pingErr: errBoom}
	index := &stubIndex{pingErr: errBoom}
	facts := newStubFacts()
	facts.pingErr = errBoom

	m := memory.New(ctx, session, nil,
		memory.Backends{Conversations: store, Index: index, Facts: facts, Extractor: &stubExtractor{}},
		memory.WithLogger(zap.New(obs)), memory.WithMetrics(memory.NewMetrics(reg)))

	require.IsType(t, &memory.FallbackManager{}, m)
	assert.Equal(t, 3, logs.FilterMessage("memory backend unavailable").Len())
	assert.Equal(t, 1, logs.FilterMessage("no memory backend available, using fallback memory").Len())
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP nimmem_memory_fallbacks_total Managers constructed in fallback mode.
# TYPE nimmem_memory_fallbacks_total counter
nimmem_memory_fallbacks_total 1
`), "nimmem_memory_fallbacks_total"))

	// Every read is neutral and every write is a no-op.
	assert.Empty(t, m.FetchShortTerm(ctx))
	assert.Empty(t, m.FetchLongTerm(ctx, "anything", 5))
	assert.Empty(t, m.GetUserFacts(ctx).Facts)
	assert.NotNil(t, m.GetUserFacts(ctx).Facts)
	assert.Empty(t, m.FetchHistory(ctx, 0, 10))
	m.ApplyTurn(ctx, "I'm John", "Hi")
	m.ApplyTurnAt(ctx, "I'm John", "Hi", t0)
	m.Update(ctx, "I'm John", "Hi")
	assert.Zero(t, store.appends)
	assert.Empty(t, index.upserts)
	assert.Zero(t, facts.puts)

	mc := m.FetchContext(ctx, "anything")
	assert.True(t, mc.Empty())
	assert.Equal(t, memory.NoContextSummary, mc.Summary)
}

func TestNew_NoBackendsSelectsFallback(t *testing.T) {
	m := memory.New(context.Background(), session, nil, memory.Backends{})
	assert.IsType(t, &memory.FallbackManager{}, m)
	assert.Equal(t, session, m.Identity())
}

func TestNew_InvalidIdentitySelectsFallback(t *testing.T) {
	for _, ns := range []core.Namespace{
		{UserID: "", ThreadID: "t"},
		{UserID: "u", ThreadID: "  "},
	} {
		m := memory.New(context.Background(), ns, nil, memory.Backends{Conversations: &countingStore{}})
		assert.IsType(t, &memory.FallbackManager{}, m, ns.String())
	}
}

func TestNew_InvalidConfigSelectsFallback(t *testing.T) {
	m := memory.New(context.Background(), session, configWith(-1, 5), memory.Backends{Conversations: &countingStore{}})
	assert.IsType(t, &memory.FallbackManager{}, m)
}

func TestNew_PartialAvailability(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{}
	store.seed(1, t0)
	index := &stubIndex{pingErr: errBoom}

	m := memory.New(ctx, session, nil, memory.Backends{Conversations: store, Index: index})

	fm, ok := m.(*memory.FusionManager)
	require.True(t, ok)
	assert.Equal(t, memory.Availability{Conversations: true}, fm.Availability())

	assert.Len(t, fm.FetchShortTerm(ctx), 2)
	assert.Empty(t, fm.FetchLongTerm(ctx, "qa", 5))
	assert.Zero(t, index.searches, "an index that failed its probe is never queried")
}

func TestNew_ExtractorWithoutFactStore(t *testing.T) {
	extractor := &stubExtractor{facts: map[string]string{"name": "John"}}
	m := memory.New(context.Background(), session, nil,
		memory.Backends{Conversations: &countingStore{}, Extractor: extractor})

	m.ApplyTurn(context.Background(), "I'm John", "Hi")

	assert.Empty(t, extractor.inputs, "no extraction without a fact store")
}
