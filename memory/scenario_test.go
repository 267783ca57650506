package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
	"github.com/becomeliminal/nim-memory/memory/extractor/heuristic"
	"github.com/becomeliminal/nim-memory/memory/store/chromem"
	"github.com/becomeliminal/nim-memory/memory/store/inmem"
)

const johnIntro = "I'm John, a software engineer from San Francisco"

func newLocalBackends(t *testing.T, extractor memory.FactExtractor) memory.Backends {
	t.Helper()
	index, err := chromem.New(chromem.Config{}, mock.New(), nil)
	require.NoError(t, err)
	store := inmem.New()
	return memory.Backends{Conversations: store, Index: index, Facts: store, Extractor: extractor}
}

func TestScenario_John(t *testing.T) {
	ctx := context.Background()
	extractor := &stubExtractor{facts: map[string]string{
		"name":       "John",
		"occupation": "software engineer",
		"location":   "San Francisco",
	}}
	m := memory.New(ctx, session, nil, newLocalBackends(t, extractor))
	require.IsType(t, &memory.FusionManager{}, m)
	require.Empty(t, m.GetUserFacts(ctx).Facts)

	m.ApplyTurn(ctx, johnIntro, "Nice to meet you, John!")

	assert.Equal(t, map[string]string{
		"name":       "John",
		"occupation": "software engineer",
		"location":   "San Francisco",
	}, m.GetUserFacts(ctx).Facts)

	hits := m.FetchLongTerm(ctx, "software engineer", -1)
	require.NotEmpty(t, hits)
	assert.Equal(t, core.CombinedText(johnIntro, "Nice to meet you, John!"), hits[0].Text)
	assert.Equal(t, session, hits[0].Metadata.Namespace())
}

func TestScenario_JohnWithPatternExtractor(t *testing.T) {
	ctx := context.Background()
	m := memory.New(ctx, session, nil, newLocalBackends(t, heuristic.New()))

	m.ApplyTurn(ctx, johnIntro, "Nice to meet you, John!")

	assert.Equal(t, map[string]string{
		"name":       "John",
		"occupation": "software engineer",
		"location":   "San Francisco",
	}, m.GetUserFacts(ctx).Facts)
}

func TestScenario_ThreadsShareFactsNotRecords(t *testing.T) {
	ctx := context.Background()
	backends := newLocalBackends(t, heuristic.New())
	first := memory.New(ctx, session, nil, backends)
	second := memory.New(ctx, core.Namespace{UserID: session.UserID, ThreadID: "thread2"}, nil, backends)

	first.ApplyTurn(ctx, johnIntro, "Hello John")

	assert.Equal(t, "John", second.GetUserFacts(ctx).Facts["name"])
	assert.Empty(t, second.FetchLongTerm(ctx, "software engineer", 5))
	assert.Empty(t, second.FetchShortTerm(ctx))
}

func TestScenario_EngineOwnedPersistence(t *testing.T) {
	ctx := context.Background()
	backends := newLocalBackends(t, heuristic.New())
	m := memory.New(ctx, session, nil, backends)

	// The application persists the turn, then applies it to memory.
	turns := core.NewTurnPair("hello", "hi there", t0)
	require.NoError(t, backends.Conversations.Append(ctx, session.UserID, session.ThreadID, turns...))
	m.ApplyTurnAt(ctx, "hello", "hi there", t0)

	assert.Len(t, m.FetchHistory(ctx, 0, 10), 2)
	assert.Len(t, m.FetchShortTerm(ctx), 2)
}
