package memory

import (
	"context"
	"time"

	"github.com/becomeliminal/nim-memory/core"
)

// Manager is the memory contract the chat engine, the workflow activities and
// the server program against.
//
// Two implementations exist:
//   - FusionManager: reconciles the conversation store, the semantic index and
//     the fact store for one (user, thread) session
//   - FallbackManager: performs no I/O and returns neutral values
//
// Every method fails soft. Reads return empty values when a backend is
// unavailable and writes log and skip the failing step, so no backend outage
// is ever surfaced to the caller.
type Manager interface {
	// Identity returns the (user, thread) pair the manager was built for.
	Identity() core.Namespace

	// FetchShortTerm returns at most 2×ShortTermWindow recent turns, oldest first.
	FetchShortTerm(ctx context.Context) []core.Turn

	// FetchLongTerm returns at most k records from the session namespace ordered
	// by decreasing similarity, newest first on ties. A negative k selects the
	// configured ResultCount.
	FetchLongTerm(ctx context.Context, query string, k int) []core.SemanticRecord

	// GetUserFacts returns the user's fact sheet, or an empty sheet.
	GetUserFacts(ctx context.Context) core.FactSheet

	// FetchContext fuses all three tiers for the given query. An empty query
	// falls back to the latest user turn in the short-term window.
	FetchContext(ctx context.Context, query string) core.MemoryContext

	// FetchHistory returns one oldest-first page of the stored conversation.
	FetchHistory(ctx context.Context, page, pageSize int) []core.Turn

	// ApplyTurn records a completed exchange in the semantic index, the fact
	// sheet and the in-process short-term cache. It never writes to the
	// conversation store; persisting the turns is the caller's job.
	ApplyTurn(ctx context.Context, userMessage, assistantResponse string)

	// ApplyTurnAt is ApplyTurn with the timestamp the caller persisted the
	// turns under, so the short-term cache recognises the stored copies.
	ApplyTurnAt(ctx context.Context, userMessage, assistantResponse string, at time.Time)

	// Update does everything ApplyTurn does and also appends the exchange to
	// the conversation store.
	//
	// Deprecated: calling Update after the application already persisted the
	// turn stores it twice. Use ApplyTurn and persist turns in the application.
	Update(ctx context.Context, userMessage, assistantResponse string)
}

// ConversationStore is the durable, append-only log of turns.
// Implementations: inmem.Store, postgres.Store, mongo.Store.
type ConversationStore interface {
	// QueryRecent returns up to limit turns for the thread, newest first.
	QueryRecent(ctx context.Context, userID, threadID string, limit int) ([]core.Turn, error)

	// Append stores the turns in one atomic write.
	Append(ctx context.Context, userID, threadID string, turns ...core.Turn) error

	// History returns turns oldest first, skipping offset turns.
	History(ctx context.Context, userID, threadID string, offset, limit int) ([]core.Turn, error)
}

// SemanticIndex embeds text and performs nearest-neighbour retrieval scoped to
// a namespace. Implementations: chromem.Index, qdrant.Index.
type SemanticIndex interface {
	// Upsert stores one record under the namespace, creating it if needed.
	Upsert(ctx context.Context, ns core.Namespace, record core.SemanticRecord) error

	// Search returns up to k records ordered by score, highest first.
	// A namespace that does not exist yet yields (nil, nil).
	Search(ctx context.Context, ns core.Namespace, query string, k int) ([]core.SemanticRecord, error)
}

// FactStore keeps one fact document per user.
// Implementations: inmem.Store, postgres.Store, mongo.Store.
type FactStore interface {
	// Get returns the user's sheet, or (nil, nil) when none exists.
	Get(ctx context.Context, userID string) (*core.FactSheet, error)

	// Put replaces the user's facts and stamps them with updatedAt.
	Put(ctx context.Context, userID string, facts map[string]string, updatedAt time.Time) error
}

// FactExtractor mines first-person facts from a user utterance.
// Implementations: claude.Extractor (LLM), heuristic.Extractor (patterns).
type FactExtractor interface {
	Extract(ctx context.Context, text string) (map[string]string, error)
}

// Embedder converts text to vector embeddings.
// Implementations: mock.Embedder (testing), onnx.Embedder, fastembed.Embedder,
// wrapped by cache.Embedder.
//
// Note: Embedder is an implementation detail of the semantic index.
// The managers never embed text themselves.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Pinger is implemented by adapters that can report reachability.
// Adapters without it are assumed available.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backends groups the adapters a FusionManager orchestrates. Nil fields are
// treated as unavailable.
type Backends struct {
	Conversations ConversationStore
	Index         SemanticIndex
	Facts         FactStore
	Extractor     FactExtractor
}
