// Package memory gives a conversational agent a layered memory.
//
// Three tiers are fused into one core.MemoryContext on every turn and updated
// after every turn:
//   - Short-term: the most recent turns of the thread, read from the
//     conversation store and reconciled with an in-process cache
//   - Long-term: past exchanges retrieved by semantic similarity from an index
//     namespaced by (user, thread)
//   - Facts: a per-user sheet of extracted facts, merged last-writer-wins by key
//
// Architecture:
//   - Manager: the contract (FusionManager live, FallbackManager no-op)
//   - ConversationStore / SemanticIndex / FactStore / FactExtractor: adapters
//   - Embedder: text-to-vector conversion used by the index adapters
//
// Integration:
//   - RETRIEVE: FetchContext before the model is called
//   - RECORD: the application persists the turn, then calls ApplyTurn
//
// Adapters:
//   - store/chromem, store/qdrant: semantic index
//   - store/postgres, store/mongo, store/inmem: conversation and fact stores
//   - embedder/mock, embedder/onnx, embedder/fastembed, embedder/cache
//   - extractor/claude, extractor/heuristic
package memory
