// Package chromem implements memory.SemanticIndex on chromem-go, a pure Go
// embedded vector database. Each namespace gets its own collection.
package chromem

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

const (
	metaUserID    = "user_id"
	metaThreadID  = "thread_id"
	metaTimestamp = "timestamp"
)

// Config holds Index configuration.
type Config struct {
	// Path persists the database to disk. Empty keeps it in memory only.
	Path string

	// Compress gzips persisted collections.
	Compress bool
}

// Index wraps chromem-go for namespaced semantic retrieval.
type Index struct {
	db          *chromem.DB
	embedder    memory.Embedder
	logger      *zap.Logger
	collections map[string]*chromem.Collection // by namespace key
	mu          sync.RWMutex
}

var _ memory.SemanticIndex = (*Index)(nil)

// New creates an index that embeds with embedder.
func New(config Config, embedder memory.Embedder, logger *zap.Logger) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("chromem index requires an embedder")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db := chromem.NewDB()
	if config.Path != "" {
		if err := os.MkdirAll(config.Path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", config.Path, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: opening chromem db: %v", memory.ErrBackendUnavailable, err)
		}
	}

	return &Index{
		db:          db,
		embedder:    embedder,
		logger:      logger.Named("chromem"),
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (s *Index) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.Embed(ctx, text)
	}
}

// collection returns the namespace collection. With create false a missing
// collection yields nil.
func (s *Index) collection(ns core.Namespace, create bool) (*chromem.Collection, error) {
	key := ns.Key()

	s.mu.RLock()
	col, exists := s.collections[key]
	s.mu.RUnlock()
	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := s.collections[key]; exists {
		return col, nil
	}

	if !create {
		// A persistent db may hold collections from a previous run.
		col = s.db.GetCollection(key, s.embeddingFunc())
		if col != nil {
			s.collections[key] = col
		}
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection(key, map[string]string{
		metaUserID:   ns.UserID,
		metaThreadID: ns.ThreadID,
	}, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", key, err)
	}
	s.collections[key] = col
	return col, nil
}

// Upsert embeds and stores one record.
func (s *Index) Upsert(ctx context.Context, ns core.Namespace, rec core.SemanticRecord) error {
	col, err := s.collection(ns, true)
	if err != nil {
		return err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	embedding := rec.Embedding
	if len(embedding) == 0 {
		embedding, err = s.embedder.Embed(ctx, rec.Text)
		if err != nil {
			return fmt.Errorf("embed record: %w", err)
		}
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: embedding,
		Metadata: map[string]string{
			metaUserID:    ns.UserID,
			metaThreadID:  ns.ThreadID,
			metaTimestamp: rec.Metadata.Timestamp.UTC().Format(time.RFC3339Nano),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	s.logger.Debug("stored record", zap.String("collection", ns.Key()), zap.String("id", rec.ID))
	return nil
}

// Search returns up to k records of the namespace by cosine similarity.
func (s *Index) Search(ctx context.Context, ns core.Namespace, query string, k int) ([]core.SemanticRecord, error) {
	if k <= 0 {
		return nil, nil
	}
	col, err := s.collection(ns, false)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, nil
	}

	// chromem-go requires nResults <= collection size
	if n := col.Count(); n == 0 {
		return nil, nil
	} else if k > n {
		k = n
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	where := map[string]string{
		metaUserID:   ns.UserID,
		metaThreadID: ns.ThreadID,
	}

	// The where filter can leave fewer matches than k; retry smaller.
	var results []chromem.Result
	for limit := k; limit >= 1; limit-- {
		results, err = col.QueryEmbedding(ctx, embedding, limit, where, nil)
		if err == nil {
			break
		}
		if !isInsufficientDocsError(err) {
			return nil, fmt.Errorf("chromem query: %w", err)
		}
		if limit == 1 {
			return nil, nil
		}
	}

	records := make([]core.SemanticRecord, 0, len(results))
	for _, r := range results {
		records = append(records, toRecord(r))
	}
	return records, nil
}

// Ping always succeeds; the database is in process.
func (s *Index) Ping(context.Context) error { return nil }

func toRecord(r chromem.Result) core.SemanticRecord {
	ts, _ := time.Parse(time.RFC3339Nano, r.Metadata[metaTimestamp])
	return core.SemanticRecord{
		ID:        r.ID,
		Text:      r.Content,
		Embedding: r.Embedding,
		Metadata: core.RecordMetadata{
			UserID:    r.Metadata[metaUserID],
			ThreadID:  r.Metadata[metaThreadID],
			Timestamp: ts,
		},
		Score: r.Similarity,
	}
}

// isInsufficientDocsError checks if error is due to insufficient documents.
func isInsufficientDocsError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
