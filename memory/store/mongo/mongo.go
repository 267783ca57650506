// Package mongo persists conversation turns and fact sheets in MongoDB.
//
// Collections:
//   - messages_history: one document per turn
//   - user_facts: one document per user
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

// DefaultDatabase is used when Config.Database is empty.
const DefaultDatabase = "agentic_memory"

const (
	messagesCollection = "messages_history"
	factsCollection    = "user_facts"
)

// Config holds Store configuration.
type Config struct {
	URI      string
	Database string
}

// Store implements memory.ConversationStore and memory.FactStore.
type Store struct {
	client   *mongo.Client
	messages *mongo.Collection
	facts    *mongo.Collection
}

var (
	_ memory.ConversationStore = (*Store)(nil)
	_ memory.FactStore         = (*Store)(nil)
)

type messageDoc struct {
	UserID    string    `bson:"user_id"`
	ThreadID  string    `bson:"thread_id"`
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	Timestamp time.Time `bson:"timestamp"`
	Seq       int       `bson:"seq"`
}

type factsDoc struct {
	UserID     string            `bson:"user_id"`
	Facts      map[string]string `bson:"facts"`
	LastUpdate time.Time         `bson:"last_update"`
}

// New connects to MongoDB and ensures indexes. The connection is lazy; use
// Ping to check reachability.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("%w: connect mongo: %v", memory.ErrBackendUnavailable, err)
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client:   client,
		messages: db.Collection(messagesCollection),
		facts:    db.Collection(factsCollection),
	}
	return s, nil
}

// EnsureIndexes creates the lookup indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "thread_id", Value: 1}, {Key: "timestamp", Value: 1}, {Key: "seq", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create messages index: %w", err)
	}
	_, err = s.facts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create facts index: %w", err)
	}
	return nil
}

// Append inserts the turns with a single InsertMany.
func (s *Store) Append(ctx context.Context, userID, threadID string, turns ...core.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	docs := make([]interface{}, len(turns))
	for i, t := range turns {
		at := t.Timestamp
		if at.IsZero() {
			at = time.Now().UTC()
		}
		docs[i] = messageDoc{
			UserID:    userID,
			ThreadID:  threadID,
			Role:      string(t.Role),
			Content:   t.Content,
			Timestamp: at,
			Seq:       i,
		}
	}
	if _, err := s.messages.InsertMany(ctx, docs); err != nil {
		return wrapErr("insert turns", err)
	}
	return nil
}

// QueryRecent returns up to limit turns, newest first.
func (s *Store) QueryRecent(ctx context.Context, userID, threadID string, limit int) ([]core.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}}).
		SetLimit(int64(limit))
	return s.find(ctx, userID, threadID, opts)
}

// History returns turns oldest first.
func (s *Store) History(ctx context.Context, userID, threadID string, offset, limit int) ([]core.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "seq", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	return s.find(ctx, userID, threadID, opts)
}

func (s *Store) find(ctx context.Context, userID, threadID string, opts *options.FindOptions) ([]core.Turn, error) {
	cur, err := s.messages.Find(ctx, bson.M{"user_id": userID, "thread_id": threadID}, opts)
	if err != nil {
		return nil, wrapErr("find turns", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrapErr("decode turns", err)
	}

	turns := make([]core.Turn, len(docs))
	for i, d := range docs {
		turns[i] = core.Turn{Role: core.Role(d.Role), Content: d.Content, Timestamp: d.Timestamp}
	}
	return turns, nil
}

// Get returns the user's sheet, or nil when none exists.
func (s *Store) Get(ctx context.Context, userID string) (*core.FactSheet, error) {
	var doc factsDoc
	err := s.facts.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("find facts", err)
	}
	if doc.Facts == nil {
		doc.Facts = map[string]string{}
	}
	return &core.FactSheet{UserID: userID, Facts: doc.Facts, LastUpdate: doc.LastUpdate}, nil
}

// Put upserts the user's facts.
func (s *Store) Put(ctx context.Context, userID string, facts map[string]string, updatedAt time.Time) error {
	_, err := s.facts.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"facts": facts, "last_update": updatedAt}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return wrapErr("upsert facts", err)
	}
	return nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: mongo: %v", memory.ErrBackendUnavailable, err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// wrapErr adds op to err and marks network failures as ErrBackendUnavailable.
func wrapErr(op string, err error) error {
	if isConnectionError(err) {
		return fmt.Errorf("%s: %w: %w", op, memory.ErrBackendUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConnectionError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return mongo.IsNetworkError(err) ||
		mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected)
}
