// Package qdrant implements memory.SemanticIndex on a Qdrant server over gRPC.
// Each namespace maps to one collection named by core.Namespace.Key.
package qdrant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

const (
	payloadText      = "text"
	payloadRecordID  = "record_id"
	payloadUserID    = "user_id"
	payloadThreadID  = "thread_id"
	payloadTimestamp = "timestamp"

	defaultPort           = 6334
	defaultMaxMessageSize = 50 * 1024 * 1024
)

// Config holds Index configuration.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool

	// MaxMessageSize bounds gRPC send and receive sizes in bytes.
	MaxMessageSize int
}

// Index stores records in per-namespace Qdrant collections.
type Index struct {
	client   *qdrant.Client
	embedder memory.Embedder
	logger   *zap.Logger

	mu          sync.Mutex
	collections map[string]bool // known to exist
}

var _ memory.SemanticIndex = (*Index)(nil)

// New creates the gRPC client. The connection is not checked; use Ping.
func New(config Config, embedder memory.Embedder, logger *zap.Logger) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("qdrant index requires an embedder")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Port == 0 {
		config.Port = defaultPort
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = defaultMaxMessageSize
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant client: %v", memory.ErrBackendUnavailable, err)
	}
	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext", zap.String("host", config.Host))
	}

	return &Index{
		client:      client,
		embedder:    embedder,
		logger:      logger.Named("qdrant"),
		collections: make(map[string]bool),
	}, nil
}

// Ping runs a Qdrant health check.
func (s *Index) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: qdrant: %v", memory.ErrBackendUnavailable, err)
	}
	return nil
}

// Close closes the gRPC connection.
func (s *Index) Close() error {
	return s.client.Close()
}

// ensureCollection returns whether the namespace collection exists, creating
// it when create is true.
func (s *Index) ensureCollection(ctx context.Context, name string, create bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collections[name] {
		return true, nil
	}

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			exists = false
		} else {
			return false, wrapErr("checking collection "+name, err)
		}
	}
	if !exists && create {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.embedder.Dimensions()),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return false, wrapErr("creating collection "+name, err)
		}
		s.logger.Info("created collection", zap.String("collection", name))
		exists = true
	}
	if exists {
		s.collections[name] = true
	}
	return exists, nil
}

// pointID maps a record id onto the UUID ids Qdrant accepts.
func pointID(recordID string) string {
	if _, err := uuid.Parse(recordID); err == nil {
		return recordID
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(recordID)).String()
}

// Upsert embeds and stores one record.
func (s *Index) Upsert(ctx context.Context, ns core.Namespace, rec core.SemanticRecord) error {
	name := ns.Key()
	if _, err := s.ensureCollection(ctx, name, true); err != nil {
		return err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	embedding := rec.Embedding
	if len(embedding) == 0 {
		var err error
		embedding, err = s.embedder.Embed(ctx, rec.Text)
		if err != nil {
			return fmt.Errorf("embed record: %w", err)
		}
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(pointID(rec.ID)),
		Vectors: qdrant.NewVectors(embedding...),
		Payload: qdrant.NewValueMap(map[string]any{
			payloadText:      rec.Text,
			payloadRecordID:  rec.ID,
			payloadUserID:    ns.UserID,
			payloadThreadID:  ns.ThreadID,
			payloadTimestamp: rec.Metadata.Timestamp.UTC().Format(time.RFC3339Nano),
		}),
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return wrapErr("upserting point to "+name, err)
	}
	return nil
}

// Search returns up to k records of the namespace by cosine similarity.
func (s *Index) Search(ctx context.Context, ns core.Namespace, query string, k int) ([]core.SemanticRecord, error) {
	if k <= 0 {
		return nil, nil
	}
	name := ns.Key()
	exists, err := s.ensureCollection(ctx, name, false)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(payloadUserID, ns.UserID),
				qdrant.NewMatch(payloadThreadID, ns.ThreadID),
			},
		},
	})
	if err != nil {
		return nil, wrapErr("querying "+name, err)
	}

	records := make([]core.SemanticRecord, 0, len(points))
	for _, p := range points {
		records = append(records, toRecord(p))
	}
	return records, nil
}

func toRecord(p *qdrant.ScoredPoint) core.SemanticRecord {
	str := func(key string) string {
		if v, ok := p.GetPayload()[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}

	id := str(payloadRecordID)
	if id == "" {
		id = p.GetId().GetUuid()
	}
	ts, _ := time.Parse(time.RFC3339Nano, str(payloadTimestamp))
	return core.SemanticRecord{
		ID:   id,
		Text: str(payloadText),
		Metadata: core.RecordMetadata{
			UserID:    str(payloadUserID),
			ThreadID:  str(payloadThreadID),
			Timestamp: ts,
		},
		Score: p.GetScore(),
	}
}

// wrapErr adds op to err and marks an unreachable server as
// ErrBackendUnavailable.
func wrapErr(op string, err error) error {
	if status.Code(err) == grpccodes.Unavailable {
		return fmt.Errorf("%s: %w: %w", op, memory.ErrBackendUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
