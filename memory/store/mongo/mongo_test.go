package mongo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

// newTestStore connects to NIMMEM_TEST_MONGO_URI or skips.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("NIMMEM_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("NIMMEM_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	s, err := New(ctx, Config{URI: uri, Database: "nimmem_test"})
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.EnsureIndexes(ctx))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestStore_Conversation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user, thread := "user-"+uuid.NewString(), "thread-1"
	base := time.Now().UTC().Truncate(time.Millisecond)

	// Turns of one pair share a timestamp; seq keeps them ordered.
	require.NoError(t, s.Append(ctx, user, thread, core.NewTurnPair("q1", "a1", base)...))
	require.NoError(t, s.Append(ctx, user, thread, core.NewTurnPair("q2", "a2", base.Add(time.Second))...))

	recent, err := s.QueryRecent(ctx, user, thread, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"a2", "q2", "a1"}, []string{recent[0].Content, recent[1].Content, recent[2].Content})

	page, err := s.History(ctx, user, thread, 2, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "q2", page[0].Content)
	assert.Equal(t, core.RoleUser, page[0].Role)
}

func TestStore_Facts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := "user-" + uuid.NewString()

	sheet, err := s.Get(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, sheet)

	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.Put(ctx, user, map[string]string{"name": "John"}, at))

	sheet, err = s.Get(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, sheet)
	assert.Equal(t, map[string]string{"name": "John"}, sheet.Facts)
	assert.True(t, at.Equal(sheet.LastUpdate))
}

func TestWrapErr(t *testing.T) {
	networkErr := mongo.CommandError{Code: 6, Message: "host unreachable", Labels: []string{"NetworkError"}}

	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{name: "network label", err: networkErr, unavailable: true},
		{name: "wrapped network label", err: fmt.Errorf("insert: %w", networkErr), unavailable: true},
		{name: "client disconnected", err: mongo.ErrClientDisconnected, unavailable: true},
		{name: "duplicate key", err: mongo.CommandError{Code: 11000, Message: "duplicate key"}, unavailable: false},
		{name: "plain", err: errors.New("bad document"), unavailable: false},
		{name: "canceled", err: context.Canceled, unavailable: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapErr("insert turns", tt.err)
			assert.Contains(t, err.Error(), "insert turns: ")
			assert.Equal(t, tt.unavailable, errors.Is(err, memory.ErrBackendUnavailable))
		})
	}
}
