package core

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var keyPattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

func TestNamespace_Key(t *testing.T) {
	tests := []struct {
		name string
		ns   Namespace
	}{
		{"plain", Namespace{UserID: "john", ThreadID: "t1"}},
		{"mixed case and punctuation", Namespace{UserID: "John.Doe@example.com", ThreadID: "Thread #7"}},
		{"long user", Namespace{UserID: "a-very-long-user-identifier-that-exceeds-limits", ThreadID: "t"}},
		{"no usable characters", Namespace{UserID: "日本語", ThreadID: "スレッド"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := tt.ns.Key()
			assert.Regexp(t, keyPattern, key)
			assert.Equal(t, key, tt.ns.Key(), "key must be deterministic")
		})
	}
}

func TestNamespace_KeyDistinguishesCollidingPairs(t *testing.T) {
	// Sanitising maps both user ids to "a_b"; the hash keeps them apart.
	a := Namespace{UserID: "a-b", ThreadID: "t"}
	b := Namespace{UserID: "a.b", ThreadID: "t"}
	assert.NotEqual(t, a.Key(), b.Key())

	// Moving characters between halves changes the key.
	c := Namespace{UserID: "ab", ThreadID: "c"}
	d := Namespace{UserID: "a", ThreadID: "bc"}
	assert.NotEqual(t, c.Key(), d.Key())
}

func TestNamespace_Valid(t *testing.T) {
	assert.True(t, Namespace{UserID: "u", ThreadID: "t"}.Valid())
	assert.False(t, Namespace{UserID: "", ThreadID: "t"}.Valid())
	assert.False(t, Namespace{UserID: "u", ThreadID: "  "}.Valid())
	assert.Equal(t, "u/t", Namespace{UserID: "u", ThreadID: "t"}.String())
}

func TestNewTurnPair(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	turns := NewTurnPair("hi", "hello", at)

	assert.Equal(t, []Turn{
		{Role: RoleUser, Content: "hi", Timestamp: at},
		{Role: RoleAssistant, Content: "hello", Timestamp: at},
	}, turns)
	assert.True(t, RoleUser.Valid())
	assert.False(t, Role("system").Valid())
}

func TestMemoryContext_Empty(t *testing.T) {
	assert.True(t, MemoryContext{Facts: EmptyFactSheet("u")}.Empty())
	assert.False(t, MemoryContext{ShortTerm: []Turn{{Role: RoleUser, Content: "x"}}}.Empty())
	assert.False(t, MemoryContext{Facts: FactSheet{Facts: map[string]string{"name": "John"}}}.Empty())
	assert.Equal(t, "User: a\nAssistant: b", CombinedText("a", "b"))
}
