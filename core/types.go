// Package core defines the value types shared by the memory layer, the chat
// engine and the transports. Nothing in this package performs I/O.
package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one role-tagged message of a conversation.
// Turns are immutable once recorded.
type Turn struct {
	Role      Role      `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// NewTurnPair builds the user/assistant turns of one exchange sharing a timestamp.
func NewTurnPair(userMessage, assistantResponse string, at time.Time) []Turn {
	return []Turn{
		{Role: RoleUser, Content: userMessage, Timestamp: at},
		{Role: RoleAssistant, Content: assistantResponse, Timestamp: at},
	}
}

// Namespace scopes semantic records to one (user, thread) pair.
// Namespace is comparable and can be used as a map key.
type Namespace struct {
	UserID   string `json:"user_id"`
	ThreadID string `json:"thread_id"`
}

// Valid reports whether both halves of the namespace are set.
func (n Namespace) Valid() bool {
	return strings.TrimSpace(n.UserID) != "" && strings.TrimSpace(n.ThreadID) != ""
}

func (n Namespace) String() string {
	return n.UserID + "/" + n.ThreadID
}

// Key returns the deterministic storage key for the namespace.
//
// The key matches ^[a-z0-9_]{1,64}$ so it is usable as a collection name by
// every index backend. A readable prefix derived from the user id is followed
// by a hash of the exact (user, thread) pair, so two different pairs never
// share a key even when their sanitised forms collide.
func (n Namespace) Key() string {
	sum := sha256.Sum256([]byte(n.UserID + "\x00" + n.ThreadID))
	hash := hex.EncodeToString(sum[:8])

	user := sanitizeKeyPart(n.UserID)
	if len(user) > 24 {
		user = user[:24]
	}
	if user == "" {
		return "mem_" + hash
	}
	return fmt.Sprintf("mem_%s_%s", user, hash)
}

func sanitizeKeyPart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-', r == '_', r == '.', r == ' ':
			b.WriteRune('_')
		}
	}
	return b.String()
}

// RecordMetadata is the scoping information attached to every semantic record.
type RecordMetadata struct {
	UserID    string    `json:"user_id"`
	ThreadID  string    `json:"thread_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Namespace returns the namespace the record belongs to.
func (m RecordMetadata) Namespace() Namespace {
	return Namespace{UserID: m.UserID, ThreadID: m.ThreadID}
}

// SemanticRecord is one completed exchange stored for similarity retrieval.
// Score is only populated on records returned by a search.
type SemanticRecord struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  RecordMetadata `json:"metadata"`
	Score     float32        `json:"score,omitempty"`
}

// CombinedText is the text indexed for one exchange.
func CombinedText(userMessage, assistantResponse string) string {
	return fmt.Sprintf("User: %s\nAssistant: %s", userMessage, assistantResponse)
}

// FactSheet is the merged set of personal facts known about one user.
type FactSheet struct {
	UserID     string            `json:"user_id"`
	Facts      map[string]string `json:"facts"`
	LastUpdate time.Time         `json:"last_update,omitempty"`
}

// EmptyFactSheet returns a sheet with a non-nil, empty fact map.
func EmptyFactSheet(userID string) FactSheet {
	return FactSheet{UserID: userID, Facts: map[string]string{}}
}

// Len returns the number of facts on the sheet.
func (f FactSheet) Len() int {
	return len(f.Facts)
}

// MemoryContext is the fused view of all memory tiers for one turn.
// It has no stored identity and is rebuilt on every fetch.
type MemoryContext struct {
	ShortTerm []Turn           `json:"short_term"`
	LongTerm  []SemanticRecord `json:"long_term"`
	Facts     FactSheet        `json:"facts"`
	Summary   string           `json:"summary"`
}

// Empty reports whether no tier contributed anything.
func (c MemoryContext) Empty() bool {
	return len(c.ShortTerm) == 0 && len(c.LongTerm) == 0 && c.Facts.Len() == 0
}
