package memory

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/becomeliminal/nim-memory/core"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		mc   core.MemoryContext
		want string
	}{
		{name: "empty", want: NoContextSummary},
		{
			name: "all tiers",
			mc: core.MemoryContext{
				ShortTerm: make([]core.Turn, 4),
				LongTerm:  make([]core.SemanticRecord, 2),
				Facts: core.FactSheet{Facts: map[string]string{
					"occupation": "engineer", "name": "John", "location": "SF", "pet": "cat",
				}},
			},
			want: "User profile: location: SF, name: John, occupation: engineer | " +
				"Relevant past conversations (2 entries) | Recent history (4 messages)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.mc))
		})
	}
}

func TestRender(t *testing.T) {
	mc := core.MemoryContext{
		ShortTerm: core.NewTurnPair("hi", "hello", time.Now()),
		LongTerm: []core.SemanticRecord{
			{Text: "User: I'm John\nAssistant: Hi John", Score: 0.91},
		},
		Facts: core.FactSheet{Facts: map[string]string{"name": "John"}},
	}

	out := Render(mc, 0)

	assert.Contains(t, out, "=== USER PROFILE ===\n- name: John\n")
	assert.Contains(t, out, "=== RELEVANT PAST CONVERSATIONS ===\n1. (0.91) User: I'm John")
	assert.Contains(t, out, "=== RECENT CONVERSATION ===\nUser: hi\nAssistant: hello\n")
	assert.Less(t, strings.Index(out, "USER PROFILE"), strings.Index(out, "RECENT CONVERSATION"))
}

func TestRender_TruncatesLongTerm(t *testing.T) {
	mc := core.MemoryContext{LongTerm: []core.SemanticRecord{{Text: strings.Repeat("x", 500)}}}
	out := Render(mc, 150)
	assert.Contains(t, out, strings.Repeat("x", 150)+"...")
	assert.NotContains(t, out, strings.Repeat("x", 151))
}

func TestTruncate_RuneBoundary(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{name: "short", in: "héllo", maxLen: 10, want: "héllo"},
		{name: "ascii", in: "hello world", maxLen: 5, want: "hello..."},
		{name: "inside two-byte rune", in: "héllo", maxLen: 2, want: "h..."},
		{name: "inside four-byte rune", in: "ok🙂ok", maxLen: 4, want: "ok..."},
		{name: "after rune", in: "héllo", maxLen: 3, want: "hé..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.maxLen)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestRender_TruncatesMultiByteText(t *testing.T) {
	mc := core.MemoryContext{LongTerm: []core.SemanticRecord{{Text: strings.Repeat("é", 300)}}}
	out := Render(mc, 151)
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, strings.Repeat("é", 75)+"...")
}

func TestRender_Empty(t *testing.T) {
	assert.Empty(t, Render(core.MemoryContext{}, 100))
}
