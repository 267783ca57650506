package memory

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/becomeliminal/nim-memory/core"
)

// NoContextSummary is the summary of an empty MemoryContext.
const NoContextSummary = "No context available"

// Summarize describes a MemoryContext in one line.
func Summarize(mc core.MemoryContext) string {
	var parts []string

	if n := mc.Facts.Len(); n > 0 {
		keys := sortedKeys(mc.Facts.Facts)
		if len(keys) > 3 {
			keys = keys[:3]
		}
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s: %s", k, mc.Facts.Facts[k]))
		}
		parts = append(parts, "User profile: "+strings.Join(pairs, ", "))
	}
	if n := len(mc.LongTerm); n > 0 {
		parts = append(parts, fmt.Sprintf("Relevant past conversations (%d entries)", n))
	}
	if n := len(mc.ShortTerm); n > 0 {
		parts = append(parts, fmt.Sprintf("Recent history (%d messages)", n))
	}

	if len(parts) == 0 {
		return NoContextSummary
	}
	return strings.Join(parts, " | ")
}

// Render formats a MemoryContext as a prompt block. Long-term entries share
// maxChars bytes evenly, each getting at least 100. maxChars <= 0 means
// no truncation. An empty context renders as "".
func Render(mc core.MemoryContext, maxChars int) string {
	var b strings.Builder

	if mc.Facts.Len() > 0 {
		b.WriteString("=== USER PROFILE ===\n")
		for _, k := range sortedKeys(mc.Facts.Facts) {
			fmt.Fprintf(&b, "- %s: %s\n", k, mc.Facts.Facts[k])
		}
	}

	if len(mc.LongTerm) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("=== RELEVANT PAST CONVERSATIONS ===\n")

		perRecord := 0
		if maxChars > 0 {
			perRecord = maxChars / len(mc.LongTerm)
			if perRecord < 100 {
				perRecord = 100
			}
		}
		for i, rec := range mc.LongTerm {
			text := rec.Text
			if perRecord > 0 {
				text = truncate(text, perRecord)
			}
			fmt.Fprintf(&b, "%d. (%.2f) %s\n", i+1, rec.Score, text)
		}
	}

	if len(mc.ShortTerm) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("=== RECENT CONVERSATION ===\n")
		for _, t := range mc.ShortTerm {
			fmt.Fprintf(&b, "%s: %s\n", speaker(t.Role), t.Content)
		}
	}

	return b.String()
}

func speaker(r core.Role) string {
	if r == core.RoleAssistant {
		return "Assistant"
	}
	return "User"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncate shortens s to at most maxLen bytes for display, cutting on a rune
// boundary.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
