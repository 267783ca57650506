// Package heuristic extracts personal facts with regular expressions.
// It needs no network access and serves as the offline FactExtractor.
package heuristic

import (
	"context"
	"regexp"
	"strings"

	"github.com/becomeliminal/nim-memory/memory"
)

// Rule maps the first capture group of Pattern to a fact key.
type Rule struct {
	Key     string
	Pattern *regexp.Regexp
}

// DefaultRules recognise name, occupation and location statements.
var DefaultRules = []Rule{
	{
		Key:     "name",
		Pattern: regexp.MustCompile(`\b(?i:my name is|i am|i'm|call me)\s+([A-Z][a-z'-]+)\b`),
	},
	{
		Key:     "occupation",
		Pattern: regexp.MustCompile(`(?i:\b(?:i am|i'm|i work as)\s+(?:[A-Z][a-z'-]+,\s+)?an?\s+)([a-z][a-z -]*?)(?:\s+(?:from|in|at|living|based|who)\b|[,.!?;]|$)`),
	},
	{
		Key:     "location",
		Pattern: regexp.MustCompile(`(?i:\b(?:from|live in|living in|based in)\s+)([A-Z][a-zA-Z]*(?:\s+[A-Z][a-zA-Z]*)*)`),
	},
}

// Extractor applies a fixed rule set to user messages.
type Extractor struct {
	rules []Rule
}

var _ memory.FactExtractor = (*Extractor)(nil)

// New creates an extractor with DefaultRules, or the given rules.
func New(rules ...Rule) *Extractor {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Extractor{rules: rules}
}

// Extract returns one fact per matching rule. The first match of each rule wins.
func (e *Extractor) Extract(ctx context.Context, text string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	facts := make(map[string]string)
	for _, r := range e.rules {
		m := r.Pattern.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			facts[r.Key] = v
		}
	}
	return facts, nil
}
