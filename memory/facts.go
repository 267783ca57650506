package memory

import "strings"

// MergeFacts merges extracted facts into existing ones, last writer wins by key.
// Keys absent from extracted are kept. Blank keys and values are ignored.
// Neither input is modified.
func MergeFacts(existing, extracted map[string]string) map[string]string {
	merged := make(map[string]string, len(existing)+len(extracted))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range extracted {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		merged[k] = v
	}
	return merged
}

// cleanFacts drops blank keys and values from an extractor result.
func cleanFacts(facts map[string]string) map[string]string {
	return MergeFacts(nil, facts)
}
