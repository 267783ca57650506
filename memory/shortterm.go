package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/becomeliminal/nim-memory/core"
)

// shortTermCache holds the turns this manager instance recorded, so a fetch
// sees them even before the conversation store does.
type shortTermCache struct {
	mu       sync.Mutex
	capacity int
	turns    []core.Turn
}

func newShortTermCache(capacity int) *shortTermCache {
	return &shortTermCache{capacity: capacity}
}

// add appends turns, evicting the oldest beyond capacity.
func (c *shortTermCache) add(turns ...core.Turn) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, turns...)
	if over := len(c.turns) - c.capacity; over > 0 {
		c.turns = append([]core.Turn(nil), c.turns[over:]...)
	}
}

func (c *shortTermCache) snapshot() []core.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Turn(nil), c.turns...)
}

type turnKey struct {
	role    core.Role
	content string
}

// storeSkew is how much earlier than its cached copy a stored turn may be
// stamped and still count as the same turn. It absorbs store timestamp
// precision and callers that persist with their own clock before ApplyTurn.
const storeSkew = 5 * time.Second

// reconcile merges stored (oldest first) with cached turns the store does not
// show yet, and keeps the newest limit turns.
//
// A cached turn counts as stored when a stored turn with the same role and
// content is stamped no earlier than the cached turn minus storeSkew. Each
// stored turn matches at most one cached turn, so an identical exchange from
// an earlier session never hides the one just applied. When stored already
// fills the window, unmatched cached turns older than its first turn cannot
// belong to it.
func reconcile(stored, cached []core.Turn, limit int) []core.Turn {
	if limit <= 0 {
		return []core.Turn{}
	}

	candidates := make(map[turnKey][]int, len(stored))
	for i, t := range stored {
		k := turnKey{t.Role, t.Content}
		candidates[k] = append(candidates[k], i)
	}
	used := make([]bool, len(stored))

	merged := append(make([]core.Turn, 0, len(stored)+len(cached)), stored...)
	added := false
	for _, t := range cached {
		if matchStored(stored, used, candidates[turnKey{t.Role, t.Content}], t) {
			continue
		}
		if len(stored) >= limit && t.Timestamp.Before(stored[0].Timestamp) {
			continue
		}
		merged = append(merged, t)
		added = true
	}

	if added {
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].Timestamp.Before(merged[j].Timestamp)
		})
	}
	if len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	return merged
}

// matchStored marks and reports the earliest unused stored turn among idx
// that can be the persisted copy of cached.
func matchStored(stored []core.Turn, used []bool, idx []int, cached core.Turn) bool {
	earliest := cached.Timestamp.Add(-storeSkew)
	for _, i := range idx {
		if used[i] || stored[i].Timestamp.Before(earliest) {
			continue
		}
		used[i] = true
		return true
	}
	return false
}

func reverseTurns(turns []core.Turn) []core.Turn {
	out := make([]core.Turn, len(turns))
	for i, t := range turns {
		out[len(turns)-1-i] = t
	}
	return out
}
