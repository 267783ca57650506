package memory_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/becomeliminal/nim-memory/core"
)

var errBoom = errors.New("boom")

// countingStore wraps a conversation store and counts calls.
type countingStore struct {
	mu       sync.Mutex
	turns    []core.Turn
	appends  int
	queries  int
	err      error
	pingErr  error
	lastArgs []string
}

func (s *countingStore) QueryRecent(_ context.Context, userID, threadID string, limit int) ([]core.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	s.lastArgs = []string{userID, threadID}
	if s.err != nil {
		return nil, s.err
	}
	var out []core.Turn
	for i := len(s.turns) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.turns[i])
	}
	return out, nil
}

func (s *countingStore) Append(_ context.Context, _, _ string, turns ...core.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	if s.err != nil {
		return s.err
	}
	s.turns = append(s.turns, turns...)
	return nil
}

func (s *countingStore) History(_ context.Context, _, _ string, offset, limit int) ([]core.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if offset >= len(s.turns) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.turns) {
		end = len(s.turns)
	}
	return append([]core.Turn(nil), s.turns[offset:end]...), nil
}

func (s *countingStore) Ping(context.Context) error { return s.pingErr }

// seed appends n user/assistant pairs one second apart.
func (s *countingStore) seed(n int, start time.Time) {
	for i := 0; i < n; i++ {
		at := start.Add(time.Duration(i) * time.Second)
		s.turns = append(s.turns, core.NewTurnPair(msg("q", i), msg("a", i), at)...)
	}
}

func msg(prefix string, i int) string {
	return prefix + string(rune('a'+i))
}

// stubIndex returns canned search results and records upserts.
type stubIndex struct {
	mu       sync.Mutex
	upserts  []core.SemanticRecord
	results  []core.SemanticRecord
	searches int
	lastK    int
	err      error
	pingErr  error
}

func (x *stubIndex) Upsert(_ context.Context, _ core.Namespace, rec core.SemanticRecord) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.err != nil {
		return x.err
	}
	x.upserts = append(x.upserts, rec)
	return nil
}

func (x *stubIndex) Search(_ context.Context, _ core.Namespace, _ string, k int) ([]core.SemanticRecord, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.searches++
	x.lastK = k
	if x.err != nil {
		return nil, x.err
	}
	return append([]core.SemanticRecord(nil), x.results...), nil
}

func (x *stubIndex) Ping(context.Context) error { return x.pingErr }

// stubFacts is a fact store with call counters.
type stubFacts struct {
	mu      sync.Mutex
	sheets  map[string]core.FactSheet
	puts    int
	getErr  error
	putErr  error
	pingErr error
}

func newStubFacts() *stubFacts {
	return &stubFacts{sheets: map[string]core.FactSheet{}}
}

func (f *stubFacts) Get(_ context.Context, userID string) (*core.FactSheet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	sheet, ok := f.sheets[userID]
	if !ok {
		return nil, nil
	}
	cp := sheet
	cp.Facts = map[string]string{}
	for k, v := range sheet.Facts {
		cp.Facts[k] = v
	}
	return &cp, nil
}

func (f *stubFacts) Put(_ context.Context, userID string, facts map[string]string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	f.sheets[userID] = core.FactSheet{UserID: userID, Facts: facts, LastUpdate: at}
	return nil
}

func (f *stubFacts) Ping(context.Context) error { return f.pingErr }

// stubExtractor returns a fixed extraction and records its inputs.
type stubExtractor struct {
	mu     sync.Mutex
	facts  map[string]string
	err    error
	inputs []string
}

func (e *stubExtractor) Extract(_ context.Context, text string) (map[string]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs = append(e.inputs, text)
	if e.err != nil {
		return nil, e.err
	}
	out := make(map[string]string, len(e.facts))
	for k, v := range e.facts {
		out[k] = v
	}
	return out, nil
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
