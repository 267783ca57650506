package engine

import (
	"fmt"
	"strings"

	"github.com/becomeliminal/nim-memory/core"
)

// Turn steps reported through ProgressFunc.
const (
	StepMemory = "memory"
	StepChat   = "chat"
	StepUpdate = "update"
)

// Step statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// ProgressFunc receives step notifications while a turn runs. It is called
// synchronously and must not block.
type ProgressFunc func(step, status, detail string)

func (f ProgressFunc) orNop() ProgressFunc {
	if f == nil {
		return func(string, string, string) {}
	}
	return f
}

// LoadedDetail describes what the memory step loaded.
func LoadedDetail(mc core.MemoryContext) string {
	var parts []string
	if n := len(mc.ShortTerm); n > 0 {
		parts = append(parts, fmt.Sprintf("%d recent messages", n))
	}
	if n := len(mc.LongTerm); n > 0 {
		parts = append(parts, fmt.Sprintf("%d relevant conversations", n))
	}
	if n := mc.Facts.Len(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d user facts", n))
	}
	if len(parts) == 0 {
		return "Memory context loaded"
	}
	return "Loaded: " + strings.Join(parts, ", ")
}
