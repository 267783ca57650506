package engine

import (
	"strings"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

// DefaultContextChars bounds the long-term section of the system prompt.
const DefaultContextChars = 2000

// DefaultSystemPrompt is the default system prompt for the assistant.
const DefaultSystemPrompt = `You are a helpful assistant with a long-term memory of the user.

GUIDELINES:
- Be conversational and helpful
- Use what you remember about the user when it is relevant
- Do not claim to remember things that are not in the context below
- Ask clarifying questions when needed`

// BuildSystemPrompt appends the user profile and relevant past conversations
// to base. Recent turns are sent as messages, so they are left out here.
func BuildSystemPrompt(base string, mc core.MemoryContext, maxChars int) string {
	mc.ShortTerm = nil
	block := memory.Render(mc, maxChars)
	if block == "" {
		return base
	}
	return base + "\n\n" + strings.TrimRight(block, "\n")
}
