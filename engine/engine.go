package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

// Engine runs one chat turn against a memory.Manager: it fetches context,
// asks the Responder for a reply and records the exchange.
type Engine struct {
	responder     Responder
	conversations memory.ConversationStore
	systemPrompt  string
	legacyUpdate  bool
	maxChars      int
	logger        *zap.Logger
	now           func() time.Time
}

// Option configures the engine.
type Option func(*Engine)

// WithConversationStore sets the store the engine persists turns to before
// calling ApplyTurn. Without one, turns are not persisted by the engine.
func WithConversationStore(store memory.ConversationStore) Option {
	return func(e *Engine) {
		e.conversations = store
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) {
		e.systemPrompt = prompt
	}
}

// WithLegacyUpdate makes the engine call the deprecated Manager.Update, which
// persists the turn itself, instead of persisting and calling ApplyTurn.
func WithLegacyUpdate() Option {
	return func(e *Engine) {
		e.legacyUpdate = true
	}
}

// WithContextChars bounds the rendered long-term section of the prompt.
func WithContextChars(n int) Option {
	return func(e *Engine) {
		e.maxChars = n
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the clock used to timestamp persisted turns.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an engine around the given responder.
func New(responder Responder, opts ...Option) *Engine {
	e := &Engine{
		responder:    responder,
		systemPrompt: DefaultSystemPrompt,
		maxChars:     DefaultContextChars,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("engine")
	return e
}

// Input is one user turn.
type Input struct {
	// UserMessage is the user's message to process.
	UserMessage string

	// Progress receives step notifications. Optional.
	Progress ProgressFunc

	// OnDelta receives streamed response text. When set, the responder streams.
	OnDelta func(chunk string)
}

// Output is the result of a turn.
type Output struct {
	// Response is the assistant's reply.
	Response string

	// Context is the memory context the reply was generated with.
	Context core.MemoryContext

	// Persisted reports whether the engine wrote the turn to the conversation
	// store. It is always false with WithLegacyUpdate: Manager.Update writes
	// the turn itself and does not report the outcome.
	Persisted bool
}

// Run executes one turn. Only a responder failure is returned as an error;
// memory problems degrade the turn instead of failing it.
func (e *Engine) Run(ctx context.Context, mgr memory.Manager, input Input) (*Output, error) {
	if strings.TrimSpace(input.UserMessage) == "" {
		return nil, fmt.Errorf("empty user message")
	}
	notify := input.Progress.orNop()
	ns := mgr.Identity()
	logger := e.logger.With(zap.String("user_id", ns.UserID), zap.String("thread_id", ns.ThreadID))

	// === PHASE 1: RETRIEVE MEMORIES ===
	notify(StepMemory, StatusActive, "Loading conversation context and user profile...")
	mc := mgr.FetchContext(ctx, input.UserMessage)
	notify(StepMemory, StatusCompleted, LoadedDetail(mc))
	logger.Debug("memory context loaded", zap.String("summary", mc.Summary))

	// === PHASE 2: RESPOND ===
	notify(StepChat, StatusActive, "Generating response...")
	reply, err := e.responder.Respond(ctx, Request{
		System:      BuildSystemPrompt(e.systemPrompt, mc, e.maxChars),
		History:     mc.ShortTerm,
		UserMessage: input.UserMessage,
	}, input.OnDelta)
	if err != nil {
		notify(StepChat, StatusError, fmt.Sprintf("Response failed: %v", err))
		return nil, fmt.Errorf("respond: %w", err)
	}
	notify(StepChat, StatusCompleted, "Response generated")

	// === PHASE 3: RECORD ===
	notify(StepUpdate, StatusActive, "Saving conversation to memory system...")
	out := &Output{Response: reply, Context: mc}
	if e.legacyUpdate {
		mgr.Update(ctx, input.UserMessage, reply)
		notify(StepUpdate, StatusCompleted, "Memory updated")
		return out, nil
	}

	at := e.now().UTC()
	out.Persisted = e.persist(ctx, logger, ns, input.UserMessage, reply, at)
	mgr.ApplyTurnAt(ctx, input.UserMessage, reply, at)
	if out.Persisted {
		notify(StepUpdate, StatusCompleted, "Conversation saved to memory")
	} else {
		notify(StepUpdate, StatusCompleted, "Memory updated; conversation not persisted")
	}
	return out, nil
}

// persist appends the exchange to the conversation store.
func (e *Engine) persist(ctx context.Context, logger *zap.Logger, ns core.Namespace, userMessage, reply string, at time.Time) bool {
	if e.conversations == nil {
		return false
	}
	turns := core.NewTurnPair(userMessage, reply, at)
	if err := e.conversations.Append(ctx, ns.UserID, ns.ThreadID, turns...); err != nil {
		logger.Warn("failed to persist turn",
			zap.String("kind", memory.Classify(err)),
			zap.Error(err))
		return false
	}
	return true
}
