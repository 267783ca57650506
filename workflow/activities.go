package workflow

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/memory"
)

// Session identifies the (user, thread) pair an activity works on.
type Session struct {
	UserID   string
	ThreadID string
}

func (s Session) namespace() core.Namespace {
	return core.Namespace{UserID: s.UserID, ThreadID: s.ThreadID}
}

// FetchContextInput is the input of Activities.FetchContext.
type FetchContextInput struct {
	Session Session
	Query   string
}

// RespondInput is the input of Activities.Respond.
type RespondInput struct {
	Context core.MemoryContext
	Message string
}

// TurnRecord is one completed exchange.
type TurnRecord struct {
	Session     Session
	UserMessage string
	Response    string
	Timestamp   time.Time
}

// Activities holds the dependencies of the turn activities. Managers are
// kept per session so the short-term cache survives across turns handled by
// the same worker.
type Activities struct {
	sessions      *memory.Sessions
	responder     engine.Responder
	conversations memory.ConversationStore
	systemPrompt  string
	logger        *zap.Logger
}

// ActivitiesConfig configures NewActivities.
type ActivitiesConfig struct {
	Sessions      *memory.Sessions
	Responder     engine.Responder
	Conversations memory.ConversationStore
	SystemPrompt  string
	Logger        *zap.Logger
}

// NewActivities creates the activity set.
func NewActivities(config ActivitiesConfig) *Activities {
	if config.SystemPrompt == "" {
		config.SystemPrompt = engine.DefaultSystemPrompt
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Activities{
		sessions:      config.Sessions,
		responder:     config.Responder,
		conversations: config.Conversations,
		systemPrompt:  config.SystemPrompt,
		logger:        config.Logger.Named("activities"),
	}
}

// Register registers TurnWorkflow and the activities on w.
func Register(w worker.Worker, a *Activities) {
	w.RegisterWorkflow(TurnWorkflow)
	w.RegisterActivity(a)
}

// FetchContext returns the fused memory context for the session.
func (a *Activities) FetchContext(ctx context.Context, in FetchContextInput) (core.MemoryContext, error) {
	mgr := a.sessions.Get(ctx, in.Session.namespace())
	return mgr.FetchContext(ctx, in.Query), nil
}

// Respond generates the reply without streaming.
func (a *Activities) Respond(ctx context.Context, in RespondInput) (string, error) {
	return a.responder.Respond(ctx, engine.Request{
		System:      engine.BuildSystemPrompt(a.systemPrompt, in.Context, engine.DefaultContextChars),
		History:     in.Context.ShortTerm,
		UserMessage: in.Message,
	}, nil)
}

// RecordTurn appends the exchange to the conversation store.
func (a *Activities) RecordTurn(ctx context.Context, rec TurnRecord) error {
	if a.conversations == nil {
		return temporal.NewNonRetryableApplicationError("no conversation store configured", "NoConversationStore", nil)
	}
	turns := core.NewTurnPair(rec.UserMessage, rec.Response, rec.Timestamp)
	if err := a.conversations.Append(ctx, rec.Session.UserID, rec.Session.ThreadID, turns...); err != nil {
		a.logger.Warn("record turn failed",
			zap.String("user_id", rec.Session.UserID),
			zap.String("thread_id", rec.Session.ThreadID),
			zap.Error(err))
		if !errors.Is(err, memory.ErrBackendUnavailable) {
			return temporal.NewNonRetryableApplicationError(err.Error(), "RecordTurnFailed", err)
		}
		return err
	}
	return nil
}

// ApplyTurn updates memory with the exchange. It fails soft, so it only
// returns an error when the context is done.
func (a *Activities) ApplyTurn(ctx context.Context, rec TurnRecord) error {
	mgr := a.sessions.Get(ctx, rec.Session.namespace())
	mgr.ApplyTurnAt(ctx, rec.UserMessage, rec.Response, rec.Timestamp)
	return ctx.Err()
}
