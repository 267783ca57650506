// Package workflow runs chat turns as Temporal workflows so a turn survives
// worker restarts between the model call and the memory writes.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/becomeliminal/nim-memory/core"
)

// TaskQueue is the default task queue for turn workflows.
const TaskQueue = "nimmem-turns"

// TurnInput starts a TurnWorkflow.
type TurnInput struct {
	UserID   string
	ThreadID string
	Message  string
}

// TurnResult is returned by a TurnWorkflow.
type TurnResult struct {
	Response string
	Summary  string

	// Persisted is false when RecordTurn failed. Memory was still updated.
	Persisted bool
}

// TurnWorkflow runs one chat turn:
// 1. FetchContext loads the fused memory context
// 2. Respond generates the reply
// 3. RecordTurn appends the exchange to the conversation store
// 4. ApplyTurn updates the semantic index, facts and short-term cache
//
// A RecordTurn failure is logged and reported in the result; it does not
// fail the workflow.
func TurnWorkflow(ctx workflow.Context, in TurnInput) (*TurnResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting turn", "user_id", in.UserID, "thread_id", in.ThreadID)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})

	var a *Activities
	session := Session{UserID: in.UserID, ThreadID: in.ThreadID}

	var mc core.MemoryContext
	err := workflow.ExecuteActivity(ctx, a.FetchContext, FetchContextInput{
		Session: session,
		Query:   in.Message,
	}).Get(ctx, &mc)
	if err != nil {
		return nil, fmt.Errorf("fetch context: %w", err)
	}

	var reply string
	err = workflow.ExecuteActivity(ctx, a.Respond, RespondInput{
		Context: mc,
		Message: in.Message,
	}).Get(ctx, &reply)
	if err != nil {
		return nil, fmt.Errorf("respond: %w", err)
	}

	record := TurnRecord{
		Session:     session,
		UserMessage: in.Message,
		Response:    reply,
		Timestamp:   workflow.Now(ctx).UTC(),
	}
	result := &TurnResult{Response: reply, Summary: mc.Summary, Persisted: true}

	if err := workflow.ExecuteActivity(ctx, a.RecordTurn, record).Get(ctx, nil); err != nil {
		logger.Warn("Turn not persisted", "error", err)
		result.Persisted = false
	}
	if err := workflow.ExecuteActivity(ctx, a.ApplyTurn, record).Get(ctx, nil); err != nil {
		return nil, fmt.Errorf("apply turn: %w", err)
	}

	logger.Info("Turn complete", "persisted", result.Persisted)
	return result, nil
}

// Execute starts a TurnWorkflow on taskQueue and waits for its result.
func Execute(ctx context.Context, c client.Client, taskQueue string, in TurnInput) (*TurnResult, error) {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("turn-%s-%s", core.Namespace{UserID: in.UserID, ThreadID: in.ThreadID}.Key(), uuid.NewString()),
		TaskQueue: taskQueue,
	}, TurnWorkflow, in)
	if err != nil {
		return nil, fmt.Errorf("start turn workflow: %w", err)
	}

	var result TurnResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("turn workflow %s: %w", run.GetID(), err)
	}
	return &result, nil
}
