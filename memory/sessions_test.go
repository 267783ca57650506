package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

func TestSessions_OneManagerPerNamespace(t *testing.T) {
	ctx := context.Background()
	built := 0
	sessions := memory.NewSessions(func(ctx context.Context, ns core.Namespace) memory.Manager {
		built++
		return memory.NewFallbackManager(ns)
	})

	a := sessions.Get(ctx, session)
	b := sessions.Get(ctx, session)
	c := sessions.Get(ctx, core.Namespace{UserID: "user123", ThreadID: "thread2"})

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, built)
	assert.Equal(t, 2, sessions.Len())

	sessions.Forget(session)
	assert.Equal(t, 1, sessions.Len())
	assert.NotSame(t, a, sessions.Get(ctx, session))
	assert.Equal(t, 3, built)
}
