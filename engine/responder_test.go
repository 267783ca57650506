package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/core"
)

type fakeMessagesAPI struct {
	mu   sync.Mutex
	last map[string]any
}

func (f *fakeMessagesAPI) lastRequest() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeMessagesAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)
	f.mu.Lock()
	f.last = body
	f.mu.Unlock()

	if stream, _ := body["stream"].(bool); stream {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseBody)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"id":"msg_01","type":"message","role":"assistant","model":"claude-sonnet-4-5",`+
		`"content":[{"type":"text","text":"Hello John"}],"stop_reason":"end_turn","stop_sequence":null,`+
		`"usage":{"input_tokens":10,"output_tokens":3}}`)
}

var sseBody = strings.Join([]string{
	"event: message_start",
	`data: {"type":"message_start","message":{"id":"msg_02","type":"message","role":"assistant","model":"claude-sonnet-4-5","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}}}`,
	"",
	"event: content_block_start",
	`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
	"",
	"event: content_block_delta",
	`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`,
	"",
	"event: content_block_delta",
	`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" John"}}`,
	"",
	"event: content_block_stop",
	`data: {"type":"content_block_stop","index":0}`,
	"",
	"event: message_delta",
	`data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":3}}`,
	"",
	"event: message_stop",
	`data: {"type":"message_stop"}`,
	"",
	"",
}, "\n")

func newTestResponder(t *testing.T) (*ClaudeResponder, *fakeMessagesAPI) {
	t.Helper()
	api := &fakeMessagesAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	r, err := NewClaudeResponder(ClaudeConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	return r, api
}

func TestClaudeResponder_Respond(t *testing.T) {
	r, api := newTestResponder(t)

	reply, err := r.Respond(context.Background(), Request{
		System:      "be nice",
		History:     core.NewTurnPair("I'm John", "Hi John", testTime),
		UserMessage: "What's my name?",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello John", reply)

	req := api.lastRequest()
	assert.Equal(t, DefaultModel, req["model"])
	messages, ok := req["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 3)
	system, ok := req["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	assert.Equal(t, "be nice", system[0].(map[string]any)["text"])
}

func TestClaudeResponder_Streaming(t *testing.T) {
	r, _ := newTestResponder(t)

	var chunks []string
	reply, err := r.Respond(context.Background(), Request{UserMessage: "hi"}, func(c string) {
		chunks = append(chunks, c)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", " John"}, chunks)
	assert.Equal(t, "Hello John", reply)
}

func TestNewClaudeResponder_RequiresAPIKey(t *testing.T) {
	_, err := NewClaudeResponder(ClaudeConfig{})
	assert.Error(t, err)
}

func TestBuildMessages(t *testing.T) {
	tests := []struct {
		name    string
		history []core.Turn
		want    []anthropic.MessageParamRole
	}{
		{
			name: "empty history",
			want: []anthropic.MessageParamRole{anthropic.MessageParamRoleUser},
		},
		{
			name:    "alternating",
			history: core.NewTurnPair("a", "b", testTime),
			want:    []anthropic.MessageParamRole{anthropic.MessageParamRoleUser, anthropic.MessageParamRoleAssistant, anthropic.MessageParamRoleUser},
		},
		{
			name: "leading assistant dropped",
			history: []core.Turn{
				{Role: core.RoleAssistant, Content: "welcome"},
				{Role: core.RoleUser, Content: "a"},
				{Role: core.RoleAssistant, Content: "b"},
			},
			want: []anthropic.MessageParamRole{anthropic.MessageParamRoleUser, anthropic.MessageParamRoleAssistant, anthropic.MessageParamRoleUser},
		},
		{
			name: "trailing user merged with new message",
			history: []core.Turn{
				{Role: core.RoleUser, Content: "a"},
				{Role: core.RoleAssistant, Content: ""},
				{Role: core.RoleUser, Content: "c"},
			},
			want: []anthropic.MessageParamRole{anthropic.MessageParamRoleUser},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildMessages(tt.history, "new")
			roles := make([]anthropic.MessageParamRole, len(got))
			for i, m := range got {
				roles[i] = m.Role
			}
			assert.Equal(t, tt.want, roles)
		})
	}
}
