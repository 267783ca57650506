package claude

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory"
)

func messageJSON(content string) string {
	return `{"id":"msg_01","type":"message","role":"assistant","model":"claude-haiku-4-5",` +
		`"content":` + content + `,"stop_reason":"tool_use","stop_sequence":null,` +
		`"usage":{"input_tokens":12,"output_tokens":7}}`
}

type fakeAPI struct {
	status int
	body   string
	calls  atomic.Int32

	mu   sync.Mutex
	last map[string]any
}

func (f *fakeAPI) lastRequest() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	if r.URL.Path != "/v1/messages" {
		http.NotFound(w, r)
		return
	}
	raw, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	_ = json.Unmarshal(raw, &f.last)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_, _ = io.WriteString(w, f.body)
}

func newTestExtractor(t *testing.T, api *fakeAPI) *Extractor {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	e, err := New(Config{APIKey: "test-key", BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	return e
}

func TestExtract_ToolUse(t *testing.T) {
	api := &fakeAPI{status: http.StatusOK, body: messageJSON(
		`[{"type":"tool_use","id":"toolu_01","name":"record_user_facts",` +
			`"input":{"facts":{"name":"John","occupation":"software engineer","location":"San Francisco"}}}]`)}
	e := newTestExtractor(t, api)

	facts, err := e.Extract(context.Background(), "I'm John, a software engineer from San Francisco")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"name":       "John",
		"occupation": "software engineer",
		"location":   "San Francisco",
	}, facts)

	req := api.lastRequest()
	require.NotNil(t, req)
	assert.Equal(t, DefaultModel, req["model"])
	assert.EqualValues(t, 0, req["temperature"])
	choice := req["tool_choice"].(map[string]any)
	assert.Equal(t, "tool", choice["type"])
	assert.Equal(t, "record_user_facts", choice["name"])
}

func TestExtract_TextFallback(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string]string
	}{
		{name: "flat", text: `Here you go: {"name": "Ana"}`, want: map[string]string{"name": "Ana"}},
		{name: "wrapped", text: `{"facts": {"city": "Lisbon"}}`, want: map[string]string{"city": "Lisbon"}},
		{name: "empty", text: `{}`, want: map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, _ := json.Marshal([]map[string]string{{"type": "text", "text": tt.text}})
			e := newTestExtractor(t, &fakeAPI{status: http.StatusOK, body: messageJSON(string(content))})

			facts, err := e.Extract(context.Background(), "hello")
			require.NoError(t, err)
			assert.Equal(t, tt.want, facts)
		})
	}
}

func TestExtract_MalformedOutput(t *testing.T) {
	e := newTestExtractor(t, &fakeAPI{status: http.StatusOK, body: messageJSON(`[{"type":"text","text":"no idea"}]`)})

	_, err := e.Extract(context.Background(), "I'm John")
	assert.ErrorIs(t, err, memory.ErrExtractionFailure)
}

func TestExtract_APIErrors(t *testing.T) {
	errBody := `{"type":"error","error":{"type":"api_error","message":"nope"}}`

	t.Run("server error is unavailability", func(t *testing.T) {
		api := &fakeAPI{status: http.StatusInternalServerError, body: errBody}
		e := newTestExtractor(t, api)

		_, err := e.Extract(context.Background(), "I'm John")
		assert.ErrorIs(t, err, memory.ErrBackendUnavailable)
		assert.EqualValues(t, 1, api.calls.Load(), "no retries")
	})

	t.Run("bad request is not", func(t *testing.T) {
		e := newTestExtractor(t, &fakeAPI{status: http.StatusBadRequest, body: errBody})

		_, err := e.Extract(context.Background(), "I'm John")
		require.Error(t, err)
		assert.NotErrorIs(t, err, memory.ErrBackendUnavailable)
	})
}

func TestExtract_BlankTextSkipsAPI(t *testing.T) {
	api := &fakeAPI{status: http.StatusOK}
	e := newTestExtractor(t, api)

	facts, err := e.Extract(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, facts)
	assert.Zero(t, api.calls.Load())
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}
