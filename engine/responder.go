package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/nim-memory/core"
)

// Request is what the engine asks a Responder to answer.
type Request struct {
	// System is the system prompt, memory context included.
	System string

	// History holds the recent turns of the thread, oldest first.
	History []core.Turn

	// UserMessage is the message to answer.
	UserMessage string
}

// Responder generates the assistant's reply to one turn.
type Responder interface {
	// Respond returns the full reply. When onDelta is non-nil the reply is
	// also streamed to it as it is generated.
	Respond(ctx context.Context, req Request, onDelta func(chunk string)) (string, error)
}

// DefaultModel is the Claude model used when none is configured.
const DefaultModel = "claude-sonnet-4-5"

// ClaudeConfig holds ClaudeResponder configuration.
type ClaudeConfig struct {
	APIKey string

	// BaseURL overrides the API endpoint. Default: the public API.
	BaseURL string

	// Model defaults to DefaultModel.
	Model string

	// MaxTokens caps the response. Default: 4096
	MaxTokens int64
}

// ClaudeResponder answers turns with the Anthropic Messages API.
type ClaudeResponder struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

var _ Responder = (*ClaudeResponder)(nil)

// NewClaudeResponder creates a responder.
func NewClaudeResponder(config ClaudeConfig) (*ClaudeResponder, error) {
	if config.APIKey == "" {
		return nil, errors.New("claude responder requires an API key")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	return &ClaudeResponder{
		client:    anthropic.NewClient(opts...),
		model:     config.Model,
		maxTokens: config.MaxTokens,
	}, nil
}

// Respond calls Claude, streaming when onDelta is set.
func (r *ClaudeResponder) Respond(ctx context.Context, req Request, onDelta func(string)) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: r.maxTokens,
		Messages:  buildMessages(req.History, req.UserMessage),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	var (
		resp *anthropic.Message
		err  error
	)
	if onDelta != nil {
		resp, err = r.createMessageStreaming(ctx, params, onDelta)
	} else {
		resp, err = r.client.Messages.New(ctx, params)
	}
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}
	return responseText(resp), nil
}

func (r *ClaudeResponder) createMessageStreaming(ctx context.Context, params anthropic.MessageNewParams, onDelta func(string)) (*anthropic.Message, error) {
	stream := r.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("accumulate stream event: %w", err)
		}

		if evt, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if delta, ok := evt.Delta.AsAny().(anthropic.TextDelta); ok {
				onDelta(delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return &message, nil
}

func responseText(resp *anthropic.Message) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// buildMessages converts history plus the new message into the alternating
// user/assistant sequence the API requires. The sequence starts with a user
// message and consecutive turns of the same role are joined.
func buildMessages(history []core.Turn, userMessage string) []anthropic.MessageParam {
	type entry struct {
		role core.Role
		text string
	}
	var seq []entry
	add := func(role core.Role, text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		if len(seq) == 0 && role != core.RoleUser {
			return
		}
		if n := len(seq); n > 0 && seq[n-1].role == role {
			seq[n-1].text += "\n\n" + text
			return
		}
		seq = append(seq, entry{role: role, text: text})
	}
	for _, t := range history {
		add(t.Role, t.Content)
	}
	add(core.RoleUser, userMessage)

	messages := make([]anthropic.MessageParam, 0, len(seq))
	for _, e := range seq {
		block := anthropic.NewTextBlock(e.text)
		if e.role == core.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	return messages
}
