// Package claude extracts personal facts from user messages with Claude.
//
// The model is forced to call the record_user_facts tool, so the facts arrive
// as structured tool input rather than free text. A JSON object in a text
// block is accepted as a fallback.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/tools"
)

// DefaultModel is a small, fast model suited to extraction.
const DefaultModel = "claude-haiku-4-5"

const systemPrompt = "You are an assistant that extracts personal user information. " +
	"Only record facts the user states about themselves. Never invent facts."

// Config holds Extractor configuration.
type Config struct {
	APIKey string

	// BaseURL overrides the API endpoint. Default: the public API.
	BaseURL string

	// Model defaults to DefaultModel.
	Model string

	// MaxTokens caps the response. Default: 512
	MaxTokens int64

	// RequestsPerSecond throttles extraction calls. Zero disables throttling.
	RequestsPerSecond float64

	// Burst is the limiter bucket size. Default: 1
	Burst int
}

// Extractor implements memory.FactExtractor on the Anthropic Messages API.
type Extractor struct {
	client  anthropic.Client
	config  Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ memory.FactExtractor = (*Extractor)(nil)

// New creates an extractor. The client never retries; a failed extraction is
// skipped by the caller.
func New(config Config, logger *zap.Logger) (*Extractor, error) {
	if config.APIKey == "" {
		return nil, errors.New("claude extractor requires an API key")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 512
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	e := &Extractor{
		client: anthropic.NewClient(opts...),
		config: config,
		logger: logger.Named("claude_extractor"),
	}
	if config.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst)
	}
	return e, nil
}

// Extract returns the facts stated in text. Blank text yields no facts
// without calling the API.
func (e *Extractor) Extract(ctx context.Context, text string) (map[string]string, error) {
	if strings.TrimSpace(text) == "" {
		return map[string]string{}, nil
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("claude extractor rate limit: %w", err)
		}
	}

	msg, err := e.client.Messages.New(ctx, e.params(text))
	if err != nil {
		return nil, classifyAPIError(err)
	}

	facts, err := parseFacts(msg)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("extracted facts", zap.Int("count", len(facts)))
	return facts, nil
}

func (e *Extractor) params(text string) anthropic.MessageNewParams {
	def := tools.RecordUserFacts
	return anthropic.MessageNewParams{
		Model:       anthropic.Model(e.config.Model),
		MaxTokens:   e.config.MaxTokens,
		Temperature: param.NewOpt(0.0),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(
				"Extract any personal profile information and relevant facts from the following text. " +
					"If there is none, record an empty object.\n\nText: " + text,
			)),
		},
		Tools: []anthropic.ToolUnionParam{{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: param.NewOpt(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: def.Properties(),
					Required:   def.Required(),
				},
			},
		}},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: def.Name},
		},
	}
}

// parseFacts reads the tool call, or failing that a JSON object in text.
func parseFacts(msg *anthropic.Message) (map[string]string, error) {
	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "tool_use":
			if block.Name != tools.RecordUserFactsName {
				continue
			}
			facts, err := tools.DecodeFacts(block.Input)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", memory.ErrExtractionFailure, err)
			}
			return facts, nil
		case "text":
			text.WriteString(block.Text)
		}
	}
	return parseTextFacts(text.String())
}

// parseTextFacts accepts {"facts": {...}} or a flat object.
func parseTextFacts(text string) (map[string]string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no facts in model output", memory.ErrExtractionFailure)
	}
	body := json.RawMessage(text[start : end+1])

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", memory.ErrExtractionFailure, err)
	}
	if _, wrapped := probe["facts"]; !wrapped {
		body, _ = json.Marshal(map[string]json.RawMessage{"facts": body})
	}

	facts, err := tools.DecodeFacts(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memory.ErrExtractionFailure, err)
	}
	return facts, nil
}

// classifyAPIError marks transport failures, throttling and server errors as
// unavailability.
func classifyAPIError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: claude: %v", memory.ErrBackendUnavailable, err)
		}
		return fmt.Errorf("claude: %w", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: claude: %v", memory.ErrBackendUnavailable, err)
}
