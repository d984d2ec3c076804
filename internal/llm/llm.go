package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/xeipuuv/gojsonschema"

	"github.com/pavelanni/examfix/internal/llm/prompts"
	"github.com/pavelanni/examfix/internal/model"
)

// verdictSchema describes the JSON object the model must return.
const verdictSchema = `{
	"type": "object",
	"required": ["isValid"],
	"properties": {
		"isValid": {"type": "boolean"},
		"reason": {"type": ["string", "null"]},
		"correctedQuestion": {
			"type": ["object", "null"],
			"properties": {
				"statement": {"type": ["string", "null"]},
				"options": {"type": ["array", "null"], "items": {"type": "string"}},
				"answer": {"type": ["string", "number", "null"]},
				"solution": {"type": ["string", "null"]}
			}
		}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(verdictSchema)

// ErrMalformedResponse is returned when the model's reply is not a valid verdict.
var ErrMalformedResponse = errors.New("malformed validation response")

// Config captures the runtime settings of the validation service.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Variant     string
	Temperature float32
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api         *openai.Client
	model       string
	variant     prompts.PromptVariant
	temperature float32
}

// New creates a new validation client.
func New(cfg Config) (*Client, error) {
	variant := prompts.PromptVariant(cfg.Variant)
	if cfg.Variant == "" {
		variant = prompts.PromptStandard
	}
	if !prompts.IsValidVariant(string(variant)) {
		return nil, fmt.Errorf("invalid prompt variant %q", cfg.Variant)
	}
	if err := prompts.Load(); err != nil {
		return nil, err
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:         openai.NewClientWithConfig(config),
		model:       cfg.Model,
		variant:     variant,
		temperature: cfg.Temperature,
	}, nil
}

// Ping checks that the endpoint answers a model listing.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Validate asks the model whether the question is correct and, if not, for a
// corrected version. Transport failures and unusable replies are returned as
// errors; the call is never retried.
func (c *Client) Validate(ctx context.Context, req model.ValidationRequest) (model.Verdict, error) {
	prompt, err := prompts.BuildValidatePrompt(c.variant, req)
	if err != nil {
		return model.Verdict{}, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: "Review the question and reply with the JSON object."},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return model.Verdict{}, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.Verdict{}, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("validation response", "raw", raw)
	return ParseVerdict(raw)
}

type rawVerdict struct {
	IsValid           bool           `json:"isValid"`
	Reason            *string        `json:"reason"`
	CorrectedQuestion *rawCorrection `json:"correctedQuestion"`
}

type rawCorrection struct {
	Statement *string         `json:"statement"`
	Options   *[]string       `json:"options"`
	Answer    json.RawMessage `json:"answer"`
	Solution  *string         `json:"solution"`
}

// ParseVerdict checks raw against the verdict schema and decodes it.
// An empty correctedQuestion object counts as no correction.
func ParseVerdict(raw string) (model.Verdict, error) {
	raw = stripCodeFence(raw)
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return model.Verdict{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return model.Verdict{}, fmt.Errorf("%w: %s", ErrMalformedResponse, strings.Join(msgs, "; "))
	}

	var rv rawVerdict
	if err := json.Unmarshal([]byte(raw), &rv); err != nil {
		return model.Verdict{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	v := model.Verdict{IsValid: rv.IsValid}
	if rv.Reason != nil {
		v.Reason = strings.TrimSpace(*rv.Reason)
	}
	if rv.CorrectedQuestion != nil {
		cr := rv.CorrectedQuestion.toCorrection()
		if !cr.IsEmpty() {
			v.Correction = &cr
		}
	}
	return v, nil
}

func (rc rawCorrection) toCorrection() model.Correction {
	var cr model.Correction
	if rc.Statement != nil && strings.TrimSpace(*rc.Statement) != "" {
		cr.Statement = model.Some(*rc.Statement)
	}
	if rc.Options != nil {
		cr.Options = model.Some(*rc.Options)
	}
	if a, ok := answerText(rc.Answer); ok {
		cr.Answer = model.Some(a)
	}
	if rc.Solution != nil {
		cr.Solution = model.Some(*rc.Solution)
	}
	return cr
}

// answerText accepts a JSON string or number; numbers keep their literal form.
func answerText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}

// stripCodeFence removes a ```json fence some models wrap around JSON output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
