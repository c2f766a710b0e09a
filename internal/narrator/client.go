// Package narrator calls an OpenAI-compatible chat completion endpoint to
// narrate scene resolutions.
package narrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/taleforge/sceneengine/internal/domain"
	"github.com/taleforge/sceneengine/internal/gateway"
)

const defaultInstructions = "You are the narrator of a shared tabletop story. " +
	"Reply with a single JSON object containing scene_text, an optional time_passage, " +
	"and world_updates describing every change to the world."

// Config configures the narrator client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// Timeout bounds a single HTTP request. The orchestrator enforces its own deadline too.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client implements gateway.Narrator over the chat completions API.
type Client struct {
	api    openai.Client
	model  string
	logger *slog.Logger
}

var _ gateway.Narrator = (*Client)(nil)

// New creates a Client. Retries are left to the gateway's breaker.
func New(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, domain.NewEngineError(domain.ErrConfigInvalid, "narrator model is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: openai.NewClient(opts...), model: cfg.Model, logger: logger}, nil
}

// Narrate sends req as the user message and returns the raw reply.
func (c *Client) Narrate(ctx context.Context, req domain.NarratorRequest) (*gateway.Completion, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, domain.Wrap(domain.ErrNarratorPayload, fmt.Errorf("marshal request: %w", err))
	}

	system := defaultInstructions
	if p := strings.TrimSpace(req.AISystemPrompt); p != "" {
		system = p + "\n\n" + defaultInstructions
	}

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(string(body)),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, domain.Wrap(domain.ErrNarratorStatus, fmt.Errorf("status %d: %w", apiErr.StatusCode, err))
		}
		return nil, domain.Wrap(domain.ErrNarratorCall, err)
	}
	if len(resp.Choices) == 0 {
		return nil, domain.NewEngineError(domain.ErrNarratorPayload, "narrator returned no choices")
	}

	c.logger.Debug("narrator replied",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return &gateway.Completion{
		Raw:          []byte(stripFence(resp.Choices[0].Message.Content)),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
	}, nil
}

// stripFence removes a surrounding markdown code fence, if any.
func stripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```")
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[i+1:]
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
