// Package genai turns utterances into structured intent documents using
// the OpenAI chat completion API.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/OpenVoxLab/VoxPilot/internal/models"
)

// ErrNoChoicesReturned indicates the completion API returned an empty
// choice list.
var ErrNoChoicesReturned = errors.New("no choices returned")

// fallbackResponse is spoken when the model's output cannot be parsed.
const fallbackResponse = "I understand, Commander, but I'm not sure how to execute that command."

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// chatAdapter bridges the real completion service to chatService.
type chatAdapter struct {
	svc openai.ChatCompletionService
}

func (a chatAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds client configuration.
type Opts struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
}

// Option configures the client.
type Option func(*Opts)

// WithAPIKey sets the API key explicitly instead of reading
// OPENAI_API_KEY.
func WithAPIKey(key string) Option { return func(o *Opts) { o.APIKey = key } }

// WithModel overrides the completion model.
func WithModel(model string) Option { return func(o *Opts) { o.Model = model } }

// WithBaseURL points the client at a different completion endpoint,
// e.g. a local OpenAI-compatible server.
func WithBaseURL(url string) Option { return func(o *Opts) { o.BaseURL = url } }

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option { return func(o *Opts) { o.Temperature = t } }

// Client wraps the chat completion service for intent interpretation.
type Client struct {
	chat        chatService
	model       string
	temperature float64
}

// NewClient initializes a completion client. The API key comes from
// WithAPIKey or the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Temperature: 0.7}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	return &Client{chat: chatAdapter{svc: cli.Chat.Completions}, model: cfg.Model, temperature: cfg.Temperature}, nil
}

// CompleteIntent sends the utterance, recent conversation turns, and
// the keybind menu to the completion service and returns the parsed
// intent document. Output that is not valid JSON degrades to a
// speak_only document rather than failing.
func (c *Client) CompleteIntent(ctx context.Context, utterance string, history []models.ConversationTurn, menu string) (map[string]any, error) {
	system := buildSystemPrompt(menu) + historyLines(history)
	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Temperature: openai.Float(c.temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(utterance),
		},
	}

	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("Client CompleteIntent request failed", "error", err)
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoicesReturned
	}

	doc := parseIntentDoc(resp.Choices[0].Message.Content)
	slog.Info("Client CompleteIntent parsed", "action", doc["action"])
	return doc, nil
}

// parseIntentDoc extracts a JSON object from model output, tolerating
// markdown fences and surrounding prose.
func parseIntentDoc(text string) map[string]any {
	text = strings.TrimSpace(text)

	var doc map[string]any
	if err := json.Unmarshal([]byte(text), &doc); err == nil {
		return doc
	}

	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			if err := json.Unmarshal([]byte(strings.TrimSpace(rest[:end])), &doc); err == nil {
				return doc
			}
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &doc); err == nil {
			return doc
		}
	}

	slog.Warn("Client intent JSON parse failed", "text", truncate(text, 100))
	return map[string]any{
		"action":   string(models.CommandSpeakOnly),
		"response": fallbackResponse,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
