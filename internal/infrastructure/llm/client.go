// Package llm talks to the hosted chat completion API that rewrites product
// copy.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/shoprewrite/backend/internal/domain"
	"github.com/shoprewrite/backend/internal/infrastructure/metrics"
	"github.com/shoprewrite/backend/internal/infrastructure/retry"
)

const service = "llm"

// Config holds configuration for the text generation client
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// StructuredOutput asks for a strict JSON object instead of labeled text
	StructuredOutput bool

	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Client handles communication with the chat completion API
type Client struct {
	api     *openai.Client
	config  Config
	policy  retry.Policy
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewClient creates a new text generation client
func NewClient(cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}

	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	apiConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	c := &Client{
		api:     openai.NewClientWithConfig(apiConfig),
		config:  cfg,
		metrics: m,
		logger:  logger,
	}
	c.policy = retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Retryable:   isTransient,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			c.metrics.IncRetry(service)
			c.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying completion")
		},
	}
	return c
}

// Generate sends one system and user prompt pair and returns the reply text.
// 429, 5xx and transport failures are retried with backoff; any other
// status and undecodable replies fail immediately.
func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.config.Model
	}

	chat := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		Temperature: float32(req.Temperature),
		MaxTokens:   c.config.MaxTokens,
	}
	if c.config.StructuredOutput {
		chat.ResponseFormat = rewriteResponseFormat()
	}

	var content string
	attempts, err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		start := time.Now()
		resp, err := c.api.CreateChatCompletion(ctx, chat)
		if err != nil {
			c.metrics.ObserveRequest(service, "error", time.Since(start))
			code := statusCode(err)
			if code == 0 && ctx.Err() == nil && !domain.IsTransportError(err) {
				// 2xx with a body the SDK could not decode
				err = fmt.Errorf("%w: %w", domain.ErrMalformedResponse, err)
			}
			return &domain.GenerationError{StatusCode: code, Err: err}
		}
		c.metrics.ObserveRequest(service, "ok", time.Since(start))

		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return &domain.GenerationError{StatusCode: http.StatusOK, Err: domain.ErrEmptyCompletion}
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		var genErr *domain.GenerationError
		if errors.As(err, &genErr) {
			genErr.Attempts = attempts
			return "", genErr
		}
		return "", &domain.GenerationError{Attempts: attempts, Err: err}
	}

	c.logger.Debug().Str("model", model).Int("attempts", attempts).Int("chars", len(content)).Msg("completion received")
	return content, nil
}

func isTransient(err error) bool {
	var genErr *domain.GenerationError
	if errors.As(err, &genErr) {
		if errors.Is(genErr.Err, domain.ErrEmptyCompletion) {
			return false
		}
		return genErr.Temporary()
	}
	return false
}

// statusCode extracts the HTTP status from an API error, 0 when there is none
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func rewriteResponseFormat() *openai.ChatCompletionResponseFormat {
	text := jsonschema.Definition{Type: jsonschema.String}
	return &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name: "product_rewrite",
			Schema: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"title":            text,
					"body":             text,
					"meta_title":       text,
					"meta_description": text,
				},
				Required:             []string{"title", "body", "meta_title", "meta_description"},
				AdditionalProperties: false,
			},
			Strict: true,
		},
	}
}
