// Package llm is the gateway to the hosted classification model. It owns the
// per-call timeout, the bounded retry policy, and the concurrency limit that
// keeps simultaneous uploads from flooding the model API.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/panjf2000/ants/v2"

	"github.com/freelancer-expense-classifier/internal/config"
)

// Gateway performs one model completion: a system prompt plus a user prompt
// in, raw response text out. Errors are *GatewayError values.
type Gateway interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Delay between a throttled or failed attempt and its retry
const retryDelay = 500 * time.Millisecond

// AnthropicGateway calls the Anthropic Messages API. All calls across all
// uploads are funneled through one worker pool so at most MaxConcurrent
// requests are in flight.
type AnthropicGateway struct {
	client anthropic.Client
	cfg    config.LLMConfig
	pool   *ants.Pool
	logger *slog.Logger

	// call performs one API request; swapped out in tests
	call func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// NewAnthropicGateway creates the model gateway and its worker pool
func NewAnthropicGateway(logger *slog.Logger, cfg config.LLMConfig) (*AnthropicGateway, error) {
	pool, err := ants.NewPool(cfg.MaxConcurrent)
	if err != nil {
		return nil, err
	}

	g := &AnthropicGateway{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg:    cfg,
		pool:   pool,
		logger: logger,
	}
	g.call = g.completeOnce
	return g, nil
}

// Complete runs one model call through the worker pool, with the configured
// per-call timeout and at most MaxRetries extra attempts on throttling or
// upstream failures. It blocks until a pool slot frees up.
func (g *AnthropicGateway) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	type completion struct {
		text string
		err  error
	}
	resultChan := make(chan completion, 1)

	err := g.pool.Submit(func() {
		text, err := g.completeWithRetry(ctx, systemPrompt, userPrompt)
		resultChan <- completion{text: text, err: err}
	})
	if err != nil {
		g.logger.Error("Failed to submit model call to worker pool", "error", err)
		return "", &GatewayError{Kind: KindService, Err: err}
	}

	select {
	case res := <-resultChan:
		return res.text, res.err
	case <-ctx.Done():
		return "", &GatewayError{Kind: KindTimeout, Err: ctx.Err()}
	}
}

func (g *AnthropicGateway) completeWithRetry(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var lastErr *GatewayError

	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("Retrying model call",
				"attempt", attempt,
				"kind", lastErr.Kind,
				"error", lastErr.Err)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return "", &GatewayError{Kind: KindTimeout, Err: ctx.Err()}
			}
		}

		text, err := g.call(ctx, systemPrompt, userPrompt)
		if err == nil {
			return text, nil
		}

		gwErr := classify(err)
		if !gwErr.retryable() {
			return "", gwErr
		}
		lastErr = gwErr
	}

	return "", lastErr
}

func (g *AnthropicGateway) completeOnce(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	started := time.Now()
	message, err := g.client.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.cfg.Model),
		MaxTokens: g.cfg.MaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", err
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			g.logger.Debug("Model call completed",
				"duration_ms", time.Since(started).Milliseconds(),
				"input_tokens", message.Usage.InputTokens,
				"output_tokens", message.Usage.OutputTokens)
			return block.Text, nil
		}
	}
	return "", errors.New("no text content in model response")
}

// Shutdown releases the worker pool
func (g *AnthropicGateway) Shutdown() {
	g.logger.Info("Shutting down model gateway", "running_workers", g.pool.Running())
	g.pool.Release()
}

// classify maps SDK and transport errors onto the gateway error taxonomy
func classify(err error) *GatewayError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &GatewayError{Kind: KindTimeout, Err: err}
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &GatewayError{Kind: KindAuth, Err: err}
		case http.StatusTooManyRequests:
			return &GatewayError{Kind: KindRateLimited, Err: err}
		default:
			return &GatewayError{Kind: KindService, Err: err}
		}
	}

	return &GatewayError{Kind: KindService, Err: err}
}
