// Package llm wraps the OpenAI API behind the domain capability interfaces,
// adding rate limiting and bounded retry with exponential backoff.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"aquabot/internal/domain"
	"aquabot/internal/metrics"
)

const (
	maxAttempts           = 4
	baseBackoff           = time.Second
	defaultChatModel      = openai.GPT4o
	defaultEmbeddingModel = string(openai.SmallEmbedding3)
)

// Client implements domain.Completer, domain.Embedder, and domain.Transcriber.
type Client struct {
	api            *openai.Client
	chatModel      string
	embeddingModel string
	limiter        *RateLimiter
	logger         *slog.Logger
}

type ClientConfig struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	RatePerMinute  int
	Logger         *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.ChatModel == "" {
		cfg.ChatModel = defaultChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = defaultEmbeddingModel
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 30
	}
	return &Client{
		api:            openai.NewClient(cfg.APIKey),
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		limiter:        NewRateLimiter(5, float64(cfg.RatePerMinute)),
		logger:         cfg.Logger,
	}
}

// Complete runs a plain system+user exchange and returns the reply text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	result, err := c.Chat(ctx, []domain.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, nil)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// Chat runs a multi-turn exchange, optionally exposing callable functions.
func (c *Client) Chat(ctx context.Context, messages []domain.ChatMessage, functions []domain.FunctionDef) (*domain.ChatResult, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: toOpenAIMessages(messages),
	}
	if len(functions) > 0 {
		defs := make([]openai.FunctionDefinition, len(functions))
		for i, f := range functions {
			defs[i] = openai.FunctionDefinition{
				Name:        f.Name,
				Description: f.Description,
				Parameters:  f.Parameters,
			}
		}
		req.Functions = defs
		req.FunctionCall = "auto"
	}

	var resp openai.ChatCompletionResponse
	err := c.withRetry(ctx, "chat", func() error {
		var callErr error
		resp, callErr = c.api.CreateChatCompletion(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm: empty choices")
	}

	choice := resp.Choices[0].Message
	result := &domain.ChatResult{Content: choice.Content}
	if choice.FunctionCall != nil {
		result.FunctionCall = &domain.FunctionCall{
			Name:      choice.FunctionCall.Name,
			Arguments: choice.FunctionCall.Arguments,
		}
	}
	return result, nil
}

// Embed converts texts to embedding vectors.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var resp openai.EmbeddingResponse
	err := c.withRetry(ctx, "embeddings", func() error {
		var callErr error
		resp, callErr = c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(c.embeddingModel),
		})
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("llm: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}
	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// Transcribe converts a voice-note payload to text via Whisper.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var resp openai.AudioResponse
	err := c.withRetry(ctx, "transcription", func() error {
		var callErr error
		resp, callErr = c.api.CreateTranscription(ctx, openai.AudioRequest{
			Model:    openai.Whisper1,
			FilePath: "voice.ogg",
			Reader:   bytes.NewReader(audio),
		})
		return callErr
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// withRetry runs call with rate limiting and exponential backoff on
// transient errors (429, 5xx, transport failures). Gives up after
// maxAttempts and returns the last error.
func (c *Client) withRetry(ctx context.Context, op string, call func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			// Base delay doubles each retry, with jitter.
			backoff := baseBackoff << (attempt - 1)
			backoff += time.Duration(rand.Int63n(int64(backoff / 2)))
			c.logger.Warn("retrying llm call", "op", op, "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		metrics.LLMRequestsTotal.Inc()
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		c.logger.Warn("llm call failed", "op", op, "error", lastErr)
	}
	return fmt.Errorf("llm %s failed after %d attempts: %w", op, maxAttempts, lastErr)
}

// retryable reports whether an OpenAI error is transient: rate limits,
// server errors, and transport-level failures.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	// Transport error with no HTTP status.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func toOpenAIMessages(messages []domain.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Name:    m.Name,
			Content: m.Content,
		}
	}
	return out
}
