package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config configures the Azure OpenAI adapter.
type Config struct {
	Endpoint             string        `json:"endpoint" yaml:"endpoint"`
	APIKey               string        `json:"api_key" yaml:"api_key"`
	APIVersion           string        `json:"api_version" yaml:"api_version"`
	ChatDeployment       string        `json:"chat_deployment" yaml:"chat_deployment"`
	EmbeddingsDeployment string        `json:"embeddings_deployment" yaml:"embeddings_deployment"`
	RequestTimeout       time.Duration `json:"request_timeout" yaml:"request_timeout"`
	MaxRetries           int           `json:"max_retries" yaml:"max_retries"`
	BackoffBase          time.Duration `json:"backoff_base" yaml:"backoff_base"`

	// Optional telemetry hooks.
	OnResult Hook `json:"-" yaml:"-"`
	OnError  Hook `json:"-" yaml:"-"`
}

// AzureClient talks to Azure OpenAI deployments over REST. It implements
// both ChatClient and EmbeddingsClient.
type AzureClient struct {
	cfg    Config
	client *http.Client
}

// NewAzure creates an Azure OpenAI client. Zero config fields fall back
// to: api-version 2024-10-21, 30s timeout, 3 retries, 600ms backoff base.
func NewAzure(cfg Config) *AzureClient {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-10-21"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 600 * time.Millisecond
	}
	return &AzureClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

type chatCompletionRequest struct {
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Chat sends a chat completion to the configured chat deployment.
func (c *AzureClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	body := chatCompletionRequest{
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	respBody, err := c.doPost(ctx, c.cfg.ChatDeployment, "chat/completions", body)
	if err != nil {
		return "", err
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrUpstream)
	}

	out := resp.Choices[0].Message.Content
	emit(c.cfg.OnResult, "azure.chat.success", map[string]any{
		"deployment":   c.cfg.ChatDeployment,
		"json_mode":    req.JSONMode,
		"len_messages": len(req.Messages),
		"len_out":      len(out),
	})
	return out, nil
}

// EmbedTexts embeds texts in order, batchSize at a time (default 64).
// Vectors come back parallel to the input.
func (c *AzureClient) EmbedTexts(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = 64
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		respBody, err := c.doPost(ctx, c.cfg.EmbeddingsDeployment, "embeddings", embeddingRequest{Input: batch})
		if err != nil {
			return nil, err
		}

		var resp embeddingResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return nil, fmt.Errorf("decoding embedding response: %w", err)
		}

		// The provider returns items with an index field; reorder to be safe.
		batchVecs := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index >= 0 && d.Index < len(batchVecs) {
				batchVecs[d.Index] = d.Embedding
			}
		}
		vectors = append(vectors, batchVecs...)
	}

	emit(c.cfg.OnResult, "azure.embed.success", map[string]any{
		"deployment": c.cfg.EmbeddingsDeployment,
		"count":      len(texts),
	})
	return vectors, nil
}

// retryableStatusCode returns true for HTTP status codes that warrant a
// retry: rate limiting and transient upstream failures.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

func (c *AzureClient) requestURL(deployment, op string) string {
	return fmt.Sprintf("%s/openai/deployments/%s/%s?api-version=%s",
		c.cfg.Endpoint, url.PathEscape(deployment), op, url.QueryEscape(c.cfg.APIVersion))
}

func (c *AzureClient) doPost(ctx context.Context, deployment, op string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	reqURL := c.requestURL(deployment, op)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries+1; attempt++ {
		if attempt > 1 {
			delay := c.cfg.BackoffBase * time.Duration(1<<(attempt-2))
			slog.Warn("llm: retrying request",
				"deployment", deployment,
				"op", op,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("api-key", c.cfg.APIKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request to %s failed: %w", op, err)
			c.emitError(op, attempt, lastErr)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading response body: %w", err)
			c.emitError(op, attempt, lastErr)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return respBody, nil
		}

		lastErr = fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
		c.emitError(op, attempt, lastErr)

		if !retryableStatusCode(resp.StatusCode) {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, lastErr)
		}

		// Respect Retry-After on rate limiting.
		if resp.StatusCode == http.StatusTooManyRequests {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
					select {
					case <-time.After(time.Duration(seconds) * time.Second):
					case <-ctx.Done():
						return nil, ctx.Err()
					}
				}
			}
		}
	}

	return nil, fmt.Errorf("%w: max retries exceeded: %v", ErrUpstream, lastErr)
}

func (c *AzureClient) emitError(op string, attempt int, err error) {
	emit(c.cfg.OnError, "azure.request.error", map[string]any{
		"op":      op,
		"attempt": attempt,
		"message": err.Error(),
	})
}
