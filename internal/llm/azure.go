package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// AzureConfig configures the Azure OpenAI chat completions client.
type AzureConfig struct {
	APIKey     string
	Endpoint   string
	APIVersion string
	Deployment string
	Timeout    time.Duration
	RetryCount int
}

// AzureOpenAIClient calls an Azure OpenAI chat completions deployment.
type AzureOpenAIClient struct {
	config     AzureConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAzureOpenAIClient creates a client. The http.Client timeout bounds a
// single attempt; callers bound the whole call through the context.
func NewAzureOpenAIClient(config AzureConfig, logger *logrus.Logger) (*AzureOpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("azure openai: API key is required")
	}
	if config.Endpoint == "" {
		return nil, fmt.Errorf("azure openai: endpoint is required")
	}
	if config.Deployment == "" {
		return nil, fmt.Errorf("azure openai: deployment is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &AzureOpenAIClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

// Provider names the backend.
func (c *AzureOpenAIClient) Provider() string {
	return "azure"
}

func (c *AzureOpenAIClient) completionsURL(deployment string) string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimRight(c.config.Endpoint, "/"),
		url.PathEscape(deployment),
		url.QueryEscape(c.config.APIVersion),
	)
}

// Complete sends the prompt pair and returns the first choice's content.
func (c *AzureOpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	deployment := req.Model
	if deployment == "" {
		deployment = c.config.Deployment
	}

	body, err := json.Marshal(chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, err := c.do(ctx, deployment, body)
		if err == nil {
			c.logger.WithFields(logrus.Fields{
				"deployment":   deployment,
				"attempts":     attempt + 1,
				"duration_ms":  time.Since(start).Milliseconds(),
				"response_len": len(text),
			}).Debug("Azure OpenAI completion succeeded")
			return text, nil
		}

		lastErr = err
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.Retryable() {
			return "", err
		}
		c.logger.WithError(err).WithField("attempt", attempt+1).Warn("Retrying Azure OpenAI request")
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *AzureOpenAIClient) do(ctx context.Context, deployment string, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.completionsURL(deployment), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(logrus.Fields{
			"deployment": deployment,
			"status":     resp.StatusCode,
			"body":       string(data),
		}).Debug("Azure OpenAI returned an error response")
		return "", &APIError{Provider: c.Provider(), StatusCode: resp.StatusCode, Body: string(data)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
