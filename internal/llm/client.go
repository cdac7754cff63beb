// Package llm provides the text-completion clients used to write recommendation
// narratives. The engine treats the provider as an opaque completion service.
package llm

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

// maxErrorBodyLen bounds how much of a provider response an error message quotes.
const maxErrorBodyLen = 200

// Request is a single completion request.
type Request struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Client completes a system and user prompt pair into text.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Provider is implemented by clients that can name their backend for logs and metrics.
type Provider interface {
	Provider() string
}

// ProviderName returns the backend name of a client, or "unknown".
func ProviderName(c Client) string {
	if p, ok := c.(Provider); ok {
		return p.Provider()
	}
	return "unknown"
}

var (
	// ErrEmptyCompletion is returned when the provider answered without text.
	ErrEmptyCompletion = errors.New("empty completion")
	// ErrRateLimited is returned when the local limiter or the provider refuses the call.
	ErrRateLimited = errors.New("rate limited")
)

// APIError is a non-2xx response from a provider. Body holds the full
// response; Error quotes only its start.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API request failed with status %d: %s", e.Provider, e.StatusCode, excerpt(e.Body, maxErrorBodyLen))
}

func excerpt(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "... (truncated)"
}

// Retryable reports whether the failure is transient.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
