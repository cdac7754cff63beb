package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncology-therapy-mcp-server/internal/domain"
)

type scriptedClient struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (s *scriptedClient) Provider() string { return "scripted" }

func (s *scriptedClient) Complete(ctx context.Context, req Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "narrative for " + req.Model, nil
}

type observation struct {
	provider string
	status   string
}

func TestResilientClient_PassesThrough(t *testing.T) {
	inner := &scriptedClient{}
	var seen []observation
	client := NewResilientClient(inner, ResilienceConfig{RequestsPerSecond: 100}, testLogger(),
		func(provider, status string, _ time.Duration) {
			seen = append(seen, observation{provider, status})
		})

	text, err := client.Complete(context.Background(), Request{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "narrative for gpt-4o", text)
	assert.Equal(t, "scripted", client.Provider())
	assert.Equal(t, []observation{{"scripted", "success"}}, seen)
}

func TestResilientClient_OpensBreakerAfterFailures(t *testing.T) {
	boom := errors.New("upstream down")
	inner := &scriptedClient{errs: []error{boom, boom, boom, boom}}
	var statuses []string
	client := NewResilientClient(inner, ResilienceConfig{
		RequestsPerSecond: 1000,
		FailureRatio:      0.6,
		MinRequests:       3,
		OpenTimeout:       time.Minute,
	}, testLogger(), func(_, status string, _ time.Duration) {
		statuses = append(statuses, status)
	})

	for i := 0; i < 3; i++ {
		_, err := client.Complete(context.Background(), Request{})
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, gobreaker.StateOpen, client.State())

	_, err := client.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, inner.calls, "open breaker must not reach the provider")
	assert.Equal(t, []string{"error", "error", "error", "circuit_open"}, statuses)
}

func TestResilientClient_CancellationDoesNotTrip(t *testing.T) {
	inner := &scriptedClient{errs: []error{context.Canceled, context.Canceled, context.Canceled}}
	client := NewResilientClient(inner, ResilienceConfig{RequestsPerSecond: 1000, MinRequests: 3}, testLogger(), nil)

	for i := 0; i < 3; i++ {
		_, err := client.Complete(context.Background(), Request{})
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, client.State())
}

func TestResilientClient_RateLimitRespectsContext(t *testing.T) {
	inner := &scriptedClient{}
	client := NewResilientClient(inner, ResilienceConfig{RequestsPerSecond: 0.001}, testLogger(), nil)

	_, err := client.Complete(context.Background(), Request{})
	require.NoError(t, err, "first call uses the burst token")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Complete(ctx, Request{})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, inner.calls)
}

func TestNewFromConfig(t *testing.T) {
	t.Run("unconfigured returns nil client", func(t *testing.T) {
		client, err := NewFromConfig(context.Background(), domain.LLMConfig{Provider: domain.ProviderAzureOpenAI}, testLogger(), nil)
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("azure", func(t *testing.T) {
		client, err := NewFromConfig(context.Background(), domain.LLMConfig{
			Provider:   domain.ProviderAzureOpenAI,
			APIKey:     "key",
			Endpoint:   "https://example.openai.azure.com",
			APIVersion: "2023-09-15-preview",
			Deployment: "gpt-4o",
			Timeout:    time.Second,
		}, testLogger(), nil)
		require.NoError(t, err)
		require.NotNil(t, client)
		assert.Equal(t, "azure", ProviderName(client))
	})

	t.Run("azure without endpoint", func(t *testing.T) {
		_, err := NewFromConfig(context.Background(), domain.LLMConfig{
			Provider:   domain.ProviderAzureOpenAI,
			APIKey:     "key",
			Deployment: "gpt-4o",
		}, testLogger(), nil)
		assert.Error(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewFromConfig(context.Background(), domain.LLMConfig{Provider: "cohere", APIKey: "key"}, testLogger(), nil)
		assert.Error(t, err)
	})
}
