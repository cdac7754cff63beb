package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// CallObserver receives the outcome of every provider call.
type CallObserver func(provider, status string, duration time.Duration)

// ResilienceConfig tunes ResilientClient.
type ResilienceConfig struct {
	RequestsPerSecond float64
	FailureRatio      float64
	MinRequests       uint32
	OpenTimeout       time.Duration
}

// DefaultResilienceConfig mirrors the settings used for other upstream services.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		RequestsPerSecond: 2,
		FailureRatio:      0.6,
		MinRequests:       3,
		OpenTimeout:       60 * time.Second,
	}
}

// ResilientClient guards a Client with a rate limiter and a circuit breaker.
type ResilientClient struct {
	inner    Client
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	logger   *logrus.Logger
	observer CallObserver
}

// NewResilientClient wraps inner. A nil observer is allowed.
func NewResilientClient(inner Client, config ResilienceConfig, logger *logrus.Logger, observer CallObserver) *ResilientClient {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultResilienceConfig().RequestsPerSecond
	}
	if config.FailureRatio <= 0 {
		config.FailureRatio = DefaultResilienceConfig().FailureRatio
	}
	if config.MinRequests == 0 {
		config.MinRequests = DefaultResilienceConfig().MinRequests
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = DefaultResilienceConfig().OpenTimeout
	}

	name := ProviderName(inner)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-" + name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= config.MinRequests && failureRatio >= config.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("LLM circuit breaker state changed")
		},
		// A caller giving up says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &ResilientClient{
		inner:    inner,
		breaker:  breaker,
		limiter:  rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		logger:   logger,
		observer: observer,
	}
}

// Provider names the wrapped backend.
func (c *ResilientClient) Provider() string {
	return ProviderName(c.inner)
}

// State exposes the breaker state for health reporting.
func (c *ResilientClient) State() gobreaker.State {
	return c.breaker.State()
}

// Complete waits for the limiter and calls the wrapped client through the breaker.
func (c *ResilientClient) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		c.observe("rate_limited", start)
		return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.inner.Complete(ctx, req)
	})
	if err != nil {
		status := "error"
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			status = "circuit_open"
		case errors.Is(err, context.DeadlineExceeded):
			status = "timeout"
		}
		c.observe(status, start)
		return "", err
	}

	c.observe("success", start)
	return result.(string), nil
}

func (c *ResilientClient) observe(status string, start time.Time) {
	if c.observer != nil {
		c.observer(c.Provider(), status, time.Since(start))
	}
}
