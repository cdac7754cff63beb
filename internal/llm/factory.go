package llm

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oncology-therapy-mcp-server/internal/domain"
)

// NewFromConfig builds the configured provider client wrapped in a
// ResilientClient. It returns a nil Client and no error when credentials are
// absent: an unconfigured narrative layer is a supported mode, not a failure.
func NewFromConfig(ctx context.Context, cfg domain.LLMConfig, logger *logrus.Logger, observer CallObserver) (Client, error) {
	if !cfg.Configured() {
		logger.Info("No LLM credentials configured, narratives will be unavailable")
		return nil, nil
	}

	var (
		inner Client
		err   error
	)
	switch cfg.Provider {
	case domain.ProviderAzureOpenAI, "":
		inner, err = NewAzureOpenAIClient(AzureConfig{
			APIKey:     cfg.APIKey,
			Endpoint:   cfg.Endpoint,
			APIVersion: cfg.APIVersion,
			Deployment: cfg.Deployment,
			Timeout:    cfg.Timeout,
			RetryCount: cfg.RetryCount,
		}, logger)
	case domain.ProviderGemini:
		inner, err = NewGeminiClient(ctx, cfg.APIKey, cfg.Deployment, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	resilience := DefaultResilienceConfig()
	if cfg.RateLimit > 0 {
		resilience.RequestsPerSecond = cfg.RateLimit
	}
	if cfg.BreakerRatio > 0 {
		resilience.FailureRatio = cfg.BreakerRatio
	}

	logger.WithFields(logrus.Fields{
		"provider":   ProviderName(inner),
		"deployment": cfg.Deployment,
	}).Info("LLM client configured")

	return NewResilientClient(inner, resilience, logger, observer), nil
}
