package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oncology-therapy-mcp-server/internal/domain"
	"github.com/oncology-therapy-mcp-server/internal/llm"
)

const (
	// FallbackNarrative is returned when no LLM client is configured.
	FallbackNarrative = "AI recommendation not available (LLM client not configured)"
	// NarrativeErrorPrefix starts every narrative that describes a failed generation.
	NarrativeErrorPrefix = "Error generating AI recommendation: "
)

// NarrativeSettings are the injected generation parameters.
type NarrativeSettings struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// DefaultNarrativeSettings matches the reference deployment.
func DefaultNarrativeSettings() NarrativeSettings {
	return NarrativeSettings{
		Model:       "gpt-4o",
		MaxTokens:   1000,
		Temperature: 0.2,
		Timeout:     60 * time.Second,
	}
}

// NarrativeObserver is told the source of every composed narrative.
type NarrativeObserver func(source domain.NarrativeSource)

// NarrativeComposer produces the free-text rationale for a match. It never
// fails: generation problems are reported through the narrative source.
type NarrativeComposer struct {
	settings NarrativeSettings
	logger   *logrus.Logger
	observer NarrativeObserver
}

// NewNarrativeComposer creates a composer. A nil observer is allowed.
func NewNarrativeComposer(settings NarrativeSettings, logger *logrus.Logger, observer NarrativeObserver) *NarrativeComposer {
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultNarrativeSettings().Timeout
	}
	return &NarrativeComposer{
		settings: settings,
		logger:   logger,
		observer: observer,
	}
}

// Compose builds the prompt and asks the client for a narrative.
func (c *NarrativeComposer) Compose(ctx context.Context, match *domain.MatchResult, profile *domain.MolecularProfile, client llm.Client) (string, domain.NarrativeSource) {
	narrative, source := c.compose(ctx, match, profile, client)
	if c.observer != nil {
		c.observer(source)
	}
	return narrative, source
}

func (c *NarrativeComposer) compose(ctx context.Context, match *domain.MatchResult, profile *domain.MolecularProfile, client llm.Client) (string, domain.NarrativeSource) {
	if client == nil {
		return FallbackNarrative, domain.NarrativeUnavailable
	}

	prompt, err := BuildPrompt(match, profile)
	if err != nil {
		return NarrativeErrorPrefix + err.Error(), domain.NarrativeError
	}

	text, err := c.complete(ctx, client, prompt)
	log := c.logger.WithFields(logrus.Fields{
		"cancer_type": match.CancerType,
		"subtype":     match.Subtype,
		"provider":    llm.ProviderName(client),
	})
	if err != nil {
		log.WithError(err).Warn("Narrative generation failed")
		return NarrativeErrorPrefix + err.Error(), domain.NarrativeError
	}

	log.WithField("narrative_len", len(text)).Debug("Narrative generated")
	return text, domain.NarrativeLLMGenerated
}

// complete calls the client under the configured timeout and converts panics
// and blank answers into errors.
func (c *NarrativeComposer) complete(ctx context.Context, client llm.Client, prompt Prompt) (text string, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.settings.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("llm client panicked: %v", r)
		}
	}()

	text, err = client.Complete(ctx, llm.Request{
		Model:        c.settings.Model,
		SystemPrompt: prompt.System,
		UserPrompt:   prompt.User,
		MaxTokens:    c.settings.MaxTokens,
		Temperature:  c.settings.Temperature,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("timed out after %s: %w", c.settings.Timeout, err)
		}
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", llm.ErrEmptyCompletion
	}
	return text, nil
}
