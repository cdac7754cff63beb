package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oncology-therapy-mcp-server/internal/domain"
	"github.com/oncology-therapy-mcp-server/internal/llm"
)

// Recommendation outcomes reported to the observer.
const (
	OutcomeSuccess        = "success"
	OutcomeInvalidProfile = "invalid_profile"
	OutcomeUnknownSubtype = "unknown_subtype"
	OutcomeKnowledgeBase  = "knowledge_base_error"
	OutcomeError          = "error"
)

// OutcomeObserver is told how every Recommend call ended.
type OutcomeObserver func(cancerType domain.CancerType, outcome string, duration time.Duration)

// Recommender is the single entry point of the engine: normalize, load the
// knowledge base, match, then compose the narrative. Structural failures are
// returned as typed errors; narrative failures are absorbed into the result.
type Recommender struct {
	knowledge  domain.KnowledgeBaseProvider
	normalizer *ProfileNormalizer
	matcher    *RuleMatcher
	composer   *NarrativeComposer
	client     llm.Client
	logger     *logrus.Logger
	observer   OutcomeObserver
}

// Option configures a Recommender.
type Option func(*Recommender)

// WithOutcomeObserver registers an observer for request outcomes.
func WithOutcomeObserver(observer OutcomeObserver) Option {
	return func(r *Recommender) {
		r.observer = observer
	}
}

// NewRecommender wires the engine. client may be nil, which means the
// narrative layer is unconfigured.
func NewRecommender(knowledge domain.KnowledgeBaseProvider, composer *NarrativeComposer, client llm.Client, logger *logrus.Logger, opts ...Option) *Recommender {
	r := &Recommender{
		knowledge:  knowledge,
		normalizer: NewProfileNormalizer(logger),
		matcher:    NewRuleMatcher(logger),
		composer:   composer,
		client:     client,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NarrativeConfigured reports whether an LLM client was supplied.
func (r *Recommender) NarrativeConfigured() bool {
	return r.client != nil
}

type recommendOptions struct {
	tier      domain.Tier
	advise    bool
	requestID string
}

// RecommendOption adjusts a single Recommend call.
type RecommendOption func(*recommendOptions)

// WithAdvice attaches a profile-derived subtype and tier suggestion to the
// match. The suggestion never changes the selected plan.
func WithAdvice() RecommendOption {
	return func(o *recommendOptions) {
		o.advise = true
	}
}

// WithTier sets an explicit tier, overriding the profile and the default.
func WithTier(tier domain.Tier) RecommendOption {
	return func(o *recommendOptions) {
		o.tier = tier
	}
}

// WithRequestID sets the id reported on the recommendation and in logs.
func WithRequestID(id string) RecommendOption {
	return func(o *recommendOptions) {
		o.requestID = id
	}
}

// Recommend produces a recommendation for a raw profile. cancerType may be
// empty when the profile carries its own cancer_type.
func (r *Recommender) Recommend(ctx context.Context, raw map[string]any, cancerType domain.CancerType, opts ...RecommendOption) (*domain.Recommendation, error) {
	start := time.Now()
	options := recommendOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.requestID == "" {
		options.requestID = uuid.New().String()
	}

	log := r.logger.WithFields(logrus.Fields{
		"request_id":  options.requestID,
		"cancer_type": cancerType,
	})

	rec, err := r.recommend(ctx, raw, cancerType, options)
	outcome := classifyOutcome(err)
	if r.observer != nil {
		observed := cancerType
		if rec != nil {
			observed = rec.Match.CancerType
		}
		r.observer(observed, outcome, time.Since(start))
	}

	if err != nil {
		log.WithError(err).WithField("outcome", outcome).Warn("Recommendation request failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"subtype":          rec.Match.Subtype,
		"tier":             rec.Match.Tier.String(),
		"biomarkers":       len(rec.Match.Biomarkers),
		"narrative_source": rec.NarrativeSource,
		"duration_ms":      time.Since(start).Milliseconds(),
	}).Info("Recommendation completed")
	return rec, nil
}

func (r *Recommender) recommend(ctx context.Context, raw map[string]any, cancerType domain.CancerType, options recommendOptions) (*domain.Recommendation, error) {
	match, profile, err := r.resolve(ctx, raw, cancerType, options)
	if err != nil {
		return nil, err
	}

	narrative, source := r.composer.Compose(ctx, match, profile, r.client)

	return &domain.Recommendation{
		RequestID:       options.requestID,
		Match:           *match,
		Narrative:       narrative,
		NarrativeSource: source,
		Considerations:  Considerations(match, profile),
		GeneratedAt:     time.Now().UTC(),
	}, nil
}

// resolve runs the deterministic part of the pipeline: normalize, load, match.
func (r *Recommender) resolve(ctx context.Context, raw map[string]any, cancerType domain.CancerType, options recommendOptions) (*domain.MatchResult, *domain.MolecularProfile, error) {
	input, err := withCancerType(raw, cancerType)
	if err != nil {
		return nil, nil, err
	}

	profile, err := r.normalizer.Normalize(input)
	if err != nil {
		return nil, nil, err
	}

	kb, err := r.knowledge.Load(ctx, profile.CancerType)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}

	match, err := r.matcher.Match(profile, kb, options.tier)
	if err != nil {
		return nil, nil, err
	}
	if options.advise {
		match.Advice = Advise(match, profile)
	}
	return match, profile, nil
}

// Prompt renders the narrative prompt for a profile without calling the LLM,
// for clients that run their own model.
func (r *Recommender) Prompt(ctx context.Context, raw map[string]any, cancerType domain.CancerType, opts ...RecommendOption) (Prompt, error) {
	options := recommendOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	match, profile, err := r.resolve(ctx, raw, cancerType, options)
	if err != nil {
		return Prompt{}, err
	}
	return BuildPrompt(match, profile)
}

// KnowledgeBase returns the validated knowledge base of a cancer type.
func (r *Recommender) KnowledgeBase(ctx context.Context, cancerType domain.CancerType) (*domain.KnowledgeBase, error) {
	kb, err := r.knowledge.Load(ctx, cancerType)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}
	return kb, nil
}

// withCancerType reconciles the explicit cancer type with the profile's own
// field without mutating the caller's map.
func withCancerType(raw map[string]any, cancerType domain.CancerType) (map[string]any, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	if cancerType == "" {
		return raw, nil
	}
	if !cancerType.IsValid() {
		return nil, domain.NewProfileValidationError("cancer_type",
			fmt.Sprintf("unrecognized cancer type %q", cancerType), string(cancerType))
	}

	if existing, ok := stringField(raw, "cancer_type"); ok {
		parsed, err := domain.ParseCancerType(existing)
		if err == nil && parsed != cancerType {
			return nil, domain.NewProfileValidationError("cancer_type",
				fmt.Sprintf("profile cancer type %q conflicts with requested %s", existing, cancerType), existing)
		}
		return raw, nil
	}

	copied := make(map[string]any, len(raw)+1)
	for k, v := range raw {
		copied[k] = v
	}
	copied["cancer_type"] = string(cancerType)
	return copied, nil
}

func classifyOutcome(err error) string {
	var (
		profileErr *domain.ProfileValidationError
		subtypeErr *domain.UnknownSubtypeError
		kbErr      *domain.KnowledgeBaseError
	)
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.As(err, &profileErr):
		return OutcomeInvalidProfile
	case errors.As(err, &subtypeErr):
		return OutcomeUnknownSubtype
	case errors.As(err, &kbErr):
		return OutcomeKnowledgeBase
	default:
		return OutcomeError
	}
}

// SubtypeSummary describes a curated subtype for read-only listings.
type SubtypeSummary struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Tiers       []domain.Tier `json:"tiers"`
}

// Subtypes lists the curated subtypes of a cancer type sorted by name.
func (r *Recommender) Subtypes(ctx context.Context, cancerType domain.CancerType) ([]SubtypeSummary, error) {
	kb, err := r.KnowledgeBase(ctx, cancerType)
	if err != nil {
		return nil, err
	}

	names := kb.SubtypeNames()
	sort.Strings(names)

	summaries := make([]SubtypeSummary, 0, len(names))
	for _, name := range names {
		entry := kb.Subtypes[name]
		tiers := []domain.Tier{}
		for _, tier := range domain.Tiers {
			if _, ok := entry.TherapyLevels[tier]; ok {
				tiers = append(tiers, tier)
			}
		}
		summaries = append(summaries, SubtypeSummary{
			Name:        name,
			Description: entry.Description,
			Tiers:       tiers,
		})
	}
	return summaries, nil
}
