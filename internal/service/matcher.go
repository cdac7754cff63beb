package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oncology-therapy-mcp-server/internal/domain"
)

// RuleMatcher selects the subtype plan and tier for a profile and overlays
// curated biomarkers. It is deterministic for a given profile, knowledge base
// snapshot and tier.
//
// Tier policy: the tier is taken from the caller, then from the profile's own
// tier field, and otherwise defaults to tier 2 (Standard Therapy). A tier
// inferred from the profile is only ever reported as Advice.
type RuleMatcher struct {
	logger *logrus.Logger
}

// NewRuleMatcher creates a matcher.
func NewRuleMatcher(logger *logrus.Logger) *RuleMatcher {
	return &RuleMatcher{logger: logger}
}

// Match resolves the profile against the knowledge base. Pass
// domain.TierUnresolved as tier when the caller has no explicit choice.
func (m *RuleMatcher) Match(profile *domain.MolecularProfile, kb *domain.KnowledgeBase, tier domain.Tier) (*domain.MatchResult, error) {
	if profile == nil || kb == nil {
		return nil, fmt.Errorf("profile and knowledge base are required")
	}

	entry, ok := kb.Subtypes[profile.SubtypeKey]
	if !ok {
		return nil, &domain.UnknownSubtypeError{CancerType: kb.CancerType, Subtype: profile.SubtypeKey}
	}

	selected, source, err := selectTier(profile, tier)
	if err != nil {
		return nil, err
	}

	result := &domain.MatchResult{
		CancerType:         kb.CancerType,
		Subtype:            entry.Name,
		SubtypeDescription: entry.Description,
		Tier:               domain.TierUnresolved,
		TierSource:         source,
		Plan:               domain.TherapyPlan{Recommendations: []domain.RecommendationItem{}},
	}

	if plan, ok := entry.TherapyLevels[selected]; ok {
		result.Tier = selected
		result.Plan = plan.Clone()
		if meta, ok := kb.Tiers[selected]; ok {
			info := meta.Clone()
			result.TierInfo = &info
		}
	}

	result.Biomarkers = matchBiomarkers(profile, kb)
	result.SubtypeBiomarkerTherapies = subtypeBiomarkerTherapies(entry, result.Biomarkers)
	result.VariantTherapies = variantTherapies(result, profile, selected)

	m.logger.WithFields(logrus.Fields{
		"cancer_type":    kb.CancerType,
		"subtype":        entry.Name,
		"requested_tier": int(selected),
		"tier":           result.Tier.String(),
		"tier_source":    source,
		"biomarkers":     len(result.Biomarkers),
	}).Debug("Profile matched")

	return result, nil
}

func selectTier(profile *domain.MolecularProfile, explicit domain.Tier) (domain.Tier, domain.TierSource, error) {
	switch {
	case explicit != domain.TierUnresolved:
		if !explicit.IsValid() {
			return domain.TierUnresolved, "", domain.NewProfileValidationError("tier",
				fmt.Sprintf("tier must be between 1 and 4, got %d", int(explicit)), int(explicit))
		}
		return explicit, domain.TierFromCaller, nil
	case profile.RequestedTier.IsValid():
		return profile.RequestedTier, domain.TierFromProfile, nil
	default:
		return domain.DefaultTier, domain.TierFromDefault, nil
	}
}
