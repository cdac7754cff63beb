// Package domain contains the core entities of the therapy recommendation engine:
// cancer types, molecular profiles, curated knowledge bases and the recommendations
// produced from them.
package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CancerType identifies the disease a knowledge base and a profile belong to.
type CancerType string

const (
	BreastCancer CancerType = "breast_cancer"
	LungCancer   CancerType = "lung_cancer"
)

// CancerTypes lists every supported cancer type.
var CancerTypes = []CancerType{BreastCancer, LungCancer}

// Validation errors for identifying fields
var (
	ErrNotFound          = errors.New("not found")
	ErrUnknownCancerType = errors.New("unknown cancer type")
	ErrInvalidTier       = errors.New("invalid therapy tier")
)

// IsValid reports whether the cancer type is one the engine has knowledge for.
func (c CancerType) IsValid() bool {
	switch c {
	case BreastCancer, LungCancer:
		return true
	default:
		return false
	}
}

// DisplayName returns the human readable name, e.g. "Breast Cancer".
func (c CancerType) DisplayName() string {
	switch c {
	case BreastCancer:
		return "Breast Cancer"
	case LungCancer:
		return "Lung Cancer"
	default:
		return string(c)
	}
}

// ParseCancerType resolves loosely formatted input such as "Breast Cancer",
// "breast_cancer" or "BREAST" to a CancerType.
func ParseCancerType(s string) (CancerType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)

	switch key {
	case "breastcancer", "breast":
		return BreastCancer, nil
	case "lungcancer", "lung":
		return LungCancer, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCancerType, s)
}

// GeneCategory is a class of genomic alteration reported in a molecular profile.
type GeneCategory string

const (
	Amplifications     GeneCategory = "amplifications"
	Deletions          GeneCategory = "deletions"
	Mutations          GeneCategory = "mutations"
	HighExpression     GeneCategory = "high_expression"
	LowExpression      GeneCategory = "low_expression"
	StructuralVariants GeneCategory = "structural_variants"
)

// GeneCategories is the canonical category order used for biomarker overlay
// and prompt rendering.
var GeneCategories = []GeneCategory{
	Amplifications,
	Deletions,
	Mutations,
	HighExpression,
	LowExpression,
	StructuralVariants,
}

// IsValid checks the category against the canonical set
func (g GeneCategory) IsValid() bool {
	for _, c := range GeneCategories {
		if c == g {
			return true
		}
	}
	return false
}

// Label returns the title-cased label used in prompts, e.g. "High Expression".
func (g GeneCategory) Label() string {
	words := strings.Split(string(g), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Tier is the ordinal therapy intensity, 1 (conservative) to 4 (maximal).
// TierUnresolved marks a subtype without curated tier data.
type Tier int

const (
	TierUnresolved Tier = iota
	TierLowIntensity
	TierStandard
	TierIntensified
	TierMaximumIntensity
)

// DefaultTier is applied when neither the caller nor the profile names a tier.
const DefaultTier = TierStandard

// Tiers lists the valid tiers in increasing intensity.
var Tiers = []Tier{TierLowIntensity, TierStandard, TierIntensified, TierMaximumIntensity}

const unresolvedLabel = "unresolved"

// IsValid reports whether t is one of 1-4.
func (t Tier) IsValid() bool {
	return t >= TierLowIntensity && t <= TierMaximumIntensity
}

// String returns the knowledge base key for the tier ("1".."4") or "unresolved".
func (t Tier) String() string {
	if !t.IsValid() {
		return unresolvedLabel
	}
	return strconv.Itoa(int(t))
}

// ParseTier parses a knowledge base tier key.
func ParseTier(s string) (Tier, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return TierUnresolved, fmt.Errorf("%w: %q is not numeric", ErrInvalidTier, s)
	}
	t := Tier(n)
	if !t.IsValid() {
		return TierUnresolved, fmt.Errorf("%w: %d is outside 1-4", ErrInvalidTier, n)
	}
	return t, nil
}

// MarshalJSON renders valid tiers as numbers and the unresolved tier as "unresolved".
func (t Tier) MarshalJSON() ([]byte, error) {
	if !t.IsValid() {
		return json.Marshal(unresolvedLabel)
	}
	return []byte(strconv.Itoa(int(t))), nil
}

// UnmarshalJSON accepts a number, a numeric string or "unresolved".
func (t *Tier) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == unresolvedLabel || s == "" {
			*t = TierUnresolved
			return nil
		}
		parsed, err := ParseTier(s)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTier, string(data))
	}
	*t = Tier(n)
	return nil
}

// TierSource records where the selected tier came from.
type TierSource string

const (
	TierFromCaller  TierSource = "explicit"
	TierFromProfile TierSource = "profile"
	TierFromDefault TierSource = "default"
)

// NarrativeSource tells callers how the narrative text was produced.
type NarrativeSource string

const (
	NarrativeLLMGenerated NarrativeSource = "llm-generated"
	NarrativeUnavailable  NarrativeSource = "unavailable"
	NarrativeError        NarrativeSource = "error"
)

// IsValid validates the narrative source value
func (n NarrativeSource) IsValid() bool {
	switch n {
	case NarrativeLLMGenerated, NarrativeUnavailable, NarrativeError:
		return true
	default:
		return false
	}
}
