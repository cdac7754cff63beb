package domain

// KnowledgeBase is the validated, read-only curated content for one cancer type.
// It is never mutated after a successful load.
type KnowledgeBase struct {
	CancerType CancerType                `json:"cancer_type"`
	Subtypes   map[string]SubtypeEntry   `json:"subtypes"`
	Biomarkers map[string]BiomarkerEntry `json:"special_biomarkers"`
	Tiers      map[Tier]TierMetadata     `json:"therapy_levels"`
}

// SubtypeNames returns the subtype names of the knowledge base in no particular order.
func (kb *KnowledgeBase) SubtypeNames() []string {
	names := make([]string, 0, len(kb.Subtypes))
	for name := range kb.Subtypes {
		names = append(names, name)
	}
	return names
}

// SubtypeEntry is a clinically defined disease category with tiered plans.
type SubtypeEntry struct {
	Name               string               `json:"name"`
	Description        string               `json:"description"`
	TherapyLevels      map[Tier]TherapyPlan `json:"therapy_levels"`
	BiomarkerTherapies []BiomarkerTherapy   `json:"biomarker_therapies,omitempty"`
}

// HasTierData reports whether any tier is curated for the subtype.
func (s SubtypeEntry) HasTierData() bool {
	return len(s.TherapyLevels) > 0
}

// TherapyPlan is the curated plan for one subtype at one tier.
type TherapyPlan struct {
	Name            string               `json:"name,omitempty"`
	Description     string               `json:"description,omitempty"`
	Recommendations []RecommendationItem `json:"recommendations"`
	FollowUp        string               `json:"follow_up,omitempty"`
	Indications     []string             `json:"indications,omitempty"`
}

// Clone returns a deep copy of the plan.
func (p TherapyPlan) Clone() TherapyPlan {
	out := p
	if p.Recommendations != nil {
		out.Recommendations = make([]RecommendationItem, len(p.Recommendations))
		for i, item := range p.Recommendations {
			out.Recommendations[i] = item.Clone()
		}
	}
	out.Indications = cloneStrings(p.Indications)
	return out
}

// IsEmpty reports whether the plan carries no curated content.
func (p TherapyPlan) IsEmpty() bool {
	return p.Name == "" && len(p.Recommendations) == 0
}

// RecommendationItem is one ordered step of a therapy plan.
type RecommendationItem struct {
	Therapy       string   `json:"therapy"`
	Details       string   `json:"details,omitempty"`
	Duration      string   `json:"duration,omitempty"`
	Regimen       string   `json:"regimen,omitempty"`
	Indication    string   `json:"indication,omitempty"`
	EvidenceLevel string   `json:"evidence_level,omitempty"`
	Examples      []string `json:"examples,omitempty"`
	Agent         string   `json:"agent,omitempty"`
}

// Clone returns a deep copy of the item.
func (r RecommendationItem) Clone() RecommendationItem {
	out := r
	out.Examples = cloneStrings(r.Examples)
	return out
}

// BiomarkerTherapy is a subtype-specific therapy triggered by a biomarker.
type BiomarkerTherapy struct {
	Biomarker     string `json:"biomarker"`
	Therapy       string `json:"therapy"`
	Indication    string `json:"indication,omitempty"`
	EvidenceLevel string `json:"evidence_level,omitempty"`
}

// BiomarkerEntry is a subtype-independent therapy modifier keyed by a curated
// identifier such as "ERBB2_amplification".
type BiomarkerEntry struct {
	ID                   string          `json:"id"`
	ClinicalSignificance string          `json:"clinical_significance"`
	TherapyOptions       []TherapyOption `json:"therapy_options,omitempty"`
	TherapyImpact        string          `json:"therapy_impact,omitempty"`
}

// Clone returns a deep copy of the entry.
func (b BiomarkerEntry) Clone() BiomarkerEntry {
	out := b
	if b.TherapyOptions != nil {
		out.TherapyOptions = append([]TherapyOption(nil), b.TherapyOptions...)
	}
	return out
}

// TherapyOption is a targeted therapy attached to a biomarker.
type TherapyOption struct {
	Name          string `json:"name"`
	Indication    string `json:"indication,omitempty"`
	EvidenceLevel string `json:"evidence_level,omitempty"`
}

// TierMetadata is the generic, subtype-independent description of a tier.
type TierMetadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	FollowUp    string   `json:"follow_up,omitempty"`
	Monitoring  string   `json:"monitoring,omitempty"`
	Indications []string `json:"indications,omitempty"`
}

// Clone returns a deep copy of the metadata.
func (t TierMetadata) Clone() TierMetadata {
	out := t
	out.Indications = cloneStrings(t.Indications)
	return out
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	return append([]string(nil), values...)
}
