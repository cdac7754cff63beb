package domain

import "time"

// MolecularProfile is the normalized, per-request description of a patient's tumor.
// Gene sets are unique (case-insensitive) and kept in canonical order; a missing
// category is the same as an empty one.
type MolecularProfile struct {
	CancerType    CancerType                `json:"cancer_type"`
	SubtypeKey    string                    `json:"subtype_key"`
	Genes         map[GeneCategory][]string `json:"genes"`
	RequestedTier Tier                      `json:"requested_tier,omitempty"`
	// Histology is free text such as "Lung Adenocarcinoma (TCGA)" or "LUSC".
	Histology string `json:"histology,omitempty"`
}

// GenesIn returns the genes recorded for a category, never nil.
func (p *MolecularProfile) GenesIn(category GeneCategory) []string {
	if p == nil || p.Genes[category] == nil {
		return []string{}
	}
	return p.Genes[category]
}

// GeneCount is the total number of gene entries across categories.
func (p *MolecularProfile) GeneCount() int {
	n := 0
	for _, genes := range p.Genes {
		n += len(genes)
	}
	return n
}

// BiomarkerMatch is a curated biomarker triggered by a gene in the profile.
type BiomarkerMatch struct {
	ID       string         `json:"id"`
	Gene     string         `json:"gene"`
	Category GeneCategory   `json:"category"`
	Entry    BiomarkerEntry `json:"entry"`
}

// MatchResult is the deterministic output of rule matching.
type MatchResult struct {
	CancerType                CancerType         `json:"cancer_type"`
	Subtype                   string             `json:"subtype"`
	SubtypeDescription        string             `json:"subtype_description,omitempty"`
	Tier                      Tier               `json:"tier"`
	TierSource                TierSource         `json:"tier_source"`
	Plan                      TherapyPlan        `json:"plan"`
	TierInfo                  *TierMetadata      `json:"tier_info,omitempty"`
	Biomarkers                []BiomarkerMatch   `json:"biomarkers"`
	SubtypeBiomarkerTherapies []BiomarkerTherapy `json:"subtype_biomarker_therapies,omitempty"`
	VariantTherapies          []VariantTherapy   `json:"variant_therapies,omitempty"`
	Advice                    *Advice            `json:"advice,omitempty"`
}

// VariantTherapy is a therapy triggered by a specific variant within a
// subtype, such as EGFR T790M in EGFR-mutated adenocarcinoma.
type VariantTherapy struct {
	ID         string `json:"id"`
	Therapy    string `json:"therapy"`
	Indication string `json:"indication"`
}

// Advice is the profile-derived subtype and tier suggestion. It is
// informational and never changes the matched plan.
type Advice struct {
	SuggestedSubtype string   `json:"suggested_subtype,omitempty"`
	SuggestedTier    Tier     `json:"suggested_tier"`
	Score            float64  `json:"score"`
	Factors          []string `json:"factors"`
}

// IsResolved reports whether a curated plan was found for the subtype.
func (m *MatchResult) IsResolved() bool {
	return m.Tier.IsValid()
}

// Recommendation is the externally visible result of a recommendation request.
type Recommendation struct {
	RequestID       string          `json:"request_id,omitempty"`
	Match           MatchResult     `json:"match"`
	Narrative       string          `json:"narrative"`
	NarrativeSource NarrativeSource `json:"narrative_source"`
	Considerations  []string        `json:"considerations"`
	GeneratedAt     time.Time       `json:"generated_at"`
}
