package service

import (
	"strings"

	"github.com/oncology-therapy-mcp-server/internal/domain"
)

// considerationRule adds a clinical note when its condition holds.
type considerationRule struct {
	Note    string
	Applies condition
}

var considerationRules = map[domain.CancerType][]considerationRule{
	domain.BreastCancer: {
		{Note: "Consider clinical trial enrollment for novel approaches", Applies: tierAtLeast(domain.TierIntensified)},
		{Note: "More frequent monitoring (every 2-3 months)", Applies: tierAtLeast(domain.TierIntensified)},
		{Note: "TP53 mutation suggests higher risk of recurrence", Applies: mentions(domain.Mutations, "TP53")},
		{Note: "Consider genetic counseling for hereditary cancer risk", Applies: mentions(domain.Mutations, "BRCA")},
		{Note: "HER2-targeted therapy is essential component of treatment", Applies: hasGene(domain.Amplifications, "ERBB2")},
		{
			Note: "Extended endocrine therapy may be beneficial (5-10 years)",
			Applies: func(m *domain.MatchResult, p *domain.MolecularProfile) bool {
				return hasGene(domain.HighExpression, "ESR1")(m, p) && tierAtLeast(domain.TierStandard)(m, p)
			},
		},
	},
	domain.LungCancer: {
		{Note: "Monitor for EGFR TKI resistance mutations (T790M, C797S)", Applies: subtypeContains("EGFR-mutated")},
		{Note: "Consider liquid biopsy at progression", Applies: subtypeContains("EGFR-mutated")},
		{Note: "Monitor for CNS progression (ALK+ disease has high CNS tropism)", Applies: subtypeContains("ALK-rearranged")},
		{Note: "Consider tissue/liquid biopsy at progression to identify resistance mechanisms", Applies: subtypeContains("ALK-rearranged")},
		{Note: "Test for G12C mutation specifically, as it's targetable", Applies: subtypeContains("KRAS-mutated")},
		{Note: "Consider clinical trial enrollment for novel approaches", Applies: tierAtLeast(domain.TierIntensified)},
		{Note: "More frequent monitoring recommended", Applies: tierAtLeast(domain.TierIntensified)},
		{Note: "TP53 mutation suggests higher genomic instability and potentially more aggressive disease", Applies: mentions(domain.Mutations, "TP53")},
	},
}

// Considerations lists the clinical notes that apply to a matched profile, in
// a fixed order. Tier-based notes only apply to a resolved tier.
func Considerations(match *domain.MatchResult, profile *domain.MolecularProfile) []string {
	notes := []string{}
	for _, rule := range considerationRules[match.CancerType] {
		if rule.Applies(match, profile) {
			notes = append(notes, rule.Note)
		}
	}
	return notes
}

func tierAtLeast(tier domain.Tier) func(*domain.MatchResult, *domain.MolecularProfile) bool {
	return func(m *domain.MatchResult, _ *domain.MolecularProfile) bool {
		return m.IsResolved() && m.Tier >= tier
	}
}

// mentions matches entries containing the symbol, so "BRCA" covers BRCA1 and BRCA2.
func mentions(category domain.GeneCategory, symbol string) func(*domain.MatchResult, *domain.MolecularProfile) bool {
	return func(_ *domain.MatchResult, p *domain.MolecularProfile) bool {
		for _, g := range p.GenesIn(category) {
			if strings.Contains(strings.ToUpper(g), symbol) {
				return true
			}
		}
		return false
	}
}

func hasGene(category domain.GeneCategory, symbol string) func(*domain.MatchResult, *domain.MolecularProfile) bool {
	return func(_ *domain.MatchResult, p *domain.MolecularProfile) bool {
		for _, g := range p.GenesIn(category) {
			if gene, _ := splitGene(g); strings.EqualFold(gene, symbol) {
				return true
			}
		}
		return false
	}
}

func subtypeContains(fragment string) func(*domain.MatchResult, *domain.MolecularProfile) bool {
	return func(m *domain.MatchResult, _ *domain.MolecularProfile) bool {
		return strings.Contains(m.Subtype, fragment)
	}
}
