package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/oncology-therapy-mcp-server/internal/domain"
)

// condition is a predicate over a matched profile.
type condition func(match *domain.MatchResult, profile *domain.MolecularProfile) bool

// variantRule attaches a therapy to a variant seen within matching subtypes.
type variantRule struct {
	ID         string
	Therapy    string
	Indication string
	Applies    condition
}

var variantRules = map[domain.CancerType][]variantRule{
	domain.LungCancer: {
		{
			ID:         "EGFR_exon20_insertion",
			Therapy:    "Amivantamab",
			Indication: "FDA-approved for EGFR exon20 insertion mutations",
			Applies:    allOf(subtypeContains("EGFR-mutated"), mentions(domain.Mutations, "EXON20")),
		},
		{
			ID:         "EGFR_T790M",
			Therapy:    "Osimertinib",
			Indication: "Effective against T790M resistance mutation",
			Applies:    allOf(subtypeContains("EGFR-mutated"), mentions(domain.Mutations, "T790M")),
		},
		{
			ID:         "ALK_resistance",
			Therapy:    "Lorlatinib",
			Indication: "For resistant disease or brain metastases",
			Applies:    allOf(subtypeContains("ALK-rearranged"), selectedTierAtLeast(domain.TierIntensified)),
		},
		{
			ID:         "ROS1_resistance",
			Therapy:    "Lorlatinib or Repotrectinib",
			Indication: "For resistant disease",
			Applies:    allOf(subtypeContains("ROS1-rearranged"), selectedTierAtLeast(domain.TierIntensified)),
		},
		{
			ID:         "KRAS_G12C",
			Therapy:    "Sotorasib or Adagrasib",
			Indication: "FDA-approved for KRAS G12C mutation",
			Applies:    allOf(subtypeContains("KRAS-mutated"), mentions(domain.Mutations, "G12C")),
		},
	},
}

// variantTherapies lists the variant rules that apply, in curated order.
func variantTherapies(match *domain.MatchResult, profile *domain.MolecularProfile, selected domain.Tier) []domain.VariantTherapy {
	var therapies []domain.VariantTherapy
	scoped := *match
	scoped.Tier = selected
	for _, rule := range variantRules[match.CancerType] {
		if rule.Applies(&scoped, profile) {
			therapies = append(therapies, domain.VariantTherapy{
				ID:         rule.ID,
				Therapy:    rule.Therapy,
				Indication: rule.Indication,
			})
		}
	}
	return therapies
}

// tierAdjustment moves the tier score when its condition holds.
type tierAdjustment struct {
	Factor  string
	Delta   float64
	Applies condition
}

// Scores start at tier 2.
const baseTierScore = 2.0

var tierAdjustments = map[domain.CancerType][]tierAdjustment{
	domain.BreastCancer: {
		{Factor: "Triple Negative subtype", Delta: 1, Applies: subtypeIs("Triple Negative")},
		{Factor: "HER2 Enriched subtype", Delta: 0.5, Applies: subtypeIs("HER2 Enriched")},
		{Factor: "Luminal A/B subtype", Delta: -0.5, Applies: subtypeIs("Luminal A/B")},
		{Factor: "TP53 mutation", Delta: 0.5, Applies: mentions(domain.Mutations, "TP53")},
		{Factor: "BRCA1/2 mutation", Delta: 0.5, Applies: anyOf(mentions(domain.Mutations, "BRCA1"), mentions(domain.Mutations, "BRCA2"))},
		{Factor: "MYC or CCND1 amplification", Delta: 0.3, Applies: anyOf(hasGene(domain.Amplifications, "MYC"), hasGene(domain.Amplifications, "CCND1"))},
		{Factor: "PTEN or RB1 loss", Delta: 0.4, Applies: anyOf(hasGene(domain.Deletions, "PTEN"), hasGene(domain.Deletions, "RB1"))},
	},
	domain.LungCancer: {
		{
			Factor:  "EGFR TKI resistance mutation",
			Delta:   1,
			Applies: allOf(subtypeIs("LUAD EGFR-mutated"), anyOf(mentions(domain.Mutations, "T790M"), mentions(domain.Mutations, "C797S"))),
		},
		{Factor: "ALK/ROS1 rearrangement", Delta: 0.5, Applies: anyOf(subtypeIs("LUAD ALK-rearranged"), subtypeIs("LUAD ROS1-rearranged"))},
		{
			Factor:  "non-G12C KRAS mutation",
			Delta:   0.5,
			Applies: allOf(subtypeIs("LUAD KRAS-mutated"), negate(mentions(domain.Mutations, "G12C"))),
		},
		{Factor: "TP53 mutation", Delta: 0.5, Applies: mentions(domain.Mutations, "TP53")},
	},
}

// Advise derives a suggested subtype and tier from the profile alone. The
// tier score rounds half to even and is clamped to 1-4.
func Advise(match *domain.MatchResult, profile *domain.MolecularProfile) *domain.Advice {
	advice := &domain.Advice{
		SuggestedSubtype: SuggestSubtype(profile),
		Score:            baseTierScore,
		Factors:          []string{},
	}

	for _, adj := range tierAdjustments[match.CancerType] {
		if adj.Applies(match, profile) {
			advice.Score += adj.Delta
			advice.Factors = append(advice.Factors, fmt.Sprintf("%s (%+.1f)", adj.Factor, adj.Delta))
		}
	}
	advice.Score = math.Round(advice.Score*10) / 10

	tier := domain.Tier(math.RoundToEven(advice.Score))
	switch {
	case tier < domain.TierLowIntensity:
		tier = domain.TierLowIntensity
	case tier > domain.TierMaximumIntensity:
		tier = domain.TierMaximumIntensity
	}
	advice.SuggestedTier = tier
	return advice
}

// SuggestSubtype classifies the profile into a curated subtype name. Breast
// subtypes follow ER and HER2 status; lung subtypes need a known histology
// and follow the first driver found. It returns "" when nothing can be said.
func SuggestSubtype(profile *domain.MolecularProfile) string {
	switch profile.CancerType {
	case domain.BreastCancer:
		her2 := anyOf(hasGene(domain.Amplifications, "ERBB2"), hasGene(domain.HighExpression, "ERBB2"))(nil, profile)
		er := anyOf(hasGene(domain.HighExpression, "ESR1"), hasGene(domain.Amplifications, "ESR1"))(nil, profile)
		switch {
		case er && !her2:
			return "Luminal A/B"
		case er && her2:
			return "Luminal HER2+"
		case her2:
			return "HER2 Enriched"
		default:
			return "Triple Negative"
		}

	case domain.LungCancer:
		switch lungHistology(profile) {
		case "LUSC":
			return "LUSC"
		case "LUAD":
			drivers := []struct {
				gene    string
				subtype string
			}{
				{"EGFR", "LUAD EGFR-mutated"},
				{"ALK", "LUAD ALK-rearranged"},
				{"ROS1", "LUAD ROS1-rearranged"},
			}
			for _, d := range drivers {
				if anyOf(mentions(domain.Mutations, d.gene), mentions(domain.StructuralVariants, d.gene))(nil, profile) {
					return d.subtype
				}
			}
			if mentions(domain.Mutations, "KRAS")(nil, profile) {
				return "LUAD KRAS-mutated"
			}
			return "LUAD Other"
		}
	}
	return ""
}

// lungHistology reads LUAD or LUSC from the histology field, falling back to
// the subtype key.
func lungHistology(profile *domain.MolecularProfile) string {
	for _, text := range []string{profile.Histology, profile.SubtypeKey} {
		upper := strings.ToUpper(text)
		switch {
		case strings.Contains(upper, "ADENOCARCINOMA"), strings.HasPrefix(upper, "LUAD"):
			return "LUAD"
		case strings.Contains(upper, "SQUAMOUS"), strings.HasPrefix(upper, "LUSC"):
			return "LUSC"
		}
	}
	return ""
}

func subtypeIs(name string) condition {
	return func(m *domain.MatchResult, _ *domain.MolecularProfile) bool {
		return m != nil && m.Subtype == name
	}
}

func selectedTierAtLeast(tier domain.Tier) condition {
	return func(m *domain.MatchResult, _ *domain.MolecularProfile) bool {
		return m.Tier.IsValid() && m.Tier >= tier
	}
}

func allOf(conds ...condition) condition {
	return func(m *domain.MatchResult, p *domain.MolecularProfile) bool {
		for _, c := range conds {
			if !c(m, p) {
				return false
			}
		}
		return true
	}
}

func anyOf(conds ...condition) condition {
	return func(m *domain.MatchResult, p *domain.MolecularProfile) bool {
		for _, c := range conds {
			if c(m, p) {
				return true
			}
		}
		return false
	}
}

func negate(c condition) condition {
	return func(m *domain.MatchResult, p *domain.MolecularProfile) bool {
		return !c(m, p)
	}
}
