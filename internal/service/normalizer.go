package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"

	"github.com/oncology-therapy-mcp-server/internal/domain"
)

// subtypeKeys are the profile keys that may carry the subtype name, in priority order.
var subtypeKeys = []string{"subtype_key", "subtype", "breast_cancer_subtype", "lung_cancer_subtype"}

// categoryAliases maps alternative profile keys onto gene categories.
var categoryAliases = map[domain.GeneCategory][]string{
	domain.Amplifications:     {"gene_amplifications"},
	domain.Deletions:          {"gene_deletions"},
	domain.Mutations:          {"gene_mutations"},
	domain.HighExpression:     {"gene_high_expression"},
	domain.LowExpression:      {"gene_low_expression"},
	domain.StructuralVariants: {"gene_structural_variants"},
}

var tierKeys = []string{"tier", "optimal_therapy_level"}

var histologyKeys = []string{"histology", "study_of_origin"}

// ProfileNormalizer turns loosely typed patient data into a MolecularProfile.
// Only the identifying fields are mandatory; everything else defaults permissively.
type ProfileNormalizer struct {
	logger *logrus.Logger
}

// NewProfileNormalizer creates a normalizer.
func NewProfileNormalizer(logger *logrus.Logger) *ProfileNormalizer {
	return &ProfileNormalizer{logger: logger}
}

// Normalize validates the identifying fields and canonicalizes gene categories.
func (n *ProfileNormalizer) Normalize(raw map[string]any) (*domain.MolecularProfile, error) {
	rawCancerType, ok := stringField(raw, "cancer_type")
	if !ok {
		return nil, domain.NewProfileValidationError("cancer_type", "cancer_type is required", raw["cancer_type"])
	}
	cancerType, err := domain.ParseCancerType(rawCancerType)
	if err != nil {
		return nil, domain.NewProfileValidationError("cancer_type",
			fmt.Sprintf("unrecognized cancer type %q", rawCancerType), rawCancerType)
	}

	subtype := ""
	for _, key := range subtypeKeys {
		if v, ok := stringField(raw, key); ok {
			subtype = v
			break
		}
	}
	// subtype_key may name the field that holds the subtype, e.g. "breast_cancer_subtype".
	if indirect, ok := stringField(raw, subtype); ok && subtype != "" {
		subtype = indirect
	}
	if subtype == "" {
		return nil, domain.NewProfileValidationError("subtype_key", "subtype_key is required", nil)
	}

	profile := &domain.MolecularProfile{
		CancerType: cancerType,
		SubtypeKey: subtype,
		Genes:      make(map[domain.GeneCategory][]string, len(domain.GeneCategories)),
	}

	// A single caser is not safe for concurrent use.
	folder := cases.Fold()
	for _, category := range domain.GeneCategories {
		var values []string
		values = append(values, geneValues(raw[string(category)])...)
		for _, alias := range categoryAliases[category] {
			values = append(values, geneValues(raw[alias])...)
		}
		profile.Genes[category] = canonicalGeneSet(values, folder)
	}

	profile.RequestedTier = n.requestedTier(raw)
	for _, key := range histologyKeys {
		if v, ok := stringField(raw, key); ok {
			profile.Histology = v
			break
		}
	}

	n.logger.WithFields(logrus.Fields{
		"cancer_type": cancerType,
		"subtype":     subtype,
		"gene_count":  profile.GeneCount(),
	}).Debug("Profile normalized")

	return profile, nil
}

// requestedTier reads an optional tier hint; invalid values are ignored.
func (n *ProfileNormalizer) requestedTier(raw map[string]any) domain.Tier {
	for _, key := range tierKeys {
		v, present := raw[key]
		if !present || v == nil {
			continue
		}

		var tier domain.Tier
		switch t := v.(type) {
		case int:
			tier = domain.Tier(t)
		case int64:
			tier = domain.Tier(t)
		case float64:
			if t != float64(int(t)) {
				continue
			}
			tier = domain.Tier(int(t))
		case string:
			parsed, err := strconv.Atoi(strings.TrimSpace(t))
			if err != nil {
				n.logger.WithField("value", t).Debug("Ignoring non-numeric tier hint")
				continue
			}
			tier = domain.Tier(parsed)
		default:
			continue
		}

		if tier.IsValid() {
			return tier
		}
		n.logger.WithField("value", v).Debug("Ignoring out of range tier hint")
	}
	return domain.TierUnresolved
}

// canonicalGeneSet trims, drops blanks and removes case-insensitive
// duplicates, then sorts by folded value. Among spellings of one gene the
// smallest wins, so upper-case HGNC symbols are kept whatever the input order.
func canonicalGeneSet(values []string, folder cases.Caser) []string {
	spelling := make(map[string]string, len(values))
	for _, v := range values {
		display := strings.TrimSpace(v)
		if display == "" {
			continue
		}
		folded := folder.String(display)
		if current, ok := spelling[folded]; !ok || display < current {
			spelling[folded] = display
		}
	}

	folded := make([]string, 0, len(spelling))
	for f := range spelling {
		folded = append(folded, f)
	}
	sort.Strings(folded)

	out := make([]string, len(folded))
	for i, f := range folded {
		out[i] = spelling[f]
	}
	return out
}

// geneValues accepts []string, []any or a delimited string.
func geneValues(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.FieldsFunc(t, func(r rune) bool {
			return r == ',' || r == ';' || r == '|'
		})
	default:
		return nil
	}
}

func stringField(raw map[string]any, key string) (string, bool) {
	v, ok := raw[key].(string)
	if !ok {
		if ct, isType := raw[key].(domain.CancerType); isType {
			v, ok = string(ct), true
		}
	}
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
