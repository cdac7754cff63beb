package knowledgebase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/oncology-therapy-mcp-server/internal/domain"
)

var errDuplicateKey = errors.New("duplicate key")

type rawDocument struct {
	Subtypes          json.RawMessage `json:"subtypes"`
	SpecialBiomarkers json.RawMessage `json:"special_biomarkers"`
	TherapyLevels     json.RawMessage `json:"therapy_levels"`
}

type rawSubtype struct {
	Description        string                    `json:"description"`
	TherapyLevels      json.RawMessage           `json:"therapy_levels"`
	BiomarkerTherapies []domain.BiomarkerTherapy `json:"biomarker_therapies"`
}

// Parse validates a curated document and converts it into a typed KnowledgeBase.
// Any shape violation fails the whole document with a KnowledgeBaseError.
func Parse(cancerType domain.CancerType, document []byte) (*domain.KnowledgeBase, error) {
	fail := func(reason string, err error) error {
		return domain.NewKnowledgeBaseError(cancerType, reason, err)
	}

	if len(bytes.TrimSpace(document)) == 0 {
		return nil, fail("document is empty", nil)
	}

	var raw rawDocument
	if err := json.Unmarshal(document, &raw); err != nil {
		return nil, fail("document is not valid JSON", err)
	}
	if isAbsent(raw.Subtypes) {
		return nil, fail("missing required key 'subtypes'", nil)
	}
	if isAbsent(raw.TherapyLevels) {
		return nil, fail("missing required key 'therapy_levels'", nil)
	}

	tiers, err := parseTierMetadata(raw.TherapyLevels)
	if err != nil {
		return nil, fail("invalid top-level therapy_levels", err)
	}

	biomarkers, err := decodeUniqueObject[domain.BiomarkerEntry](raw.SpecialBiomarkers)
	if err != nil {
		return nil, fail("invalid special_biomarkers", err)
	}
	for id, entry := range biomarkers {
		if strings.TrimSpace(id) == "" {
			return nil, fail("special_biomarkers contains a blank identifier", nil)
		}
		entry.ID = id
		biomarkers[id] = entry
	}

	rawSubtypes, err := decodeUniqueObject[rawSubtype](raw.Subtypes)
	if err != nil {
		return nil, fail("invalid subtypes", err)
	}

	subtypes := make(map[string]domain.SubtypeEntry, len(rawSubtypes))
	for name, rs := range rawSubtypes {
		if strings.TrimSpace(name) == "" {
			return nil, fail("subtypes contains a blank name", nil)
		}
		entry, err := parseSubtype(name, rs, tiers)
		if err != nil {
			return nil, fail(fmt.Sprintf("invalid subtype %q", name), err)
		}
		subtypes[name] = entry
	}

	return &domain.KnowledgeBase{
		CancerType: cancerType,
		Subtypes:   subtypes,
		Biomarkers: biomarkers,
		Tiers:      tiers,
	}, nil
}

// parseTierMetadata enforces that the shared tier map is exactly {1,2,3,4}.
func parseTierMetadata(raw json.RawMessage) (map[domain.Tier]domain.TierMetadata, error) {
	byKey, err := decodeUniqueObject[domain.TierMetadata](raw)
	if err != nil {
		return nil, err
	}

	tiers := make(map[domain.Tier]domain.TierMetadata, len(byKey))
	for key, meta := range byKey {
		tier, err := domain.ParseTier(key)
		if err != nil {
			return nil, err
		}
		if _, dup := tiers[tier]; dup {
			return nil, fmt.Errorf("%w: tier %d", errDuplicateKey, tier)
		}
		tiers[tier] = meta
	}

	for _, tier := range domain.Tiers {
		if _, ok := tiers[tier]; !ok {
			return nil, fmt.Errorf("tier %d is missing", tier)
		}
	}
	return tiers, nil
}

func parseSubtype(name string, rs rawSubtype, tiers map[domain.Tier]domain.TierMetadata) (domain.SubtypeEntry, error) {
	plansByKey, err := decodeUniqueObject[domain.TherapyPlan](rs.TherapyLevels)
	if err != nil {
		return domain.SubtypeEntry{}, fmt.Errorf("therapy_levels: %w", err)
	}

	plans := make(map[domain.Tier]domain.TherapyPlan, len(plansByKey))
	for key, plan := range plansByKey {
		tier, err := domain.ParseTier(key)
		if err != nil {
			return domain.SubtypeEntry{}, fmt.Errorf("therapy_levels: %w", err)
		}
		if _, dup := plans[tier]; dup {
			return domain.SubtypeEntry{}, fmt.Errorf("therapy_levels: %w: tier %d", errDuplicateKey, tier)
		}
		for i, item := range plan.Recommendations {
			if strings.TrimSpace(item.Therapy) == "" {
				return domain.SubtypeEntry{}, fmt.Errorf("tier %d recommendation %d has no therapy", tier, i)
			}
		}
		plans[tier] = inheritTierMetadata(plan, tiers[tier])
	}

	for i, bt := range rs.BiomarkerTherapies {
		if bt.Biomarker == "" || bt.Therapy == "" {
			return domain.SubtypeEntry{}, fmt.Errorf("biomarker_therapies[%d] requires biomarker and therapy", i)
		}
	}

	return domain.SubtypeEntry{
		Name:               name,
		Description:        rs.Description,
		TherapyLevels:      plans,
		BiomarkerTherapies: rs.BiomarkerTherapies,
	}, nil
}

// inheritTierMetadata fills plan fields the curator left out from the shared tier.
func inheritTierMetadata(plan domain.TherapyPlan, meta domain.TierMetadata) domain.TherapyPlan {
	if plan.Name == "" {
		plan.Name = meta.Name
	}
	if plan.Description == "" {
		plan.Description = meta.Description
	}
	if plan.FollowUp == "" {
		plan.FollowUp = meta.FollowUp
	}
	if len(plan.Indications) == 0 && len(meta.Indications) > 0 {
		plan.Indications = append([]string(nil), meta.Indications...)
	}
	if plan.Recommendations == nil {
		plan.Recommendations = []domain.RecommendationItem{}
	}
	return plan
}

// decodeUniqueObject decodes a JSON object into a map, rejecting repeated keys
// that encoding/json would otherwise silently overwrite.
func decodeUniqueObject[T any](raw json.RawMessage) (map[string]T, error) {
	out := make(map[string]T)
	if isAbsent(raw) {
		return out, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("%w: %q", errDuplicateKey, key)
		}

		var value T
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("%q: %w", key, err)
		}
		out[key] = value
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
