package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncology-therapy-mcp-server/internal/domain"
)

func tripleNegativeMatch() (*domain.MatchResult, *domain.MolecularProfile) {
	match := &domain.MatchResult{
		CancerType: domain.BreastCancer,
		Subtype:    "Triple Negative",
		Tier:       domain.TierStandard,
		TierSource: domain.TierFromDefault,
		Plan: domain.TherapyPlan{
			Name: "Standard Therapy",
			Recommendations: []domain.RecommendationItem{
				{Therapy: "Anthracycline and taxane-based chemotherapy", Details: "AC-T"},
				{Therapy: "Consider platinum agent"},
			},
			FollowUp: "Every 3 months",
		},
		Biomarkers: []domain.BiomarkerMatch{
			{
				ID:       "BRCA1_mutation",
				Gene:     "BRCA1",
				Category: domain.Mutations,
				Entry: domain.BiomarkerEntry{
					ID:                   "BRCA1_mutation",
					ClinicalSignificance: "Predicts PARP inhibitor sensitivity",
					TherapyOptions:       []domain.TherapyOption{{Name: "Olaparib", Indication: "Adjuvant"}},
				},
			},
		},
	}
	profile := &domain.MolecularProfile{
		CancerType: domain.BreastCancer,
		SubtypeKey: "Triple Negative",
		Genes: map[domain.GeneCategory][]string{
			domain.Mutations:      {"BRCA1", "TP53"},
			domain.Amplifications: {"MYC"},
		},
	}
	return match, profile
}

const tripleNegativePrompt = `You are an expert oncologist specializing in precision medicine for breast cancer.
You need to provide a therapy recommendation for a patient based on their molecular profile.

Patient Profile:
- Breast Cancer Subtype: Triple Negative
- Genomic Alterations:
    - Amplifications: MYC
    - Deletions: None
    - Mutations: BRCA1, TP53
    - High Expression: None
    - Low Expression: None

Curated Knowledge Base Assessment:
- Therapy Level: 2 (Standard Therapy)
    - Anthracycline and taxane-based chemotherapy: AC-T
    - Consider platinum agent
- Follow-up: Every 3 months
- Actionable Biomarkers:
    - BRCA1_mutation: Predicts PARP inhibitor sensitivity
        - Olaparib: Adjuvant

Based on this profile and your knowledge of breast cancer therapeutics, please:
1. Suggest an optimal therapy level (1-4, where 1 is low intensity and 4 is maximum intensity)
2. Recommend specific therapies appropriate for this patient's molecular profile
3. Note any special considerations based on specific genomic alterations
4. Suggest appropriate follow-up and monitoring

Consider these important factors in your recommendation:
- TP53 mutations suggest more aggressive disease and may require more intensive therapy
- BRCA1/2 mutations indicate potential benefit from PARP inhibitors and platinum chemotherapy
- PIK3CA mutations in ER+ disease may benefit from PI3K inhibitors
- ERBB2 (HER2) amplification indicates need for HER2-targeted therapy
- MYC or CCND1 amplifications suggest genomic instability and may require more intensive approach
- PTEN or RB1 loss may impact therapy response

Provide your recommendation in a concise, structured format. Only include therapies that are supported by evidence and appropriate for this specific molecular profile.
`

func TestBuildPrompt_Breast(t *testing.T) {
	match, profile := tripleNegativeMatch()

	prompt, err := BuildPrompt(match, profile)
	require.NoError(t, err)

	assert.Equal(t, "You are an AI oncology assistant specializing in precision medicine for breast cancer.", prompt.System)
	assert.Equal(t, tripleNegativePrompt, prompt.User)
}

func TestBuildPrompt_ByteIdentical(t *testing.T) {
	match, profile := tripleNegativeMatch()

	first, err := BuildPrompt(match, profile)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := BuildPrompt(match, profile)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestBuildPrompt_LungUnresolved(t *testing.T) {
	match := &domain.MatchResult{
		CancerType: domain.LungCancer,
		Subtype:    "LUAD ALK-rearranged",
		Tier:       domain.TierUnresolved,
		Plan:       domain.TherapyPlan{Recommendations: []domain.RecommendationItem{}},
		Biomarkers: []domain.BiomarkerMatch{},
	}
	profile := &domain.MolecularProfile{
		CancerType: domain.LungCancer,
		SubtypeKey: "LUAD ALK-rearranged",
		Genes:      map[domain.GeneCategory][]string{domain.StructuralVariants: {"ALK"}},
	}

	prompt, err := BuildPrompt(match, profile)
	require.NoError(t, err)

	assert.Equal(t, "You are an AI oncology assistant specializing in precision medicine for lung cancer.", prompt.System)
	assert.Contains(t, prompt.User, "- Lung Cancer Subtype: LUAD ALK-rearranged\n")
	assert.Contains(t, prompt.User, "    - Structural Variants: ALK\n")
	assert.Contains(t, prompt.User, "- Therapy Level: unresolved (no curated tier data for this subtype)\n")
	assert.Contains(t, prompt.User, "- Actionable Biomarkers: None\n")
	assert.Contains(t, prompt.User, "ALK rearrangements indicate use of ALK TKIs like Alectinib")
	assert.NotContains(t, prompt.User, "High Expression")
}

func TestBuildPrompt_UnknownCancerType(t *testing.T) {
	_, err := BuildPrompt(&domain.MatchResult{CancerType: "colon_cancer"}, &domain.MolecularProfile{})
	assert.Error(t, err)
}

func TestPromptTemplates_CoverCancerTypes(t *testing.T) {
	for _, ct := range domain.CancerTypes {
		tmpl, ok := PromptTemplates[ct]
		require.True(t, ok, "missing template for %s", ct)
		assert.Equal(t, ct, tmpl.CancerType)
		assert.NotEmpty(t, tmpl.Categories)
		for _, c := range tmpl.Considerations {
			assert.False(t, strings.HasSuffix(c, "."), "consideration %q", c)
		}
	}
}
