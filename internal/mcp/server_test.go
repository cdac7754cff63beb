package mcp

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncology-therapy-mcp-server/internal/domain"
	"github.com/oncology-therapy-mcp-server/internal/knowledgebase"
	"github.com/oncology-therapy-mcp-server/internal/logging"
	"github.com/oncology-therapy-mcp-server/internal/service"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := logging.Discard()

	store, err := knowledgebase.NewStore(knowledgebase.NewEmbeddedSource(), 4, knowledgebase.WithLogger(logger))
	require.NoError(t, err)
	composer := service.NewNarrativeComposer(service.DefaultNarrativeSettings(), logger, nil)
	recommender := service.NewRecommender(store, composer, nil, logger)

	return NewServer(domain.MCPConfig{
		ServerName:    "oncology-therapy-recommender",
		ServerVersion: "test",
	}, recommender, logger)
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestNewServer(t *testing.T) {
	server := newTestServer(t)

	assert.NotNil(t, server.mcpServer)
	assert.NotNil(t, server.recommender)
	assert.NotNil(t, server.logger)
}

func TestHandleRecommendTherapy(t *testing.T) {
	server := newTestServer(t)

	result, out, err := server.handleRecommendTherapy(context.Background(), nil, RecommendTherapyParams{
		CancerType:     "breast_cancer",
		SubtypeKey:     "Triple Negative",
		Mutations:      []string{"BRCA1", "TP53"},
		Amplifications: []string{"ERBB2"},
		Tier:           3,
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	rec, ok := out.(*domain.Recommendation)
	require.True(t, ok)
	assert.Equal(t, domain.TierIntensified, rec.Match.Tier)
	assert.Equal(t, domain.TierFromCaller, rec.Match.TierSource)
	assert.Equal(t, domain.NarrativeUnavailable, rec.NarrativeSource)

	text := resultText(t, result)
	assert.Contains(t, text, "Therapy recommendation for Triple Negative (Breast Cancer)")
	assert.Contains(t, text, "Tier: 3 (Intensified Therapy), source: explicit")
	assert.Contains(t, text, "Biomarkers: ERBB2_amplification, BRCA1_mutation")
	assert.Contains(t, text, "Narrative (unavailable):\n"+service.FallbackNarrative)
}

func TestHandleRecommendTherapy_Unresolved(t *testing.T) {
	server := newTestServer(t)

	result, out, err := server.handleRecommendTherapy(context.Background(), nil, RecommendTherapyParams{
		CancerType:         "lung_cancer",
		SubtypeKey:         "LUAD ROS1-rearranged",
		StructuralVariants: []string{"ROS1"},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	rec := out.(*domain.Recommendation)
	assert.Equal(t, domain.TierUnresolved, rec.Match.Tier)
	assert.Contains(t, resultText(t, result), "Tier: unresolved")
	assert.Contains(t, resultText(t, result), "Biomarkers: ROS1_rearrangement")
}

func TestHandleRecommendTherapy_Errors(t *testing.T) {
	tests := []struct {
		name     string
		params   RecommendTherapyParams
		wantText string
	}{
		{
			name:     "missing subtype",
			params:   RecommendTherapyParams{CancerType: "lung_cancer"},
			wantText: "Error: Missing required parameter - subtype_key is required",
		},
		{
			name:     "unsupported cancer type",
			params:   RecommendTherapyParams{CancerType: "colon_cancer", SubtypeKey: "CMS1"},
			wantText: "Error: Invalid cancer_type",
		},
		{
			name:     "unknown subtype",
			params:   RecommendTherapyParams{CancerType: "lung_cancer", SubtypeKey: "SCLC"},
			wantText: "Error: Recommendation failed",
		},
		{
			name:     "tier out of range",
			params:   RecommendTherapyParams{CancerType: "lung_cancer", SubtypeKey: "LUSC", Tier: 9},
			wantText: "Error: Recommendation failed",
		},
	}

	server := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, out, err := server.handleRecommendTherapy(context.Background(), nil, tt.params)
			require.NoError(t, err)
			assert.Nil(t, out)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.wantText)
		})
	}
}

func TestHandleListSubtypes(t *testing.T) {
	server := newTestServer(t)

	result, out, err := server.handleListSubtypes(context.Background(), nil, ListSubtypesParams{CancerType: "lung_cancer"})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	listing, ok := out.(ListSubtypesResult)
	require.True(t, ok)
	assert.Equal(t, domain.LungCancer, listing.CancerType)
	assert.Len(t, listing.Subtypes, 6)

	text := resultText(t, result)
	assert.Contains(t, text, "- LUSC (tiers 1, 2, 3, 4)\n")
	assert.Contains(t, text, "- LUAD ALK-rearranged (no curated tiers)\n")

	result, _, err = server.handleListSubtypes(context.Background(), nil, ListSubtypesParams{CancerType: "skin"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleNarrativePrompt(t *testing.T) {
	server := newTestServer(t)

	result, out, err := server.handleNarrativePrompt(context.Background(), nil, RecommendTherapyParams{
		CancerType: "lung_cancer",
		SubtypeKey: "LUAD KRAS-mutated",
		Mutations:  []string{"KRAS:G12C"},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	prompt, ok := out.(NarrativePromptResult)
	require.True(t, ok)
	assert.NotEmpty(t, prompt.System)
	assert.Equal(t, prompt.User, resultText(t, result))
	assert.Contains(t, prompt.User, "KRAS_G12C_mutation")
}

func TestProfileFromParams(t *testing.T) {
	raw := profileFromParams(RecommendTherapyParams{
		SubtypeKey: "LUSC",
		Deletions:  []string{"CDKN2A"},
	})

	assert.Equal(t, map[string]any{
		"subtype_key": "LUSC",
		"deletions":   []string{"CDKN2A"},
	}, raw)
}

func TestHandleRecommendTherapy_AdviceAndVariants(t *testing.T) {
	server := newTestServer(t)

	result, out, err := server.handleRecommendTherapy(context.Background(), nil, RecommendTherapyParams{
		CancerType: "lung_cancer",
		SubtypeKey: "LUAD KRAS-mutated",
		Mutations:  []string{"KRAS:G12C", "TP53"},
		Histology:  "Lung Adenocarcinoma",
		Advise:     true,
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	rec := out.(*domain.Recommendation)
	require.NotNil(t, rec.Match.Advice)
	assert.Equal(t, "LUAD KRAS-mutated", rec.Match.Advice.SuggestedSubtype)
	assert.Equal(t, domain.TierStandard, rec.Match.Tier)

	text := resultText(t, result)
	assert.Contains(t, text, "Variant therapy: Sotorasib or Adagrasib (FDA-approved for KRAS G12C mutation)")
	assert.Contains(t, text, "Suggested: subtype LUAD KRAS-mutated, tier 2 (score 2.5)")
	assert.Contains(t, text, "  + TP53 mutation (+0.5)")
}
