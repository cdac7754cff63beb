package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/oncology-therapy-mcp-server/internal/domain"
	"github.com/oncology-therapy-mcp-server/internal/service"
)

// RecommendTherapyParams defines parameters for the recommend_therapy and
// build_narrative_prompt tools
type RecommendTherapyParams struct {
	CancerType         string   `json:"cancer_type" jsonschema:"breast_cancer or lung_cancer"`
	SubtypeKey         string   `json:"subtype_key" jsonschema:"curated subtype name such as Triple Negative or LUAD EGFR-mutated"`
	Mutations          []string `json:"mutations,omitempty" jsonschema:"genes carrying point mutations, optionally with a detail such as KRAS:G12C"`
	Amplifications     []string `json:"amplifications,omitempty" jsonschema:"amplified genes such as ERBB2"`
	Deletions          []string `json:"deletions,omitempty" jsonschema:"deleted or lost genes such as PTEN"`
	HighExpression     []string `json:"high_expression,omitempty" jsonschema:"overexpressed genes"`
	LowExpression      []string `json:"low_expression,omitempty" jsonschema:"underexpressed genes"`
	StructuralVariants []string `json:"structural_variants,omitempty" jsonschema:"genes involved in fusions or rearrangements such as ALK"`
	Tier               int      `json:"tier,omitempty" jsonschema:"therapy intensity from 1 (low) to 4 (maximum), defaults to 2"`
	Histology          string   `json:"histology,omitempty" jsonschema:"tumor histology such as Lung Adenocarcinoma, used for subtype suggestions"`
	Advise             bool     `json:"advise,omitempty" jsonschema:"also suggest a subtype and tier from the profile without changing the plan"`
}

// ListSubtypesParams defines parameters for the list_subtypes tool
type ListSubtypesParams struct {
	CancerType string `json:"cancer_type" jsonschema:"breast_cancer or lung_cancer"`
}

// ListSubtypesResult defines the result structure for the list_subtypes tool
type ListSubtypesResult struct {
	CancerType domain.CancerType        `json:"cancer_type"`
	Subtypes   []service.SubtypeSummary `json:"subtypes"`
}

// NarrativePromptResult defines the result structure for the build_narrative_prompt tool
type NarrativePromptResult struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// handleRecommendTherapy handles the recommend_therapy tool invocation
func (s *Server) handleRecommendTherapy(ctx context.Context, req *mcp.CallToolRequest, params RecommendTherapyParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":        ToolRecommendTherapy,
		"cancer_type": params.CancerType,
	}).Info("Tool invoked")

	cancerType, opts, errResult := s.parseProfileParams(params)
	if errResult != nil {
		return errResult, nil, nil
	}

	rec, err := s.recommender.Recommend(ctx, profileFromParams(params), cancerType, opts...)
	if err != nil {
		return s.createErrorResult("Recommendation failed", err), nil, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summarize(rec)},
		},
	}, rec, nil
}

// handleListSubtypes handles the list_subtypes tool invocation
func (s *Server) handleListSubtypes(ctx context.Context, req *mcp.CallToolRequest, params ListSubtypesParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolListSubtypes).Info("Tool invoked")

	cancerType, err := domain.ParseCancerType(params.CancerType)
	if err != nil {
		return s.createErrorResult("Invalid cancer_type", err), nil, nil
	}

	subtypes, err := s.recommender.Subtypes(ctx, cancerType)
	if err != nil {
		return s.createErrorResult("Failed to list subtypes", err), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s subtypes:\n", cancerType.DisplayName())
	for _, subtype := range subtypes {
		tiers := "no curated tiers"
		if len(subtype.Tiers) > 0 {
			labels := make([]string, 0, len(subtype.Tiers))
			for _, tier := range subtype.Tiers {
				labels = append(labels, tier.String())
			}
			tiers = "tiers " + strings.Join(labels, ", ")
		}
		fmt.Fprintf(&b, "- %s (%s)\n", subtype.Name, tiers)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: b.String()},
		},
	}, ListSubtypesResult{CancerType: cancerType, Subtypes: subtypes}, nil
}

// handleNarrativePrompt handles the build_narrative_prompt tool invocation
func (s *Server) handleNarrativePrompt(ctx context.Context, req *mcp.CallToolRequest, params RecommendTherapyParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolNarrativePrompt).Info("Tool invoked")

	cancerType, opts, errResult := s.parseProfileParams(params)
	if errResult != nil {
		return errResult, nil, nil
	}

	prompt, err := s.recommender.Prompt(ctx, profileFromParams(params), cancerType, opts...)
	if err != nil {
		return s.createErrorResult("Failed to build prompt", err), nil, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: prompt.User},
		},
	}, NarrativePromptResult{System: prompt.System, User: prompt.User}, nil
}

func (s *Server) parseProfileParams(params RecommendTherapyParams) (domain.CancerType, []service.RecommendOption, *mcp.CallToolResult) {
	if params.SubtypeKey == "" {
		return "", nil, s.createErrorResult("Missing required parameter", fmt.Errorf("subtype_key is required"))
	}

	cancerType, err := domain.ParseCancerType(params.CancerType)
	if err != nil {
		return "", nil, s.createErrorResult("Invalid cancer_type", err)
	}

	var opts []service.RecommendOption
	if params.Tier != 0 {
		opts = append(opts, service.WithTier(domain.Tier(params.Tier)))
	}
	if params.Advise {
		opts = append(opts, service.WithAdvice())
	}
	return cancerType, opts, nil
}

// profileFromParams builds the raw profile map the normalizer expects.
func profileFromParams(params RecommendTherapyParams) map[string]any {
	raw := map[string]any{"subtype_key": params.SubtypeKey}
	if params.Histology != "" {
		raw["histology"] = params.Histology
	}

	categories := map[domain.GeneCategory][]string{
		domain.Mutations:          params.Mutations,
		domain.Amplifications:     params.Amplifications,
		domain.Deletions:          params.Deletions,
		domain.HighExpression:     params.HighExpression,
		domain.LowExpression:      params.LowExpression,
		domain.StructuralVariants: params.StructuralVariants,
	}
	for category, genes := range categories {
		if len(genes) > 0 {
			raw[string(category)] = genes
		}
	}
	return raw
}

func summarize(rec *domain.Recommendation) string {
	match := rec.Match
	var b strings.Builder

	fmt.Fprintf(&b, "Therapy recommendation for %s (%s)\n", match.Subtype, match.CancerType.DisplayName())
	if match.IsResolved() {
		fmt.Fprintf(&b, "Tier: %s (%s), source: %s\n", match.Tier, match.Plan.Name, match.TierSource)
		for i, item := range match.Plan.Recommendations {
			line := item.Therapy
			if item.Details != "" {
				line += ": " + item.Details
			}
			fmt.Fprintf(&b, "  %d. %s\n", i+1, line)
		}
	} else {
		b.WriteString("Tier: unresolved, no curated plan for this subtype\n")
	}

	if len(match.Biomarkers) > 0 {
		ids := make([]string, 0, len(match.Biomarkers))
		for _, bm := range match.Biomarkers {
			ids = append(ids, bm.ID)
		}
		fmt.Fprintf(&b, "Biomarkers: %s\n", strings.Join(ids, ", "))
	}

	for _, vt := range match.VariantTherapies {
		fmt.Fprintf(&b, "Variant therapy: %s (%s)\n", vt.Therapy, vt.Indication)
	}

	if advice := match.Advice; advice != nil {
		subtype := advice.SuggestedSubtype
		if subtype == "" {
			subtype = "undetermined"
		}
		fmt.Fprintf(&b, "Suggested: subtype %s, tier %s (score %.1f)\n", subtype, advice.SuggestedTier, advice.Score)
		for _, factor := range advice.Factors {
			fmt.Fprintf(&b, "  + %s\n", factor)
		}
	}

	if len(rec.Considerations) > 0 {
		b.WriteString("Considerations:\n")
		for _, c := range rec.Considerations {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}

	fmt.Fprintf(&b, "Narrative (%s):\n%s\n", rec.NarrativeSource, rec.Narrative)
	return b.String()
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
		s.logger.WithError(err).Warn(message)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
