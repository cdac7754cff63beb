package service

import (
	"fmt"
	"strings"

	"github.com/oncology-therapy-mcp-server/internal/domain"
)

// Prompt is the rendered system and user message pair sent to the LLM.
type Prompt struct {
	System string
	User   string
}

// PromptTemplate renders the narrative prompt for one cancer type. Rendering
// is a pure function of its inputs, so identical inputs give byte-identical text.
type PromptTemplate struct {
	CancerType     domain.CancerType
	Categories     []domain.GeneCategory
	Considerations []string
}

// PromptTemplates is the closed set of narrative templates keyed by cancer type.
var PromptTemplates = map[domain.CancerType]PromptTemplate{
	domain.BreastCancer: {
		CancerType: domain.BreastCancer,
		Categories: []domain.GeneCategory{
			domain.Amplifications,
			domain.Deletions,
			domain.Mutations,
			domain.HighExpression,
			domain.LowExpression,
		},
		Considerations: []string{
			"TP53 mutations suggest more aggressive disease and may require more intensive therapy",
			"BRCA1/2 mutations indicate potential benefit from PARP inhibitors and platinum chemotherapy",
			"PIK3CA mutations in ER+ disease may benefit from PI3K inhibitors",
			"ERBB2 (HER2) amplification indicates need for HER2-targeted therapy",
			"MYC or CCND1 amplifications suggest genomic instability and may require more intensive approach",
			"PTEN or RB1 loss may impact therapy response",
		},
	},
	domain.LungCancer: {
		CancerType: domain.LungCancer,
		Categories: []domain.GeneCategory{
			domain.Amplifications,
			domain.Deletions,
			domain.Mutations,
			domain.StructuralVariants,
		},
		Considerations: []string{
			"EGFR mutations are key drivers in lung adenocarcinoma and indicate use of EGFR TKIs like Osimertinib",
			"ALK rearrangements indicate use of ALK TKIs like Alectinib",
			"ROS1 rearrangements suggest use of ROS1 TKIs like Entrectinib",
			"KRAS G12C mutations can be targeted with Sotorasib or Adagrasib",
			"TP53 mutations suggest more genomic instability and may require more intensive approach",
		},
	},
}

var promptAsks = []string{
	"Suggest an optimal therapy level (1-4, where 1 is low intensity and 4 is maximum intensity)",
	"Recommend specific therapies appropriate for this patient's molecular profile",
	"Note any special considerations based on specific genomic alterations",
	"Suggest appropriate follow-up and monitoring",
}

const noneToken = "None"

// BuildPrompt renders the template registered for the match's cancer type.
func BuildPrompt(match *domain.MatchResult, profile *domain.MolecularProfile) (Prompt, error) {
	tmpl, ok := PromptTemplates[match.CancerType]
	if !ok {
		return Prompt{}, fmt.Errorf("no prompt template for %s", match.CancerType)
	}
	return tmpl.Render(match, profile), nil
}

// Render builds the system and user prompts.
func (t PromptTemplate) Render(match *domain.MatchResult, profile *domain.MolecularProfile) Prompt {
	disease := strings.ToLower(t.CancerType.DisplayName())

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert oncologist specializing in precision medicine for %s.\n", disease)
	b.WriteString("You need to provide a therapy recommendation for a patient based on their molecular profile.\n\n")

	b.WriteString("Patient Profile:\n")
	fmt.Fprintf(&b, "- %s Subtype: %s\n", t.CancerType.DisplayName(), match.Subtype)
	b.WriteString("- Genomic Alterations:\n")
	for _, category := range t.Categories {
		fmt.Fprintf(&b, "    - %s: %s\n", category.Label(), joinOrNone(profile.GenesIn(category)))
	}

	b.WriteString("\nCurated Knowledge Base Assessment:\n")
	writeAssessment(&b, match)

	fmt.Fprintf(&b, "\nBased on this profile and your knowledge of %s therapeutics, please:\n", disease)
	for i, ask := range promptAsks {
		fmt.Fprintf(&b, "%d. %s\n", i+1, ask)
	}

	b.WriteString("\nConsider these important factors in your recommendation:\n")
	for _, c := range t.Considerations {
		fmt.Fprintf(&b, "- %s\n", c)
	}

	b.WriteString("\nProvide your recommendation in a concise, structured format. ")
	b.WriteString("Only include therapies that are supported by evidence and appropriate for this specific molecular profile.\n")

	return Prompt{
		System: fmt.Sprintf("You are an AI oncology assistant specializing in precision medicine for %s.", disease),
		User:   b.String(),
	}
}

func writeAssessment(b *strings.Builder, match *domain.MatchResult) {
	if !match.IsResolved() {
		b.WriteString("- Therapy Level: unresolved (no curated tier data for this subtype)\n")
	} else {
		fmt.Fprintf(b, "- Therapy Level: %d (%s)\n", int(match.Tier), match.Plan.Name)
		for _, item := range match.Plan.Recommendations {
			if item.Details != "" {
				fmt.Fprintf(b, "    - %s: %s\n", item.Therapy, item.Details)
			} else {
				fmt.Fprintf(b, "    - %s\n", item.Therapy)
			}
		}
		if match.Plan.FollowUp != "" {
			fmt.Fprintf(b, "- Follow-up: %s\n", match.Plan.FollowUp)
		}
	}

	if len(match.Biomarkers) == 0 {
		fmt.Fprintf(b, "- Actionable Biomarkers: %s\n", noneToken)
		return
	}
	b.WriteString("- Actionable Biomarkers:\n")
	for _, bm := range match.Biomarkers {
		fmt.Fprintf(b, "    - %s: %s\n", bm.ID, bm.Entry.ClinicalSignificance)
		for _, opt := range bm.Entry.TherapyOptions {
			fmt.Fprintf(b, "        - %s: %s\n", opt.Name, opt.Indication)
		}
	}
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return noneToken
	}
	return strings.Join(values, ", ")
}
