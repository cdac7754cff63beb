package service

import (
	"sort"
	"strings"

	"github.com/oncology-therapy-mcp-server/internal/domain"
)

// Biomarker identifier convention.
//
// A profile entry is split into a gene token and an optional detail at the
// first ':' or space ("KRAS:G12C" and "KRAS G12C" both give gene KRAS, detail
// G12C). Candidate identifiers are generated per category in the order below
// and matched exactly, case-sensitively, against the curated special_biomarkers
// keys:
//
//	amplifications       {GENE}_amplification
//	deletions            {GENE}_loss, {GENE}_deletion
//	mutations            {GENE}_{DETAIL}_mutation (only with a detail), {GENE}_mutation
//	high_expression      {GENE}_high_expression, {GENE}_overexpression
//	low_expression       {GENE}_low_expression
//	structural_variants  {GENE}_rearrangement, {GENE}_fusion
//
// Curated keys use official HGNC casing. Candidates are built from the gene as
// given and, when it differs, from its upper-cased symbol.
var biomarkerSuffixes = map[domain.GeneCategory][]string{
	domain.Amplifications:     {"amplification"},
	domain.Deletions:          {"loss", "deletion"},
	domain.Mutations:          {"mutation"},
	domain.HighExpression:     {"high_expression", "overexpression"},
	domain.LowExpression:      {"low_expression"},
	domain.StructuralVariants: {"rearrangement", "fusion"},
}

// splitGene separates "KRAS:G12C" into ("KRAS", "G12C").
func splitGene(entry string) (gene, detail string) {
	entry = strings.TrimSpace(entry)
	if i := strings.IndexAny(entry, ": "); i >= 0 {
		return entry[:i], strings.TrimSpace(entry[i+1:])
	}
	return entry, ""
}

// BiomarkerCandidates returns the identifiers a profile entry may match, most
// specific first.
func BiomarkerCandidates(category domain.GeneCategory, entry string) []string {
	gene, detail := splitGene(entry)
	if gene == "" {
		return nil
	}

	spellings := []string{gene}
	if upper := strings.ToUpper(gene); upper != gene {
		spellings = append(spellings, upper)
	}

	var ids []string
	for _, symbol := range spellings {
		if category == domain.Mutations && detail != "" && !strings.ContainsAny(detail, " :") {
			ids = append(ids, symbol+"_"+detail+"_mutation")
		}
		for _, suffix := range biomarkerSuffixes[category] {
			ids = append(ids, symbol+"_"+suffix)
		}
	}
	return ids
}

// matchBiomarkers walks the profile in category order, then by gene symbol,
// and collects every curated biomarker hit once.
func matchBiomarkers(profile *domain.MolecularProfile, kb *domain.KnowledgeBase) []domain.BiomarkerMatch {
	matches := []domain.BiomarkerMatch{}
	matched := make(map[string]bool)

	for _, category := range domain.GeneCategories {
		genes := append([]string(nil), profile.GenesIn(category)...)
		sort.Strings(genes)

		for _, entry := range genes {
			for _, id := range BiomarkerCandidates(category, entry) {
				biomarker, ok := kb.Biomarkers[id]
				if !ok || matched[id] {
					continue
				}
				matched[id] = true
				matches = append(matches, domain.BiomarkerMatch{
					ID:       id,
					Gene:     entry,
					Category: category,
					Entry:    biomarker.Clone(),
				})
			}
		}
	}
	return matches
}

// subtypeBiomarkerTherapies keeps the subtype's biomarker therapies whose
// biomarker was matched, in curated order.
func subtypeBiomarkerTherapies(entry domain.SubtypeEntry, matches []domain.BiomarkerMatch) []domain.BiomarkerTherapy {
	if len(entry.BiomarkerTherapies) == 0 || len(matches) == 0 {
		return nil
	}

	hit := make(map[string]bool, len(matches))
	for _, m := range matches {
		hit[m.ID] = true
	}

	var therapies []domain.BiomarkerTherapy
	for _, bt := range entry.BiomarkerTherapies {
		if hit[bt.Biomarker] {
			therapies = append(therapies, bt)
		}
	}
	return therapies
}
