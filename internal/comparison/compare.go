package comparison

import (
	"sort"
	"strings"

	"github.com/LimaLegalLab/jurisprudencia/backend/internal/rulings"
	"github.com/pmezard/go-difflib/difflib"
)

const (
	diffContextLines = 3
	maxDiffLines     = 50
)

// FieldComparison holds both values of one metadata field and whether they match.
type FieldComparison struct {
	First  string `json:"sentencia1"`
	Second string `json:"sentencia2"`
	Equal  bool   `json:"equal"`
}

// UniqueKeywords lists the keywords only one side carries.
type UniqueKeywords struct {
	First  []string `json:"sentencia1"`
	Second []string `json:"sentencia2"`
}

// Result is the structured comparison of exactly two rulings.
type Result struct {
	Metadata          map[string]FieldComparison `json:"metadata"`
	ContentSimilarity float64                    `json:"content_similarity"`
	CommonKeywords    []string                   `json:"common_keywords"`
	UniqueKeywords    UniqueKeywords             `json:"unique_keywords"`
	GroundsDiff       []string                   `json:"fundamentos_diff"`
}

// Compare builds the structured diff between two rulings: per-field equality,
// keyword set differences, a character-level similarity ratio over the
// grounds text and a bounded unified diff. Pure; identical inputs always
// yield identical results.
func Compare(first, second rulings.Ruling) Result {
	metadata := map[string]FieldComparison{
		"numero_sentencia":  compareField(first.RulingNumber, second.RulingNumber),
		"fecha_publicacion": compareField(first.PublicationDate, second.PublicationDate),
		"nombre_demandante": compareField(first.Plaintiff, second.Plaintiff),
		"nombre_demandado":  compareField(first.Defendant, second.Defendant),
		"numero_expediente": compareField(first.CaseFileNumber, second.CaseFileNumber),
	}

	firstKeywords := first.KeywordSet()
	secondKeywords := second.KeywordSet()

	firstGrounds := strings.Join(first.GroundsList(), " ")
	secondGrounds := strings.Join(second.GroundsList(), " ")

	return Result{
		Metadata:          metadata,
		ContentSimilarity: contentSimilarity(firstGrounds, secondGrounds),
		CommonKeywords:    sortedIntersection(firstKeywords, secondKeywords),
		UniqueKeywords: UniqueKeywords{
			First:  sortedDifference(firstKeywords, secondKeywords),
			Second: sortedDifference(secondKeywords, firstKeywords),
		},
		GroundsDiff: groundsDiff(first.Grounds, second.Grounds),
	}
}

func compareField(first, second string) FieldComparison {
	return FieldComparison{First: first, Second: second, Equal: first == second}
}

// contentSimilarity is the longest-matching-blocks ratio over the raw
// character sequences, in [0,1].
func contentSimilarity(first, second string) float64 {
	if first == "" && second == "" {
		return 1.0
	}
	matcher := difflib.NewMatcher(strings.Split(first, ""), strings.Split(second, ""))
	return matcher.Ratio()
}

// groundsDiff is a line-oriented unified diff with three context lines,
// truncated to the first 50 lines.
func groundsDiff(first, second string) []string {
	diffText, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:       difflib.SplitLines(first),
		B:       difflib.SplitLines(second),
		Context: diffContextLines,
	})
	if err != nil || diffText == "" {
		return []string{}
	}
	lines := strings.Split(strings.TrimRight(diffText, "\n"), "\n")
	if len(lines) > maxDiffLines {
		lines = lines[:maxDiffLines]
	}
	return lines
}

func sortedIntersection(first, second map[string]struct{}) []string {
	common := make([]string, 0)
	for keyword := range first {
		if _, ok := second[keyword]; ok {
			common = append(common, keyword)
		}
	}
	sort.Strings(common)
	return common
}

func sortedDifference(keep, remove map[string]struct{}) []string {
	unique := make([]string, 0)
	for keyword := range keep {
		if _, ok := remove[keyword]; !ok {
			unique = append(unique, keyword)
		}
	}
	sort.Strings(unique)
	return unique
}
