package analysis

import (
	"regexp"
	"sort"
)

// Entities groups the named entities recognized in a legal text.
type Entities struct {
	People        []string `json:"personas"`
	Organizations []string `json:"organizaciones"`
	Dates         []string `json:"fechas"`
	Amounts       []string `json:"montos"`
}

var (
	peoplePattern        = regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+(?: [A-Z][a-z]+)*\b`)
	organizationsPattern = regexp.MustCompile(`\b(?:S\.A\.|S\.R\.L\.|E\.I\.R\.L\.|SAC|EIRL|SRL|SA)\b`)
	datesPattern         = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)
	amountsPattern       = regexp.MustCompile(`S/\.?\s*[\d,]+(?:\.\d{2})?|\$\s*[\d,]+(?:\.\d{2})?`)
)

// ExtractEntities pulls people, organizations, dates and monetary amounts
// out of free-form legal text with simple regex heuristics.
func ExtractEntities(text string) Entities {
	return Entities{
		People:        uniqueMatches(peoplePattern, text),
		Organizations: uniqueMatches(organizationsPattern, text),
		Dates:         uniqueMatches(datesPattern, text),
		Amounts:       uniqueMatches(amountsPattern, text),
	}
}

func uniqueMatches(pattern *regexp.Regexp, text string) []string {
	matches := pattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	unique := make([]string, 0, len(matches))
	for _, match := range matches {
		if _, ok := seen[match]; ok {
			continue
		}
		seen[match] = struct{}{}
		unique = append(unique, match)
	}
	sort.Strings(unique)
	return unique
}
