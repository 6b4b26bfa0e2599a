package analysis

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Spanish stopwords excluded from keyword extraction and the similarity
// vocabulary. Ported from the source system's analysis configuration.
var Stopwords = map[string]struct{}{
	"el": {}, "la": {}, "de": {}, "en": {}, "a": {}, "que": {}, "y": {},
	"los": {}, "las": {}, "del": {}, "al": {}, "es": {}, "un": {}, "una": {},
	"por": {}, "para": {}, "con": {}, "se": {}, "su": {}, "le": {}, "lo": {},
	"como": {}, "más": {}, "o": {}, "pero": {}, "sus": {}, "les": {}, "ya": {},
	"este": {}, "ese": {}, "esto": {}, "eso": {}, "estos": {}, "esos": {},
	"esta": {}, "esa": {}, "estas": {}, "esas": {}, "aqui": {}, "ahi": {},
	"alli": {}, "nos": {}, "ante": {}, "sobre": {}, "todo": {},
	"también": {}, "tras": {}, "otro": {}, "otra": {}, "otros": {},
	"otras": {}, "él": {}, "ella": {}, "ellos": {}, "ellas": {}, "si": {},
	"no": {}, "ni": {}, "cuando": {}, "donde": {}, "quien": {}, "cual": {},
	"cuales": {}, "cuyo": {}, "cuya": {}, "cuyos": {}, "cuyas": {},
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// Analyzer derives keywords and summaries from grounds text.
type Analyzer struct {
	maxKeywords   int
	summaryLength int
	wordPattern   *regexp.Regexp
	stopwords     map[string]struct{}
}

// NewAnalyzer builds an analyzer for the given extraction limits.
func NewAnalyzer(minWordLength, maxKeywords, summaryLength int) *Analyzer {
	if minWordLength < 1 {
		minWordLength = 1
	}
	return &Analyzer{
		maxKeywords:   maxKeywords,
		summaryLength: summaryLength,
		wordPattern:   regexp.MustCompile(fmt.Sprintf(`[a-záéíóúüñ]{%d,}`, minWordLength)),
		stopwords:     Stopwords,
	}
}

// ExtractKeywords ranks non-stopword tokens of the grounds text by frequency
// and returns the top tokens as a comma-joined string. Frequency ties keep
// first-encountered order.
func (a *Analyzer) ExtractKeywords(grounds []string) string {
	text := strings.ToLower(strings.Join(grounds, " "))
	words := a.wordPattern.FindAllString(text, -1)

	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0
	for _, word := range words {
		if _, stop := a.stopwords[word]; stop {
			continue
		}
		if _, seen := counts[word]; !seen {
			firstSeen[word] = order
			order++
		}
		counts[word]++
	}

	ranked := make([]string, 0, len(counts))
	for word := range counts {
		ranked = append(ranked, word)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return firstSeen[ranked[i]] < firstSeen[ranked[j]]
	})

	if len(ranked) > a.maxKeywords {
		ranked = ranked[:a.maxKeywords]
	}
	return strings.Join(ranked, ", ")
}

// Summarize collapses the first three grounds paragraphs into a single line
// truncated to the configured character budget.
func (a *Analyzer) Summarize(grounds []string) string {
	head := grounds
	if len(head) > 3 {
		head = head[:3]
	}
	text := strings.TrimSpace(whitespacePattern.ReplaceAllString(strings.Join(head, " "), " "))

	runes := []rune(text)
	if len(runes) <= a.summaryLength {
		return text
	}
	return string(runes[:a.summaryLength-3]) + "..."
}

var (
	legalCharPattern    = regexp.MustCompile(`[^\p{L}\p{N}_\s.,;:\-()]`)
	punctuationSpacing  = regexp.MustCompile(`\s+([.,;:])`)
	slugInvalidPattern  = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpacePattern    = regexp.MustCompile(`\s+`)
	slugRepeatedHyphens = regexp.MustCompile(`-+`)
)

// CleanLegalText normalizes whitespace and strips characters outside the
// basic legal-text alphabet while keeping punctuation.
func CleanLegalText(text string) string {
	if text == "" {
		return ""
	}
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = legalCharPattern.ReplaceAllString(text, "")
	text = punctuationSpacing.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

// Slug derives a URL-friendly identifier from a title, capped at 100 characters.
func Slug(text string) string {
	if text == "" {
		return ""
	}
	slug := strings.ToLower(text)
	replacer := strings.NewReplacer(
		"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "n",
		"ä", "a", "ë", "e", "ï", "i", "ö", "o", "ü", "u",
	)
	slug = replacer.Replace(slug)
	slug = slugInvalidPattern.ReplaceAllString(slug, "")
	slug = slugSpacePattern.ReplaceAllString(slug, "-")
	slug = slugRepeatedHyphens.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 100 {
		slug = slug[:100]
	}
	return slug
}
