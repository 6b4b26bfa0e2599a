package analysis

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExtractKeywordsRanksByFrequency(t *testing.T) {
	analyzer := NewAnalyzer(4, 10, 200)
	grounds := []string{
		"El contrato de arrendamiento establece obligaciones claras",
		"Las obligaciones del contrato fueron incumplidas por la parte demandada",
		"El contrato se resolvió por incumplimiento de las obligaciones pactadas",
	}

	keywords := analyzer.ExtractKeywords(grounds)
	ranked := strings.Split(keywords, ", ")
	if len(ranked) < 2 {
		t.Fatalf("expected multiple keywords, got %q", keywords)
	}
	if ranked[0] != "contrato" || ranked[1] != "obligaciones" {
		t.Fatalf("expected the most frequent tokens first, got %q", keywords)
	}
}

func TestExtractKeywordsIsDeterministic(t *testing.T) {
	analyzer := NewAnalyzer(4, 10, 200)
	grounds := []string{
		"resolución contractual demanda arbitraje laudo nulidad",
		"arbitraje demanda resolución nulidad laudo contractual",
	}

	first := analyzer.ExtractKeywords(grounds)
	for i := 0; i < 20; i++ {
		if again := analyzer.ExtractKeywords(grounds); again != first {
			t.Fatalf("expected stable extraction, got %q then %q", first, again)
		}
	}
}

func TestExtractKeywordsExcludesStopwordsAndShortTokens(t *testing.T) {
	analyzer := NewAnalyzer(4, 10, 200)
	grounds := []string{
		"sobre sobre sobre cuando cuando la ley aplicable regula expresamente",
	}

	keywords := analyzer.ExtractKeywords(grounds)
	for _, banned := range []string{"sobre", "cuando", "ley"} {
		for _, keyword := range strings.Split(keywords, ", ") {
			if keyword == banned {
				t.Fatalf("expected %q to be excluded, got %q", banned, keywords)
			}
		}
	}
	if !strings.Contains(keywords, "aplicable") {
		t.Fatalf("expected content words to survive, got %q", keywords)
	}
}

func TestExtractKeywordsCapsAtConfiguredLimit(t *testing.T) {
	analyzer := NewAnalyzer(4, 3, 200)
	grounds := []string{
		"contrato obligaciones arrendamiento incumplimiento resolución demanda",
	}

	keywords := analyzer.ExtractKeywords(grounds)
	if got := len(strings.Split(keywords, ", ")); got != 3 {
		t.Fatalf("expected 3 keywords, got %d in %q", got, keywords)
	}
}

func TestSummarizeUsesFirstThreeParagraphs(t *testing.T) {
	analyzer := NewAnalyzer(4, 10, 200)
	summary := analyzer.Summarize([]string{"uno", "dos", "tres", "cuatro"})
	if summary != "uno dos tres" {
		t.Fatalf("expected the first three paragraphs, got %q", summary)
	}
}

func TestSummarizeTruncatesWithEllipsis(t *testing.T) {
	analyzer := NewAnalyzer(4, 10, 200)
	summary := analyzer.Summarize([]string{strings.Repeat("jurisprudencia ", 40)})
	if got := utf8.RuneCountInString(summary); got != 200 {
		t.Fatalf("expected a 200 character summary, got %d", got)
	}
	if !strings.HasSuffix(summary, "...") {
		t.Fatalf("expected an ellipsis suffix, got %q", summary)
	}
}

func TestSummarizeCollapsesWhitespace(t *testing.T) {
	analyzer := NewAnalyzer(4, 10, 200)
	summary := analyzer.Summarize([]string{"  la   corte \t resuelve  "})
	if summary != "la corte resuelve" {
		t.Fatalf("expected collapsed whitespace, got %q", summary)
	}
}

func TestCleanLegalTextStripsForeignCharacters(t *testing.T) {
	cleaned := CleanLegalText("La sala § resuelve , con costas ; y costos")
	if strings.Contains(cleaned, "§") {
		t.Fatalf("expected foreign characters removed, got %q", cleaned)
	}
	if strings.Contains(cleaned, " ,") || strings.Contains(cleaned, " ;") {
		t.Fatalf("expected punctuation spacing fixed, got %q", cleaned)
	}
}

func TestSlugNormalizesAccentsAndSpacing(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"Resolución Judicial", "resolucion-judicial"},
		{"Sentencia   123", "sentencia-123"},
		{"", ""},
	}
	for _, testCase := range cases {
		if got := Slug(testCase.input); got != testCase.want {
			t.Fatalf("slug of %q: expected %q, got %q", testCase.input, testCase.want, got)
		}
	}
}

func TestSlugCapsLength(t *testing.T) {
	if got := Slug(strings.Repeat("sentencia ", 30)); len(got) > 100 {
		t.Fatalf("expected slug capped at 100 characters, got %d", len(got))
	}
}

func TestExtractEntities(t *testing.T) {
	text := "Maria Lopez demanda a Constructora Andina SA por S/ 1,500.00 el 12/05/2024"
	entities := ExtractEntities(text)

	if len(entities.People) == 0 {
		t.Fatalf("expected a person match, got %#v", entities)
	}
	foundOrg := false
	for _, org := range entities.Organizations {
		if org == "SA" {
			foundOrg = true
		}
	}
	if !foundOrg {
		t.Fatalf("expected the company suffix match, got %#v", entities.Organizations)
	}
	if len(entities.Dates) != 1 || entities.Dates[0] != "12/05/2024" {
		t.Fatalf("expected the date match, got %#v", entities.Dates)
	}
	if len(entities.Amounts) != 1 {
		t.Fatalf("expected the amount match, got %#v", entities.Amounts)
	}
}
