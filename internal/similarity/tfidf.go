package similarity

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// vectorizer is a TF-IDF embedder over unigram..trigram terms with a bounded
// vocabulary, mirroring the vector space of the source system.
type vectorizer struct {
	maxFeatures  int
	ngramMin     int
	ngramMax     int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}

	vocabulary map[string]int
	idf        []float64
	dimension  int
}

func newVectorizer(maxFeatures int, stopwords map[string]struct{}) *vectorizer {
	return &vectorizer{
		maxFeatures:  maxFeatures,
		ngramMin:     1,
		ngramMax:     3,
		tokenPattern: regexp.MustCompile(`\p{L}\p{L}+`),
		stopwords:    stopwords,
	}
}

// fitTransform builds the vocabulary and IDF values from the corpus and
// returns one L2-normalized vector per document.
func (v *vectorizer) fitTransform(texts []string) [][]float64 {
	termDocs := make([]map[string]int, len(texts))
	df := make(map[string]int)
	totalCounts := make(map[string]int)

	for i, text := range texts {
		counts := make(map[string]int)
		for _, term := range v.terms(text) {
			counts[term]++
			totalCounts[term]++
		}
		termDocs[i] = counts
		for term := range counts {
			df[term]++
		}
	}

	// Keep the most frequent terms when the vocabulary exceeds the cap,
	// alphabetical on ties for a stable vocabulary.
	terms := make([]string, 0, len(totalCounts))
	for term := range totalCounts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if totalCounts[terms[i]] != totalCounts[terms[j]] {
			return totalCounts[terms[i]] > totalCounts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if v.maxFeatures > 0 && len(terms) > v.maxFeatures {
		terms = terms[:v.maxFeatures]
	}
	sort.Strings(terms)

	v.vocabulary = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	v.dimension = len(terms)
	corpusSize := float64(len(texts))
	for i, term := range terms {
		v.vocabulary[term] = i
		// Smoothed IDF.
		v.idf[i] = math.Log((1+corpusSize)/(1+float64(df[term]))) + 1.0
	}

	vectors := make([][]float64, len(texts))
	for i, counts := range termDocs {
		vectors[i] = v.vectorize(counts)
	}
	return vectors
}

func (v *vectorizer) vectorize(counts map[string]int) []float64 {
	vec := make([]float64, v.dimension)
	total := 0
	for term, count := range counts {
		if _, ok := v.vocabulary[term]; ok {
			total += count
		}
	}
	if total == 0 {
		return vec
	}
	for term, count := range counts {
		idx, ok := v.vocabulary[term]
		if !ok {
			continue
		}
		vec[idx] = (float64(count) / float64(total)) * v.idf[idx]
	}

	norm := 0.0
	for _, value := range vec {
		norm += value * value
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// terms tokenizes the text and expands tokens into ngrams of the configured
// sizes, joined by single spaces.
func (v *vectorizer) terms(text string) []string {
	lower := strings.ToLower(text)
	raw := v.tokenPattern.FindAllString(lower, -1)
	tokens := make([]string, 0, len(raw))
	for _, token := range raw {
		if _, stop := v.stopwords[token]; stop {
			continue
		}
		tokens = append(tokens, token)
	}

	terms := make([]string, 0, len(tokens)*v.ngramMax)
	for size := v.ngramMin; size <= v.ngramMax; size++ {
		for i := 0; i+size <= len(tokens); i++ {
			terms = append(terms, strings.Join(tokens[i:i+size], " "))
		}
	}
	return terms
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
