package similarity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

var testCorpus = []Document{
	{ID: 1, Text: "contrato arrendamiento obligaciones incumplimiento resolución pago renta mensual inmueble desalojo"},
	{ID: 2, Text: "contrato arrendamiento obligaciones incumplimiento resolución pago renta mensual inmueble restitución"},
	{ID: 3, Text: "homicidio calificado pena privativa libertad reparación civil agravante reincidencia"},
}

func TestFindSimilarExcludesSelfAndRespectsThreshold(t *testing.T) {
	index := NewIndex(IndexConfig{})
	index.BuildIndex(testCorpus)

	matches, err := index.FindSimilar(context.Background(), 1, DefaultThreshold, DefaultLimit)
	if err != nil {
		t.Fatalf("similarity query failed: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("expected the near-duplicate document to match")
	}
	for _, match := range matches {
		if match.ID == 1 {
			t.Fatalf("expected the query document to be excluded, got %#v", matches)
		}
		if match.ID == 3 {
			t.Fatalf("expected the unrelated document to stay below threshold, got %#v", matches)
		}
		if match.Score < DefaultThreshold || match.Score > 1.0000001 {
			t.Fatalf("expected scores within [threshold, 1], got %f", match.Score)
		}
	}
	if matches[0].ID != 2 {
		t.Fatalf("expected document 2 as best match, got %#v", matches)
	}
}

func TestFindSimilarRespectsLimit(t *testing.T) {
	corpus := make([]Document, 0, 10)
	for i := int64(1); i <= 10; i++ {
		corpus = append(corpus, Document{ID: i, Text: "contrato arrendamiento obligaciones incumplimiento resolución"})
	}
	index := NewIndex(IndexConfig{})
	index.BuildIndex(corpus)

	matches, err := index.FindSimilar(context.Background(), 1, DefaultThreshold, 4)
	if err != nil {
		t.Fatalf("similarity query failed: %v", err)
	}
	if len(matches) != 4 {
		t.Fatalf("expected the limit to cap matches at 4, got %d", len(matches))
	}
}

func TestFindSimilarUnknownRulingYieldsEmptyResult(t *testing.T) {
	index := NewIndex(IndexConfig{})
	index.BuildIndex(testCorpus)

	matches, err := index.FindSimilar(context.Background(), 99, DefaultThreshold, DefaultLimit)
	if err != nil {
		t.Fatalf("expected no error for an unknown ruling, got %v", err)
	}
	if matches == nil || len(matches) != 0 {
		t.Fatalf("expected an empty result, got %#v", matches)
	}
}

func TestFindSimilarUnbuiltIndexYieldsEmptyResult(t *testing.T) {
	index := NewIndex(IndexConfig{
		Loader: func(ctx context.Context) ([]Document, error) {
			return nil, nil
		},
	})

	matches, err := index.FindSimilar(context.Background(), 1, DefaultThreshold, DefaultLimit)
	if err != nil {
		t.Fatalf("expected no error against an empty corpus, got %v", err)
	}
	if matches == nil || len(matches) != 0 {
		t.Fatalf("expected an empty result, got %#v", matches)
	}
}

func TestInvalidateTriggersSingleRebuildOnNextQuery(t *testing.T) {
	var rebuilds atomic.Int32
	index := NewIndex(IndexConfig{
		Loader: func(ctx context.Context) ([]Document, error) {
			rebuilds.Add(1)
			return testCorpus, nil
		},
	})

	for i := 0; i < 3; i++ {
		if _, err := index.FindSimilar(context.Background(), 1, DefaultThreshold, DefaultLimit); err != nil {
			t.Fatalf("similarity query failed: %v", err)
		}
	}
	if got := rebuilds.Load(); got != 1 {
		t.Fatalf("expected one lazy build across repeated queries, got %d", got)
	}

	index.Invalidate()
	if _, err := index.FindSimilar(context.Background(), 1, DefaultThreshold, DefaultLimit); err != nil {
		t.Fatalf("similarity query failed after invalidate: %v", err)
	}
	if got := rebuilds.Load(); got != 2 {
		t.Fatalf("expected exactly one rebuild after invalidate, got %d", got)
	}
}

func TestFindSimilarSurfacesLoaderFailure(t *testing.T) {
	loadFailure := errors.New("corpus unavailable")
	index := NewIndex(IndexConfig{
		Loader: func(ctx context.Context) ([]Document, error) {
			return nil, loadFailure
		},
	})

	_, err := index.FindSimilar(context.Background(), 1, DefaultThreshold, DefaultLimit)
	if !errors.Is(err, loadFailure) {
		t.Fatalf("expected the loader failure to surface, got %v", err)
	}
}

func TestVectorizerCapsVocabulary(t *testing.T) {
	vec := newVectorizer(5, map[string]struct{}{})
	vectors := vec.fitTransform([]string{
		"alfa beta gamma delta epsilon zeta eta theta",
		"alfa beta gamma delta epsilon zeta eta theta iota kappa",
	})
	if vec.dimension != 5 {
		t.Fatalf("expected a capped vocabulary of 5 terms, got %d", vec.dimension)
	}
	for _, vector := range vectors {
		if len(vector) != 5 {
			t.Fatalf("expected 5-dimensional vectors, got %d", len(vector))
		}
	}
}

func TestIdenticalDocumentsScoreAsUnit(t *testing.T) {
	index := NewIndex(IndexConfig{})
	index.BuildIndex([]Document{
		{ID: 1, Text: "resolución contractual por incumplimiento del pago pactado"},
		{ID: 2, Text: "resolución contractual por incumplimiento del pago pactado"},
	})

	matches, err := index.FindSimilar(context.Background(), 1, DefaultThreshold, DefaultLimit)
	if err != nil {
		t.Fatalf("similarity query failed: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != 2 {
		t.Fatalf("expected the identical document to match, got %#v", matches)
	}
	if matches[0].Score < 0.999 {
		t.Fatalf("expected a near-unit score for identical text, got %f", matches[0].Score)
	}
}
