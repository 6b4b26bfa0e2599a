package similarity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/LimaLegalLab/jurisprudencia/backend/internal/analysis"
	"github.com/LimaLegalLab/jurisprudencia/backend/internal/rulings"
	"go.uber.org/zap"
)

const (
	defaultMaxFeatures = 1000
	// DefaultThreshold is the minimum cosine score a match must reach.
	DefaultThreshold = 0.3
	// DefaultLimit bounds the number of matches returned per query.
	DefaultLimit = 5
)

var noOpLogger = zap.NewNop()

// IndexError carries an operation-coded failure from the similarity index.
type IndexError struct {
	code string
	err  error
}

func (e *IndexError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *IndexError) Unwrap() error {
	return e.err
}

func (e *IndexError) Code() string {
	return e.code
}

const opFindSimilar = "similarity.find_similar"

func newIndexError(operation, reason string, cause error) error {
	return &IndexError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Document is one indexable record: the concatenated text fields of a ruling.
type Document struct {
	ID   int64
	Text string
}

// DocumentFromRuling builds the indexable text for one stored ruling:
// ruling number, grounds and derived keywords.
func DocumentFromRuling(r rulings.Ruling) Document {
	return Document{
		ID:   r.ID,
		Text: strings.Join([]string{r.RulingNumber, r.Grounds, r.Keywords}, " "),
	}
}

// Match pairs a ruling id with its cosine similarity to the query ruling.
type Match struct {
	ID    int64   `json:"id"`
	Score float64 `json:"similarity"`
}

// CorpusLoader supplies the documents to index on (re)build.
type CorpusLoader func(ctx context.Context) ([]Document, error)

// IndexConfig describes the dependencies of the similarity index.
type IndexConfig struct {
	Loader      CorpusLoader
	MaxFeatures int
	Logger      *zap.Logger
}

// Index is the process-wide similarity service. It is a derived, rebuildable
// cache over the stored corpus: Invalidate marks it stale after every save
// and the next query rebuilds it, single-flighted behind rebuildMu. Readers
// holding only the read lock see a stale-but-consistent snapshot.
type Index struct {
	loader      CorpusLoader
	maxFeatures int
	logger      *zap.Logger

	rebuildMu sync.Mutex

	mu      sync.RWMutex
	built   bool
	stale   bool
	ids     []int64
	byID    map[int64]int
	vectors [][]float64
}

// NewIndex constructs an unbuilt similarity index.
func NewIndex(cfg IndexConfig) *Index {
	maxFeatures := cfg.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = defaultMaxFeatures
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Index{
		loader:      cfg.Loader,
		maxFeatures: maxFeatures,
		logger:      logger,
		stale:       true,
	}
}

// BuildIndex replaces the vector space with one built from the documents.
func (x *Index) BuildIndex(docs []Document) {
	texts := make([]string, len(docs))
	ids := make([]int64, len(docs))
	byID := make(map[int64]int, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
		ids[i] = doc.ID
		byID[doc.ID] = i
	}

	vec := newVectorizer(x.maxFeatures, analysis.Stopwords)
	vectors := vec.fitTransform(texts)

	x.mu.Lock()
	x.ids = ids
	x.byID = byID
	x.vectors = vectors
	x.built = len(docs) > 0
	x.stale = false
	x.mu.Unlock()

	x.logger.Info("similarity index built", zap.Int("documents", len(docs)))
}

// Invalidate marks the index stale; the next query triggers a rebuild.
func (x *Index) Invalidate() {
	x.mu.Lock()
	x.stale = true
	x.mu.Unlock()
}

// FindSimilar returns up to limit rulings whose cosine similarity to the
// given ruling reaches the threshold, most similar first. Exact score ties
// keep corpus order. An unbuilt index or unknown id yields an empty result,
// never an error.
func (x *Index) FindSimilar(ctx context.Context, id int64, threshold float64, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	if err := x.ensureFresh(ctx); err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if !x.built {
		x.logger.Warn("similarity query against unbuilt index", zap.Int64("ruling_id", id))
		return []Match{}, nil
	}
	idx, ok := x.byID[id]
	if !ok {
		x.logger.Warn("similarity query for unknown ruling", zap.Int64("ruling_id", id))
		return []Match{}, nil
	}

	target := x.vectors[idx]
	matches := make([]Match, 0, limit)
	for i, vector := range x.vectors {
		if i == idx {
			continue
		}
		score := dot(target, vector)
		if score < threshold {
			continue
		}
		matches = append(matches, Match{ID: x.ids[i], Score: score})
	}

	// Insertion order is corpus order; a stable sort keeps it on ties.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// ensureFresh rebuilds a stale index when a loader is configured. Only one
// rebuild runs at a time; waiting callers reuse the refreshed snapshot.
func (x *Index) ensureFresh(ctx context.Context) error {
	x.mu.RLock()
	fresh := x.built && !x.stale
	x.mu.RUnlock()
	if fresh || x.loader == nil {
		return nil
	}

	x.rebuildMu.Lock()
	defer x.rebuildMu.Unlock()

	x.mu.RLock()
	fresh = x.built && !x.stale
	x.mu.RUnlock()
	if fresh {
		return nil
	}

	docs, err := x.loader(ctx)
	if err != nil {
		return newIndexError(opFindSimilar, "corpus_load_failed", err)
	}
	x.BuildIndex(docs)
	return nil
}

