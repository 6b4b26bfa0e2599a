package rulings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingAnalyzer = errors.New("text analyzer is required")
	// ErrRulingNotFound indicates the requested ruling id is not stored.
	ErrRulingNotFound = errors.New("rulings: ruling not found")
	noOpLogger        = zap.NewNop()
)

// ServiceError carries an operation-coded failure from the persistence gateway.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "rulings.service.new"
	opSave       = "rulings.save"
	opSearch     = "rulings.search"
	opGet        = "rulings.get"
	opAll        = "rulings.all"
	opExport     = "rulings.export"
	opStats      = "rulings.stats"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Analyzer derives the keyword and summary columns during save.
type Analyzer interface {
	ExtractKeywords(grounds []string) string
	Summarize(grounds []string) string
}

// RunIDProvider issues identifiers for ingestion-statistics rows.
type RunIDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the persistence gateway.
type ServiceConfig struct {
	Database      *gorm.DB
	Analyzer      Analyzer
	Clock         func() time.Time
	RunIDProvider RunIDProvider
	Logger        *zap.Logger
}

// Service is the persistence gateway over the rulings corpus.
type Service struct {
	db       *gorm.DB
	analyzer Analyzer
	clock    func() time.Time
	runIDs   RunIDProvider
	logger   *zap.Logger
}

// NewService constructs the persistence gateway.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Analyzer == nil {
		return nil, newServiceError(opServiceNew, "missing_analyzer", errMissingAnalyzer)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	runIDs := cfg.RunIDProvider
	if runIDs == nil {
		runIDs = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:       cfg.Database,
		analyzer: cfg.Analyzer,
		clock:    clock,
		runIDs:   runIDs,
		logger:   logger,
	}, nil
}

// Save upserts a batch of fetched records in one transaction and appends an
// ingestion-statistics row. The returned count reflects true insertions only;
// an existing ruling number updates the stored row in place.
func (s *Service) Save(ctx context.Context, records []Record) (int64, error) {
	runID, err := s.runIDs.NewID()
	if err != nil {
		return 0, newServiceError(opSave, "run_id_failed", err)
	}

	fetchedAt := s.clock().UTC()
	var inserted, updated int64

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, record := range records {
			row := Ruling{
				ID:              record.ID,
				RulingNumber:    record.RulingNumber,
				PublicationDate: record.PublicationDate,
				Plaintiff:       record.Plaintiff,
				Defendant:       record.Defendant,
				CaseFileNumber:  record.CaseFileNumber,
				Grounds:         JoinGrounds(record.Grounds),
				FileURL:         record.FileURL,
				Keywords:        s.analyzer.ExtractKeywords(record.Grounds),
				Summary:         s.analyzer.Summarize(record.Grounds),
				FetchedAt:       fetchedAt,
			}

			var existing Ruling
			err := tx.Where("ruling_number = ?", record.RulingNumber).Take(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if err := tx.Create(&row).Error; err != nil {
					return newServiceError(opSave, "insert_failed", err)
				}
				inserted++
				continue
			}
			if err != nil {
				return newServiceError(opSave, "lookup_failed", err)
			}

			result := tx.Model(&Ruling{}).Where("ruling_number = ?", record.RulingNumber).
				Updates(map[string]interface{}{
					"publication_date": row.PublicationDate,
					"plaintiff":        row.Plaintiff,
					"defendant":        row.Defendant,
					"case_file_number": row.CaseFileNumber,
					"grounds":          row.Grounds,
					"file_url":         row.FileURL,
					"keywords":         row.Keywords,
					"summary":          row.Summary,
					"fetched_at":       row.FetchedAt,
				})
			if result.Error != nil {
				return newServiceError(opSave, "update_failed", result.Error)
			}
			if result.RowsAffected > 0 {
				updated++
			}
		}

		var total int64
		if err := tx.Model(&Ruling{}).Count(&total).Error; err != nil {
			return newServiceError(opSave, "count_failed", err)
		}
		stat := IngestionStat{
			RunID:        runID,
			RecordedAt:   fetchedAt,
			TotalRulings: total,
			NewRulings:   inserted,
		}
		if err := tx.Create(&stat).Error; err != nil {
			return newServiceError(opSave, "stat_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opSave, txErr, zap.String("run_id", runID))
		return 0, txErr
	}

	s.logger.Info("ingestion batch saved",
		zap.String("run_id", runID),
		zap.Int64("inserted", inserted),
		zap.Int64("updated", updated))
	return inserted, nil
}

// SearchParams filter and order a corpus query.
type SearchParams struct {
	Term     string
	DateFrom string
	DateTo   string
	OrderBy  string
	Page     int
	PerPage  int
}

// SearchResult carries one page of matches plus the overall match count.
type SearchResult struct {
	Rulings []Ruling
	Total   int64
	Page    int
	PerPage int
}

var allowedOrderings = map[string]string{
	"fecha_publicacion DESC": "publication_date DESC",
	"fecha_publicacion ASC":  "publication_date ASC",
	"numero_sentencia ASC":   "ruling_number ASC",
	"numero_sentencia DESC":  "ruling_number DESC",
	"nombre_demandante ASC":  "plaintiff ASC",
	"nombre_demandante DESC": "plaintiff DESC",
}

// Search filters rulings by free-text term and date range with whitelisted
// ordering and pagination. Non-empty terms are recorded in the frequent
// search ledger; a ledger failure never fails the query.
func (s *Service) Search(ctx context.Context, params SearchParams) (SearchResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PerPage < 1 {
		params.PerPage = 25
	}
	ordering, ok := allowedOrderings[params.OrderBy]
	if !ok {
		ordering = "publication_date DESC"
	}

	query := s.db.WithContext(ctx).Model(&Ruling{})
	term := strings.TrimSpace(params.Term)
	if term != "" {
		pattern := "%" + term + "%"
		query = query.Where(
			"ruling_number LIKE ? OR plaintiff LIKE ? OR defendant LIKE ? OR case_file_number LIKE ? OR grounds LIKE ? OR keywords LIKE ?",
			pattern, pattern, pattern, pattern, pattern, pattern)
		s.recordSearchTerm(ctx, term)
	}
	if params.DateFrom != "" {
		query = query.Where("publication_date >= ?", params.DateFrom)
	}
	if params.DateTo != "" {
		query = query.Where("publication_date <= ?", params.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		s.logError(opSearch, err)
		return SearchResult{}, newServiceError(opSearch, "count_failed", err)
	}

	var matches []Ruling
	if err := query.Order(ordering).
		Limit(params.PerPage).
		Offset((params.Page - 1) * params.PerPage).
		Find(&matches).Error; err != nil {
		s.logError(opSearch, err)
		return SearchResult{}, newServiceError(opSearch, "query_failed", err)
	}

	return SearchResult{Rulings: matches, Total: total, Page: params.Page, PerPage: params.PerPage}, nil
}

func (s *Service) recordSearchTerm(ctx context.Context, term string) {
	now := s.clock().UTC()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "term"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"frequency":        gorm.Expr("frequency + 1"),
			"last_searched_at": now,
		}),
	}).Create(&SearchTerm{Term: term, Frequency: 1, LastSearchedAt: now}).Error
	if err != nil {
		s.logError(opSearch, newServiceError(opSearch, "term_ledger_failed", err))
	}
}

// Get loads one ruling by its external identifier.
func (s *Service) Get(ctx context.Context, id int64) (Ruling, error) {
	var ruling Ruling
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&ruling).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Ruling{}, fmt.Errorf("%w: %d", ErrRulingNotFound, id)
	}
	if err != nil {
		s.logError(opGet, err, zap.Int64("ruling_id", id))
		return Ruling{}, newServiceError(opGet, "query_failed", err)
	}
	return ruling, nil
}

// GetMany loads the rulings for the provided identifiers, preserving only
// rows that exist.
func (s *Service) GetMany(ctx context.Context, ids []int64) ([]Ruling, error) {
	if len(ids) == 0 {
		return []Ruling{}, nil
	}
	var matches []Ruling
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&matches).Error; err != nil {
		s.logError(opGet, err)
		return nil, newServiceError(opGet, "query_failed", err)
	}
	return matches, nil
}

// All returns the full stored corpus in insertion order. Used to (re)build
// the similarity index.
func (s *Service) All(ctx context.Context) ([]Ruling, error) {
	var corpus []Ruling
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&corpus).Error; err != nil {
		s.logError(opAll, err)
		return nil, newServiceError(opAll, "query_failed", err)
	}
	return corpus, nil
}

// Export returns up to limit rulings matching an optional term, for the
// CSV/JSON export routes.
func (s *Service) Export(ctx context.Context, term string, limit int) ([]Ruling, error) {
	query := s.db.WithContext(ctx).Model(&Ruling{})
	if term = strings.TrimSpace(term); term != "" {
		pattern := "%" + term + "%"
		query = query.Where(
			"ruling_number LIKE ? OR plaintiff LIKE ? OR defendant LIKE ? OR case_file_number LIKE ?",
			pattern, pattern, pattern, pattern)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var matches []Ruling
	if err := query.Find(&matches).Error; err != nil {
		s.logError(opExport, err)
		return nil, newServiceError(opExport, "query_failed", err)
	}
	return matches, nil
}

// Count returns the stored corpus size.
func (s *Service) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&Ruling{}).Count(&total).Error; err != nil {
		s.logError(opStats, err)
		return 0, newServiceError(opStats, "count_failed", err)
	}
	return total, nil
}

// LatestPublicationDate returns the newest stored publication date, used as
// the stop date for incremental fetch runs. Empty when the corpus is empty.
func (s *Service) LatestPublicationDate(ctx context.Context) (string, error) {
	var latest string
	// COALESCE keeps the scan valid when no dated rows exist yet.
	err := s.db.WithContext(ctx).Model(&Ruling{}).
		Where("publication_date <> ?", UnknownField).
		Select("COALESCE(MAX(publication_date), '')").
		Scan(&latest).Error
	if err != nil {
		s.logError(opStats, err)
		return "", newServiceError(opStats, "query_failed", err)
	}
	return latest, nil
}

// DateCount aggregates rulings per publication date or month.
type DateCount struct {
	Period string `json:"periodo"`
	Count  int64  `json:"cantidad"`
}

// KeywordCount aggregates derived keywords across the corpus.
type KeywordCount struct {
	Keyword string `json:"palabra"`
	Count   int64  `json:"cantidad"`
}

// TermCount reports one frequent search term.
type TermCount struct {
	Term      string `json:"termino"`
	Frequency int64  `json:"frecuencia"`
}

// Stats is the corpus statistics snapshot served by the statistics route.
type Stats struct {
	TotalRulings     int64          `json:"total_sentencias"`
	RulingsByDate    []DateCount    `json:"sentencias_por_fecha"`
	RulingsByMonth   []DateCount    `json:"sentencias_por_mes"`
	TopKeywords      []KeywordCount `json:"top_palabras"`
	FrequentSearches []TermCount    `json:"busquedas_frecuentes"`
	LastRun          *IngestionStat `json:"ultima_actualizacion"`
}

// ComputeStats assembles the statistics snapshot.
func (s *Service) ComputeStats(ctx context.Context) (Stats, error) {
	db := s.db.WithContext(ctx)
	stats := Stats{}

	if err := db.Model(&Ruling{}).Count(&stats.TotalRulings).Error; err != nil {
		s.logError(opStats, err)
		return Stats{}, newServiceError(opStats, "count_failed", err)
	}

	cutoff := s.clock().UTC().AddDate(0, 0, -30).Format("2006-01-02")
	if err := db.Model(&Ruling{}).
		Select("publication_date AS period, COUNT(*) AS count").
		Where("publication_date >= ?", cutoff).
		Group("publication_date").
		Order("publication_date DESC").
		Scan(&stats.RulingsByDate).Error; err != nil {
		s.logError(opStats, err)
		return Stats{}, newServiceError(opStats, "by_date_failed", err)
	}

	if err := db.Model(&Ruling{}).
		Select("substr(publication_date, 1, 7) AS period, COUNT(*) AS count").
		Where("publication_date <> ?", UnknownField).
		Group("period").
		Order("period DESC").
		Limit(12).
		Scan(&stats.RulingsByMonth).Error; err != nil {
		s.logError(opStats, err)
		return Stats{}, newServiceError(opStats, "by_month_failed", err)
	}
	if stats.RulingsByDate == nil {
		stats.RulingsByDate = []DateCount{}
	}
	if stats.RulingsByMonth == nil {
		stats.RulingsByMonth = []DateCount{}
	}

	topKeywords, err := s.topKeywords(ctx, 20)
	if err != nil {
		return Stats{}, err
	}
	stats.TopKeywords = topKeywords

	if err := db.Model(&SearchTerm{}).
		Select("term, frequency").
		Order("frequency DESC").
		Limit(10).
		Scan(&stats.FrequentSearches).Error; err != nil {
		s.logError(opStats, err)
		return Stats{}, newServiceError(opStats, "searches_failed", err)
	}
	if stats.FrequentSearches == nil {
		stats.FrequentSearches = []TermCount{}
	}

	var lastRun IngestionStat
	err = db.Order("id DESC").Take(&lastRun).Error
	if err == nil {
		stats.LastRun = &lastRun
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opStats, err)
		return Stats{}, newServiceError(opStats, "last_run_failed", err)
	}

	return stats, nil
}

func (s *Service) topKeywords(ctx context.Context, limit int) ([]KeywordCount, error) {
	var columns []string
	if err := s.db.WithContext(ctx).Model(&Ruling{}).
		Where("keywords <> ''").
		Limit(1000).
		Pluck("keywords", &columns).Error; err != nil {
		s.logError(opStats, err)
		return nil, newServiceError(opStats, "keywords_failed", err)
	}

	counts := make(map[string]int64)
	order := make([]string, 0)
	for _, column := range columns {
		for _, keyword := range strings.Split(column, ", ") {
			if keyword == "" {
				continue
			}
			if _, seen := counts[keyword]; !seen {
				order = append(order, keyword)
			}
			counts[keyword]++
		}
	}

	ranked := make([]KeywordCount, 0, len(order))
	for _, keyword := range order {
		ranked = append(ranked, KeywordCount{Keyword: keyword, Count: counts[keyword]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (s *Service) logError(operation string, err error, fields ...zap.Field) {
	attrs := []zap.Field{zap.String("operation", operation), zap.Error(err)}
	attrs = append(attrs, fields...)
	s.logger.Error("rulings service error", attrs...)
}
