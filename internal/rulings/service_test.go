package rulings

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/LimaLegalLab/jurisprudencia/backend/internal/analysis"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Ruling{}, &IngestionStat{}, &SearchTerm{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database: db,
		Analyzer: analysis.NewAnalyzer(4, 10, 200),
		Clock: func() time.Time {
			return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func sampleRecords() []Record {
	return []Record{
		{
			ID:              1,
			RulingNumber:    "00001-2024",
			PublicationDate: "2024-03-01",
			Plaintiff:       "Empresa Constructora",
			Defendant:       "Municipalidad Provincial",
			CaseFileNumber:  "EXP-00001",
			Grounds:         []string{"El contrato de obra establece obligaciones recíprocas.", "El incumplimiento acarrea resolución contractual."},
			FileURL:         "https://example.com/00001.pdf",
		},
		{
			ID:              2,
			RulingNumber:    "00002-2024",
			PublicationDate: "2024-03-02",
			Plaintiff:       "Trabajador Demandante",
			Defendant:       "Empresa Empleadora",
			CaseFileNumber:  "EXP-00002",
			Grounds:         []string{"El despido fue declarado improcedente.", "Corresponde la indemnización prevista por ley."},
			FileURL:         "https://example.com/00002.pdf",
		},
	}
}

func TestSaveInsertsNewRulingsWithDerivedFields(t *testing.T) {
	db := openTestDB(t, "rulings_save_insert")
	service := newTestService(t, db)

	inserted, err := service.Save(context.Background(), sampleRecords())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("expected 2 insertions, got %d", inserted)
	}

	ruling, err := service.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ruling.Keywords == "" {
		t.Fatalf("expected derived keywords, got empty column")
	}
	if ruling.Summary == "" {
		t.Fatalf("expected a derived summary, got empty column")
	}
	if got := len(ruling.GroundsList()); got != 2 {
		t.Fatalf("expected 2 grounds paragraphs, got %d", got)
	}
}

func TestSaveIsIdempotentByRulingNumber(t *testing.T) {
	db := openTestDB(t, "rulings_save_idempotent")
	service := newTestService(t, db)

	if _, err := service.Save(context.Background(), sampleRecords()); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	changed := sampleRecords()
	changed[0].Plaintiff = "Empresa Constructora Renombrada"
	inserted, err := service.Save(context.Background(), changed)
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("expected no insertions on resave, got %d", inserted)
	}

	total, err := service.Count(context.Background())
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 stored rulings, got %d", total)
	}

	ruling, err := service.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ruling.Plaintiff != "Empresa Constructora Renombrada" {
		t.Fatalf("expected the stored row to carry the latest values, got %q", ruling.Plaintiff)
	}
}

func TestSaveAppendsIngestionStats(t *testing.T) {
	db := openTestDB(t, "rulings_save_stats")
	service := newTestService(t, db)

	if _, err := service.Save(context.Background(), sampleRecords()); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if _, err := service.Save(context.Background(), sampleRecords()); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	var stats []IngestionStat
	if err := db.Order("id ASC").Find(&stats).Error; err != nil {
		t.Fatalf("failed to load stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected one stat row per save, got %d", len(stats))
	}
	if stats[0].NewRulings != 2 || stats[0].TotalRulings != 2 {
		t.Fatalf("unexpected first stat row: %#v", stats[0])
	}
	if stats[1].NewRulings != 0 || stats[1].TotalRulings != 2 {
		t.Fatalf("unexpected second stat row: %#v", stats[1])
	}
	if stats[0].RunID == "" || stats[0].RunID == stats[1].RunID {
		t.Fatalf("expected distinct run identifiers, got %q and %q", stats[0].RunID, stats[1].RunID)
	}
}

func TestSearchFiltersByTermAndDateRange(t *testing.T) {
	db := openTestDB(t, "rulings_search")
	service := newTestService(t, db)

	if _, err := service.Save(context.Background(), sampleRecords()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	result, err := service.Search(context.Background(), SearchParams{Term: "despido"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if result.Total != 1 || len(result.Rulings) != 1 || result.Rulings[0].RulingNumber != "00002-2024" {
		t.Fatalf("expected only the labor ruling, got %#v", result)
	}

	result, err = service.Search(context.Background(), SearchParams{DateFrom: "2024-03-02", DateTo: "2024-03-31"})
	if err != nil {
		t.Fatalf("date search failed: %v", err)
	}
	if result.Total != 1 || result.Rulings[0].PublicationDate != "2024-03-02" {
		t.Fatalf("expected only the later ruling, got %#v", result)
	}
}

func TestSearchRecordsTermFrequency(t *testing.T) {
	db := openTestDB(t, "rulings_search_terms")
	service := newTestService(t, db)

	if _, err := service.Save(context.Background(), sampleRecords()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := service.Search(context.Background(), SearchParams{Term: "contrato"}); err != nil {
			t.Fatalf("search failed: %v", err)
		}
	}

	var term SearchTerm
	if err := db.Where("term = ?", "contrato").Take(&term).Error; err != nil {
		t.Fatalf("failed to load search term: %v", err)
	}
	if term.Frequency != 3 {
		t.Fatalf("expected the term ledger to reach 3, got %d", term.Frequency)
	}
}

func TestSearchIgnoresUnknownOrdering(t *testing.T) {
	db := openTestDB(t, "rulings_search_ordering")
	service := newTestService(t, db)

	if _, err := service.Save(context.Background(), sampleRecords()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	result, err := service.Search(context.Background(), SearchParams{OrderBy: "grounds; DROP TABLE rulings"})
	if err != nil {
		t.Fatalf("search with bad ordering failed: %v", err)
	}
	if result.Total != 2 {
		t.Fatalf("expected the full corpus under the default ordering, got %#v", result)
	}
	if result.Rulings[0].PublicationDate != "2024-03-02" {
		t.Fatalf("expected newest-first default ordering, got %#v", result.Rulings)
	}
}

func TestGetReturnsNotFoundSentinel(t *testing.T) {
	db := openTestDB(t, "rulings_get_missing")
	service := newTestService(t, db)

	_, err := service.Get(context.Background(), 404)
	if !errors.Is(err, ErrRulingNotFound) {
		t.Fatalf("expected ErrRulingNotFound, got %v", err)
	}
}

func TestLatestPublicationDateIgnoresUnknownSentinel(t *testing.T) {
	db := openTestDB(t, "rulings_latest_date")
	service := newTestService(t, db)

	rows := []Ruling{
		{ID: 1, RulingNumber: "00001-2024", PublicationDate: "2024-02-10", FetchedAt: time.Now()},
		{ID: 2, RulingNumber: "00002-2024", PublicationDate: UnknownField, FetchedAt: time.Now()},
		{ID: 3, RulingNumber: "00003-2024", PublicationDate: "2024-03-05", FetchedAt: time.Now()},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("failed to seed ruling: %v", err)
		}
	}

	latest, err := service.LatestPublicationDate(context.Background())
	if err != nil {
		t.Fatalf("latest date query failed: %v", err)
	}
	if latest != "2024-03-05" {
		t.Fatalf("expected the newest real date, got %q", latest)
	}
}

func TestLatestPublicationDateEmptyCorpus(t *testing.T) {
	db := openTestDB(t, "rulings_latest_date_empty")
	service := newTestService(t, db)

	latest, err := service.LatestPublicationDate(context.Background())
	if err != nil {
		t.Fatalf("expected no error on an empty corpus, got %v", err)
	}
	if latest != "" {
		t.Fatalf("expected an empty stop date for an empty corpus, got %q", latest)
	}
}

func TestLatestPublicationDateAllUnknownDates(t *testing.T) {
	db := openTestDB(t, "rulings_latest_date_unknown")
	service := newTestService(t, db)

	rows := []Ruling{
		{ID: 1, RulingNumber: "00001-2024", PublicationDate: UnknownField, FetchedAt: time.Now()},
		{ID: 2, RulingNumber: "00002-2024", PublicationDate: UnknownField, FetchedAt: time.Now()},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("failed to seed ruling: %v", err)
		}
	}

	latest, err := service.LatestPublicationDate(context.Background())
	if err != nil {
		t.Fatalf("expected no error when every date is unknown, got %v", err)
	}
	if latest != "" {
		t.Fatalf("expected an empty stop date when every date is unknown, got %q", latest)
	}
}

func TestComputeStatsAssemblesSnapshot(t *testing.T) {
	db := openTestDB(t, "rulings_stats")
	service := newTestService(t, db)

	if _, err := service.Save(context.Background(), sampleRecords()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := service.Search(context.Background(), SearchParams{Term: "contrato"}); err != nil {
		t.Fatalf("search failed: %v", err)
	}

	stats, err := service.ComputeStats(context.Background())
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalRulings != 2 {
		t.Fatalf("expected 2 rulings in the snapshot, got %d", stats.TotalRulings)
	}
	if len(stats.RulingsByMonth) == 0 {
		t.Fatalf("expected a monthly aggregate, got none")
	}
	if len(stats.TopKeywords) == 0 {
		t.Fatalf("expected derived keywords in the snapshot, got none")
	}
	if len(stats.FrequentSearches) != 1 || stats.FrequentSearches[0].Term != "contrato" {
		t.Fatalf("expected the recorded search term, got %#v", stats.FrequentSearches)
	}
	if stats.LastRun == nil || stats.LastRun.NewRulings != 2 {
		t.Fatalf("expected the last ingestion run, got %#v", stats.LastRun)
	}
}

func TestComputeStatsEmptyCorpusYieldsEmptyAggregates(t *testing.T) {
	db := openTestDB(t, "rulings_stats_empty")
	service := newTestService(t, db)

	stats, err := service.ComputeStats(context.Background())
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalRulings != 0 {
		t.Fatalf("expected an empty corpus, got %d rulings", stats.TotalRulings)
	}
	if stats.RulingsByDate == nil || len(stats.RulingsByDate) != 0 {
		t.Fatalf("expected an empty by-date aggregate, got %#v", stats.RulingsByDate)
	}
	if stats.RulingsByMonth == nil || len(stats.RulingsByMonth) != 0 {
		t.Fatalf("expected an empty by-month aggregate, got %#v", stats.RulingsByMonth)
	}
	if stats.FrequentSearches == nil || len(stats.FrequentSearches) != 0 {
		t.Fatalf("expected an empty searches aggregate, got %#v", stats.FrequentSearches)
	}
	if stats.LastRun != nil {
		t.Fatalf("expected no recorded run, got %#v", stats.LastRun)
	}
}
