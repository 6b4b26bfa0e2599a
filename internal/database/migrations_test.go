package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/LimaLegalLab/jurisprudencia/backend/internal/rulings"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsUnknownSentinels(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&rulings.Ruling{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	legacy := rulings.Ruling{
		ID:              1,
		RulingNumber:    "00001-2023",
		PublicationDate: "",
		Plaintiff:       "",
		Defendant:       "Entidad Demandada",
		FetchedAt:       time.Now(),
	}
	if err := database.Create(&legacy).Error; err != nil {
		testContext.Fatalf("failed to insert legacy row: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored rulings.Ruling
	if err := database.Where("id = ?", legacy.ID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload ruling: %v", err)
	}
	if stored.PublicationDate != rulings.UnknownField || stored.Plaintiff != rulings.UnknownField {
		testContext.Fatalf("expected empty fields backfilled with the sentinel, got %#v", stored)
	}
	if stored.Defendant != "Entidad Demandada" {
		testContext.Fatalf("expected populated fields untouched, got %q", stored.Defendant)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillUnknownSentinels).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}

	// A second pass is a no-op.
	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("expected re-apply to be idempotent: %v", err)
	}
}
