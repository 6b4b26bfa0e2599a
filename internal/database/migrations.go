package database

import (
	"errors"
	"time"

	"github.com/LimaLegalLab/jurisprudencia/backend/internal/rulings"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillUnknownSentinels = "2026-05-18_backfill_unknown_sentinels"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillUnknownSentinels, apply: backfillUnknownSentinels},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Rows written by early scraper versions stored missing source fields as
// empty strings instead of the sentinel the query layer expects.
func backfillUnknownSentinels(db *gorm.DB) error {
	columns := []string{"publication_date", "plaintiff", "defendant", "case_file_number", "file_url"}
	for _, column := range columns {
		if err := db.Model(&rulings.Ruling{}).
			Where(column + " = ''").
			Update(column, rulings.UnknownField).Error; err != nil {
			return err
		}
	}
	return nil
}
