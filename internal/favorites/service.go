package favorites

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LimaLegalLab/jurisprudencia/backend/internal/rulings"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	// ErrAlreadyFavorite indicates the ruling is already bookmarked.
	ErrAlreadyFavorite = errors.New("favorites: ruling already bookmarked")
	// ErrNotFavorite indicates the ruling is not bookmarked.
	ErrNotFavorite = errors.New("favorites: ruling not bookmarked")
	noOpLogger     = zap.NewNop()
)

// ServiceError carries an operation-coded failure from the favorites service.
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
	opServiceNew  = "favorites.service.new"
	opAdd         = "favorites.add"
	opRemove      = "favorites.remove"
	opList        = "favorites.list"
	opUpdateNotes = "favorites.update_notes"
	opCheck       = "favorites.check"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Favorite bookmarks one ruling with free-form notes and tags.
type Favorite struct {
	ID       int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RulingID int64     `gorm:"column:ruling_id;uniqueIndex;not null" json:"sentencia_id"`
	AddedAt  time.Time `gorm:"column:added_at;not null" json:"fecha_agregado"`
	Notes    string    `gorm:"column:notes;type:text" json:"notas"`
	Tags     string    `gorm:"column:tags;size:512" json:"etiquetas"`
}

// TableName provides the explicit table binding for GORM.
func (Favorite) TableName() string {
	return "favorites"
}

// Entry joins a bookmark with its ruling for listing.
type Entry struct {
	Favorite Favorite       `json:"favorito"`
	Ruling   rulings.Ruling `json:"sentencia"`
}

// ServiceConfig describes the dependencies of the favorites service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages ruling bookmarks.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the favorites service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Add bookmarks a ruling. Bookmarking twice returns ErrAlreadyFavorite.
func (s *Service) Add(ctx context.Context, rulingID int64, notes, tags string) error {
	var existing Favorite
	err := s.db.WithContext(ctx).Where("ruling_id = ?", rulingID).Take(&existing).Error
	if err == nil {
		return fmt.Errorf("%w: %d", ErrAlreadyFavorite, rulingID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opAdd, err, rulingID)
		return newServiceError(opAdd, "lookup_failed", err)
	}

	favorite := Favorite{
		RulingID: rulingID,
		AddedAt:  s.clock().UTC(),
		Notes:    notes,
		Tags:     tags,
	}
	if err := s.db.WithContext(ctx).Create(&favorite).Error; err != nil {
		s.logError(opAdd, err, rulingID)
		return newServiceError(opAdd, "insert_failed", err)
	}
	return nil
}

// Remove deletes a bookmark.
func (s *Service) Remove(ctx context.Context, rulingID int64) error {
	result := s.db.WithContext(ctx).Where("ruling_id = ?", rulingID).Delete(&Favorite{})
	if result.Error != nil {
		s.logError(opRemove, result.Error, rulingID)
		return newServiceError(opRemove, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrNotFavorite, rulingID)
	}
	return nil
}

// List returns all bookmarks joined with their rulings, newest first.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	var bookmarks []Favorite
	if err := s.db.WithContext(ctx).Order("added_at DESC").Find(&bookmarks).Error; err != nil {
		s.logError(opList, err, 0)
		return nil, newServiceError(opList, "query_failed", err)
	}

	entries := make([]Entry, 0, len(bookmarks))
	for _, bookmark := range bookmarks {
		var ruling rulings.Ruling
		err := s.db.WithContext(ctx).Where("id = ?", bookmark.RulingID).Take(&ruling).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			s.logError(opList, err, bookmark.RulingID)
			return nil, newServiceError(opList, "ruling_lookup_failed", err)
		}
		entries = append(entries, Entry{Favorite: bookmark, Ruling: ruling})
	}
	return entries, nil
}

// UpdateNotes replaces the notes of an existing bookmark.
func (s *Service) UpdateNotes(ctx context.Context, rulingID int64, notes string) error {
	result := s.db.WithContext(ctx).Model(&Favorite{}).
		Where("ruling_id = ?", rulingID).
		Update("notes", notes)
	if result.Error != nil {
		s.logError(opUpdateNotes, result.Error, rulingID)
		return newServiceError(opUpdateNotes, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrNotFavorite, rulingID)
	}
	return nil
}

// IsFavorite reports whether the ruling is bookmarked.
func (s *Service) IsFavorite(ctx context.Context, rulingID int64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Favorite{}).
		Where("ruling_id = ?", rulingID).Count(&count).Error; err != nil {
		s.logError(opCheck, err, rulingID)
		return false, newServiceError(opCheck, "query_failed", err)
	}
	return count > 0, nil
}

func (s *Service) logError(operation string, err error, rulingID int64) {
	fields := []zap.Field{zap.String("operation", operation), zap.Error(err)}
	if rulingID != 0 {
		fields = append(fields, zap.Int64("ruling_id", rulingID))
	}
	s.logger.Error("favorites service error", fields...)
}
