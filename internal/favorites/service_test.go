package favorites

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/LimaLegalLab/jurisprudencia/backend/internal/rulings"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, name string) (*Service, *gorm.DB) {
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
	if err := db.AutoMigrate(&Favorite{}, &rulings.Ruling{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func seedRuling(t *testing.T, db *gorm.DB, id int64) {
	t.Helper()
	ruling := rulings.Ruling{
		ID:              id,
		RulingNumber:    fmt.Sprintf("%05d-2024", id),
		PublicationDate: "2024-03-01",
		FetchedAt:       time.Now(),
	}
	if err := db.Create(&ruling).Error; err != nil {
		t.Fatalf("failed to seed ruling: %v", err)
	}
}

func TestAddRejectsDuplicateBookmark(t *testing.T) {
	service, db := newTestService(t, "favorites_add")
	seedRuling(t, db, 1)

	if err := service.Add(context.Background(), 1, "caso clave", "laboral"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	err := service.Add(context.Background(), 1, "", "")
	if !errors.Is(err, ErrAlreadyFavorite) {
		t.Fatalf("expected ErrAlreadyFavorite, got %v", err)
	}

	bookmarked, err := service.IsFavorite(context.Background(), 1)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !bookmarked {
		t.Fatalf("expected the ruling to be bookmarked")
	}
}

func TestRemoveMissingBookmark(t *testing.T) {
	service, _ := newTestService(t, "favorites_remove")

	err := service.Remove(context.Background(), 42)
	if !errors.Is(err, ErrNotFavorite) {
		t.Fatalf("expected ErrNotFavorite, got %v", err)
	}
}

func TestRemoveDeletesBookmark(t *testing.T) {
	service, db := newTestService(t, "favorites_remove_ok")
	seedRuling(t, db, 1)

	if err := service.Add(context.Background(), 1, "", ""); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := service.Remove(context.Background(), 1); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	bookmarked, err := service.IsFavorite(context.Background(), 1)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if bookmarked {
		t.Fatalf("expected the bookmark to be gone")
	}
}

func TestListSkipsOrphanedBookmarks(t *testing.T) {
	service, db := newTestService(t, "favorites_list")
	seedRuling(t, db, 7)

	if err := service.Add(context.Background(), 7, "notas", "civil"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	// Bookmark pointing at a ruling that no longer exists.
	if err := service.Add(context.Background(), 99, "", ""); err != nil {
		t.Fatalf("orphan add failed: %v", err)
	}

	entries, err := service.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the joined entry, got %d", len(entries))
	}
	if entries[0].Ruling.ID != 7 || entries[0].Favorite.Notes != "notas" {
		t.Fatalf("unexpected entry: %#v", entries[0])
	}
}

func TestUpdateNotes(t *testing.T) {
	service, db := newTestService(t, "favorites_notes")
	seedRuling(t, db, 1)

	if err := service.Add(context.Background(), 1, "inicial", ""); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := service.UpdateNotes(context.Background(), 1, "revisado"); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	entries, err := service.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Favorite.Notes != "revisado" {
		t.Fatalf("expected updated notes, got %#v", entries)
	}

	err = service.UpdateNotes(context.Background(), 404, "perdido")
	if !errors.Is(err, ErrNotFavorite) {
		t.Fatalf("expected ErrNotFavorite for a missing bookmark, got %v", err)
	}
}
