package services

import (
	"context"
	"errors"
	"os"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-archive-backend/internal/domain"
	"github.com/tbourn/go-archive-backend/internal/repo"
	"github.com/tbourn/go-archive-backend/internal/storage"
)

func TestDeleteWebsite_CascadesRowsAndFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lm := NewLifecycleManager(f.db, f.registry, f.store, true)

	var w *domain.ArchivedWebsite
	var ids []string
	for i := 0; i < 3; i++ {
		var m *domain.Memento
		w, m = f.capture(t, "https://example.org")
		ids = append(ids, m.ID)
	}
	if err := repo.SetExternalArchiveRef(ctx, f.db, ids[1], "https://web.archive.org/web/1/https://example.org"); err != nil {
		t.Fatal(err)
	}
	other, _ := f.capture(t, "https://other.test")

	report, err := lm.DeleteWebsite(ctx, w.ID)
	if err != nil {
		t.Fatalf("DeleteWebsite: %v", err)
	}
	if report.URL != "https://example.org" || len(report.MementoIDs) != 3 || len(report.ExternalRefs) != 1 {
		t.Fatalf("report: %+v", report)
	}
	if !report.FilesRemoved || report.FileError != "" {
		t.Fatalf("files not removed: %+v", report)
	}

	var n int64
	f.db.Model(&domain.Memento{}).Where("website_id = ?", w.ID).Count(&n)
	if n != 0 {
		t.Fatalf("expected 0 memento rows, got %d", n)
	}
	if _, err := f.mementos.ListVersions(ctx, w.ID); !errors.Is(err, ErrWebsiteNotFound) {
		t.Fatalf("ListVersions after delete: expected ErrWebsiteNotFound, got %v", err)
	}
	if _, err := os.Stat(w.Location); !os.IsNotExist(err) {
		t.Fatalf("bucket still on disk: %v", err)
	}

	// Other websites are untouched.
	if list, err := f.mementos.ListVersions(ctx, other.ID); err != nil || len(list) != 1 {
		t.Fatalf("other website affected: %v %v", list, err)
	}
	if _, err := os.Stat(other.Location); err != nil {
		t.Fatalf("other bucket removed: %v", err)
	}
}

func TestDeleteWebsite_KeepFiles(t *testing.T) {
	f := newFixture(t)
	lm := NewLifecycleManager(f.db, f.registry, f.store, false)
	w, m := f.capture(t, "https://example.org")

	report, err := lm.DeleteWebsite(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("DeleteWebsite: %v", err)
	}
	if report.FilesRemoved {
		t.Fatalf("files must be kept when disabled")
	}
	if _, err := os.Stat(m.StoragePath); err != nil {
		t.Fatalf("version directory removed: %v", err)
	}
}

func TestDeleteWebsite_FileErrorIsReported(t *testing.T) {
	f := newFixture(t)
	w, _ := f.capture(t, "https://example.org")

	// A store rooted elsewhere refuses to touch the bucket.
	other, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	lm := NewLifecycleManager(f.db, f.registry, other, true)

	report, err := lm.DeleteWebsite(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("file failure must not fail the deletion: %v", err)
	}
	if report.FilesRemoved || report.FileError == "" {
		t.Fatalf("file error not reported: %+v", report)
	}
	if _, err := f.registry.Get(context.Background(), w.ID); !errors.Is(err, ErrWebsiteNotFound) {
		t.Fatalf("website row still present: %v", err)
	}
}

func TestDeleteWebsite_NotFound(t *testing.T) {
	f := newFixture(t)
	lm := NewLifecycleManager(f.db, f.registry, f.store, true)
	if _, err := lm.DeleteWebsite(context.Background(), "missing"); !errors.Is(err, ErrWebsiteNotFound) {
		t.Fatalf("expected ErrWebsiteNotFound, got %v", err)
	}
}

func TestDeleteWebsite_RollbackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lm := NewLifecycleManager(f.db, f.registry, f.store, true)
	w, _ := f.capture(t, "https://example.org")

	err := f.db.Callback().Delete().Before("gorm:delete").Register("test:fail_websites", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "archived_websites" {
			_ = tx.AddError(errors.New("injected delete failure"))
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := lm.DeleteWebsite(ctx, w.ID); err == nil {
		t.Fatalf("expected delete failure")
	}
	list, err := f.mementos.ListVersions(ctx, w.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("mementos must survive a failed delete: %v %v", list, err)
	}
	if _, err := os.Stat(w.Location); err != nil {
		t.Fatalf("bucket must survive a failed delete: %v", err)
	}
}
