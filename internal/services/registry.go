// Package services – ArchiveRegistry
//
// The registry is the deduplicated catalog of archived URLs. Exactly one
// ArchivedWebsite exists per distinct URI; it points at the content-address
// bucket where every version of that URI is filed.
package services

import (
	"context"
	"errors"
	"os"
	"strings"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-archive-backend/internal/domain"
	"github.com/tbourn/go-archive-backend/internal/repo"
	"github.com/tbourn/go-archive-backend/internal/storage"
)

// ArchiveRegistry owns ArchivedWebsite rows.
type ArchiveRegistry struct {
	DB    *gorm.DB
	Store *storage.Store
}

// NewArchiveRegistry returns a registry backed by db and store.
func NewArchiveRegistry(db *gorm.DB, store *storage.Store) *ArchiveRegistry {
	return &ArchiveRegistry{DB: db, Store: store}
}

// WithDB returns a copy of the registry bound to db, typically a transaction.
func (r *ArchiveRegistry) WithDB(db *gorm.DB) *ArchiveRegistry {
	c := *r
	c.DB = db
	return &c
}

// GetOrCreate returns the entry for url, creating it (and its bucket) when
// absent. isNew reports whether this call inserted the row. Matching is by
// exact URL; callers normalise beforehand if they want to.
func (r *ArchiveRegistry) GetOrCreate(ctx context.Context, url string, personaRef *string) (w *domain.ArchivedWebsite, isNew bool, err error) {
	tr := otel.Tracer("services/ArchiveRegistry")
	ctx, span := tr.Start(ctx, "GetOrCreate",
		trace.WithAttributes(attribute.String("website.url", url)),
	)
	defer span.End()

	url = strings.TrimSpace(url)
	if url == "" {
		return nil, false, ErrInvalidURL
	}

	w, err = repo.GetWebsiteByURI(ctx, r.DB, url)
	if err == nil {
		return w, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, err
	}

	bucket, err := r.Store.BucketFor(url)
	if err != nil {
		return nil, false, &StorageWriteError{Op: "create bucket", Path: storage.BucketName(url), Err: err}
	}

	w, err = repo.CreateWebsite(ctx, r.DB, url, personaRef, bucket)
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("website.id", w.ID))
		return w, true, nil
	case errors.Is(err, repo.ErrDuplicate):
		// Lost a race with a concurrent capture of the same URL.
		w, err = repo.GetWebsiteByURI(ctx, r.DB, url)
		if err != nil {
			return nil, false, err
		}
		return w, false, nil
	default:
		// Only removes the bucket when nothing was filed in it yet.
		_ = os.Remove(bucket)
		return nil, false, &StorageWriteError{Op: "insert website", Path: bucket, Err: err}
	}
}

// Get returns the entry with the given id.
func (r *ArchiveRegistry) Get(ctx context.Context, id string) (*domain.ArchivedWebsite, error) {
	w, err := repo.GetWebsite(ctx, r.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrWebsiteNotFound
	}
	return w, err
}

// GetByURL returns the entry for an exact URL.
func (r *ArchiveRegistry) GetByURL(ctx context.Context, url string) (*domain.ArchivedWebsite, error) {
	w, err := repo.GetWebsiteByURI(ctx, r.DB, strings.TrimSpace(url))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrWebsiteNotFound
	}
	return w, err
}

// ListPage returns a page of entries, newest first, and the total count.
func (r *ArchiveRegistry) ListPage(ctx context.Context, page, pageSize int) ([]domain.ArchivedWebsite, int64, error) {
	tr := otel.Tracer("services/ArchiveRegistry")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	_, pageSize, offset := normalizePage(page, pageSize)

	total, err := repo.CountWebsites(ctx, r.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ArchivedWebsite{}, 0, nil
	}
	items, err := repo.ListWebsitesPage(ctx, r.DB, offset, pageSize)
	return items, total, err
}

// Delete removes the entry row. Memento rows and files are the caller's
// concern; see LifecycleManager.
func (r *ArchiveRegistry) Delete(ctx context.Context, id string) error {
	err := repo.DeleteWebsite(ctx, r.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrWebsiteNotFound
	}
	return err
}

// DiscardIfEmpty deletes w and its bucket when w has no mementos. It undoes
// a GetOrCreate whose first capture could not be filed. removed is false
// when a concurrent capture already filed a version.
func (r *ArchiveRegistry) DiscardIfEmpty(ctx context.Context, w *domain.ArchivedWebsite) (removed bool, err error) {
	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := repo.CountMementos(ctx, tx, w.ID)
		if err != nil || n > 0 {
			return err
		}
		if err := repo.DeleteWebsite(ctx, tx, w.ID); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil || !removed {
		return false, err
	}
	if r.Store != nil && w.Location != "" {
		if err := r.Store.Remove(w.Location); err != nil {
			return true, err
		}
	}
	return true, nil
}

// normalizePage applies page defaults and returns the row offset.
func normalizePage(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize, (page - 1) * pageSize
}
