// Package services – MementoStore
//
// MementoStore files captured versions. Every capture becomes one memento
// row plus one version directory inside the website's bucket. The bucket's
// aggregate metadata.json is regenerated from the relational rows on each
// write, so the database stays the single source of truth.
//
// Observability: RecordCapture and RebuildIndex are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-archive-backend/internal/capture"
	"github.com/tbourn/go-archive-backend/internal/domain"
	"github.com/tbourn/go-archive-backend/internal/repo"
	"github.com/tbourn/go-archive-backend/internal/storage"
)

// CaptureRecord is what RecordCapture files: the provider's artifacts plus
// the conditions they were captured under.
type CaptureRecord struct {
	capture.Artifacts
	Language    string
	Geolocation *capture.Geolocation
	PersonaRef  *string
}

// MementoStore owns Memento rows and their version directories.
type MementoStore struct {
	DB    *gorm.DB
	Store *storage.Store

	// Now is the clock used for capture times; defaults to time.Now.
	Now func() time.Time

	// mu serialises writers so version ordinals are assigned without
	// contending SQLite write transactions.
	mu sync.Mutex
}

// NewMementoStore returns a store backed by db and store.
func NewMementoStore(db *gorm.DB, store *storage.Store) *MementoStore {
	return &MementoStore{DB: db, Store: store, Now: time.Now}
}

func (s *MementoStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// RecordCapture files one captured version of websiteID under bucketPath and
// returns the new memento.
//
// The version directory and its files are written first, then the row is
// inserted and the bucket index regenerated inside one transaction. Any
// failure rolls the row back, removes the version directory and returns a
// *StorageWriteError.
func (s *MementoStore) RecordCapture(ctx context.Context, websiteID, bucketPath string, rec CaptureRecord) (*domain.Memento, error) {
	tr := otel.Tracer("services/MementoStore")
	ctx, span := tr.Start(ctx, "RecordCapture",
		trace.WithAttributes(attribute.String("website.id", websiteID)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	website, err := repo.GetWebsite(ctx, s.DB, websiteID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrWebsiteNotFound
	}
	if err != nil {
		return nil, err
	}

	var (
		m   *domain.Memento
		dir string
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		version := 1
		capturedAt := s.now()
		prev, err := repo.LatestMemento(ctx, tx, websiteID)
		switch {
		case err == nil:
			version = prev.Version + 1
			if !capturedAt.After(prev.CapturedAt) {
				capturedAt = prev.CapturedAt.Add(time.Millisecond)
			}
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}

		var token string
		dir, token, err = s.Store.CreateVersionDir(bucketPath, capturedAt)
		if err != nil {
			return &StorageWriteError{Op: "create version directory", Path: bucketPath, Err: err}
		}

		shot, err := storage.WriteVersion(dir, rec.HTML, rec.Screenshot, versionMetadata(website, token, rec))
		if err != nil {
			return &StorageWriteError{Op: "write artifacts", Path: dir, Err: err}
		}

		m = &domain.Memento{
			ID:            uuid.NewString(),
			WebsiteID:     websiteID,
			Version:       version,
			CapturedAt:    capturedAt,
			Timestamp:     token,
			StoragePath:   dir,
			Title:         rec.Title,
			Language:      rec.Language,
			HTTPStatus:    rec.HTTPStatus,
			ContentType:   rec.ContentType,
			ContentLength: rec.ContentLength,
			Headers:       datatypes.NewJSONType(headersOrEmpty(rec.Headers)),
		}
		if g := rec.Geolocation; g != nil {
			m.GeoLatitude, m.GeoLongitude = &g.Latitude, &g.Longitude
		}
		if shot != "" {
			m.ScreenshotPath = &shot
		}
		if err := repo.CreateMemento(ctx, tx, m); err != nil {
			return &StorageWriteError{Op: "insert memento", Path: dir, Err: err}
		}

		if err := s.writeIndex(ctx, tx, website); err != nil {
			return &StorageWriteError{Op: "write index", Path: website.Location, Err: err}
		}
		return nil
	})
	if err != nil {
		if dir != "" {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				log.Warn().Err(rmErr).Str("dir", dir).Msg("failed to remove version directory after aborted capture")
			}
			// The index may already list the rolled-back version.
			if ixErr := s.writeIndex(ctx, s.DB, website); ixErr != nil {
				log.Warn().Err(ixErr).Str("bucket", website.Location).Msg("failed to restore bucket index")
			}
		}
		var swe *StorageWriteError
		if !errors.As(err, &swe) {
			err = &StorageWriteError{Op: "record capture", Path: bucketPath, Err: err}
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("memento.id", m.ID),
		attribute.Int("memento.version", m.Version),
	)
	return m, nil
}

// ListVersions returns every memento of a website, most recent first.
func (s *MementoStore) ListVersions(ctx context.Context, websiteID string) ([]domain.Memento, error) {
	if err := s.ensureWebsite(ctx, websiteID); err != nil {
		return nil, err
	}
	items, err := repo.ListMementos(ctx, s.DB, websiteID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Memento{}
	}
	return items, nil
}

// ListVersionsPage is the paginated form of ListVersions.
func (s *MementoStore) ListVersionsPage(ctx context.Context, websiteID string, page, pageSize int) ([]domain.Memento, int64, error) {
	if err := s.ensureWebsite(ctx, websiteID); err != nil {
		return nil, 0, err
	}
	_, pageSize, offset := normalizePage(page, pageSize)

	total, err := repo.CountMementos(ctx, s.DB, websiteID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Memento{}, 0, nil
	}
	items, err := repo.ListMementosPage(ctx, s.DB, websiteID, offset, pageSize)
	return items, total, err
}

// GetVersion returns one memento.
func (s *MementoStore) GetVersion(ctx context.Context, id string) (*domain.Memento, error) {
	m, err := repo.GetMemento(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMementoNotFound
	}
	return m, err
}

// ReadContent returns the archived HTML of a memento.
func (s *MementoStore) ReadContent(ctx context.Context, id string) ([]byte, *domain.Memento, error) {
	m, err := s.GetVersion(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	b, err := storage.ReadContent(m.StoragePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, m, ErrArtifactMissing
	}
	return b, m, err
}

// ScreenshotPath returns the screenshot file of a memento, or
// ErrArtifactMissing when none was captured or the file is gone.
func (s *MementoStore) ScreenshotPath(ctx context.Context, id string) (string, error) {
	m, err := s.GetVersion(ctx, id)
	if err != nil {
		return "", err
	}
	if m.ScreenshotPath == nil || *m.ScreenshotPath == "" {
		return "", ErrArtifactMissing
	}
	if _, err := os.Stat(*m.ScreenshotPath); err != nil {
		return "", ErrArtifactMissing
	}
	return *m.ScreenshotPath, nil
}

// RebuildIndex regenerates a website's bucket index from its rows. It is
// how a corrupt or missing metadata.json is repaired out of band.
func (s *MementoStore) RebuildIndex(ctx context.Context, websiteID string) (storage.Index, error) {
	tr := otel.Tracer("services/MementoStore")
	ctx, span := tr.Start(ctx, "RebuildIndex",
		trace.WithAttributes(attribute.String("website.id", websiteID)),
	)
	defer span.End()

	website, err := repo.GetWebsite(ctx, s.DB, websiteID)
	if errors.Is(err, repo.ErrNotFound) {
		return storage.Index{}, ErrWebsiteNotFound
	}
	if err != nil {
		return storage.Index{}, err
	}

	if _, rerr := storage.ReadIndex(website.Location); errors.Is(rerr, storage.ErrCorruptIndex) {
		log.Warn().Str("website_id", websiteID).Str("bucket", website.Location).Msg("replacing corrupt bucket index")
	}
	if err := os.MkdirAll(website.Location, 0o755); err != nil {
		return storage.Index{}, &StorageWriteError{Op: "create bucket", Path: website.Location, Err: err}
	}
	if err := s.writeIndex(ctx, s.DB, website); err != nil {
		return storage.Index{}, &StorageWriteError{Op: "write index", Path: website.Location, Err: err}
	}
	return storage.ReadIndex(website.Location)
}

// writeIndex rewrites the bucket index from the rows visible through db.
func (s *MementoStore) writeIndex(ctx context.Context, db *gorm.DB, website *domain.ArchivedWebsite) error {
	rows, err := repo.ListMementos(ctx, db, website.ID)
	if err != nil {
		return err
	}
	return storage.WriteIndex(website.Location, buildIndex(website.URI, rows))
}

// buildIndex converts rows (most recent first) into the bucket index, whose
// memento list runs oldest first.
func buildIndex(url string, rows []domain.Memento) storage.Index {
	idx := storage.Index{URL: url, Mementos: make([]string, 0, len(rows))}
	for i := len(rows) - 1; i >= 0; i-- {
		idx.Mementos = append(idx.Mementos, rows[i].Timestamp)
	}
	if len(rows) > 0 {
		idx.FirstArchived = rows[len(rows)-1].CapturedAt.UTC().Format(time.RFC3339)
		idx.LastArchived = rows[0].CapturedAt.UTC().Format(time.RFC3339)
	}
	return idx
}

func versionMetadata(w *domain.ArchivedWebsite, token string, rec CaptureRecord) storage.VersionMetadata {
	meta := storage.VersionMetadata{
		URL:           w.URI,
		Title:         rec.Title,
		Timestamp:     token,
		Language:      rec.Language,
		PersonaRef:    rec.PersonaRef,
		HTTPStatus:    rec.HTTPStatus,
		ContentType:   rec.ContentType,
		ContentLength: rec.ContentLength,
		Headers:       headersOrEmpty(rec.Headers),
	}
	if g := rec.Geolocation; g != nil {
		meta.Geolocation = &storage.Geolocation{Latitude: g.Latitude, Longitude: g.Longitude}
	}
	return meta
}

func headersOrEmpty(h map[string]string) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	return h
}

func (s *MementoStore) ensureWebsite(ctx context.Context, websiteID string) error {
	if _, err := repo.GetWebsite(ctx, s.DB, websiteID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrWebsiteNotFound
		}
		return err
	}
	return nil
}
