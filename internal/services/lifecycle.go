package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-archive-backend/internal/observability"
	"github.com/tbourn/go-archive-backend/internal/repo"
	"github.com/tbourn/go-archive-backend/internal/storage"
)

// DeletionReport describes what DeleteWebsite removed. ExternalRefs lists
// the references of mementos that were escalated, which the external
// archive keeps regardless.
type DeletionReport struct {
	WebsiteID    string   `json:"website_id"`
	URL          string   `json:"url"`
	MementoIDs   []string `json:"memento_ids"`
	ExternalRefs []string `json:"external_refs"`
	FilesRemoved bool     `json:"files_removed"`
	FileError    string   `json:"file_error,omitempty"`
}

// LifecycleManager deletes a website with all of its mementos.
type LifecycleManager struct {
	DB       *gorm.DB
	Registry *ArchiveRegistry
	Store    *storage.Store

	// DeleteFiles removes the website's bucket after the rows are gone.
	DeleteFiles bool
}

// NewLifecycleManager returns a manager; deleteFiles enables disk reclamation.
func NewLifecycleManager(db *gorm.DB, registry *ArchiveRegistry, store *storage.Store, deleteFiles bool) *LifecycleManager {
	return &LifecycleManager{DB: db, Registry: registry, Store: store, DeleteFiles: deleteFiles}
}

// DeleteWebsite removes the website row and its memento rows in one
// transaction, then (when enabled) its bucket directory. A failed file
// removal is logged and reported but does not undo or fail the deletion.
func (l *LifecycleManager) DeleteWebsite(ctx context.Context, websiteID string) (*DeletionReport, error) {
	tr := otel.Tracer("services/LifecycleManager")
	ctx, span := tr.Start(ctx, "DeleteWebsite",
		trace.WithAttributes(attribute.String("website.id", websiteID)),
	)
	defer span.End()

	report := &DeletionReport{WebsiteID: websiteID, MementoIDs: []string{}, ExternalRefs: []string{}}
	var location string

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reg := l.Registry.WithDB(tx)
		w, err := reg.Get(ctx, websiteID)
		if err != nil {
			return err
		}
		report.URL = w.URI
		location = w.Location

		mementos, err := repo.ListMementos(ctx, tx, websiteID)
		if err != nil {
			return err
		}
		for i := range mementos {
			report.MementoIDs = append(report.MementoIDs, mementos[i].ID)
			if mementos[i].Submitted() {
				report.ExternalRefs = append(report.ExternalRefs, *mementos[i].ExternalArchiveRef)
			}
		}

		// Explicit delete: the FK cascade depends on a per-connection pragma.
		if _, err := repo.DeleteMementosByWebsite(ctx, tx, websiteID); err != nil {
			return err
		}
		return reg.Delete(ctx, websiteID)
	})
	if err != nil {
		return nil, err
	}
	observability.WebsitesDeletedTotal.Inc()
	span.SetAttributes(attribute.Int("mementos.deleted", len(report.MementoIDs)))

	logger := log.With().Str("website_id", websiteID).Str("url", report.URL).Logger()
	if l.DeleteFiles && l.Store != nil && location != "" {
		if err := l.Store.Remove(location); err != nil {
			report.FileError = err.Error()
			logger.Warn().Err(err).Str("bucket", location).Msg("website deleted but bucket removal failed")
		} else {
			report.FilesRemoved = true
		}
	}
	logger.Info().Int("mementos", len(report.MementoIDs)).Bool("files_removed", report.FilesRemoved).Msg("website deleted")
	return report, nil
}
