// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-archive-backend/internal/domain"
)

// WebsitesStats returns the number of registry entries and the greatest
// UpdatedAt among them (nil when the registry is empty).
func WebsitesStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.ArchivedWebsite{})
	return latest(q, &count)
}

// MementosStats returns the number of mementos of a website and the greatest
// UpdatedAt among them. UpdatedAt moves when an external reference is set,
// so the pair changes whenever the listing would.
func MementosStats(ctx context.Context, db *gorm.DB, websiteID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Memento{}).Where("website_id = ?", websiteID)
	return latest(q, &count)
}

func latest(q *gorm.DB, count *int64) (int64, *time.Time, error) {
	if err := q.Count(count).Error; err != nil {
		return 0, nil, err
	}
	if *count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err := q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return *count, &row.UpdatedAt, nil
}
