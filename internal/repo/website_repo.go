// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ArchivedWebsite model (the registry).
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - When a website is not found, functions return ErrNotFound.
//   - A unique violation on uri is returned as ErrDuplicate.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-archive-backend/internal/domain"
)

// CreateWebsite inserts a new filesystem registry entry for uri stored at
// location. The ID is a random UUID and CreatedAt is set to UTC now.
func CreateWebsite(ctx context.Context, db *gorm.DB, uri string, personaRef *string, location string) (*domain.ArchivedWebsite, error) {
	now := time.Now().UTC()
	w := &domain.ArchivedWebsite{
		ID:          uuid.NewString(),
		URI:         uri,
		PersonaRef:  personaRef,
		ArchiveKind: domain.ArchiveKindFilesystem,
		Location:    location,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.WithContext(ctx).Create(w).Error; err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return w, nil
}

// GetWebsite fetches a registry entry by ID.
func GetWebsite(ctx context.Context, db *gorm.DB, id string) (*domain.ArchivedWebsite, error) {
	var w domain.ArchivedWebsite
	if err := db.WithContext(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWebsiteByURI fetches a registry entry by exact URI match.
func GetWebsiteByURI(ctx context.Context, db *gorm.DB, uri string) (*domain.ArchivedWebsite, error) {
	var w domain.ArchivedWebsite
	if err := db.WithContext(ctx).Where("uri = ?", uri).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// CountWebsites returns the number of registry entries.
func CountWebsites(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.ArchivedWebsite{}).Count(&total).Error
	return total, err
}

// ListWebsitesPage returns a page of registry entries, most recently created first.
func ListWebsitesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.ArchivedWebsite, error) {
	var out []domain.ArchivedWebsite
	err := db.WithContext(ctx).
		Order("created_at desc, id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// DeleteWebsite removes the registry row. Memento rows go with it through
// the ON DELETE CASCADE constraint; callers that cannot rely on foreign keys
// being enabled should call DeleteMementosByWebsite first in the same
// transaction. Returns ErrNotFound when no row matched.
func DeleteWebsite(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.ArchivedWebsite{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
