// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Memento model.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-archive-backend/internal/domain"
)

// ErrAlreadySet is returned by SetExternalArchiveRef when the memento
// already carries an external reference.
var ErrAlreadySet = errors.New("external archive reference already set")

// CreateMemento inserts a fully populated memento row. A unique violation on
// (website_id, version) is returned as ErrDuplicate.
func CreateMemento(ctx context.Context, db *gorm.DB, m *domain.Memento) error {
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// LatestMemento returns the newest memento of a website, or ErrNotFound when
// the website has none.
func LatestMemento(ctx context.Context, db *gorm.DB, websiteID string) (*domain.Memento, error) {
	var m domain.Memento
	err := db.WithContext(ctx).
		Where("website_id = ?", websiteID).
		Order("version desc").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMementos returns all mementos of a website, most recent first.
func ListMementos(ctx context.Context, db *gorm.DB, websiteID string) ([]domain.Memento, error) {
	var out []domain.Memento
	err := db.WithContext(ctx).
		Where("website_id = ?", websiteID).
		Order("version desc").
		Find(&out).Error
	return out, err
}

// CountMementos returns the number of mementos of a website.
func CountMementos(ctx context.Context, db *gorm.DB, websiteID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Memento{}).
		Where("website_id = ?", websiteID).
		Count(&total).Error
	return total, err
}

// ListMementosPage returns a page of mementos, most recent first.
func ListMementosPage(ctx context.Context, db *gorm.DB, websiteID string, offset, limit int) ([]domain.Memento, error) {
	var out []domain.Memento
	err := db.WithContext(ctx).
		Where("website_id = ?", websiteID).
		Order("version desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetMemento fetches a memento by ID.
func GetMemento(ctx context.Context, db *gorm.DB, id string) (*domain.Memento, error) {
	var m domain.Memento
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// SetExternalArchiveRef stores ref on a memento that has none yet. The
// conditional update makes the set-once rule hold under concurrent callers:
// it returns ErrAlreadySet when the memento already has a reference and
// ErrNotFound when the memento does not exist.
func SetExternalArchiveRef(ctx context.Context, db *gorm.DB, id, ref string) error {
	res := db.WithContext(ctx).
		Model(&domain.Memento{}).
		Where("id = ? AND (external_archive_ref IS NULL OR external_archive_ref = '')", id).
		Updates(map[string]any{
			"external_archive_ref": ref,
			"updated_at":           time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := GetMemento(ctx, db, id); err != nil {
		return err
	}
	return ErrAlreadySet
}

// DeleteMementosByWebsite removes every memento row of a website and returns
// the number of rows deleted.
func DeleteMementosByWebsite(ctx context.Context, db *gorm.DB, websiteID string) (int64, error) {
	res := db.WithContext(ctx).Where("website_id = ?", websiteID).Delete(&domain.Memento{})
	return res.RowsAffected, res.Error
}
