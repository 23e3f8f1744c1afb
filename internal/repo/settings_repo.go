// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the generic key/value settings store.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-archive-backend/internal/domain"
)

// GetSetting returns the value stored under key, or ErrNotFound.
func GetSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	var s domain.Setting
	if err := db.WithContext(ctx).Where("key = ?", key).First(&s).Error; err != nil {
		return "", err
	}
	return s.Value, nil
}

// PutSetting inserts or replaces the value stored under key.
func PutSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	s := &domain.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(s).Error
}

// SettingsStore adapts the free functions to a string key/value collaborator
// bound to one database handle.
type SettingsStore struct {
	DB *gorm.DB
}

// Get returns (value, true) when key exists, ("", false) when it does not.
func (s SettingsStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := GetSetting(ctx, s.DB, key)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set stores value under key.
func (s SettingsStore) Set(ctx context.Context, key, value string) error {
	return PutSetting(ctx, s.DB, key, value)
}
