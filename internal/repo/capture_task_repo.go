// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for CaptureTask.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-archive-backend/internal/domain"
)

// CreateCaptureTask inserts t in the pending state. ID and timestamps are
// assigned here; any values set by the caller are overwritten.
func CreateCaptureTask(ctx context.Context, db *gorm.DB, t *domain.CaptureTask) error {
	now := time.Now().UTC()
	t.ID = uuid.NewString()
	t.Status = domain.TaskPending
	t.CreatedAt = now
	t.UpdatedAt = now
	return db.WithContext(ctx).Create(t).Error
}

// GetCaptureTask fetches a task by ID.
func GetCaptureTask(ctx context.Context, db *gorm.DB, id string) (*domain.CaptureTask, error) {
	var t domain.CaptureTask
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// MarkCaptureTaskRunning moves a pending task to running.
func MarkCaptureTaskRunning(ctx context.Context, db *gorm.DB, id string) error {
	return updateTask(ctx, db, id, domain.TaskPending, map[string]any{
		"status": domain.TaskRunning,
	})
}

// MarkCaptureTaskDone records the produced website and memento.
func MarkCaptureTaskDone(ctx context.Context, db *gorm.DB, id, websiteID, mementoID string) error {
	now := time.Now().UTC()
	return updateTask(ctx, db, id, domain.TaskRunning, map[string]any{
		"status":       domain.TaskDone,
		"website_id":   websiteID,
		"memento_id":   mementoID,
		"completed_at": now,
	})
}

// MarkCaptureTaskFailed records the failure reason.
func MarkCaptureTaskFailed(ctx context.Context, db *gorm.DB, id, reason string) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).
		Model(&domain.CaptureTask{}).
		Where("id = ? AND status IN ?", id, []string{domain.TaskPending, domain.TaskRunning}).
		Updates(map[string]any{
			"status":       domain.TaskFailed,
			"error":        reason,
			"completed_at": now,
			"updated_at":   now,
		}).Error
}

// updateTask applies fields only when the task is currently in state from.
// Returns ErrNotFound when no row matched.
func updateTask(ctx context.Context, db *gorm.DB, id, from string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.CaptureTask{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FailUnfinishedCaptureTasks marks every pending or running task as failed.
// It is meant for startup, when no worker of this process can still own them.
func FailUnfinishedCaptureTasks(ctx context.Context, db *gorm.DB, reason string) (int64, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.CaptureTask{}).
		Where("status IN ?", []string{domain.TaskPending, domain.TaskRunning}).
		Updates(map[string]any{
			"status":       domain.TaskFailed,
			"error":        reason,
			"completed_at": now,
			"updated_at":   now,
		})
	return res.RowsAffected, res.Error
}
