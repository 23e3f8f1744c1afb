package domain

import "time"

// Capture task states. A task moves pending → running → done|failed and
// never leaves a terminal state.
const (
	TaskPending = "pending"
	TaskRunning = "running"
	TaskDone    = "done"
	TaskFailed  = "failed"
)

// CaptureTask records an asynchronous capture request so callers can poll
// for completion instead of relying on an unobserved background process.
type CaptureTask struct {
	ID           string     `json:"id"           gorm:"type:char(36);primaryKey"`
	URL          string     `json:"url"          gorm:"type:text;not null"`
	PersonaRef   *string    `json:"persona_ref,omitempty" gorm:"type:varchar(64)"`
	Language     string     `json:"language,omitempty" gorm:"type:varchar(35)"`
	GeoLatitude  *float64   `json:"geo_latitude,omitempty"`
	GeoLongitude *float64   `json:"geo_longitude,omitempty"`
	Status       string     `json:"status"       gorm:"type:varchar(16);not null;index;check:status IN ('pending','running','done','failed')"`
	Error        string     `json:"error,omitempty" gorm:"type:text"`
	WebsiteID    *string    `json:"website_id,omitempty" gorm:"type:char(36)"`
	MementoID    *string    `json:"memento_id,omitempty" gorm:"type:char(36)"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the database table name for CaptureTask.
func (CaptureTask) TableName() string { return "capture_tasks" }

// Terminal reports whether the task reached done or failed.
func (t *CaptureTask) Terminal() bool {
	return t.Status == TaskDone || t.Status == TaskFailed
}
