// Package domain defines the persistence models for the archival registry:
// archived websites, their versioned mementos, capture tasks and the generic
// key/value settings used by the external archive quota. These types are
// mapped with GORM and shared by the repository and service layers.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// ArchiveKindFilesystem is the only archive kind currently produced: artifacts
// live in a content-addressed directory tree on local disk.
const ArchiveKindFilesystem = "filesystem"

// ArchivedWebsite is a registry entry. Exactly one row exists per distinct URI;
// later captures of the same URI reuse the row and its bucket location.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - URI: the captured URL (URI-R), unique across all entries.
//   - PersonaRef: optional weak reference to a persona record (no cascade).
//   - ArchiveKind: storage kind, currently always "filesystem".
//   - Location: content-address bucket directory for this URI.
//   - CreatedAt: time of the first capture.
type ArchivedWebsite struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	URI         string    `json:"uri"          gorm:"type:text;not null;uniqueIndex:ux_archived_websites_uri"`
	PersonaRef  *string   `json:"persona_ref,omitempty" gorm:"type:varchar(64);index"`
	ArchiveKind string    `json:"archive_kind" gorm:"type:varchar(16);not null;default:'filesystem'"`
	Location    string    `json:"location"     gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"created_at"   gorm:"index"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for ArchivedWebsite.
func (ArchivedWebsite) TableName() string { return "archived_websites" }

// Memento is one captured version of an archived website. Mementos of a
// website form an append-only sequence ordered by Version (and CapturedAt);
// the only permitted mutation after insert is setting ExternalArchiveRef once.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - WebsiteID: owning ArchivedWebsite (cascade on delete).
//   - Version: 1-based ordinal within the website, unique per website.
//   - CapturedAt: capture time, strictly increasing within a website.
//   - Timestamp: the YYYYMMDD-HHMMSS token naming the version directory.
//   - StoragePath: directory holding content.html, screenshot.png and metadata.json.
//   - Title, Language, GeoLatitude, GeoLongitude: capture conditions.
//   - HTTPStatus, ContentType, ContentLength: nullable fetch metadata.
//   - Headers: response headers, stored as a JSON text column.
//   - ScreenshotPath: nullable screenshot file path.
//   - ExternalArchiveRef: nullable; once set the memento is never resubmitted.
type Memento struct {
	ID                 string                                `json:"id"          gorm:"type:char(36);primaryKey"`
	WebsiteID          string                                `json:"website_id"  gorm:"type:char(36);not null;index:idx_website_mementos,priority:1;uniqueIndex:ux_website_version,priority:1"`
	Version            int                                   `json:"version"     gorm:"not null;uniqueIndex:ux_website_version,priority:2"`
	CapturedAt         time.Time                             `json:"captured_at" gorm:"not null;index:idx_website_mementos,priority:2"`
	Timestamp          string                                `json:"timestamp"   gorm:"type:varchar(32);not null"`
	StoragePath        string                                `json:"storage_path" gorm:"type:text;not null"`
	Title              string                                `json:"title"       gorm:"type:text"`
	Language           string                                `json:"language,omitempty" gorm:"type:varchar(35)"`
	GeoLatitude        *float64                              `json:"geo_latitude,omitempty"`
	GeoLongitude       *float64                              `json:"geo_longitude,omitempty"`
	HTTPStatus         *int                                  `json:"http_status,omitempty"`
	ContentType        *string                               `json:"content_type,omitempty" gorm:"type:varchar(255)"`
	ContentLength      *int64                                `json:"content_length,omitempty"`
	Headers            datatypes.JSONType[map[string]string] `json:"headers"`
	ScreenshotPath     *string                               `json:"screenshot_path,omitempty" gorm:"type:text"`
	ExternalArchiveRef *string                               `json:"external_archive_ref,omitempty" gorm:"type:text"`
	CreatedAt          time.Time                             `json:"created_at"`
	UpdatedAt          time.Time                             `json:"updated_at"`

	// Website is the owning registry entry. Mementos are cascade-deleted
	// when their website is removed.
	Website ArchivedWebsite `json:"-" gorm:"foreignKey:WebsiteID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Memento.
func (Memento) TableName() string { return "mementos" }

// Submitted reports whether the memento has already been escalated to the
// external archive.
func (m *Memento) Submitted() bool {
	return m.ExternalArchiveRef != nil && *m.ExternalArchiveRef != ""
}

// Setting is a generic key/value pair. Values are always plain strings.
type Setting struct {
	Key       string    `json:"key"   gorm:"type:varchar(128);primaryKey"`
	Value     string    `json:"value" gorm:"type:text;not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Setting.
func (Setting) TableName() string { return "settings" }
