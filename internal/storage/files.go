package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Geolocation is the spoofed position recorded with a version.
type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// VersionMetadata is the per-version metadata.json document.
type VersionMetadata struct {
	URL           string            `json:"url"`
	Title         string            `json:"title"`
	Timestamp     string            `json:"timestamp"`
	Language      string            `json:"language,omitempty"`
	Geolocation   *Geolocation      `json:"geolocation"`
	PersonaRef    *string           `json:"personaRef"`
	HTTPStatus    *int              `json:"httpStatus"`
	ContentType   *string           `json:"contentType"`
	ContentLength *int64            `json:"contentLength"`
	Headers       map[string]string `json:"headers"`
}

// Index is the aggregate metadata.json at the bucket root. It mirrors the
// relational rows and is rewritten whole on every change.
type Index struct {
	URL           string   `json:"url"`
	FirstArchived string   `json:"firstArchived"`
	LastArchived  string   `json:"lastArchived"`
	Mementos      []string `json:"mementos"`
}

// WriteVersion writes the artifacts of one capture into dir. The returned
// screenshot path is empty when no screenshot bytes were given.
func WriteVersion(dir, html string, screenshot []byte, meta VersionMetadata) (screenshotPath string, err error) {
	if err := os.WriteFile(filepath.Join(dir, ContentFile), []byte(html), 0o644); err != nil {
		return "", err
	}
	if len(screenshot) > 0 {
		screenshotPath = filepath.Join(dir, ScreenshotFile)
		if err := os.WriteFile(screenshotPath, screenshot, 0o644); err != nil {
			return "", err
		}
	}
	if meta.Headers == nil {
		meta.Headers = map[string]string{}
	}
	if err := writeJSON(filepath.Join(dir, MetadataFile), meta); err != nil {
		return "", err
	}
	return screenshotPath, nil
}

// ReadVersionMetadata loads the per-version metadata.json from dir.
func ReadVersionMetadata(dir string) (VersionMetadata, error) {
	var meta VersionMetadata
	b, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(b, &meta)
	return meta, err
}

// ReadContent returns the archived HTML stored in dir.
func ReadContent(dir string) ([]byte, error) {
	return os.ReadFile(filepath.Join(dir, ContentFile))
}

// WriteIndex replaces the bucket index atomically.
func WriteIndex(bucket string, idx Index) error {
	if idx.Mementos == nil {
		idx.Mementos = []string{}
	}
	return writeJSON(filepath.Join(bucket, MetadataFile), idx)
}

// ReadIndex loads the bucket index. A missing file yields os.ErrNotExist;
// a corrupt one yields ErrCorruptIndex.
func ReadIndex(bucket string) (Index, error) {
	var idx Index
	b, err := os.ReadFile(filepath.Join(bucket, MetadataFile))
	if err != nil {
		return idx, err
	}
	if err := json.Unmarshal(b, &idx); err != nil {
		return Index{}, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	return idx, nil
}

// ErrCorruptIndex marks a bucket index that could not be decoded.
var ErrCorruptIndex = errors.New("corrupt bucket index")

// writeJSON writes v to path through a temp file and rename so readers
// never observe a half-written document.
func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
