package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestWriteVersion_AllArtifacts(t *testing.T) {
	s := newStore(t)
	bucket, _ := s.BucketFor("https://example.org")
	dir, tok, err := s.CreateVersionDir(bucket, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	status := 200
	ct := "text/html"
	meta := VersionMetadata{
		URL:         "https://example.org",
		Title:       "Example",
		Timestamp:   tok,
		Language:    "de-DE",
		Geolocation: &Geolocation{Latitude: 52.52, Longitude: 13.405},
		HTTPStatus:  &status,
		ContentType: &ct,
		Headers:     map[string]string{"Server": "nginx"},
	}
	shot, err := WriteVersion(dir, "<html>hi</html>", []byte{0x89, 'P', 'N', 'G'}, meta)
	if err != nil {
		t.Fatalf("WriteVersion: %v", err)
	}
	if shot != filepath.Join(dir, ScreenshotFile) {
		t.Fatalf("unexpected screenshot path %q", shot)
	}

	html, err := ReadContent(dir)
	if err != nil || string(html) != "<html>hi</html>" {
		t.Fatalf("ReadContent: %q %v", html, err)
	}
	got, err := ReadVersionMetadata(dir)
	if err != nil {
		t.Fatalf("ReadVersionMetadata: %v", err)
	}
	if !reflect.DeepEqual(got, meta) {
		t.Fatalf("metadata mismatch:\n got %+v\nwant %+v", got, meta)
	}
}

func TestWriteVersion_NoScreenshot(t *testing.T) {
	dir := t.TempDir()
	shot, err := WriteVersion(dir, "", nil, VersionMetadata{URL: "u"})
	if err != nil {
		t.Fatalf("WriteVersion: %v", err)
	}
	if shot != "" {
		t.Fatalf("expected no screenshot path, got %q", shot)
	}
	if _, err := os.Stat(filepath.Join(dir, ScreenshotFile)); !os.IsNotExist(err) {
		t.Fatalf("screenshot file should not exist")
	}
	meta, _ := ReadVersionMetadata(dir)
	if meta.Headers == nil {
		t.Fatalf("headers should be written as an empty object")
	}
}

func TestWriteVersion_MissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gone")
	if _, err := WriteVersion(dir, "x", nil, VersionMetadata{}); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestIndex_WriteRead(t *testing.T) {
	bucket := t.TempDir()

	if _, err := ReadIndex(bucket); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}

	idx := Index{
		URL:           "https://example.org",
		FirstArchived: "2025-01-01T00:00:00Z",
		LastArchived:  "2025-01-02T00:00:00Z",
		Mementos:      []string{"20250101-000000", "20250102-000000"},
	}
	if err := WriteIndex(bucket, idx); err != nil {
		t.Fatalf("WriteIndex: %v", err)
	}
	got, err := ReadIndex(bucket)
	if err != nil || !reflect.DeepEqual(got, idx) {
		t.Fatalf("ReadIndex: %+v %v", got, err)
	}

	entries, _ := os.ReadDir(bucket)
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestIndex_Corrupt(t *testing.T) {
	bucket := t.TempDir()
	if err := os.WriteFile(filepath.Join(bucket, MetadataFile), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadIndex(bucket); !errors.Is(err, ErrCorruptIndex) {
		t.Fatalf("expected ErrCorruptIndex, got %v", err)
	}
	// Overwriting a corrupt index works.
	if err := WriteIndex(bucket, Index{URL: "u"}); err != nil {
		t.Fatalf("WriteIndex: %v", err)
	}
	got, err := ReadIndex(bucket)
	if err != nil || got.URL != "u" || got.Mementos == nil {
		t.Fatalf("ReadIndex after rewrite: %+v %v", got, err)
	}
}
