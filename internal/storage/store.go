// Package storage implements the content-addressed directory tree that
// backs the archive. Each URL maps to a bucket named after the hex MD5
// digest of the URL; every capture of that URL gets its own timestamped
// version directory inside the bucket.
//
// Layout:
//
//	<root>/<md5(url)>/metadata.json                  aggregate index
//	<root>/<md5(url)>/<YYYYMMDD-HHMMSS>/content.html
//	<root>/<md5(url)>/<YYYYMMDD-HHMMSS>/screenshot.png (optional)
//	<root>/<md5(url)>/<YYYYMMDD-HHMMSS>/metadata.json
package storage

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// File names used inside buckets and version directories.
const (
	ContentFile    = "content.html"
	ScreenshotFile = "screenshot.png"
	MetadataFile   = "metadata.json"
)

// TimestampLayout names version directories. It sorts lexically in
// chronological order.
const TimestampLayout = "20060102-150405"

// maxSuffix bounds the -N suffixes tried when several versions of the same
// URL are captured within one second.
const maxSuffix = 1000

// ErrOutsideRoot is returned when a path to remove does not live under the
// store root.
var ErrOutsideRoot = errors.New("path outside archive root")

// Store is a content-addressed directory tree rooted at Root.
type Store struct {
	Root string
}

// New returns a Store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Store{Root: abs}, nil
}

// BucketName returns the deterministic bucket name for url.
func BucketName(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// BucketFor returns the bucket directory for url, creating it if absent.
// Repeated calls for the same url return the same path.
func (s *Store) BucketFor(url string) (string, error) {
	dir := filepath.Join(s.Root, BucketName(url))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Timestamp renders t as a version directory token (UTC).
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// CreateVersionDir creates a fresh version directory under bucket named
// after at. When the name is taken a -2, -3, ... suffix is appended.
// It returns the directory path and the token used as its name.
func (s *Store) CreateVersionDir(bucket string, at time.Time) (dir, token string, err error) {
	if err := os.MkdirAll(bucket, 0o755); err != nil {
		return "", "", err
	}
	base := Timestamp(at)
	for n := 1; n <= maxSuffix; n++ {
		token = base
		if n > 1 {
			token = fmt.Sprintf("%s-%d", base, n)
		}
		dir = filepath.Join(bucket, token)
		err = os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, token, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", "", err
		}
	}
	return "", "", fmt.Errorf("no free version directory for %s in %s", base, bucket)
}

// Contains reports whether path lies strictly inside the store root.
func (s *Store) Contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(s.Root, abs)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Remove deletes path and everything below it. Paths outside the root are
// refused with ErrOutsideRoot. Removing a missing path is not an error.
func (s *Store) Remove(path string) error {
	if !s.Contains(path) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return os.RemoveAll(path)
}
