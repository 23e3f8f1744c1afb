package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-archive-backend/internal/capture"
	"github.com/tbourn/go-archive-backend/internal/domain"
	"github.com/tbourn/go-archive-backend/internal/repo"
	"github.com/tbourn/go-archive-backend/internal/storage"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	// One connection: the memory database and its pragmas live with it.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.New(filepath.Join(t.TempDir(), "archive"))
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	return s
}

// stepClock returns increasing times, one step apart, starting at start.
type stepClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

func newStepClock(start time.Time, step time.Duration) *stepClock {
	return &stepClock{next: start, step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

type fixture struct {
	db       *gorm.DB
	store    *storage.Store
	registry *ArchiveRegistry
	mementos *MementoStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newSvcDB(t)
	store := newTestStore(t)
	ms := NewMementoStore(db, store)
	ms.Now = newStepClock(time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC), time.Minute).Now
	return &fixture{
		db:       db,
		store:    store,
		registry: NewArchiveRegistry(db, store),
		mementos: ms,
	}
}

func intptr(n int) *int       { return &n }
func strptr(s string) *string { return &s }

func sampleArtifacts(title string) capture.Artifacts {
	ct := "text/html"
	n := int64(42)
	return capture.Artifacts{
		Title:         title,
		HTML:          "<html><title>" + title + "</title></html>",
		Screenshot:    []byte("\x89PNG fake"),
		HTTPStatus:    intptr(200),
		ContentType:   &ct,
		ContentLength: &n,
		Headers:       map[string]string{"Server": "test"},
	}
}

// capture files one version of url and returns the website and memento.
func (f *fixture) capture(t *testing.T, url string) (*domain.ArchivedWebsite, *domain.Memento) {
	t.Helper()
	ctx := context.Background()
	w, _, err := f.registry.GetOrCreate(ctx, url, nil)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	m, err := f.mementos.RecordCapture(ctx, w.ID, w.Location, CaptureRecord{Artifacts: sampleArtifacts("v")})
	if err != nil {
		t.Fatalf("RecordCapture: %v", err)
	}
	return w, m
}

// memSettings is an in-memory Settings implementation.
type memSettings struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newMemSettings(kv ...string) *memSettings {
	s := &memSettings{values: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		s.values[kv[i]] = kv[i+1]
	}
	return s
}

func (s *memSettings) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", false, s.err
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *memSettings) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.values[key] = value
	return nil
}

func (s *memSettings) get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// failCreates makes every INSERT into table fail on db.
func failCreates(t *testing.T, db *gorm.DB, table string) {
	t.Helper()
	err := db.Callback().Create().Before("gorm:create").Register("test:fail_"+table, func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == table {
			_ = tx.AddError(errors.New("injected write failure"))
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}
}
