package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-archive-backend/internal/capture"
	"github.com/tbourn/go-archive-backend/internal/domain"
	"github.com/tbourn/go-archive-backend/internal/http/middleware"
	"github.com/tbourn/go-archive-backend/internal/repo"
	"github.com/tbourn/go-archive-backend/internal/services"
	"github.com/tbourn/go-archive-backend/internal/storage"
)

// ---------- test helpers ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
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
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// clock hands out increasing times one minute apart.
type clock struct {
	mu   sync.Mutex
	next time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(time.Minute)
	return t
}

type env struct {
	db        *gorm.DB
	engine    *gin.Engine
	registry  *services.ArchiveRegistry
	mementos  *services.MementoStore
	captures  *services.CaptureService
	quota     *services.QuotaLedger
	submitter *services.ExternalArchiveSubmitter
	archive   *httptest.Server
	saves     atomic.Int32
}

// newEnv wires real services over sqlite and a temp archive root. The
// capture provider echoes the URL as the page title; the external archive
// is an httptest server answering saves with a Location.
func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	e := &env{db: newHandlerDB(t)}
	store, err := storage.New(filepath.Join(t.TempDir(), "archive"))
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}

	e.registry = services.NewArchiveRegistry(e.db, store)
	e.mementos = services.NewMementoStore(e.db, store)
	e.mementos.Now = (&clock{next: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)}).Now

	provider := capture.ProviderFunc(func(_ context.Context, req capture.Request) (capture.Artifacts, error) {
		return capture.Artifacts{
			Title:      req.URL,
			HTML:       "<html><title>" + req.URL + "</title></html>",
			Screenshot: []byte("\x89PNG fake"),
		}, nil
	})
	e.captures = services.NewCaptureService(e.db, provider, e.registry, e.mementos, 2, time.Second)
	t.Cleanup(e.captures.Wait)

	e.quota = services.NewQuotaLedger(repo.SettingsStore{DB: e.db}, true, 2)

	e.archive = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.saves.Add(1)
		w.Header().Set("Location", "/web/20250501100000/"+r.URL.Path[len("/save/"):])
		w.WriteHeader(http.StatusFound)
	}))
	t.Cleanup(e.archive.Close)
	e.submitter = services.NewExternalArchiveSubmitter(e.db, e.quota, e.archive.URL, time.Second, "test")

	h := New(Deps{
		Captures:  e.captures,
		Websites:  e.registry,
		Mementos:  e.mementos,
		Submitter: e.submitter,
		Lifecycle: services.NewLifecycleManager(e.db, e.registry, store, true),
		Quota:     e.quota,
		DB:        e.db,
	})

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{},
		func(ctx context.Context, clientID, scope, key string, now time.Time) (string, bool, error) {
			rec, err := repo.GetIdempotency(ctx, e.db, clientID, scope, key, now)
			if err != nil {
				return "", false, nil
			}
			return rec.TaskID, true, nil
		}))
	r.POST("/captures", h.CreateCapture)
	r.GET("/captures/:id", h.GetCapture)
	r.GET("/websites", h.ListWebsites)
	r.GET("/websites/:id", h.GetWebsite)
	r.DELETE("/websites/:id", h.DeleteWebsite)
	r.GET("/websites/:id/mementos", h.ListWebsiteMementos)
	r.GET("/mementos/:id", h.GetMemento)
	r.GET("/mementos/:id/content", h.GetMementoContent)
	r.GET("/mementos/:id/screenshot", h.GetMementoScreenshot)
	r.POST("/mementos/:id/submit", h.SubmitMemento)
	r.GET("/quota", h.GetQuota)
	r.PUT("/quota", h.UpdateQuota)
	e.engine = r
	return e
}

func (e *env) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

// seed files one version of url synchronously.
func (e *env) seed(t *testing.T, url string) (*domain.ArchivedWebsite, *domain.Memento) {
	t.Helper()
	w, m, err := e.captures.Run(context.Background(), capture.Request{URL: url})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return w, m
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) ErrorResponse {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status=%d want %d body=%s", w.Code, status, w.Body.String())
	}
	er := decode[ErrorResponse](t, w)
	if er.Code != code {
		t.Fatalf("code=%q want %q", er.Code, code)
	}
	return er
}
