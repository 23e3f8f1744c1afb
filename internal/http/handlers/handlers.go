package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-archive-backend/internal/capture"
	"github.com/tbourn/go-archive-backend/internal/domain"
	"github.com/tbourn/go-archive-backend/internal/services"
	"github.com/tbourn/go-archive-backend/internal/utils"
)

// CaptureService starts captures and reports on their tasks.
type CaptureService interface {
	Enqueue(ctx context.Context, req capture.Request) (*domain.CaptureTask, error)
	Task(ctx context.Context, id string) (*domain.CaptureTask, error)
}

// WebsiteRegistry reads the registry of archived websites.
type WebsiteRegistry interface {
	Get(ctx context.Context, id string) (*domain.ArchivedWebsite, error)
	GetByURL(ctx context.Context, url string) (*domain.ArchivedWebsite, error)
	ListPage(ctx context.Context, page, pageSize int) ([]domain.ArchivedWebsite, int64, error)
}

// MementoReader reads versions and their stored artifacts.
type MementoReader interface {
	ListVersionsPage(ctx context.Context, websiteID string, page, pageSize int) ([]domain.Memento, int64, error)
	GetVersion(ctx context.Context, id string) (*domain.Memento, error)
	ReadContent(ctx context.Context, id string) ([]byte, *domain.Memento, error)
	ScreenshotPath(ctx context.Context, id string) (string, error)
}

// Submitter escalates a memento to the external archive.
type Submitter interface {
	Submit(ctx context.Context, mementoID string) (string, error)
}

// WebsiteDeleter removes a website with all of its versions.
type WebsiteDeleter interface {
	DeleteWebsite(ctx context.Context, websiteID string) (*services.DeletionReport, error)
}

// QuotaManager reads and configures the external archive quota.
type QuotaManager interface {
	Status(ctx context.Context) (services.QuotaStatus, error)
	Configure(ctx context.Context, enabled *bool, limit *int) (services.QuotaStatus, error)
}

// Deps are the collaborators of Handlers. DB is optional; without it list
// endpoints send no ETag and Idempotency-Key is not recorded.
type Deps struct {
	Captures  CaptureService
	Websites  WebsiteRegistry
	Mementos  MementoReader
	Submitter Submitter
	Lifecycle WebsiteDeleter
	Quota     QuotaManager

	DB             *gorm.DB
	IdempotencyTTL time.Duration
}

// Handlers groups the archive endpoints.
type Handlers struct {
	Deps
}

// New returns handlers bound to d.
func New(d Deps) *Handlers {
	if d.IdempotencyTTL <= 0 {
		d.IdempotencyTTL = 24 * time.Hour
	}
	return &Handlers{Deps: d}
}

// pathID reads a UUID path parameter, answering 400 when malformed.
func pathID(c *gin.Context, name, what string) (string, bool) {
	id := c.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, what+" id must be a UUID")
		return "", false
	}
	return id, true
}

func pageParams(c *gin.Context) (int, int) {
	return utils.ClampPage(c.Query("page"), c.Query("page_size"))
}

func newPagination(page, pageSize int, total int64) Pagination {
	pages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: pages,
		HasNext:    page < pages,
	}
}

// notModified sets etag and reports whether If-None-Match already holds it.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
