package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-archive-backend/internal/domain"
	"github.com/tbourn/go-archive-backend/internal/http/middleware"
)

// SubmitResponse reports the reference the external archive assigned.
type SubmitResponse struct {
	MementoID   string `json:"memento_id"`
	ExternalRef string `json:"external_ref" example:"https://web.archive.org/web/20250501100000/https://example.com/"`
}

// Versions never change once written, so artifacts are cached for good.
const immutableCache = "public, max-age=31536000, immutable"

// GetMemento godoc
// @ID          getMemento
// @Summary     Get a memento
// @Tags        Mementos
// @Produce     json
// @Param       id   path  string  true  "Memento ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.Memento
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /mementos/{id} [get]
func (h *Handlers) GetMemento(c *gin.Context) {
	id, valid := pathID(c, "id", "memento")
	if !valid {
		return
	}
	m, err := h.Mementos.GetVersion(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// GetMementoContent godoc
// @ID          getMementoContent
// @Summary     Archived HTML of a memento
// @Description Replays the stored page inside a sandbox. Memento-Datetime and Link rel="original"
// @Description follow the Memento protocol (RFC 7089).
// @Tags        Mementos
// @Produce     html
// @Param       id   path  string  true  "Memento ID (UUID)"  format(uuid)
// @Success     200  {string}  string  "archived HTML"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /mementos/{id}/content [get]
func (h *Handlers) GetMementoContent(c *gin.Context) {
	id, valid := pathID(c, "id", "memento")
	if !valid {
		return
	}
	ctx := c.Request.Context()
	etag := artifactETag(id, "content")
	if c.GetHeader("If-None-Match") == etag {
		m, err := h.Mementos.GetVersion(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		h.mementoHeaders(c, m)
		c.Header("ETag", etag)
		c.Status(http.StatusNotModified)
		return
	}

	body, m, err := h.Mementos.ReadContent(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.mementoHeaders(c, m)
	c.Header("ETag", etag)
	c.Header("Cache-Control", immutableCache)
	c.Data(http.StatusOK, "text/html; charset=utf-8", body)
	middleware.ObserveArtifact("content", int64(len(body)))
}

// GetMementoScreenshot godoc
// @ID          getMementoScreenshot
// @Summary     Screenshot of a memento
// @Tags        Mementos
// @Produce     png
// @Param       id   path  string  true  "Memento ID (UUID)"  format(uuid)
// @Success     200  {file}    file
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown memento or no screenshot"
// @Router      /mementos/{id}/screenshot [get]
func (h *Handlers) GetMementoScreenshot(c *gin.Context) {
	id, valid := pathID(c, "id", "memento")
	if !valid {
		return
	}
	path, err := h.Mementos.ScreenshotPath(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("ETag", artifactETag(id, "screenshot"))
	c.Header("Cache-Control", immutableCache)
	c.Header("Content-Type", "image/png")
	c.File(path)
	if c.Writer.Status() == http.StatusOK {
		middleware.ObserveArtifact("screenshot", int64(c.Writer.Size()))
	}
}

// SubmitMemento godoc
// @ID          submitMemento
// @Summary     Submit a memento to the external archive
// @Description Asks the public archive to save the memento's URL and stores the returned reference.
// @Description Each memento is submitted at most once and every submission counts against the daily quota.
// @Tags        Mementos
// @Produce     json
// @Param       id   path  string  true  "Memento ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.SubmitResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "submissions_disabled"
// @Failure     409  {object}  handlers.ErrorResponse  "already_submitted"
// @Failure     429  {object}  handlers.ErrorResponse  "quota_exceeded"
// @Failure     502  {object}  handlers.ErrorResponse  "submission_failed"
// @Router      /mementos/{id}/submit [post]
func (h *Handlers) SubmitMemento(c *gin.Context) {
	id, valid := pathID(c, "id", "memento")
	if !valid {
		return
	}
	ref, err := h.Submitter.Submit(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, SubmitResponse{MementoID: id, ExternalRef: ref})
}

// mementoHeaders adds the Memento protocol headers for m.
func (h *Handlers) mementoHeaders(c *gin.Context, m *domain.Memento) {
	c.Header("Memento-Datetime", m.CapturedAt.UTC().Format(http.TimeFormat))
	c.Header("X-Memento-Version", strconv.Itoa(m.Version))
	if h.Websites == nil {
		return
	}
	if w, err := h.Websites.Get(c.Request.Context(), m.WebsiteID); err == nil {
		c.Header("Link", "<"+w.URI+`>; rel="original"`)
	}
}

func artifactETag(id, kind string) string {
	return `"` + kind + ":" + id + `"`
}
