package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-archive-backend/internal/domain"
	"github.com/tbourn/go-archive-backend/internal/repo"
)

// ListWebsitesResponse is a page of registry entries.
type ListWebsitesResponse struct {
	Websites   []domain.ArchivedWebsite `json:"websites"`
	Pagination Pagination               `json:"pagination"`
}

// ListMementosResponse is a page of a website's versions, newest first.
type ListMementosResponse struct {
	WebsiteID  string           `json:"website_id"`
	Mementos   []domain.Memento `json:"mementos"`
	Pagination Pagination       `json:"pagination"`
}

func weakETag(kind, scope string, count int64, last *time.Time) string {
	var ms int64
	if last != nil {
		ms = last.UnixMilli()
	}
	return fmt.Sprintf(`W/"%s:%s:%d:%d"`, kind, scope, count, ms)
}

// ListWebsites godoc
// @ID          listWebsites
// @Summary     List archived websites
// @Description Pages through the registry, newest first. With ?url= it returns the single entry
// @Description for that exact URL instead. Supports weak ETags via If-None-Match.
// @Tags        Websites
// @Produce     json
// @Param       url        query  string  false  "Exact URL to look up"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListWebsitesResponse
// @Success     304  {string}  string  "Not Modified"
// @Router      /websites [get]
func (h *Handlers) ListWebsites(c *gin.Context) {
	ctx := c.Request.Context()

	if u := strings.TrimSpace(c.Query("url")); u != "" {
		w, err := h.Websites.GetByURL(ctx, u)
		if err != nil {
			respondError(c, err)
			return
		}
		ok(c, http.StatusOK, w)
		return
	}

	page, pageSize := pageParams(c)
	if h.DB != nil {
		if count, last, err := repo.WebsitesStats(ctx, h.DB); err == nil {
			if notModified(c, weakETag("websites", fmt.Sprintf("%d-%d", page, pageSize), count, last)) {
				return
			}
		}
	}

	items, total, err := h.Websites.ListPage(ctx, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, ListWebsitesResponse{
		Websites:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetWebsite godoc
// @ID          getWebsite
// @Summary     Get an archived website
// @Tags        Websites
// @Produce     json
// @Param       id   path  string  true  "Website ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.ArchivedWebsite
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /websites/{id} [get]
func (h *Handlers) GetWebsite(c *gin.Context) {
	id, valid := pathID(c, "id", "website")
	if !valid {
		return
	}
	w, err := h.Websites.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, w)
}

// DeleteWebsite godoc
// @ID          deleteWebsite
// @Summary     Delete an archived website
// @Description Removes the website and every memento of it, then (when enabled) its files.
// @Description References already held by the external archive are listed but not revoked.
// @Tags        Websites
// @Produce     json
// @Param       id   path  string  true  "Website ID (UUID)"  format(uuid)
// @Success     200  {object}  services.DeletionReport
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /websites/{id} [delete]
func (h *Handlers) DeleteWebsite(c *gin.Context) {
	id, valid := pathID(c, "id", "website")
	if !valid {
		return
	}
	report, err := h.Lifecycle.DeleteWebsite(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, report)
}

// ListWebsiteMementos godoc
// @ID          listWebsiteMementos
// @Summary     List versions of a website
// @Description Most recent first. Supports weak ETags via If-None-Match.
// @Tags        Websites
// @Produce     json
// @Param       id         path   string  true   "Website ID (UUID)"  format(uuid)
// @Param       page       query  int     false  "Page number"        minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"     minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListMementosResponse
// @Success     304  {string}  string  "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /websites/{id}/mementos [get]
func (h *Handlers) ListWebsiteMementos(c *gin.Context) {
	ctx := c.Request.Context()
	id, valid := pathID(c, "id", "website")
	if !valid {
		return
	}
	page, pageSize := pageParams(c)

	// A website without rows may not exist; let the service decide that.
	if h.DB != nil {
		if count, last, err := repo.MementosStats(ctx, h.DB, id); err == nil && count > 0 {
			if notModified(c, weakETag("mementos", fmt.Sprintf("%s:%d-%d", id, page, pageSize), count, last)) {
				return
			}
		}
	}

	items, total, err := h.Mementos.ListVersionsPage(ctx, id, page, pageSize)
	if err != nil {
		c.Writer.Header().Del("ETag")
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, ListMementosResponse{
		WebsiteID:  id,
		Mementos:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}
