package handlers

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/tbourn/go-archive-backend/internal/domain"
	"github.com/tbourn/go-archive-backend/internal/services"
)

func TestListWebsites_PaginationAndETag(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "https://a.example/")
	e.seed(t, "https://b.example/")

	w := e.do(t, http.MethodGet, "/websites?page=1&page_size=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	list := decode[ListWebsitesResponse](t, w)
	if len(list.Websites) != 1 || list.Pagination.Total != 2 || !list.Pagination.HasNext {
		t.Fatalf("unexpected page: %+v", list)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	w = e.do(t, http.MethodGet, "/websites?page=1&page_size=1", nil, "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Fatalf("want 304, got %d", w.Code)
	}

	// Another page is a different representation.
	w = e.do(t, http.MethodGet, "/websites?page=2&page_size=1", nil, "If-None-Match", etag)
	if w.Code != http.StatusOK {
		t.Fatalf("page 2 status=%d", w.Code)
	}

	e.seed(t, "https://c.example/")
	w = e.do(t, http.MethodGet, "/websites?page=1&page_size=1", nil, "If-None-Match", etag)
	if w.Code != http.StatusOK || w.Header().Get("ETag") == etag {
		t.Fatalf("ETag must change after a new website: %d %s", w.Code, w.Header().Get("ETag"))
	}
}

func TestListWebsites_ByURL(t *testing.T) {
	e := newEnv(t)
	site, _ := e.seed(t, "https://a.example/path?q=1")

	w := e.do(t, http.MethodGet, "/websites?url="+url.QueryEscape("https://a.example/path?q=1"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if got := decode[domain.ArchivedWebsite](t, w); got.ID != site.ID {
		t.Fatalf("got %s want %s", got.ID, site.ID)
	}

	expectError(t, e.do(t, http.MethodGet, "/websites?url="+url.QueryEscape("https://a.example/other"), nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestGetWebsite(t *testing.T) {
	e := newEnv(t)
	site, _ := e.seed(t, "https://a.example/")

	w := e.do(t, http.MethodGet, "/websites/"+site.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if got := decode[domain.ArchivedWebsite](t, w); got.URI != "https://a.example/" {
		t.Fatalf("unexpected website: %+v", got)
	}
	expectError(t, e.do(t, http.MethodGet, "/websites/not-a-uuid", nil), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, e.do(t, http.MethodGet, "/websites/00000000-0000-0000-0000-000000000000", nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestListWebsiteMementos_NewestFirst(t *testing.T) {
	e := newEnv(t)
	site, _ := e.seed(t, "https://a.example/")
	e.seed(t, "https://a.example/")
	e.seed(t, "https://a.example/")

	w := e.do(t, http.MethodGet, "/websites/"+site.ID+"/mementos", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	list := decode[ListMementosResponse](t, w)
	if len(list.Mementos) != 3 || list.Mementos[0].Version != 3 || list.Mementos[2].Version != 1 {
		t.Fatalf("unexpected order: %+v", list.Mementos)
	}
	etag := w.Header().Get("ETag")
	if w := e.do(t, http.MethodGet, "/websites/"+site.ID+"/mementos", nil, "If-None-Match", etag); w.Code != http.StatusNotModified {
		t.Fatalf("want 304, got %d", w.Code)
	}

	expectError(t, e.do(t, http.MethodGet, "/websites/00000000-0000-0000-0000-000000000000/mementos", nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestDeleteWebsite_RemovesVersions(t *testing.T) {
	e := newEnv(t)
	site, m := e.seed(t, "https://a.example/")
	e.seed(t, "https://a.example/")

	w := e.do(t, http.MethodDelete, "/websites/"+site.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	report := decode[services.DeletionReport](t, w)
	if report.WebsiteID != site.ID || len(report.MementoIDs) != 2 || !report.FilesRemoved {
		t.Fatalf("unexpected report: %+v", report)
	}

	expectError(t, e.do(t, http.MethodGet, "/websites/"+site.ID, nil), http.StatusNotFound, ErrCodeNotFound)
	expectError(t, e.do(t, http.MethodGet, "/mementos/"+m.ID, nil), http.StatusNotFound, ErrCodeNotFound)
	expectError(t, e.do(t, http.MethodDelete, "/websites/"+site.ID, nil), http.StatusNotFound, ErrCodeNotFound)
}
