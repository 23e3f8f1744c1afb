package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultUserAgent   = "Mozilla/5.0 (compatible; go-archive-backend/1.0)"
	maxBodyBytes       = 32 << 20
)

// HTTPProvider fetches pages with a plain GET. It produces no screenshot
// and cannot spoof geolocation; language is sent as Accept-Language.
type HTTPProvider struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPProvider returns an HTTPProvider with the given request timeout.
func NewHTTPProvider(timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPProvider{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: defaultUserAgent,
	}
}

// Capture implements Provider.
func (p *HTTPProvider) Capture(ctx context.Context, req Request) (Artifacts, error) {
	var out Artifacts

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, http.NoBody)
	if err != nil {
		return out, fmt.Errorf("failed to create request: %w", err)
	}
	if p.UserAgent != "" {
		hreq.Header.Set("User-Agent", p.UserAgent)
	}
	if al := acceptLanguage(req.Language); al != "" {
		hreq.Header.Set("Accept-Language", al)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(hreq)
	if err != nil {
		return out, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return out, fmt.Errorf("failed to read body: %w", err)
	}

	status := resp.StatusCode
	out.HTTPStatus = &status
	out.HTML = string(body)
	out.Headers = flattenHeaders(resp.Header)
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		out.ContentType = &ct
	}
	if n := parseLength(resp.Header.Get("Content-Length")); n != nil {
		out.ContentLength = n
	} else {
		n := int64(len(body))
		out.ContentLength = &n
	}

	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		out.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return out, nil
}

// flattenHeaders joins repeated header values with ", ".
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
