// Package capture defines the contract between the archive and whatever
// produces raw page snapshots, plus two providers: a headless Chromium
// driven through Playwright and a plain HTTP fetcher.
package capture

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

var (
	ErrInvalidURL         = errors.New("invalid url")
	ErrInvalidLanguage    = errors.New("invalid language tag")
	ErrInvalidGeolocation = errors.New("invalid geolocation")
)

// Geolocation is the position a capture pretends to be at.
type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// Request describes one capture.
type Request struct {
	URL         string       `json:"url"`
	Language    string       `json:"language,omitempty"`
	Geolocation *Geolocation `json:"geolocation,omitempty"`
	PersonaRef  *string      `json:"persona_ref,omitempty"`
}

// Artifacts is the raw output of a provider.
type Artifacts struct {
	Title         string
	HTML          string
	Screenshot    []byte
	HTTPStatus    *int
	ContentType   *string
	ContentLength *int64
	Headers       map[string]string
}

// Provider produces a snapshot of a URL under the conditions in Request.
type Provider interface {
	Capture(ctx context.Context, req Request) (Artifacts, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (Artifacts, error)

// Capture calls f.
func (f ProviderFunc) Capture(ctx context.Context, req Request) (Artifacts, error) {
	return f(ctx, req)
}

// Validate checks the request and canonicalises its language tag in place.
func (r *Request) Validate() error {
	r.URL = strings.TrimSpace(r.URL)
	u, err := url.Parse(r.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidURL, r.URL)
	}

	if lang := strings.TrimSpace(r.Language); lang != "" {
		tag, err := language.Parse(lang)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidLanguage, lang)
		}
		r.Language = tag.String()
	} else {
		r.Language = ""
	}

	if g := r.Geolocation; g != nil {
		if g.Latitude < -90 || g.Latitude > 90 || g.Longitude < -180 || g.Longitude > 180 || g.Accuracy < 0 {
			return fmt.Errorf("%w: %v,%v", ErrInvalidGeolocation, g.Latitude, g.Longitude)
		}
	}
	return nil
}

// acceptLanguage builds an Accept-Language value for tag, e.g.
// "fr-CA" -> "fr-CA,fr;q=0.9".
func acceptLanguage(tag string) string {
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	base, conf := t.Base()
	if conf == language.No || base.String() == t.String() {
		return t.String()
	}
	return t.String() + "," + base.String() + ";q=0.9"
}

// parseLength reads a Content-Length header value.
func parseLength(v string) *int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}
