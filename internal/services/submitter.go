// Package services – ExternalArchiveSubmitter
//
// The submitter escalates one memento to a Wayback-style public archive by
// requesting "{endpoint}/save/{url}". Remote saves are not idempotent, so a
// memento that already carries a reference is never sent again. Quota is
// checked before the call and counted only after a successful one. No
// retries happen here.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-archive-backend/internal/observability"
	"github.com/tbourn/go-archive-backend/internal/repo"
)

// Submission outcomes used as metric labels.
const (
	outcomeSuccess          = "success"
	outcomeAlreadySubmitted = "already_submitted"
	outcomeQuotaExceeded    = "quota_exceeded"
	outcomeFailed           = "failed"
)

// waybackLayout is the 14-digit timestamp used in archive replay URLs.
const waybackLayout = "20060102150405"

// ExternalArchiveSubmitter submits memento URLs to the external archive.
type ExternalArchiveSubmitter struct {
	DB     *gorm.DB
	Quota  *QuotaLedger
	Client *http.Client

	// Endpoint is the archive base URL, e.g. https://web.archive.org.
	Endpoint  string
	UserAgent string

	// Now is used for the last-resort reference; defaults to time.Now.
	Now func() time.Time

	inflight sync.Map
}

// NewExternalArchiveSubmitter returns a submitter whose HTTP client has the
// given timeout and does not follow redirects, so the Location of the first
// response can be recorded.
func NewExternalArchiveSubmitter(db *gorm.DB, quota *QuotaLedger, endpoint string, timeout time.Duration, userAgent string) *ExternalArchiveSubmitter {
	return &ExternalArchiveSubmitter{
		DB:    db,
		Quota: quota,
		Client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Endpoint:  strings.TrimRight(endpoint, "/"),
		UserAgent: userAgent,
		Now:       time.Now,
	}
}

// Submit sends the memento's website URL to the external archive and stores
// the returned reference on the memento.
//
// Errors: ErrMementoNotFound, ErrAlreadySubmitted, *QuotaExceededError,
// *SubmissionFailedError.
func (s *ExternalArchiveSubmitter) Submit(ctx context.Context, mementoID string) (ref string, err error) {
	tr := otel.Tracer("services/ExternalArchiveSubmitter")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(attribute.String("memento.id", mementoID)),
	)
	defer func() {
		outcome := outcomeSuccess
		switch {
		case err == nil:
		case errors.Is(err, ErrAlreadySubmitted):
			outcome = outcomeAlreadySubmitted
		case errors.Is(err, ErrQuotaExceeded):
			outcome = outcomeQuotaExceeded
		default:
			outcome = outcomeFailed
			span.SetStatus(codes.Error, err.Error())
		}
		observability.SubmissionsTotal.WithLabelValues(outcome).Inc()
		span.SetAttributes(attribute.String("submission.outcome", outcome))
		span.End()
	}()

	if _, busy := s.inflight.LoadOrStore(mementoID, struct{}{}); busy {
		return "", ErrAlreadySubmitted
	}
	defer s.inflight.Delete(mementoID)

	m, err := repo.GetMemento(ctx, s.DB, mementoID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrMementoNotFound
	}
	if err != nil {
		return "", err
	}
	if m.Submitted() {
		return "", ErrAlreadySubmitted
	}
	website, err := repo.GetWebsite(ctx, s.DB, m.WebsiteID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrWebsiteNotFound
	}
	if err != nil {
		return "", err
	}

	st, err := s.Quota.Status(ctx)
	if err != nil {
		return "", err
	}
	if !st.CanSubmit {
		return "", &QuotaExceededError{Enabled: st.Enabled, Submitted: st.SubmittedToday, Limit: st.DailyLimit}
	}

	ref, err = s.save(ctx, website.URI)
	if err != nil {
		return "", err
	}

	// The remote save happened; it counts against today's quota even if the
	// reference cannot be stored below.
	if qerr := s.Quota.Increment(ctx); qerr != nil {
		log.Warn().Err(qerr).Str("memento_id", mementoID).Msg("failed to increment external archive quota")
	}

	if err := repo.SetExternalArchiveRef(ctx, s.DB, mementoID, ref); err != nil {
		switch {
		case errors.Is(err, repo.ErrAlreadySet):
			return "", ErrAlreadySubmitted
		case errors.Is(err, repo.ErrNotFound):
			return "", ErrMementoNotFound
		}
		return "", err
	}

	log.Info().Str("memento_id", mementoID).Str("url", website.URI).Str("external_ref", ref).Msg("memento submitted to external archive")
	return ref, nil
}

// save performs the outbound request and resolves the external reference.
func (s *ExternalArchiveSubmitter) save(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Endpoint+"/save/"+target, http.NoBody)
	if err != nil {
		return "", &SubmissionFailedError{Reason: err.Error()}
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &SubmissionFailedError{Reason: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return "", &SubmissionFailedError{Status: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
	}
	return s.resolveRef(resp.Header, target), nil
}

// resolveRef picks the reference from, in order: the Location header, the
// Memento-Datetime header, the current time.
func (s *ExternalArchiveSubmitter) resolveRef(h http.Header, target string) string {
	if loc := strings.TrimSpace(h.Get("Location")); loc != "" {
		if base, err := url.Parse(s.Endpoint + "/"); err == nil {
			if u, err := base.Parse(loc); err == nil {
				return u.String()
			}
		}
		return loc
	}
	if md := strings.TrimSpace(h.Get("Memento-Datetime")); md != "" {
		if t, err := http.ParseTime(md); err == nil {
			return s.replayURL(t, target)
		}
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	return s.replayURL(now, target)
}

func (s *ExternalArchiveSubmitter) replayURL(t time.Time, target string) string {
	return fmt.Sprintf("%s/web/%s/%s", s.Endpoint, t.UTC().Format(waybackLayout), target)
}
