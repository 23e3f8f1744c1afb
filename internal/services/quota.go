// Package services – QuotaLedger
//
// The ledger meters submissions to the external archive with a daily
// counter kept in the generic settings store. Day rollover is lazy: every
// read compares the stored reset date with today and zeroes the counter on
// mismatch. Check and increment are separate reads and writes, so
// concurrent submitters can overshoot the limit slightly; a single process
// at human request rates stays within it.
package services

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-archive-backend/internal/observability"
	"github.com/tbourn/go-archive-backend/internal/utils"
)

// Settings keys owned by the ledger.
const (
	KeyArchiveEnabled   = "internet_archive_enabled"
	KeyArchiveRateLimit = "internet_archive_rate_limit"
	KeySubmissionsToday = "internet_archive_submissions_today"
	KeyLastReset        = "internet_archive_last_reset"
)

const dateLayout = "2006-01-02"

// Settings is the key/value collaborator holding quota state.
// Get reports ok=false for an absent key.
type Settings interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// QuotaStatus is a snapshot of the ledger after the lazy reset.
type QuotaStatus struct {
	Enabled        bool   `json:"enabled"`
	DailyLimit     int    `json:"daily_limit"`
	SubmittedToday int    `json:"submitted_today"`
	LastResetDate  string `json:"last_reset_date"`
	CanSubmit      bool   `json:"can_submit"`
}

// QuotaLedger reads and writes the quota keys through Settings.
type QuotaLedger struct {
	Settings Settings

	// DefaultEnabled and DefaultLimit apply while the keys are absent.
	DefaultEnabled bool
	DefaultLimit   int

	// Now is the clock used for the calendar date (taken in UTC); defaults
	// to time.Now.
	Now func() time.Time
}

// NewQuotaLedger returns a ledger with the given defaults.
func NewQuotaLedger(settings Settings, defaultEnabled bool, defaultLimit int) *QuotaLedger {
	return &QuotaLedger{
		Settings:       settings,
		DefaultEnabled: defaultEnabled,
		DefaultLimit:   defaultLimit,
		Now:            time.Now,
	}
}

func (q *QuotaLedger) today() string {
	now := time.Now()
	if q.Now != nil {
		now = q.Now()
	}
	return now.UTC().Format(dateLayout)
}

// CheckAndMaybeReset applies the daily reset and reports whether one more
// submission is allowed, with the current counter and limit.
func (q *QuotaLedger) CheckAndMaybeReset(ctx context.Context) (canSubmit bool, submittedToday, dailyLimit int, err error) {
	st, err := q.Status(ctx)
	if err != nil {
		return false, 0, 0, err
	}
	return st.CanSubmit, st.SubmittedToday, st.DailyLimit, nil
}

// Status applies the daily reset and returns the full ledger state.
func (q *QuotaLedger) Status(ctx context.Context) (QuotaStatus, error) {
	var st QuotaStatus

	enabled, err := q.getBool(ctx, KeyArchiveEnabled, q.DefaultEnabled)
	if err != nil {
		return st, err
	}
	limit, err := q.getInt(ctx, KeyArchiveRateLimit, q.DefaultLimit)
	if err != nil {
		return st, err
	}
	submitted, err := q.getInt(ctx, KeySubmissionsToday, 0)
	if err != nil {
		return st, err
	}
	last, _, err := q.Settings.Get(ctx, KeyLastReset)
	if err != nil {
		return st, err
	}

	today := q.today()
	if last != today {
		if err := q.Settings.Set(ctx, KeySubmissionsToday, "0"); err != nil {
			return st, err
		}
		if err := q.Settings.Set(ctx, KeyLastReset, today); err != nil {
			return st, err
		}
		if submitted != 0 {
			log.Info().Str("last_reset", last).Str("today", today).Int("submitted", submitted).Msg("external archive quota reset")
		}
		submitted, last = 0, today
	}

	st = QuotaStatus{
		Enabled:        enabled,
		DailyLimit:     limit,
		SubmittedToday: submitted,
		LastResetDate:  last,
		CanSubmit:      enabled && submitted < limit,
	}
	observability.SetQuota(submitted, limit)
	return st, nil
}

// Increment counts one successful submission for today.
func (q *QuotaLedger) Increment(ctx context.Context) error {
	st, err := q.Status(ctx)
	if err != nil {
		return err
	}
	n := st.SubmittedToday + 1
	if err := q.Settings.Set(ctx, KeySubmissionsToday, strconv.Itoa(n)); err != nil {
		return err
	}
	observability.SetQuota(n, st.DailyLimit)
	return nil
}

// Configure updates the enabled flag and/or the daily limit. Nil leaves the
// value unchanged.
func (q *QuotaLedger) Configure(ctx context.Context, enabled *bool, limit *int) (QuotaStatus, error) {
	if limit != nil && *limit < 0 {
		return QuotaStatus{}, ErrInvalidLimit
	}
	if enabled != nil {
		if err := q.Settings.Set(ctx, KeyArchiveEnabled, strconv.FormatBool(*enabled)); err != nil {
			return QuotaStatus{}, err
		}
	}
	if limit != nil {
		if err := q.Settings.Set(ctx, KeyArchiveRateLimit, strconv.Itoa(*limit)); err != nil {
			return QuotaStatus{}, err
		}
	}
	return q.Status(ctx)
}

func (q *QuotaLedger) getBool(ctx context.Context, key string, def bool) (bool, error) {
	v, ok, err := q.Settings.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	b, perr := strconv.ParseBool(v)
	if perr != nil {
		return def, nil
	}
	return b, nil
}

func (q *QuotaLedger) getInt(ctx context.Context, key string, def int) (int, error) {
	v, ok, err := q.Settings.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	if n := utils.AtoiDefault(v, def); n >= 0 {
		return n, nil
	}
	return def, nil
}
