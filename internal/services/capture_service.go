// Package services – CaptureService
//
// CaptureService turns a capture request into an archived version. Enqueue
// persists a task and returns at once; a bounded pool of goroutines drives
// the provider and files the result, moving the task through
// pending → running → done|failed so callers can poll for the outcome.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-archive-backend/internal/capture"
	"github.com/tbourn/go-archive-backend/internal/domain"
	"github.com/tbourn/go-archive-backend/internal/observability"
	"github.com/tbourn/go-archive-backend/internal/repo"
)

// CaptureService runs captures and files their artifacts.
type CaptureService struct {
	DB       *gorm.DB
	Provider capture.Provider
	Registry *ArchiveRegistry
	Mementos *MementoStore

	// Timeout bounds one provider call; zero means no extra bound.
	Timeout time.Duration

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewCaptureService returns a service running at most concurrency captures
// at a time.
func NewCaptureService(db *gorm.DB, provider capture.Provider, registry *ArchiveRegistry, mementos *MementoStore, concurrency int, timeout time.Duration) *CaptureService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &CaptureService{
		DB:       db,
		Provider: provider,
		Registry: registry,
		Mementos: mementos,
		Timeout:  timeout,
		sem:      make(chan struct{}, concurrency),
	}
}

// Enqueue validates req, stores a pending task and starts the capture in the
// background. The returned task is the pending snapshot.
func (s *CaptureService) Enqueue(ctx context.Context, req capture.Request) (*domain.CaptureTask, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	task := &domain.CaptureTask{
		URL:        req.URL,
		PersonaRef: req.PersonaRef,
		Language:   req.Language,
	}
	if g := req.Geolocation; g != nil {
		lat, lon := g.Latitude, g.Longitude
		task.GeoLatitude, task.GeoLongitude = &lat, &lon
	}
	if err := repo.CreateCaptureTask(ctx, s.DB, task); err != nil {
		return nil, err
	}

	// Detach from the request so the capture outlives it; keep its values
	// (trace context, request id).
	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func(id string) {
		defer s.wg.Done()
		s.sem <- struct{}{}
		defer func() { <-s.sem }()
		s.runTask(bg, id, req)
	}(task.ID)

	return task, nil
}

func (s *CaptureService) runTask(ctx context.Context, taskID string, req capture.Request) {
	logger := log.With().Str("task_id", taskID).Str("url", req.URL).Logger()

	if err := repo.MarkCaptureTaskRunning(ctx, s.DB, taskID); err != nil {
		logger.Error().Err(err).Msg("failed to mark capture task running")
		return
	}

	w, m, err := s.Run(ctx, req)
	if err != nil {
		logger.Warn().Err(err).Msg("capture failed")
		if merr := repo.MarkCaptureTaskFailed(ctx, s.DB, taskID, err.Error()); merr != nil {
			logger.Error().Err(merr).Msg("failed to mark capture task failed")
		}
		return
	}
	if err := repo.MarkCaptureTaskDone(ctx, s.DB, taskID, w.ID, m.ID); err != nil {
		logger.Error().Err(err).Msg("failed to mark capture task done")
		return
	}
	logger.Info().Str("website_id", w.ID).Str("memento_id", m.ID).Int("version", m.Version).Msg("capture done")
}

// Run captures req synchronously and files the result.
func (s *CaptureService) Run(ctx context.Context, req capture.Request) (*domain.ArchivedWebsite, *domain.Memento, error) {
	tr := otel.Tracer("services/CaptureService")
	ctx, span := tr.Start(ctx, "Run",
		trace.WithAttributes(attribute.String("capture.url", req.URL)),
	)
	defer span.End()

	start := time.Now()
	observability.CapturesInflight.Inc()
	defer observability.CapturesInflight.Dec()

	w, m, err := s.run(ctx, req)
	if err != nil {
		observability.ObserveCapture(domain.TaskFailed, start)
		return nil, nil, err
	}
	observability.ObserveCapture(domain.TaskDone, start)
	return w, m, nil
}

func (s *CaptureService) run(ctx context.Context, req capture.Request) (*domain.ArchivedWebsite, *domain.Memento, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	pctx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	art, err := s.Provider.Capture(pctx, req)
	if err != nil {
		return nil, nil, err
	}

	w, m, _, err := s.Record(ctx, req, art)
	return w, m, err
}

// Record files already captured artifacts: it resolves (or creates) the
// registry entry for req.URL and appends a memento to it. A website created
// by this call is removed again when its first memento cannot be filed.
func (s *CaptureService) Record(ctx context.Context, req capture.Request, art capture.Artifacts) (*domain.ArchivedWebsite, *domain.Memento, bool, error) {
	w, isNew, err := s.Registry.GetOrCreate(ctx, req.URL, req.PersonaRef)
	if err != nil {
		return nil, nil, false, err
	}
	m, err := s.Mementos.RecordCapture(ctx, w.ID, w.Location, CaptureRecord{
		Artifacts:   art,
		Language:    req.Language,
		Geolocation: req.Geolocation,
		PersonaRef:  req.PersonaRef,
	})
	if err != nil {
		if isNew {
			if _, derr := s.Registry.DiscardIfEmpty(context.WithoutCancel(ctx), w); derr != nil {
				log.Warn().Err(derr).Str("website_id", w.ID).Str("bucket", w.Location).Msg("failed to discard website after aborted first capture")
			}
		}
		return nil, nil, false, err
	}
	return w, m, isNew, nil
}

// Task returns a capture task by id.
func (s *CaptureService) Task(ctx context.Context, id string) (*domain.CaptureTask, error) {
	t, err := repo.GetCaptureTask(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	return t, err
}

// Recover fails tasks left pending or running by a previous process.
func (s *CaptureService) Recover(ctx context.Context) (int64, error) {
	n, err := repo.FailUnfinishedCaptureTasks(ctx, s.DB, "interrupted by restart")
	if err == nil && n > 0 {
		log.Warn().Int64("tasks", n).Msg("marked interrupted capture tasks as failed")
	}
	return n, err
}

// Wait blocks until every enqueued capture has finished.
func (s *CaptureService) Wait() {
	s.wg.Wait()
}
