package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-archive-backend/internal/capture"
	"github.com/tbourn/go-archive-backend/internal/http/middleware"
	"github.com/tbourn/go-archive-backend/internal/repo"
)

// CaptureRequest is the body of POST /captures.
type CaptureRequest struct {
	URL         string          `json:"url" binding:"required" example:"https://example.com/"`
	Language    string          `json:"language,omitempty" example:"fr-CA"`
	Geolocation *GeolocationDTO `json:"geolocation,omitempty"`
	PersonaRef  *string         `json:"persona_ref,omitempty" example:"persona-42"`
}

// GeolocationDTO is the position a capture is made from.
type GeolocationDTO struct {
	Latitude  float64 `json:"latitude" example:"45.5017"`
	Longitude float64 `json:"longitude" example:"-73.5673"`
	Accuracy  float64 `json:"accuracy,omitempty" example:"50"`
}

func (r CaptureRequest) toCapture() capture.Request {
	req := capture.Request{
		URL:        r.URL,
		Language:   r.Language,
		PersonaRef: r.PersonaRef,
	}
	if g := r.Geolocation; g != nil {
		req.Geolocation = &capture.Geolocation{Latitude: g.Latitude, Longitude: g.Longitude, Accuracy: g.Accuracy}
	}
	return req
}

// CreateCapture godoc
// @ID          createCapture
// @Summary     Capture a web page
// @Description Starts an asynchronous capture and returns its pending task. Repeating a request
// @Description with the same Idempotency-Key returns the original task.
// @Tags        Captures
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string                   false  "Retry-safe request key"
// @Param       body             body    handlers.CaptureRequest  true   "Capture request"
// @Success     202  {object}  domain.CaptureTask
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /captures [post]
func (h *Handlers) CreateCapture(c *gin.Context) {
	ctx := c.Request.Context()

	if taskID, replay := middleware.ReplayedTaskID(c); replay {
		task, err := h.Captures.Task(ctx, taskID)
		if err == nil {
			c.Header("Idempotent-Replayed", "true")
			c.Header("Location", c.Request.URL.Path+"/"+task.ID)
			ok(c, http.StatusAccepted, task)
			return
		}
		middleware.LoggerFrom(c).Warn().Err(err).Str("task_id", taskID).Msg("replayed capture task unavailable, capturing again")
	}

	var body CaptureRequest
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.URL) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body must be JSON with a url")
		return
	}

	task, err := h.Captures.Enqueue(ctx, body.toCapture())
	if err != nil {
		respondError(c, err)
		return
	}

	if key, has := middleware.GetIdempotencyKey(c); has && h.DB != nil {
		_, err := repo.CreateIdempotency(ctx, h.DB, middleware.ClientID(c), middleware.IdempotencyScope(c), key, task.ID, http.StatusAccepted, h.IdempotencyTTL)
		if err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Str("task_id", task.ID).Msg("failed to record idempotency key")
		}
	}

	middleware.LoggerFrom(c).Info().Str("task_id", task.ID).Str("url", middleware.RedactURL(task.URL)).Msg("capture enqueued")
	c.Header("Location", c.Request.URL.Path+"/"+task.ID)
	ok(c, http.StatusAccepted, task)
}

// GetCapture godoc
// @ID          getCapture
// @Summary     Capture task status
// @Tags        Captures
// @Produce     json
// @Param       id   path  string  true  "Task ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.CaptureTask
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /captures/{id} [get]
func (h *Handlers) GetCapture(c *gin.Context) {
	id, valid := pathID(c, "id", "task")
	if !valid {
		return
	}
	task, err := h.Captures.Task(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, task)
}
