package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-archive-backend/internal/http/middleware"
)

// UpdateQuotaRequest changes the external archive quota. Omitted fields keep
// their current values.
type UpdateQuotaRequest struct {
	Enabled    *bool `json:"enabled,omitempty" example:"true"`
	DailyLimit *int  `json:"daily_limit,omitempty" example:"10"`
}

// GetQuota godoc
// @ID          getQuota
// @Summary     External archive quota
// @Description Current daily counter and limit. The counter resets on the first read of a new day.
// @Tags        Quota
// @Produce     json
// @Success     200  {object}  services.QuotaStatus
// @Router      /quota [get]
func (h *Handlers) GetQuota(c *gin.Context) {
	st, err := h.Quota.Status(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// UpdateQuota godoc
// @ID          updateQuota
// @Summary     Configure the external archive quota
// @Tags        Quota
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.UpdateQuotaRequest  true  "Quota settings"
// @Success     200  {object}  services.QuotaStatus
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /quota [put]
func (h *Handlers) UpdateQuota(c *gin.Context) {
	var body UpdateQuotaRequest
	if err := c.ShouldBindJSON(&body); err != nil || (body.Enabled == nil && body.DailyLimit == nil) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body must set enabled and/or daily_limit")
		return
	}
	st, err := h.Quota.Configure(c.Request.Context(), body.Enabled, body.DailyLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	ev := middleware.LoggerFrom(c).Info().Bool("enabled", st.Enabled).Int("daily_limit", st.DailyLimit)
	ev.Msg("external archive quota updated")
	ok(c, http.StatusOK, st)
}
