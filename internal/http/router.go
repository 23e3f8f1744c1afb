// Package httpapi wires the Gin transport to the archive handlers and the
// shared middleware: tracing, correlation ids, redacted access logs, panic
// recovery, metrics, Idempotency-Key handling, per-client rate limiting,
// CORS and security headers.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-archive-backend/internal/config"
	"github.com/tbourn/go-archive-backend/internal/http/handlers"
	"github.com/tbourn/go-archive-backend/internal/http/middleware"
	"github.com/tbourn/go-archive-backend/internal/repo"
)

const maxBodyBytes = 1 << 20

// RegisterRoutes attaches the middleware chain and every endpoint to r.
// db backs the Idempotency-Key lookup and may be nil to disable replays.
//
// Middleware order matters:
//  1. OpenTelemetry
//  2. RequestID
//  3. RedactingLogger (also installs the request-scoped logger)
//  4. Recovery
//  5. Body size limit
//  6. Metrics
//  7. Idempotency validator, before the limiter so replays bypass it
//  8. Rate limiter
//  9. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, h *handlers.Handlers, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idempotencyLookup(db)))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClient()).
		Skip("/health", "/metrics")
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/captures", h.CreateCapture)
		api.GET("/captures/:id", h.GetCapture)

		api.GET("/websites", h.ListWebsites)
		api.GET("/websites/:id", h.GetWebsite)
		api.DELETE("/websites/:id", h.DeleteWebsite)
		api.GET("/websites/:id/mementos", h.ListWebsiteMementos)

		api.GET("/mementos/:id", h.GetMemento)
		api.GET("/mementos/:id/content", gzip.Gzip(gzip.DefaultCompression), middleware.ArchivedContent(), h.GetMementoContent)
		api.GET("/mementos/:id/screenshot", h.GetMementoScreenshot)
		api.POST("/mementos/:id/submit", h.SubmitMemento)

		api.GET("/quota", h.GetQuota)
		api.PUT("/quota", h.UpdateQuota)
	}
}

// idempotencyLookup resolves a key to the capture task it produced.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	if db == nil {
		return nil
	}
	return func(ctx context.Context, clientID, scope, key string, now time.Time) (string, bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, clientID, scope, key, now)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return "", false, nil
		case err != nil:
			return "", false, err
		}
		return rec.TaskID, true, nil
	}
}

// corsMiddleware allows every origin when none are configured, otherwise
// echoes allow-listed origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
		middleware.HeaderClientID, middleware.HeaderIdempotencyKey,
	}
	exposeHeaders := []string{
		"X-Request-ID", "Content-Length", "ETag", "Location",
		"Memento-Datetime", "Link", "Idempotent-Replayed", "Retry-After",
	}
	methods := []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// Force ACAO: * even without an Origin header (health checks, curl).
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins: true,
				AllowMethods:    methods,
				AllowHeaders:    allowHeaders,
				ExposeHeaders:   exposeHeaders,
				MaxAge:          12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:  origins,
			AllowMethods:  methods,
			AllowHeaders:  allowHeaders,
			ExposeHeaders: exposeHeaders,
			MaxAge:        12 * time.Hour,
		}),
	}
}

// limitBody caps request bodies at maxBytes; larger bodies fail to read.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
