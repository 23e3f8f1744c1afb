// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server, storage,
// capture, external archive, rate limiting and observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-archive-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Capture providers.
const (
	ProviderPlaywright = "playwright"
	ProviderHTTP       = "http"
)

// CaptureConfig selects and tunes the capture provider.
type CaptureConfig struct {
	Provider       string        // CAPTURE_PROVIDER: playwright|http
	Timeout        time.Duration // CAPTURE_TIMEOUT per capture
	Concurrency    int           // CAPTURE_CONCURRENCY background captures
	Headless       bool          // CAPTURE_HEADLESS
	ViewportWidth  int           // CAPTURE_VIEWPORT_WIDTH
	ViewportHeight int           // CAPTURE_VIEWPORT_HEIGHT
	InstallBrowser bool          // CAPTURE_INSTALL_BROWSER downloads Chromium on first use
}

// ExternalArchiveConfig configures submissions to the public archive. The
// defaults apply while the quota settings keys are absent.
type ExternalArchiveConfig struct {
	Endpoint       string        // EXTERNAL_ARCHIVE_ENDPOINT
	Timeout        time.Duration // EXTERNAL_ARCHIVE_TIMEOUT
	UserAgent      string        // EXTERNAL_ARCHIVE_USER_AGENT
	DefaultEnabled bool          // EXTERNAL_ARCHIVE_DEFAULT_ENABLED
	DefaultLimit   int           // EXTERNAL_ARCHIVE_DEFAULT_LIMIT
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// Storage
	DBPath              string // SQLite path
	ArchiveRoot         string // root of the content-addressed bucket tree
	DeleteFilesOnRemove bool   // remove bucket directories when a website is deleted

	Capture         CaptureConfig
	ExternalArchive ExternalArchiveConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBPath:              getenv("DB_PATH", "archive.db"),
		ArchiveRoot:         getenv("ARCHIVE_ROOT", "data/archive"),
		DeleteFilesOnRemove: getbool("DELETE_FILES_ON_REMOVE", true),

		Capture: CaptureConfig{
			Provider:       strings.ToLower(getenv("CAPTURE_PROVIDER", ProviderPlaywright)),
			Timeout:        getdur("CAPTURE_TIMEOUT", 60*time.Second),
			Concurrency:    getint("CAPTURE_CONCURRENCY", 2),
			Headless:       getbool("CAPTURE_HEADLESS", true),
			ViewportWidth:  getint("CAPTURE_VIEWPORT_WIDTH", 1280),
			ViewportHeight: getint("CAPTURE_VIEWPORT_HEIGHT", 720),
			InstallBrowser: getbool("CAPTURE_INSTALL_BROWSER", false),
		},
		ExternalArchive: ExternalArchiveConfig{
			Endpoint:       strings.TrimRight(getenv("EXTERNAL_ARCHIVE_ENDPOINT", "https://web.archive.org"), "/"),
			Timeout:        getdur("EXTERNAL_ARCHIVE_TIMEOUT", 60*time.Second),
			UserAgent:      getenv("EXTERNAL_ARCHIVE_USER_AGENT", "go-archive-backend/1.0"),
			DefaultEnabled: getbool("EXTERNAL_ARCHIVE_DEFAULT_ENABLED", false),
			DefaultLimit:   getint("EXTERNAL_ARCHIVE_DEFAULT_LIMIT", 10),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-archive-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.ArchiveRoot) == "" {
		return cfg, errors.New("ARCHIVE_ROOT must not be empty")
	}
	switch cfg.Capture.Provider {
	case ProviderPlaywright, ProviderHTTP:
	default:
		return cfg, errors.New("CAPTURE_PROVIDER must be one of: playwright, http")
	}
	if cfg.Capture.Timeout <= 0 {
		return cfg, errors.New("CAPTURE_TIMEOUT must be > 0")
	}
	if cfg.Capture.Concurrency < 1 {
		return cfg, errors.New("CAPTURE_CONCURRENCY must be >= 1")
	}
	if cfg.Capture.ViewportWidth <= 0 || cfg.Capture.ViewportHeight <= 0 {
		return cfg, errors.New("CAPTURE_VIEWPORT_WIDTH and CAPTURE_VIEWPORT_HEIGHT must be > 0")
	}
	if !strings.HasPrefix(cfg.ExternalArchive.Endpoint, "http://") && !strings.HasPrefix(cfg.ExternalArchive.Endpoint, "https://") {
		return cfg, errors.New("EXTERNAL_ARCHIVE_ENDPOINT must be an http(s) URL")
	}
	if cfg.ExternalArchive.Timeout <= 0 {
		return cfg, errors.New("EXTERNAL_ARCHIVE_TIMEOUT must be > 0")
	}
	if cfg.ExternalArchive.DefaultLimit < 0 {
		return cfg, errors.New("EXTERNAL_ARCHIVE_DEFAULT_LIMIT must be >= 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
