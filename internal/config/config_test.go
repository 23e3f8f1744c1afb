package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	for _, k := range []string{"PORT", "DB_PATH", "ARCHIVE_ROOT", "CAPTURE_PROVIDER", "EXTERNAL_ARCHIVE_ENDPOINT"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("CAPTURE_PROVIDER", "selenium")
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_DefaultsAreValid(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad panicked on defaults: %v", r)
		}
	}()
	cfg := MustLoad()

	if cfg.APIBasePath != "/api/v1" || cfg.DBPath != "archive.db" || cfg.ArchiveRoot != "data/archive" {
		t.Fatalf("storage defaults unexpected: %+v", cfg)
	}
	if !cfg.DeleteFilesOnRemove {
		t.Fatalf("bucket removal should default to on")
	}
	want := CaptureConfig{
		Provider:       ProviderPlaywright,
		Timeout:        60 * time.Second,
		Concurrency:    2,
		Headless:       true,
		ViewportWidth:  1280,
		ViewportHeight: 720,
	}
	if cfg.Capture != want {
		t.Fatalf("capture defaults = %+v; want %+v", cfg.Capture, want)
	}
	ea := cfg.ExternalArchive
	if ea.Endpoint != "https://web.archive.org" || ea.DefaultEnabled || ea.DefaultLimit != 10 || ea.Timeout != 60*time.Second {
		t.Fatalf("external archive defaults unexpected: %+v", ea)
	}
	if cfg.OTEL.ServiceName != "go-archive-backend" {
		t.Fatalf("service name = %q", cfg.OTEL.ServiceName)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("GIN_MODE", "weird")    // normalized to release
	t.Setenv("LOG_LEVEL", "warning") // normalized to warn
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("API_BASE_PATH", "archive/")

	t.Setenv("DB_PATH", "db.sqlite")
	t.Setenv("ARCHIVE_ROOT", "/var/lib/archive")
	t.Setenv("DELETE_FILES_ON_REMOVE", "off")

	t.Setenv("CAPTURE_PROVIDER", "HTTP")
	t.Setenv("CAPTURE_TIMEOUT", "15s")
	t.Setenv("CAPTURE_CONCURRENCY", "4")
	t.Setenv("CAPTURE_HEADLESS", "false")
	t.Setenv("CAPTURE_VIEWPORT_WIDTH", "1920")
	t.Setenv("CAPTURE_VIEWPORT_HEIGHT", "1080")
	t.Setenv("CAPTURE_INSTALL_BROWSER", "1")

	t.Setenv("EXTERNAL_ARCHIVE_ENDPOINT", "http://wayback.local/")
	t.Setenv("EXTERNAL_ARCHIVE_TIMEOUT", "5s")
	t.Setenv("EXTERNAL_ARCHIVE_USER_AGENT", "tester")
	t.Setenv("EXTERNAL_ARCHIVE_DEFAULT_ENABLED", "true")
	t.Setenv("EXTERNAL_ARCHIVE_DEFAULT_LIMIT", "3")

	t.Setenv("RATE_RPS", "x") // falls back to 5
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "9090" || cfg.ReadTimeout != 2*time.Second || cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || cfg.APIBasePath != "/archive" {
		t.Fatalf("logging fields unexpected: %+v", cfg)
	}
	if cfg.DBPath != "db.sqlite" || cfg.ArchiveRoot != "/var/lib/archive" || cfg.DeleteFilesOnRemove {
		t.Fatalf("storage fields unexpected: %+v", cfg)
	}
	wantCapture := CaptureConfig{
		Provider:       ProviderHTTP,
		Timeout:        15 * time.Second,
		Concurrency:    4,
		Headless:       false,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		InstallBrowser: true,
	}
	if cfg.Capture != wantCapture {
		t.Fatalf("capture = %+v; want %+v", cfg.Capture, wantCapture)
	}
	wantEA := ExternalArchiveConfig{
		Endpoint:       "http://wayback.local",
		Timeout:        5 * time.Second,
		UserAgent:      "tester",
		DefaultEnabled: true,
		DefaultLimit:   3,
	}
	if cfg.ExternalArchive != wantEA {
		t.Fatalf("external archive = %+v; want %+v", cfg.ExternalArchive, wantEA)
	}
	if cfg.RateRPS != 5.0 {
		t.Fatalf("RateRPS = %v; want fallback 5", cfg.RateRPS)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins = %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.SampleRatio != 0.25 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name, key, value, want string
	}{
		{"log level", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"blank port", "PORT", "   ", "PORT must not be empty"},
		{"zero timeout", "READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"header bytes", "MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"blank db path", "DB_PATH", "  ", "DB_PATH must not be empty"},
		{"blank archive root", "ARCHIVE_ROOT", " ", "ARCHIVE_ROOT must not be empty"},
		{"unknown provider", "CAPTURE_PROVIDER", "selenium", "CAPTURE_PROVIDER"},
		{"capture timeout", "CAPTURE_TIMEOUT", "0s", "CAPTURE_TIMEOUT"},
		{"capture concurrency", "CAPTURE_CONCURRENCY", "0", "CAPTURE_CONCURRENCY"},
		{"viewport", "CAPTURE_VIEWPORT_WIDTH", "-5", "CAPTURE_VIEWPORT_WIDTH"},
		{"endpoint scheme", "EXTERNAL_ARCHIVE_ENDPOINT", "ftp://archive", "EXTERNAL_ARCHIVE_ENDPOINT"},
		{"archive timeout", "EXTERNAL_ARCHIVE_TIMEOUT", "-1s", "EXTERNAL_ARCHIVE_TIMEOUT"},
		{"negative default limit", "EXTERNAL_ARCHIVE_DEFAULT_LIMIT", "-2", "EXTERNAL_ARCHIVE_DEFAULT_LIMIT"},
		{"rate rps", "RATE_RPS", "-1", "RATE_RPS"},
		{"rate burst", "RATE_BURST", "0", "RATE_BURST"},
		{"hsts max age", "HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"idempotency ttl", "IDEMPOTENCY_TTL", "0s", "IDEMPOTENCY_TTL"},
		{"sample ratio", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load() error = %v; want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_numbersAndDurations(t *testing.T) {
	t.Setenv("F_OK", "3.14")
	t.Setenv("F_BAD", "nope")
	if getfloat("F_OK", 0) != 3.14 || getfloat("F_BAD", 1.5) != 1.5 {
		t.Fatalf("getfloat unexpected")
	}
	t.Setenv("I_OK", "42")
	t.Setenv("I_BAD", "x")
	if getint("I_OK", 0) != 42 || getint("I_BAD", 7) != 7 {
		t.Fatalf("getint unexpected")
	}
	t.Setenv("D_OK", "150ms")
	t.Setenv("D_BAD", "zzz")
	if getdur("D_OK", time.Second) != 150*time.Millisecond || getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur unexpected")
	}
}

func TestHelpers_getbool(t *testing.T) {
	for i, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on"} {
		k := "B_T_" + strconv.Itoa(i)
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Errorf("getbool(%q) = false; want true", v)
		}
	}
	for i, v := range []string{"0", "false", " no ", "N", "off"} {
		k := "B_F_" + strconv.Itoa(i)
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Errorf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool should return the default for empty values")
	}
}

func TestHelpers_splitCSV_normalizeBasePath(t *testing.T) {
	if splitCSV("") != nil {
		t.Fatalf("splitCSV(\"\") should be nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV = %#v", got)
	}
	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/"} {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}
