package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey lets clients retry POST /captures without starting a
// second capture of the same page.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemScope  = "idem.scope"
	ctxKeyIdemTask   = "idem.task"
	ctxKeyRateBypass = "rate.bypass"
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyOptions bounds accepted keys. Zero values select a 200-byte
// limit and a token-like pattern.
type IdempotencyOptions struct {
	MaxLen  int
	Pattern *regexp.Regexp
}

// IdempotencyLookup resolves an unexpired key to the capture task it
// produced. Lookup errors are logged and treated as a miss.
type IdempotencyLookup func(ctx context.Context, clientID, scope, key string, now time.Time) (taskID string, found bool, err error)

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IdempotencyScope is "<METHOD> <route>", the namespace a key is unique in.
func IdempotencyScope(c *gin.Context) string {
	if s := c.GetString(ctxKeyIdemScope); s != "" {
		return s
	}
	return scopeOf(c)
}

// ReplayedTaskID returns the task recorded for this key by an earlier request.
func ReplayedTaskID(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemTask)
	return s, s != ""
}

// IsRateBypass reports whether the request replays an earlier one and so
// should not consume rate-limit tokens.
func IsRateBypass(c *gin.Context) bool {
	return c.GetBool(ctxKeyRateBypass)
}

// IdempotencyValidator validates Idempotency-Key on unsafe methods, stashes
// it with its scope and, when lookup finds an earlier task, marks the request
// as a replay. Handlers decide how to answer a replay. Safe methods ignore
// the header.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": GetRequestID(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		scope := scopeOf(c)
		c.Set(ctxKeyIdemKey, key)
		c.Set(ctxKeyIdemScope, scope)

		if lookup != nil {
			taskID, found, err := lookup(c.Request.Context(), ClientID(c), scope, key, time.Now().UTC())
			switch {
			case err != nil:
				LoggerFrom(c).Warn().Err(err).Str("idempotency_key", key).Msg("idempotency lookup failed")
			case found:
				c.Set(ctxKeyIdemTask, taskID)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

func scopeOf(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return c.Request.Method + " " + path
}

func isSafeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}
