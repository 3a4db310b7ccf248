package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/thgg666/seckill-core/internal/domain"
	"github.com/thgg666/seckill-core/internal/metrics"
	"github.com/thgg666/seckill-core/internal/ratelimit"
)

type ctxKey int

const requestIDKey ctxKey = iota

func requestIDFrom(r *http.Request) string {
	if v, ok := r.Context().Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// middleware is one link in a chain composed outermost-first. routes()
// wraps the whole mux in recovery -> request-id -> access-log -> CORS ->
// security-headers -> metrics-observer; the purchase route adds the rate
// limiter and the admin routes add (optional) auth. Request parameters
// are validated inside each handler, not by a middleware.
type middleware func(http.Handler) http.Handler

func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// withRecovery turns a panicking handler into a 500 instead of taking
// the whole server down. The only other recover in the process sits in
// the worker pool, at the task boundary.
func withRecovery(logger zerolog.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().
						Interface("panic_value", rec).
						Str("stack_trace", string(debug.Stack())).
						Str("path", r.URL.Path).
						Msg("panic recovered in HTTP handler")
					writeError(w, r, domain.New(domain.KindInternal, "internal error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func withRequestID() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", id)
			ctx := context.WithValue(r.Context(), requestIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func withAccessLog(logger zerolog.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Str("request_id", requestIDFrom(r)).
				Msg("request handled")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// withCORS echoes the configured origin allow-list, or "*" when the
// deployment hasn't tightened it.
func withCORS(allowedOrigins []string) middleware {
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if _, ok := allowed[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withSecurityHeaders() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			next.ServeHTTP(w, r)
		})
	}
}

func withMetricsObserver() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			if strings.HasPrefix(r.URL.Path, "/api/v1/seckill") && r.Method == http.MethodPost {
				metrics.ReservationLatency.Observe(time.Since(start).Seconds())
			}
		})
	}
}

// withRateLimit runs the three-tier admission check ahead of the
// purchase handler. Public reads (stock lookups) and the admin
// rollback route skip it;
// only the purchase endpoint burns tokens. The per-user tier keys off
// the `user_id` field of the purchase envelope rather than a header —
// no real client sends one — so the body is peeked here and restored
// onto the request for the handler's own decode.
func withRateLimit(limiter *ratelimit.Limiter) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := peekUserID(r)
			result := limiter.Allow(clientAddress(r), userID)
			if !result.Allowed {
				metrics.RateLimitRejections.WithLabelValues(result.Tier).Inc()
				w.Header().Set("Retry-After", formatRetryAfter(result.RetryAfter))
				writeJSON(w, http.StatusTooManyRequests, envelope{
					Success:   false,
					Message:   "rate limited",
					ErrorCode: string(domain.KindRateLimited),
					Data:      map[string]any{"tier": result.Tier, "retry_after_seconds": result.RetryAfter.Seconds()},
					Timestamp: time.Now(),
					RequestID: requestIDFrom(r),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// peekUserID reads user_id out of the request body without consuming it
// for the downstream handler: the body is buffered, decoded just far
// enough to pull the field, then replaced so handleSeckill's own
// json.Decoder sees the same bytes from the start.
func peekUserID(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var parsed struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	return parsed.UserID
}

func clientAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return r.RemoteAddr
}

func formatRetryAfter(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// withAuth gates admin-only routes behind a bearer token. token empty
// disables the check — the default posture for a service meant to run
// behind an internal gateway that already authenticates callers.
func withAuth(token string) middleware {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != token {
				writeError(w, r, domain.New(domain.KindUnauthorised, "invalid or missing credentials"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
