package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/connectmesh-bridge/internal/auth"
)

// contextKey scopes the values this package stores on a request context.
type contextKey string

const (
	ctxKeyRequestID contextKey = "request_id"
	ctxKeyClaims    contextKey = "claims"
)

// requestIDMiddleware tags each request with an ID for log correlation,
// honouring a client-supplied X-Request-ID so the ID can follow a call
// in from upstream.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = newRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware writes one line per request once the handler returns.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.code,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	})
}

// recoveryMiddleware turns a handler panic into a 500 instead of a
// dropped connection.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("panic in HTTP handler",
					"panic", v,
					"path", r.URL.Path,
					"method", r.Method,
					"request_id", r.Context().Value(ctxKeyRequestID),
				)
				writeInternalError(w, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware answers preflight requests and stamps CORS headers on
// responses to recognised origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.isAllowedOrigin(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", headerList(s.cfg.CORS.AllowedMethods, "GET, POST, PUT, PATCH, DELETE, OPTIONS"))
			h.Set("Access-Control-Allow-Headers", headerList(s.cfg.CORS.AllowedHeaders, "Authorization, Content-Type, X-Request-ID"))
			h.Set("Access-Control-Max-Age", "86400")
		}

		// Preflight ends here; the headers above are the whole answer.
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// maxRequestBodySize caps request bodies at 8 MB. Export documents for a
// large mesh run to a few megabytes, so the cap is generous.
const maxRequestBodySize = 8 << 20

func (s *Server) bodySizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates the Bearer JWT on protected routes and stores
// the parsed claims in the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeUnauthorized(w, "missing Authorization header")
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeUnauthorized(w, "Authorization header must be a Bearer token")
			return
		}

		claims, err := auth.ParseToken(token, s.secCfg.JWT.Secret)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				writeUnauthorized(w, "token expired")
				return
			}
			writeUnauthorized(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimsFrom returns the claims stored by authMiddleware. Public routes
// yield nil.
func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(ctxKeyClaims).(*auth.Claims)
	return claims
}

// usernameFrom returns the authenticated username, or "" on public routes.
func usernameFrom(ctx context.Context) string {
	if claims := claimsFrom(ctx); claims != nil {
		return claims.Username
	}
	return ""
}

// isAllowedOrigin reports whether origin may use the API. An empty
// allow-list keeps development setups open.
func (s *Server) isAllowedOrigin(origin string) bool {
	allowed := s.cfg.CORS.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// rateWindow tracks request counts for one client within the current window.
type rateWindow struct {
	count   int
	resetAt time.Time
}

// rateLimiter is a fixed-window per-IP request limiter. It guards the
// login endpoint against password guessing; the window resets every
// minute and stale entries are pruned opportunistically.
type rateLimiter struct {
	max     int
	windows map[string]rateWindow
	mu      sync.Mutex
}

// rateLimiterPruneThreshold bounds the windows map before opportunistic pruning.
const rateLimiterPruneThreshold = 1024

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	return &rateLimiter{
		max:     requestsPerMinute,
		windows: make(map[string]rateWindow),
	}
}

// allow reports whether the client identified by key may proceed.
func (l *rateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if len(l.windows) > rateLimiterPruneThreshold {
		for k, w := range l.windows {
			if now.After(w.resetAt) {
				delete(l.windows, k)
			}
		}
	}

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = rateWindow{count: 1, resetAt: now.Add(time.Minute)}
		return true
	}
	if w.count >= l.max {
		return false
	}
	w.count++
	l.windows[key] = w
	return true
}

// loginRateLimitMiddleware applies the per-IP limiter to the login route.
// Disabled entirely when rate limiting is off in configuration.
func (s *Server) loginRateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.loginLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		if !s.loginLimiter.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "too many login attempts, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr. The raw address comes back
// unchanged when it is not host:port.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// statusRecorder captures the status code a handler writes.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// newRequestID returns a 16-hex-digit random ID.
func newRequestID() string {
	const n = 8
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// headerList joins values for a CORS header, falling back when the
// configuration leaves the list empty.
func headerList(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return strings.Join(values, ", ")
}
