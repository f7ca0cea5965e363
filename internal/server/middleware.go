package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/NewsAI/internal/apperr"
	"github.com/TobiSchelling/NewsAI/internal/auth"
	"github.com/TobiSchelling/NewsAI/internal/metrics"
)

const sessionCookie = "newsai_session"

// session resolves the session cookie or bearer token into an identity on
// the request context. Missing or invalid tokens leave the request
// anonymous.
func (s *Server) session() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c.Request())
			if token == "" {
				if ck, err := c.Cookie(sessionCookie); err == nil {
					token = ck.Value
				}
			}
			if token == "" {
				return next(c)
			}

			id, err := s.auth.Authenticate(token)
			if err != nil {
				s.log.DebugContext(c.Request().Context(), "Ignoring invalid session", "error", err)
				return next(c)
			}
			ctx := auth.WithIdentity(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func viewer(c echo.Context) *auth.Identity {
	return auth.FromContext(c.Request().Context())
}

// instrument records request count and latency per route template.
func instrument() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.RecordRequest(c.Request().Method, route, c.Response().Status, time.Since(start).Seconds())
			return nil
		}
	}
}

// ipLimiter holds a rate limiter and the last time it was seen.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter provides per-IP rate limiting. Stale entries are pruned
// while handling requests rather than by a background goroutine.
type rateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*ipLimiter
	rate      rate.Limit
	burst     int
	lastPrune time.Time
	now       func() time.Time
}

const (
	limiterIdle       = 5 * time.Minute
	limiterPruneEvery = 3 * time.Minute
)

// newRateLimiter allows perMinute requests per minute per IP, with bursts
// of the same size.
func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*ipLimiter),
		rate:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		now:      time.Now,
	}
}

func (rl *rateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastPrune) > limiterPruneEvery {
		for k, l := range rl.limiters {
			if now.Sub(l.lastSeen) > limiterIdle {
				delete(rl.limiters, k)
			}
		}
		rl.lastPrune = now
	}

	if l, exists := rl.limiters[ip]; exists {
		l.lastSeen = now
		return l.limiter
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[ip] = &ipLimiter{limiter: limiter, lastSeen: now}
	return limiter
}

func (rl *rateLimiter) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rl.getLimiter(c.RealIP()).Allow() {
				retryAfter := max(int(1.0/float64(rl.rate)), 1)
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// errorHandler renders classified errors as JSON for API routes and as an
// error page otherwise. Internal details are logged, never returned.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, msg := http.StatusInternalServerError, "internal server error"
	var ae *apperr.Error
	var he *echo.HTTPError
	switch {
	case errors.As(err, &ae):
		status, msg = ae.Kind.HTTPStatus(), apperr.PublicMessage(err)
	case errors.As(err, &he):
		status = he.Code
		if m, ok := he.Message.(string); ok && status < 500 {
			msg = m
		}
	}

	ctx := c.Request().Context()
	if status >= 500 {
		s.log.ErrorContext(ctx, "Request failed",
			"method", c.Request().Method,
			"uri", c.Request().RequestURI,
			"status", status,
			"error", err)
	} else {
		s.log.DebugContext(ctx, "Request rejected",
			"uri", c.Request().RequestURI,
			"status", status,
			"error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else if isAPI(c.Request().URL.Path) {
		err = c.JSON(status, map[string]string{"error": msg})
	} else {
		err = c.Render(status, "error.html", s.pageData(c, map[string]any{
			"Status":  status,
			"Message": msg,
		}))
	}
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to send error response", "error", err)
	}
}

func isAPI(path string) bool {
	return strings.HasPrefix(path, "/api/") || path == "/healthz" || path == "/metrics"
}
