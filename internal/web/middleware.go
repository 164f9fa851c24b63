package web

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	appLog "schedulr/internal/log"
)

// maxLimiters bounds the per-client limiter table. When full it is reset,
// which briefly forgives every client.
const maxLimiters = 10000

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func basicAuthEnabled(e *engine) bool {
	if e == nil || e.cfg == nil || e.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
	return e.cfg.BasicAuth.Username != "" && e.cfg.BasicAuth.Password != ""
}

// basicAuth guards the private API. Credentials are read per request so a
// config reload takes effect without rebuilding routes.
func (s *Server) basicAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		e := s.current()
		if !basicAuthEnabled(e) {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok || !secureCompare(u, e.cfg.BasicAuth.Username) || !secureCompare(p, e.cfg.BasicAuth.Password) {
			c.Header("WWW-Authenticate", `Basic realm="Schedulr", charset="UTF-8"`)
			writeError(c, http.StatusUnauthorized, "unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// rateLimit applies a token bucket per client IP.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter(c.ClientIP()).Allow() {
			writeError(c, http.StatusTooManyRequests, "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) limiter(ip string) *rate.Limiter {
	s.limitMu.Lock()
	defer s.limitMu.Unlock()

	if l, ok := s.limiters[ip]; ok {
		return l
	}
	if len(s.limiters) >= maxLimiters {
		s.limiters = make(map[string]*rate.Limiter)
	}
	b := s.current().cfg.Booking
	l := rate.NewLimiter(rate.Limit(b.RatePerSec), b.Burst)
	s.limiters[ip] = l
	return l
}

// requestLogger logs one line per request through the app logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		appLog.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}
