package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/memtensor/userdesk/pkg/errors"
	"github.com/memtensor/userdesk/pkg/types"
)

// loggingMiddleware provides request logging
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status_code": c.Writer.Status(),
			"latency":     time.Since(start).String(),
			"client_ip":   c.ClientIP(),
			"request_id":  c.GetString("request_id"),
		}
		if c.Writer.Status() >= 500 {
			s.logger.Warn("HTTP Request", fields)
			return
		}
		s.logger.Info("HTTP Request", fields)
	}
}

// requestIDMiddleware adds a unique request ID to each request
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(types.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// requireSession rejects requests without a signed-in session
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.sessions == nil {
			s.handleError(c, "Not signed in", errors.NewUnauthorizedError("not signed in"))
			c.Abort()
			return
		}
		token, err := s.sessions.Token(c.Request.Context())
		if err == nil && token == "" {
			err = errors.NewUnauthorizedError("not signed in")
		}
		if err != nil {
			s.handleError(c, "Not signed in", err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// metricsMiddleware collects request metrics
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		labels := map[string]string{
			"method": c.Request.Method,
			"route":  route,
			"status": strconv.Itoa(c.Writer.Status()),
		}
		s.metrics.Counter("http_requests_total", 1, labels)
		s.metrics.Timer("http_request_duration_seconds", time.Since(start).Seconds(),
			map[string]string{"route": route})
	}
}
