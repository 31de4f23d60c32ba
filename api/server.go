// Package api serves the console's HTTP interface: the table view and its
// transitions, profile editing, bulk delete and the session endpoints
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/memtensor/userdesk/pkg/config"
	"github.com/memtensor/userdesk/pkg/interfaces"
	"github.com/memtensor/userdesk/pkg/logger"
	"github.com/memtensor/userdesk/pkg/metrics"
	"github.com/memtensor/userdesk/pkg/table"
	"github.com/memtensor/userdesk/pkg/users"
)

// Version is reported by the health endpoint
var Version = "dev"

// UserService is the backend client used by the server
type UserService interface {
	users.ProfileService
	DeleteUser(ctx context.Context, id string) error
}

// SessionService is the signed-in session used by the server
type SessionService interface {
	Token(ctx context.Context) (string, error)
	Login(ctx context.Context, username, password string) (*users.User, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*users.User, error)
	IsAdmin(ctx context.Context) bool
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
}

// Options configures a Server
type Options struct {
	Console  config.ConsoleConfig
	Release  bool
	View     *table.Controller
	Users    UserService
	Sessions SessionService
	// Checks are run by the health endpoint, keyed by name
	Checks  map[string]interfaces.HealthChecker
	Logger  interfaces.Logger
	Metrics interfaces.Metrics
}

// Server represents the API server instance
type Server struct {
	cfg      config.ConsoleConfig
	view     *table.Controller
	users    UserService
	sessions SessionService
	checks   map[string]interfaces.HealthChecker
	logger   interfaces.Logger
	metrics  interfaces.Metrics
	router   *gin.Engine
	server   *http.Server
	started  time.Time

	editorsMu sync.Mutex
	editors   map[string]*users.ProfileEditor
}

// NewServer creates a new API server instance
func NewServer(opts Options) *Server {
	if opts.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoOpMetrics()
	}

	s := &Server{
		cfg:      opts.Console,
		view:     opts.View,
		users:    opts.Users,
		sessions: opts.Sessions,
		checks:   opts.Checks,
		logger:   opts.Logger.WithFields(map[string]interface{}{"component": "api"}),
		metrics:  opts.Metrics,
		router:   gin.New(),
		started:  time.Now(),
		editors:  map[string]*users.ProfileEditor{},
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.metricsMiddleware())

	corsConfig := cors.DefaultConfig()
	if len(s.cfg.CORSOrigins) == 0 || (len(s.cfg.CORSOrigins) == 1 && s.cfg.CORSOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.cfg.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	s.router.Use(cors.New(corsConfig))
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/openapi.json", s.getOpenAPISpec)

	v1 := s.router.Group("/api/v1")

	sess := v1.Group("/session")
	{
		sess.POST("/login", s.login)
		sess.POST("/logout", s.logout)
		sess.GET("", s.requireSession(), s.currentSession)
		sess.POST("/password", s.requireSession(), s.changePassword)
	}

	authed := v1.Group("", s.requireSession())

	view := authed.Group("/view")
	{
		view.GET("", s.getView)
		view.POST("/query", s.setQuery)
		view.POST("/sort", s.clickSort)
		view.POST("/page", s.navigate)
		view.POST("/page-size", s.setPageSize)
		view.POST("/selection", s.changeSelection)
		view.POST("/refresh", s.refresh)
	}

	u := authed.Group("/users")
	{
		u.GET("/selected", s.getSelected)
		u.POST("/bulk-delete", s.bulkDelete)
		u.GET("/:id/profile", s.getProfile)
		u.PUT("/:id/profile", s.updateProfile)
		u.POST("/:id/profile/reload", s.reloadProfile)
	}

	authed.GET("/metrics", s.getMetrics)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting API server", map[string]interface{}{
		"addr": s.cfg.Addr(),
		"mode": gin.Mode(),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.logger.Error("Failed to start server", err)
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down API server...")
	return s.Stop()
}

// Stop gracefully stops the API server
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
