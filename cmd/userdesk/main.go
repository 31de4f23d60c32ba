// Package main runs the userdesk console: it serves the table view, profile
// editing and session endpoints against a user backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memtensor/userdesk/api"
	"github.com/memtensor/userdesk/pkg/config"
	"github.com/memtensor/userdesk/pkg/interfaces"
	"github.com/memtensor/userdesk/pkg/logger"
	"github.com/memtensor/userdesk/pkg/metrics"
	"github.com/memtensor/userdesk/pkg/notify"
	"github.com/memtensor/userdesk/pkg/session"
	"github.com/memtensor/userdesk/pkg/table"
	"github.com/memtensor/userdesk/pkg/users"
)

// Version information (set by build process)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Command line flags
var (
	configFile  = flag.String("config", "", "Path to configuration file (YAML or JSON)")
	logLevel    = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	logFile     = flag.String("log-file", "", "Log file path override (default: stderr)")
	watchConfig = flag.Bool("watch", false, "Reload the configuration file when it changes")
	showVersion = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("userdesk %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("userdesk failed: %v", err)
	}
}

func run(ctx context.Context) error {
	cfgManager := config.NewManager()
	if err := cfgManager.Load(ctx, *configFile); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := cfgManager.Config()

	appLogger, closeLog, err := initializeLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closeLog.Close()

	api.Version = Version
	appLogger.Info("Starting userdesk", map[string]interface{}{
		"version":     Version,
		"build_time":  BuildTime,
		"git_commit":  GitCommit,
		"environment": cfg.Environment,
		"backend":     cfg.API.BaseURL,
	})

	appMetrics := metrics.NewInMemoryMetrics()

	store, err := openSessionStore(ctx, cfg.Session)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error("Failed to close session store", err)
		}
	}()

	// The client reads its token from the session manager, and the manager
	// authenticates through the client.
	var sessions *session.Manager
	client, err := users.NewClient(users.ClientOptions{
		BaseURL:       cfg.API.BaseURL,
		Timeout:       cfg.API.Timeout,
		RetryAttempts: cfg.API.RetryAttempts,
		RetryDelay:    cfg.API.RetryDelay,
		MaxListLimit:  cfg.API.MaxListLimit,
		Tokens:        users.TokenFunc(func(ctx context.Context) (string, error) { return sessions.Token(ctx) }),
		Logger:        appLogger,
		Metrics:       appMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create user client: %w", err)
	}

	sessions = session.NewManager(session.Options{
		Store:            store,
		Auth:             client,
		KeyPrefix:        cfg.Session.KeyPrefix,
		MaxLoginAttempts: cfg.Session.MaxLoginAttempts,
		LockoutDuration:  cfg.Session.LockoutDuration,
		Policy: users.PasswordPolicy{
			MinLength:     cfg.Session.Password.MinLength,
			RequireUpper:  cfg.Session.Password.RequireUpper,
			RequireLower:  cfg.Session.Password.RequireLower,
			RequireDigit:  cfg.Session.Password.RequireDigit,
			RequireSymbol: cfg.Session.Password.RequireSymbol,
		},
		Logger:  appLogger,
		Metrics: appMetrics,
	})

	columns, err := buildColumns(cfg.Table.Columns)
	if err != nil {
		return err
	}
	view := table.NewController(users.NewRecordFetcher(client, cfg.API.MaxListLimit), table.Options{
		Columns:  columns,
		PageSize: cfg.Table.PageSize,
		Hint:     table.FetchHint{Page: 1, Limit: cfg.Table.FetchLimit},
		Strict:   cfg.Strict(),
		Logger:   appLogger,
		Metrics:  appMetrics,
	})

	// A session that survived a restart loads the table straight away
	if token, err := sessions.Token(ctx); err == nil && token != "" {
		view.Refresh(ctx)
	}

	if cfg.Notify.Enabled {
		listener := notify.NewListener(notify.Options{
			URL:     cfg.Notify.URL,
			Subject: cfg.Notify.Subject,
			Logger:  appLogger,
			Metrics: appMetrics,
		}, func(ctx context.Context, change notify.Change) {
			if token, err := sessions.Token(ctx); err != nil || token == "" {
				return
			}
			p := view.Refresh(ctx)
			appLogger.Debug("Refresh on change", map[string]interface{}{"op": change.Op, "seq": p.Seq})
		})
		if err := listener.Start(ctx); err != nil {
			appLogger.Error("Change feed unavailable, continuing without it", err)
		} else {
			defer listener.Stop()
		}
	}

	if *watchConfig && *configFile != "" {
		pageSize := cfg.Table.PageSize
		cfgManager.OnReload(func(next *config.Config) {
			if next.Table.PageSize == pageSize {
				return
			}
			if err := view.SetPageSize(next.Table.PageSize); err != nil {
				appLogger.Error("Failed to apply page size", err)
				return
			}
			pageSize = next.Table.PageSize
		})
		if err := cfgManager.Watch(ctx, func(key string, value interface{}) {
			appLogger.Info("Configuration changed", map[string]interface{}{"key": key})
		}); err != nil {
			appLogger.Error("Failed to watch configuration", err)
		}
	}

	checks := map[string]interfaces.HealthChecker{"backend": client}
	if hc, ok := store.(interfaces.HealthChecker); ok {
		checks["sessions"] = hc
	}

	server := api.NewServer(api.Options{
		Console:  cfg.Console,
		Release:  cfg.Environment == config.EnvProduction,
		View:     view,
		Users:    client,
		Sessions: sessions,
		Checks:   checks,
		Logger:   appLogger,
		Metrics:  appMetrics,
	})

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("API server failed: %w", err)
	}
	appLogger.Info("userdesk stopped")
	return nil
}

// initializeLogger applies flag overrides on top of the configured level
// and file
func initializeLogger(cfg *config.Config) (interfaces.Logger, io.Closer, error) {
	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	path := cfg.LogFile
	if *logFile != "" {
		path = *logFile
	}
	if path == "" {
		return logger.NewConsoleLogger(level), io.NopCloser(nil), nil
	}
	return logger.NewFileLogger(path, level)
}

func openSessionStore(ctx context.Context, cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Backend {
	case "redis":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		store, err := session.NewRedisStore(ctx, session.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite":
		store, err := session.NewDBStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return session.NewMemoryStore(), nil
	}
}

func buildColumns(configured []config.ColumnConfig) ([]table.Column, error) {
	columns := make([]table.Column, 0, len(configured))
	for _, cc := range configured {
		col := table.Column{Key: cc.Key, Label: cc.Label, Sortable: cc.Sortable}
		if col.Label == "" {
			col.Label = cc.Key
		}
		if cc.Format != "" {
			render, ok := table.Formatter(cc.Format)
			if !ok {
				return nil, fmt.Errorf("column %s: unknown format %q", cc.Key, cc.Format)
			}
			col.Render = render
		}
		columns = append(columns, col)
	}
	return columns, nil
}
