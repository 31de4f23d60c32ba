// Package config provides configuration management for userdesk
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/memtensor/userdesk/pkg/errors"
)

// EnvPrefix prefixes environment overrides, e.g. USERDESK_API_BASE_URL
const EnvPrefix = "USERDESK"

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// APIConfig configures the REST client for the user backend
type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url" json:"base_url" validate:"required,url"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout" validate:"gt=0"`
	RetryAttempts uint          `mapstructure:"retry_attempts" yaml:"retry_attempts" json:"retry_attempts" validate:"gte=1,lte=10"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" json:"retry_delay" validate:"gte=0"`
	MaxListLimit  int           `mapstructure:"max_list_limit" yaml:"max_list_limit" json:"max_list_limit" validate:"gt=0"`
}

// ColumnConfig describes one table column. Format names a built-in
// cell formatter.
type ColumnConfig struct {
	Key      string `mapstructure:"key" yaml:"key" json:"key" validate:"required"`
	Label    string `mapstructure:"label" yaml:"label" json:"label"`
	Sortable bool   `mapstructure:"sortable" yaml:"sortable" json:"sortable"`
	Format   string `mapstructure:"format" yaml:"format,omitempty" json:"format,omitempty" validate:"omitempty,oneof=date datetime yesno upper"`
}

// TableConfig configures the user browser
type TableConfig struct {
	PageSize   int            `mapstructure:"page_size" yaml:"page_size" json:"page_size" validate:"gt=0"`
	FetchLimit int            `mapstructure:"fetch_limit" yaml:"fetch_limit" json:"fetch_limit" validate:"gt=0"`
	Columns    []ColumnConfig `mapstructure:"columns" yaml:"columns" json:"columns" validate:"min=1,dive"`
}

// PasswordPolicy is the client-side password strength rule set
type PasswordPolicy struct {
	MinLength     int  `mapstructure:"min_length" yaml:"min_length" json:"min_length" validate:"gte=1"`
	RequireUpper  bool `mapstructure:"require_upper" yaml:"require_upper" json:"require_upper"`
	RequireLower  bool `mapstructure:"require_lower" yaml:"require_lower" json:"require_lower"`
	RequireDigit  bool `mapstructure:"require_digit" yaml:"require_digit" json:"require_digit"`
	RequireSymbol bool `mapstructure:"require_symbol" yaml:"require_symbol" json:"require_symbol"`
}

// SessionConfig configures token and user storage
type SessionConfig struct {
	Backend          string         `mapstructure:"backend" yaml:"backend" json:"backend" validate:"oneof=memory redis sqlite"`
	RedisAddr        string         `mapstructure:"redis_addr" yaml:"redis_addr,omitempty" json:"redis_addr,omitempty" validate:"required_if=Backend redis"`
	RedisPassword    string         `mapstructure:"redis_password" yaml:"redis_password,omitempty" json:"-"`
	RedisDB          int            `mapstructure:"redis_db" yaml:"redis_db" json:"redis_db" validate:"gte=0"`
	SQLitePath       string         `mapstructure:"sqlite_path" yaml:"sqlite_path,omitempty" json:"sqlite_path,omitempty" validate:"required_if=Backend sqlite"`
	KeyPrefix        string         `mapstructure:"key_prefix" yaml:"key_prefix" json:"key_prefix"`
	MaxLoginAttempts int            `mapstructure:"max_login_attempts" yaml:"max_login_attempts" json:"max_login_attempts" validate:"gt=0"`
	LockoutDuration  time.Duration  `mapstructure:"lockout_duration" yaml:"lockout_duration" json:"lockout_duration" validate:"gt=0"`
	Password         PasswordPolicy `mapstructure:"password" yaml:"password" json:"password"`
}

// ConsoleConfig configures the console HTTP server
type ConsoleConfig struct {
	Host            string        `mapstructure:"host" yaml:"host" json:"host" validate:"required"`
	Port            int           `mapstructure:"port" yaml:"port" json:"port" validate:"gt=0,lte=65535"`
	CORSOrigins     []string      `mapstructure:"cors_origins" yaml:"cors_origins" json:"cors_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout" validate:"gt=0"`
}

// Addr returns host:port
func (c ConsoleConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NotifyConfig configures the NATS change feed
type NotifyConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	URL     string `mapstructure:"url" yaml:"url,omitempty" json:"url,omitempty" validate:"required_if=Enabled true"`
	Subject string `mapstructure:"subject" yaml:"subject" json:"subject" validate:"required_if=Enabled true"`
}

// Config is the complete userdesk configuration
type Config struct {
	API         APIConfig     `mapstructure:"api" yaml:"api" json:"api"`
	Table       TableConfig   `mapstructure:"table" yaml:"table" json:"table"`
	Session     SessionConfig `mapstructure:"session" yaml:"session" json:"session"`
	Console     ConsoleConfig `mapstructure:"console" yaml:"console" json:"console"`
	Notify      NotifyConfig  `mapstructure:"notify" yaml:"notify" json:"notify"`
	Environment string        `mapstructure:"environment" yaml:"environment" json:"environment" validate:"oneof=development production"`
	LogLevel    string        `mapstructure:"log_level" yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
	LogFile     string        `mapstructure:"log_file" yaml:"log_file,omitempty" json:"log_file,omitempty"`
}

// Strict reports whether invariant violations should fail fast
func (c *Config) Strict() bool {
	return c.Environment == EnvDevelopment
}

// Validate checks the configuration against its validation tags
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.NewConfigInvalidError(err.Error())
	}
	return nil
}

// ToYAMLFile saves the configuration to a YAML file
func (c *Config) ToYAMLFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"api.base_url":       "http://localhost:8000",
		"api.timeout":        10 * time.Second,
		"api.retry_attempts": 3,
		"api.retry_delay":    200 * time.Millisecond,
		"api.max_list_limit": 100,

		"table.page_size":   10,
		"table.fetch_limit": 100,
		"table.columns": []map[string]interface{}{
			{"key": "id", "label": "ID", "sortable": true},
			{"key": "name", "label": "Name", "sortable": true},
			{"key": "email", "label": "Email", "sortable": true},
			{"key": "role", "label": "Role", "sortable": true},
			{"key": "is_active", "label": "Active", "sortable": true, "format": "yesno"},
			{"key": "last_login", "label": "Last login", "sortable": true, "format": "datetime"},
		},

		"session.backend":                 "memory",
		"session.redis_addr":              "",
		"session.redis_password":          "",
		"session.redis_db":                0,
		"session.sqlite_path":             "",
		"session.key_prefix":              "userdesk:",
		"session.max_login_attempts":      5,
		"session.lockout_duration":        15 * time.Minute,
		"session.password.min_length":     8,
		"session.password.require_upper":  true,
		"session.password.require_lower":  true,
		"session.password.require_digit":  true,
		"session.password.require_symbol": false,

		"console.host":             "localhost",
		"console.port":             8080,
		"console.cors_origins":     []string{"*"},
		"console.read_timeout":     15 * time.Second,
		"console.write_timeout":    15 * time.Second,
		"console.shutdown_timeout": 10 * time.Second,

		"notify.enabled": false,
		"notify.url":     "",
		"notify.subject": "users.changed",

		"environment": EnvProduction,
		"log_level":   "info",
		"log_file":    "",
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.NewConfigInvalidError(fmt.Sprintf("failed to decode config: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration with environment overrides applied
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(fmt.Sprintf("invalid built-in config: %v", err))
	}
	return cfg
}

// Load reads path (YAML or JSON by extension) over the defaults, applies
// USERDESK_ environment overrides and validates the result. An empty path
// uses defaults and environment only.
func Load(path string) (*Config, error) {
	m := NewManager()
	if err := m.Load(context.Background(), path); err != nil {
		return nil, err
	}
	return m.Config(), nil
}

// Manager holds a live configuration and implements interfaces.ConfigManager
type Manager struct {
	mu       sync.RWMutex
	viper    *viper.Viper
	cfg      *Config
	onReload []func(*Config)
}

// NewManager creates a manager holding the defaults
func NewManager() *Manager {
	v := newViper()
	cfg, err := decode(v)
	if err != nil {
		cfg = &Config{}
	}
	return &Manager{viper: v, cfg: cfg}
}

// Load loads configuration from a file
func (m *Manager) Load(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return errors.NewConfigNotFoundError(path)
		}
		m.viper.SetConfigFile(path)
		if err := m.viper.ReadInConfig(); err != nil {
			return errors.NewConfigInvalidError(fmt.Sprintf("failed to read config file: %v", err))
		}
	}

	cfg, err := decode(m.viper)
	if err != nil {
		return err
	}
	m.cfg = cfg
	return nil
}

// Config returns a copy of the current configuration
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := *m.cfg
	return &out
}

// Get retrieves a configuration value by dotted key
func (m *Manager) Get(key string) interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viper.Get(key)
}

// Set overrides a value. The change is rejected if the result does not validate.
func (m *Manager) Set(key string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous := m.viper.Get(key)
	m.viper.Set(key, value)
	cfg, err := decode(m.viper)
	if err != nil {
		m.viper.Set(key, previous)
		return err
	}
	m.cfg = cfg
	return nil
}

// Save writes the effective configuration to path
func (m *Manager) Save(ctx context.Context, path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return m.viper.WriteConfigAs(path)
}

// OnReload registers fn to receive the new configuration after each
// successful reload from disk
func (m *Manager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReload = append(m.onReload, fn)
}

// Watch re-reads the loaded file whenever it changes and calls callback for
// each top-level key whose value changed. Invalid edits are ignored and the
// previous configuration stays in effect.
func (m *Manager) Watch(ctx context.Context, callback func(key string, value interface{})) error {
	m.mu.RLock()
	file := m.viper.ConfigFileUsed()
	m.mu.RUnlock()
	if file == "" {
		return errors.NewConfigError("no config file loaded to watch")
	}

	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		m.reload(callback)
	})
	m.viper.WatchConfig()
	return nil
}

func (m *Manager) reload(callback func(key string, value interface{})) {
	m.mu.Lock()
	before := m.viper.AllSettings()
	if err := m.viper.ReadInConfig(); err != nil {
		m.mu.Unlock()
		return
	}
	cfg, err := decode(m.viper)
	if err != nil {
		m.mu.Unlock()
		return
	}
	m.cfg = cfg
	after := m.viper.AllSettings()
	hooks := append([]func(*Config){}, m.onReload...)
	m.mu.Unlock()

	for key, value := range after {
		if !reflect.DeepEqual(before[key], value) && callback != nil {
			callback(key, value)
		}
	}
	for _, fn := range hooks {
		fn(cfg)
	}
}
