package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultServer         = "http://localhost:11334/"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultStatusRefresh  = 10 * time.Second
	DefaultHistoryRefresh = time.Minute
	DefaultDataset        = "day"
	DefaultSettingsFile   = "settings.yaml"
	EnvPrefix             = "MAILCTL"
	appDir                = "mailctl"
)

// Datasets accepted by the throughput graph.
var Datasets = []string{"hourly", "day", "week", "month"}

// Config holds the CLI settings.
type Config struct {
	Server        string        `yaml:"server" mapstructure:"server"`
	Password      string        `yaml:"password,omitempty" mapstructure:"password"`
	SettingsPath  string        `yaml:"settings_path" mapstructure:"settings_path"`
	Log           LogConfig     `yaml:"log" mapstructure:"log"`
	Refresh       RefreshConfig `yaml:"refresh" mapstructure:"refresh"`
	MetricsListen string        `yaml:"metrics_listen,omitempty" mapstructure:"metrics_listen"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RefreshConfig holds the polling intervals of the views.
type RefreshConfig struct {
	Status  time.Duration `yaml:"status" mapstructure:"status"`
	History time.Duration `yaml:"history" mapstructure:"history"`
	Dynamic bool          `yaml:"dynamic" mapstructure:"dynamic"`
	Dataset string        `yaml:"dataset" mapstructure:"dataset"`
}

// MarshalYAML writes durations as strings such as "10s".
func (r RefreshConfig) MarshalYAML() (interface{}, error) {
	return map[string]interface{}{
		"status":  formatInterval(r.Status),
		"history": formatInterval(r.History),
		"dynamic": r.Dynamic,
		"dataset": r.Dataset,
	}, nil
}

// IntervalOff is the spelling of a disabled refresh interval.
const IntervalOff = "off"

func formatInterval(d time.Duration) string {
	if d == 0 {
		return IntervalOff
	}
	return d.String()
}

// ParseInterval accepts a duration, "0" or "off".
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, IntervalOff) {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("refresh interval %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("refresh interval %q must not be negative", s)
	}
	return d, nil
}

// intervalHook decodes "off" into a zero duration ahead of the standard
// string to duration hook.
func intervalHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	if strings.EqualFold(strings.TrimSpace(reflect.ValueOf(data).String()), IntervalOff) {
		return "0s", nil
	}
	return data, nil
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	cfg := Config{Refresh: RefreshConfig{Status: DefaultStatusRefresh, History: DefaultHistoryRefresh}}
	ApplyDefaults(&cfg)
	return cfg
}

// DefaultDir is the per-user configuration directory.
func DefaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, appDir)
}

// Load reads path (or mailctl.yaml from the working and user config
// directories when path is empty) and overlays MAILCTL_* environment
// variables. A missing file is not an error when path is empty.
func Load(path string) (Config, error) {
	v := viper.New()
	def := DefaultConfig()
	v.SetDefault("server", def.Server)
	v.SetDefault("password", def.Password)
	v.SetDefault("settings_path", def.SettingsPath)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("refresh.status", def.Refresh.Status)
	v.SetDefault("refresh.history", def.Refresh.History)
	v.SetDefault("refresh.dynamic", def.Refresh.Dynamic)
	v.SetDefault("refresh.dataset", def.Refresh.Dataset)
	v.SetDefault("metrics_listen", def.MetricsListen)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(appDir)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultDir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		intervalHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	if cfg.Server == "" {
		return fmt.Errorf("server is required")
	}
	u, err := url.Parse(cfg.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server must be an http(s) URL: %q", cfg.Server)
	}
	if _, err := parseLevel(cfg.Log.Level); err != nil {
		return err
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json")
	}
	if cfg.Refresh.Status < 0 || cfg.Refresh.History < 0 {
		return fmt.Errorf("refresh intervals must not be negative")
	}
	if !validDataset(cfg.Refresh.Dataset) {
		return fmt.Errorf("refresh.dataset must be one of %s", strings.Join(Datasets, ", "))
	}
	return nil
}

// ApplyDefaults fills in default values when empty. Refresh intervals are
// left alone: zero switches polling of that view off.
func ApplyDefaults(cfg *Config) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.SettingsPath == "" {
		cfg.SettingsPath = filepath.Join(DefaultDir(), DefaultSettingsFile)
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Refresh.Dataset == "" {
		cfg.Refresh.Dataset = DefaultDataset
	}
}

func validDataset(s string) bool {
	for _, d := range Datasets {
		if d == s {
			return true
		}
	}
	return false
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

// Logger builds the slog logger described by c.
func (c LogConfig) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
