// Package config loads fieldsync configuration from YAML or CUE files,
// a .env file, and environment variables, in that order of precedence
// (later wins).
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Environment variables that override file settings.
const (
	EnvDatabase    = "FIELDSYNC_DB"
	EnvRemoteURL   = "SUPABASE_URL"
	EnvAPIKey      = "SUPABASE_ANON_KEY"
	EnvAccessToken = "SUPABASE_ACCESS_TOKEN"
	EnvListen      = "FIELDSYNC_LISTEN"
	EnvLogLevel    = "FIELDSYNC_LOG_LEVEL"
)

// Config is the full fieldsync configuration.
type Config struct {
	Database string        `yaml:"database" json:"database"`
	Remote   RemoteConfig  `yaml:"remote" json:"remote"`
	Sync     SyncConfig    `yaml:"sync" json:"sync"`
	Control  ControlConfig `yaml:"control" json:"control"`
	Tracing  TracingConfig `yaml:"tracing" json:"tracing"`
	Log      LogConfig     `yaml:"log" json:"log"`
}

// RemoteConfig configures the PostgREST remote store.
type RemoteConfig struct {
	URL         string   `yaml:"url" json:"url"`
	APIKey      string   `yaml:"api_key" json:"api_key"`
	AccessToken string   `yaml:"access_token" json:"access_token"`
	Timeout     Duration `yaml:"timeout" json:"timeout"`
}

// SyncConfig configures the orchestrator.
type SyncConfig struct {
	MaxRetries    int            `yaml:"max_retries" json:"max_retries"`
	Tiers         map[string]int `yaml:"tiers" json:"tiers"`
	PendingTables []string       `yaml:"pending_tables" json:"pending_tables"`
	ProbeInterval Duration       `yaml:"probe_interval" json:"probe_interval"`
}

// ControlConfig configures the HTTP control API.
type ControlConfig struct {
	Listen string `yaml:"listen" json:"listen"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Exporter    string  `yaml:"exporter" json:"exporter"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate"`
	ServiceName string  `yaml:"service_name" json:"service_name"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: "fieldsync.db",
		Remote: RemoteConfig{
			Timeout: Duration(30 * time.Second),
		},
		Sync: SyncConfig{
			MaxRetries: 3,
			Tiers: map[string]int{
				"farms":                    1,
				"clusters":                 2,
				"cluster_lifecycle_events": 3,
			},
			PendingTables: []string{"farms", "clusters"},
			ProbeInterval: Duration(15 * time.Second),
		},
		Control: ControlConfig{Listen: "127.0.0.1:7420"},
		Tracing: TracingConfig{
			Exporter:    "none",
			SampleRate:  1.0,
			ServiceName: "fieldsync",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Options controls Load.
type Options struct {
	// Path is the config file. Empty means defaults only.
	Path string

	// EnvFile is the dotenv file to load. Empty means ".env" in the working
	// directory; a missing file is not an error.
	EnvFile string

	// Getenv reads the environment. Defaults to os.Getenv.
	Getenv func(string) string
}

// Load builds a Config from defaults, the optional config file, the dotenv
// file and the environment.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	if opts.Path != "" {
		if err := cfg.loadFile(opts.Path); err != nil {
			return nil, err
		}
	}

	if err := loadDotenv(opts.EnvFile); err != nil {
		return nil, err
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg.ApplyEnv(getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotenv loads path into the process environment without overriding
// variables that are already set.
func loadDotenv(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, os.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	var v cue.Value
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		v = ctx.CompileBytes(data, cue.Filename(path))
	case ".yaml", ".yml":
		if err := decodeYAMLStrict(data, &Config{}); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
		v = ctx.Encode(raw)
	default:
		return fmt.Errorf("unsupported config format %q (want .yaml, .yml or .cue)", filepath.Ext(path))
	}
	if err := v.Err(); err != nil {
		return fmt.Errorf("parse %s: %s", path, cueerrors.Details(err, nil))
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config %s: %s", path, strings.TrimSpace(cueerrors.Details(err, nil)))
	}

	// Both formats decode through JSON. Tiers merge into the built-in tiers;
	// every other field replaces its default.
	js, err := unified.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode config %s: %w", path, err)
	}
	if err := json.Unmarshal(js, c); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func decodeYAMLStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Database, EnvDatabase)
	set(&c.Remote.URL, EnvRemoteURL)
	set(&c.Remote.APIKey, EnvAPIKey)
	set(&c.Remote.AccessToken, EnvAccessToken)
	set(&c.Control.Listen, EnvListen)
	set(&c.Log.Level, EnvLogLevel)
}

// Validate checks invariants that hold regardless of the source.
func (c *Config) Validate() error {
	if c.Database == "" {
		return errors.New("config: database path is required")
	}
	if c.Sync.MaxRetries < 1 {
		return fmt.Errorf("config: sync.max_retries must be >= 1, got %d", c.Sync.MaxRetries)
	}
	for table, tier := range c.Sync.Tiers {
		if tier < 1 {
			return fmt.Errorf("config: sync.tiers[%s] must be >= 1, got %d", table, tier)
		}
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch c.Tracing.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		return fmt.Errorf("config: unknown tracing exporter %q", c.Tracing.Exporter)
	}
	return nil
}

// HasRemote reports whether enough is configured to reach the remote store.
func (c *Config) HasRemote() bool {
	return c.Remote.URL != "" && c.Remote.APIKey != ""
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: invalid log level %q", c.Log.Level)
	}
	return l, nil
}
