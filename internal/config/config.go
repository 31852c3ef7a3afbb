// Package config loads docpager settings from HuJSON files, the environment
// and command line overrides.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/docpager/pkg/pager"
)

// Error variables for configuration loading.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrDBPathEmpty        = errors.New("db_path cannot be empty")
	ErrInvalidValue       = errors.New("invalid value")
)

// Accepted values for the enum-like settings.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	LogFormatText = "text"
	LogFormatJSON = "json"

	WritebackNone = "none"
	WritebackSync = "sync"
)

// FileName is the project config file looked up in the working directory.
const FileName = ".docpager.json"

// Config holds all configuration options.
type Config struct {
	DBPath         string `json:"db_path"`
	LogLevel       string `json:"log_level"`
	LogFormat      string `json:"log_format"`
	Writeback      string `json:"writeback"`
	DisableLocking bool   `json:"disable_locking"`

	// Resolved values (computed, not serialized)
	EffectiveCwd string `json:"-"`
	DBPathAbs    string `json:"-"`

	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project or explicit config if loaded, empty otherwise
}

// Overrides holds command line values. Nil fields were not given.
type Overrides struct {
	DBPath         *string
	LogLevel       *string
	LogFormat      *string
	Writeback      *string
	DisableLocking *bool
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		DBPath:    "docpager.db",
		LogLevel:  LogLevelWarn,
		LogFormat: LogFormatText,
		Writeback: WritebackNone,
	}
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDir    string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath string            // -c/--config flag value
	Overrides  Overrides         // remaining global flags
	Env        map[string]string // environment variables
}

// Load resolves configuration with the following precedence (highest wins):
//  1. Defaults
//  2. Global user config ($XDG_CONFIG_HOME/docpager/config.json or ~/.config/docpager/config.json)
//  3. Project config file (.docpager.json in the working directory, if it exists)
//  4. Explicit config file via ConfigPath (replaces 3; must exist)
//  5. DOCPAGER_DB environment variable
//  6. Command line overrides
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDir
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	globalPath := globalConfigPath(input.Env)
	if globalPath != "" {
		layer, loaded, err := loadFile(globalPath, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = merge(cfg, layer)
			cfg.Sources.Global = globalPath
		}
	}

	projectPath, mustExist := filepath.Join(workDir, FileName), false
	if input.ConfigPath != "" {
		projectPath, mustExist = input.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}
	}

	layer, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = merge(cfg, layer)
		cfg.Sources.Project = projectPath
	}

	if db, ok := input.Env["DOCPAGER_DB"]; ok && db != "" {
		cfg.DBPath = db
	}

	cfg = merge(cfg, fileLayer(input.Overrides))

	err = validate(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	cfg.DBPathAbs = cfg.DBPath
	if !filepath.IsAbs(cfg.DBPathAbs) {
		cfg.DBPathAbs = filepath.Join(workDir, cfg.DBPathAbs)
	}

	return cfg, nil
}

// globalConfigPath returns the path to the global config file, or "" if
// neither XDG_CONFIG_HOME nor HOME is set.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "docpager", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "docpager", "config.json")
	}

	return ""
}

// fileLayer is one config source. Nil fields were not set by that source,
// which keeps an explicit "disable_locking": false distinguishable from an
// absent key.
type fileLayer struct {
	DBPath         *string `json:"db_path"`
	LogLevel       *string `json:"log_level"`
	LogFormat      *string `json:"log_format"`
	Writeback      *string `json:"writeback"`
	DisableLocking *bool   `json:"disable_locking"`
}

// loadFile reads and parses path. If mustExist is false, a missing file is
// not an error and loaded is false.
func loadFile(path string, mustExist bool) (fileLayer, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return fileLayer{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}

			return fileLayer{}, false, nil
		}

		return fileLayer{}, false, fmt.Errorf("%w %s: %w", ErrConfigFileRead, path, err)
	}

	layer, err := parse(data)
	if err != nil {
		return fileLayer{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	if layer.DBPath != nil && *layer.DBPath == "" {
		return fileLayer{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, ErrDBPathEmpty)
	}

	return layer, true, nil
}

func parse(data []byte) (fileLayer, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileLayer{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	var layer fileLayer

	err = dec.Decode(&layer)
	if err != nil {
		return fileLayer{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return layer, nil
}

func merge(base Config, overlay fileLayer) Config {
	if overlay.DBPath != nil {
		base.DBPath = *overlay.DBPath
	}

	if overlay.LogLevel != nil {
		base.LogLevel = *overlay.LogLevel
	}

	if overlay.LogFormat != nil {
		base.LogFormat = *overlay.LogFormat
	}

	if overlay.Writeback != nil {
		base.Writeback = *overlay.Writeback
	}

	if overlay.DisableLocking != nil {
		base.DisableLocking = *overlay.DisableLocking
	}

	return base
}

func validate(cfg Config) error {
	if cfg.DBPath == "" {
		return ErrDBPathEmpty
	}

	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return err
	}

	switch cfg.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("%w: log_format %q (want %s or %s)", ErrInvalidValue, cfg.LogFormat, LogFormatText, LogFormatJSON)
	}

	switch cfg.Writeback {
	case WritebackNone, WritebackSync:
	default:
		return fmt.Errorf("%w: writeback %q (want %s or %s)", ErrInvalidValue, cfg.Writeback, WritebackNone, WritebackSync)
	}

	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case LogLevelDebug:
		return slog.LevelDebug, nil
	case LogLevelInfo:
		return slog.LevelInfo, nil
	case LogLevelWarn:
		return slog.LevelWarn, nil
	case LogLevelError:
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalidValue, s)
	}
}

// Logger builds a logger writing to w at the configured level and format.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}

	if c.LogFormat == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// PagerOptions maps the configuration onto [pager.Options].
func (c Config) PagerOptions(logger *slog.Logger) pager.Options {
	mode := pager.WritebackNone
	if c.Writeback == WritebackSync {
		mode = pager.WritebackSync
	}

	return pager.Options{
		Path:           c.DBPathAbs,
		Logger:         logger,
		Writeback:      mode,
		DisableLocking: c.DisableLocking,
	}
}

// Format renders the serializable settings as indented JSON.
func Format(c Config) (string, error) {
	out, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format config: %w", err)
	}

	return string(out), nil
}
