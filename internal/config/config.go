package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const defaultConfigRelPath = ".promptlog/config.yaml"

type OutputConfig struct {
	Folder      string `yaml:"folder"`
	BaseName    string `yaml:"base_name"`
	StripPrefix string `yaml:"strip_prefix"`
}

type TimestampConfig struct {
	Enabled  *bool  `yaml:"enabled"`
	Format   string `yaml:"format"`
	Timezone string `yaml:"timezone"`
}

// GenerationConfig holds sampler defaults. CFG, Seed and Denoise are
// pointers so an explicit 0 in the file is kept.
type GenerationConfig struct {
	Sampler   string   `yaml:"sampler"`
	Scheduler string   `yaml:"scheduler"`
	Steps     int      `yaml:"steps"`
	CFG       *float64 `yaml:"cfg"`
	Seed      *int64   `yaml:"seed"`
	Denoise   *float64 `yaml:"denoise"`
}

type HistoryConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Output     OutputConfig     `yaml:"output"`
	Timestamp  TimestampConfig  `yaml:"timestamp"`
	Generation GenerationConfig `yaml:"generation"`
	History    HistoryConfig    `yaml:"history"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// Load loads YAML config, then applies env overrides.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		configPath = filepath.Join(home, defaultConfigRelPath)
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.SetDefaults()
	applyEnvOverrides(cfg)
	return cfg, nil
}

func (c *Config) SetDefaults() {
	if c.Output.Folder == "" {
		c.Output.Folder = "output/projectX"
	}
	if c.Output.BaseName == "" {
		c.Output.BaseName = "logger"
	}
	if c.Output.StripPrefix == "" {
		c.Output.StripPrefix = "output/"
	}
	if c.Timestamp.Enabled == nil {
		enabled := true
		c.Timestamp.Enabled = &enabled
	}
	if c.Timestamp.Format == "" {
		c.Timestamp.Format = "%d%b%Y_%H%M"
	}
	if c.Timestamp.Timezone == "" {
		c.Timestamp.Timezone = "America/Los_Angeles"
	}
	if c.Generation.Sampler == "" {
		c.Generation.Sampler = "euler"
	}
	if c.Generation.Scheduler == "" {
		c.Generation.Scheduler = "normal"
	}
	if c.Generation.Steps == 0 {
		c.Generation.Steps = 20
	}
	if c.Generation.CFG == nil {
		cfg := 7.5
		c.Generation.CFG = &cfg
	}
	if c.Generation.Seed == nil {
		seed := int64(2025)
		c.Generation.Seed = &seed
	}
	if c.Generation.Denoise == nil {
		denoise := 1.0
		c.Generation.Denoise = &denoise
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// UseTimestamp reports whether filenames get a timestamp suffix.
func (c *Config) UseTimestamp() bool {
	return c.Timestamp.Enabled == nil || *c.Timestamp.Enabled
}

// CFG returns the default classifier-free guidance scale.
func (c *Config) CFG() float64 {
	if c.Generation.CFG == nil {
		return 7.5
	}
	return *c.Generation.CFG
}

// Seed returns the default seed.
func (c *Config) Seed() int64 {
	if c.Generation.Seed == nil {
		return 2025
	}
	return *c.Generation.Seed
}

// Denoise returns the default denoise strength.
func (c *Config) Denoise() float64 {
	if c.Generation.Denoise == nil {
		return 1.0
	}
	return *c.Generation.Denoise
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timestamp.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timestamp.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Output.Folder) == "" {
		return errors.New("output.folder cannot be empty")
	}
	if strings.TrimSpace(c.Output.BaseName) == "" {
		return errors.New("output.base_name cannot be empty")
	}
	if c.Generation.Steps <= 0 {
		return fmt.Errorf("generation.steps must be positive, got %d", c.Generation.Steps)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// ValidateServe enforces serve-specific requirements.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.History.Path) == "" {
		return errors.New("history.path cannot be empty")
	}
	return nil
}

func applyEnvOverrides(c *Config) {
	setString(&c.Output.Folder, "PROMPTLOG_OUTPUT_FOLDER")
	setString(&c.Output.BaseName, "PROMPTLOG_OUTPUT_BASE_NAME")
	setString(&c.Timestamp.Format, "PROMPTLOG_TIMESTAMP_FORMAT")
	setString(&c.Timestamp.Timezone, "PROMPTLOG_TIMEZONE")
	setString(&c.History.Path, "PROMPTLOG_HISTORY_PATH")
	setString(&c.Server.Host, "PROMPTLOG_SERVER_HOST")
	setInt(&c.Server.Port, "PROMPTLOG_SERVER_PORT")
	setString(&c.Log.Level, "PROMPTLOG_LOG_LEVEL")
	setBool(&c.Timestamp.Enabled, "PROMPTLOG_USE_TIMESTAMP")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst **bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = &b
		}
	}
}
