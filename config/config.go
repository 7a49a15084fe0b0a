package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrConfigFileMissing        = errors.New("config file is missing")
	ErrConfigFileUnreadable     = errors.New("config file is unreadable")
	ErrConfigFileUnmarshallable = errors.New("config file is unmarshallable")
	ErrWorkersInvalid           = errors.New("workers must not be negative")
	ErrReductionsInvalid        = errors.New("reductions must not be negative")
	ErrMaxFramesInvalid         = errors.New("maxFrames must not be negative")
	ErrRetentionInvalid         = errors.New("exits.retention must not be negative")
	ErrLogLevelInvalid          = errors.New("logging.level must be one of debug, info, warn, error")
)

const (
	DefaultReductions = 200
	DefaultMaxFrames  = 100000
	DefaultRetention  = 10 * time.Minute
	DefaultLogLevel   = "info"
)

type Exits struct {
	// How long an exit reason stays in memory. Zero keeps them forever.
	Retention time.Duration `yaml:"retention"`
	// When set, exit reasons are archived on disk below this directory.
	JournalDir string `yaml:"journalDir"`
	Capacity   uint64 `yaml:"capacity"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// Runtime configures a single scheduler instance.
type Runtime struct {
	// Zero means one worker per CPU.
	Workers    int     `yaml:"workers"`
	Reductions int     `yaml:"reductions"`
	MaxFrames  int     `yaml:"maxFrames"`
	Exits      Exits   `yaml:"exits"`
	Logging    Logging `yaml:"logging"`
}

func Default() *Runtime {
	return &Runtime{
		Workers:    0,
		Reductions: DefaultReductions,
		MaxFrames:  DefaultMaxFrames,
		Exits: Exits{
			Retention: DefaultRetention,
		},
		Logging: Logging{
			Level: DefaultLogLevel,
		},
	}
}

func LoadConfig(configFile string) (*Runtime, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrConfigFileMissing
		}
		return nil, ErrConfigFileUnreadable
	}

	cfg := Default()
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, ErrConfigFileUnmarshallable
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Runtime) Validate() error {
	if c.Workers < 0 {
		return ErrWorkersInvalid
	}
	if c.Reductions < 0 {
		return ErrReductionsInvalid
	}
	if c.MaxFrames < 0 {
		return ErrMaxFramesInvalid
	}
	if c.Exits.Retention < 0 {
		return ErrRetentionInvalid
	}
	if _, ok := ParseLevel(c.Logging.Level); !ok {
		return ErrLogLevelInvalid
	}
	return nil
}

// ParseLevel maps a level name to its slog level. An empty name is info.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// GenerateConfig writes the default configuration to configFile.
func GenerateConfig(configFile string) (*Runtime, error) {
	cfg := Default()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(configFile, data, 0644); err != nil {
		return nil, err
	}
	return cfg, nil
}
