// Package config loads focusguard settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
	"github.com/eliteGoblin/focusd/focus_guard/internal/usecase"
)

const (
	DriverSQLCipher = "sqlcipher"
	DriverMemory    = "memory"

	// DefaultOwner is used when neither flag nor config names one.
	DefaultOwner = "local"
)

// Config is the full application configuration.
type Config struct {
	OwnerID   string          `yaml:"owner_id" validate:"required"`
	DataDir   string          `yaml:"data_dir" validate:"required"`
	Storage   StorageConfig   `yaml:"storage"`
	Session   SessionConfig   `yaml:"session"`
	BlockList BlockListConfig `yaml:"block_list"`
	Challenge ChallengeConfig `yaml:"challenge"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" validate:"oneof=sqlcipher memory"`
}

type SessionConfig struct {
	MinDuration     time.Duration `yaml:"min_duration" validate:"gt=0"`
	MaxDuration     time.Duration `yaml:"max_duration" validate:"gtefield=MinDuration"`
	DefaultDuration time.Duration `yaml:"default_duration" validate:"gtefield=MinDuration,ltefield=MaxDuration"`
	HistoryPageSize int           `yaml:"history_page_size" validate:"gte=1,lte=1000"`
}

type BlockListConfig struct {
	MaxItems                int           `yaml:"max_items" validate:"gte=1"`
	TemporaryUnlockDuration time.Duration `yaml:"temporary_unlock_duration" validate:"gt=0"`
	MatchCacheSize          int           `yaml:"match_cache_size" validate:"gte=0"`
}

type ChallengeConfig struct {
	Cooldown           time.Duration `yaml:"cooldown" validate:"gte=0"`
	MaxAttemptsPerHour int           `yaml:"max_attempts_per_hour" validate:"gte=1"`
	AttemptRetention   int           `yaml:"attempt_retention" validate:"gte=1"`
	DefaultDifficulty  string        `yaml:"default_difficulty" validate:"oneof=easy medium hard"`
}

type SchedulerConfig struct {
	TickInterval      time.Duration `yaml:"tick_interval" validate:"gt=0"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" validate:"gt=0"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" validate:"gt=0"`
}

type APIConfig struct {
	Listen string `yaml:"listen" validate:"required,hostname_port"`
}

type LogConfig struct {
	Level       string   `yaml:"level" validate:"oneof=debug info warn error"`
	OutputPaths []string `yaml:"output_paths"`
}

// Default returns the stock configuration.
func Default() Config {
	bl := usecase.DefaultBlockListConfig()
	sc := usecase.DefaultSessionConfig()
	cc := usecase.DefaultChallengeConfig()
	return Config{
		OwnerID: DefaultOwner,
		DataDir: defaultDataDir(),
		Storage: StorageConfig{Driver: DriverSQLCipher},
		Session: SessionConfig{
			MinDuration:     sc.MinDuration,
			MaxDuration:     sc.MaxDuration,
			DefaultDuration: sc.DefaultDuration,
			HistoryPageSize: sc.HistoryPageSize,
		},
		BlockList: BlockListConfig{
			MaxItems:                bl.MaxItems,
			TemporaryUnlockDuration: bl.TemporaryUnlockDuration,
			MatchCacheSize:          bl.MatchCacheSize,
		},
		Challenge: ChallengeConfig{
			Cooldown:           cc.Cooldown,
			MaxAttemptsPerHour: cc.MaxAttemptsPerHour,
			AttemptRetention:   cc.AttemptRetention,
			DefaultDifficulty:  string(cc.DefaultDifficulty),
		},
		Scheduler: SchedulerConfig{
			TickInterval:      15 * time.Second,
			HeartbeatInterval: 30 * time.Second,
			CleanupInterval:   24 * time.Hour,
		},
		API: APIConfig{Listen: "127.0.0.1:7411"},
		Log: LogConfig{Level: "info", OutputPaths: []string{"stderr"}},
	}
}

// Load reads path over the defaults. A missing file yields the defaults;
// an empty path means DefaultPath().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, cfg.Validate()
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

var validate = validator.New()

// Validate checks struct constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DefaultPath is ~/.focusguard/config.yaml.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".focusguard"
	}
	return filepath.Join(home, ".focusguard")
}

// SessionEngineConfig maps to the engine's config.
func (c Config) SessionEngineConfig() usecase.SessionConfig {
	return usecase.SessionConfig{
		MinDuration:     c.Session.MinDuration,
		MaxDuration:     c.Session.MaxDuration,
		DefaultDuration: c.Session.DefaultDuration,
		HistoryPageSize: c.Session.HistoryPageSize,
	}
}

// BlockListEngineConfig maps to the engine's config.
func (c Config) BlockListEngineConfig() usecase.BlockListConfig {
	cfg := usecase.DefaultBlockListConfig()
	cfg.MaxItems = c.BlockList.MaxItems
	cfg.TemporaryUnlockDuration = c.BlockList.TemporaryUnlockDuration
	cfg.MatchCacheSize = c.BlockList.MatchCacheSize
	return cfg
}

// ChallengeEngineConfig maps to the engine's config.
func (c Config) ChallengeEngineConfig() usecase.ChallengeConfig {
	cfg := usecase.DefaultChallengeConfig()
	cfg.Cooldown = c.Challenge.Cooldown
	cfg.MaxAttemptsPerHour = c.Challenge.MaxAttemptsPerHour
	cfg.AttemptRetention = c.Challenge.AttemptRetention
	cfg.DefaultDifficulty = domain.Difficulty(c.Challenge.DefaultDifficulty)
	return cfg
}
