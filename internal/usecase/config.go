package usecase

import (
	"time"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
)

// BlockListConfig holds block-list policy constants.
type BlockListConfig struct {
	MaxItems                int
	TemporaryUnlockDuration time.Duration
	MatchCacheSize          int
	RecentAccessWindow      time.Duration
}

// DefaultBlockListConfig returns the stock block-list policy.
func DefaultBlockListConfig() BlockListConfig {
	return BlockListConfig{
		MaxItems:                1000,
		TemporaryUnlockDuration: 10 * time.Minute,
		MatchCacheSize:          1000,
		RecentAccessWindow:      24 * time.Hour,
	}
}

// SessionConfig holds focus session bounds.
type SessionConfig struct {
	MinDuration     time.Duration
	MaxDuration     time.Duration
	DefaultDuration time.Duration
	HistoryPageSize int
}

// DefaultSessionConfig returns the stock session bounds (25 minute pomodoro).
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MinDuration:     time.Minute,
		MaxDuration:     8 * time.Hour,
		DefaultDuration: 25 * time.Minute,
		HistoryPageSize: 50,
	}
}

// ChallengeConfig holds challenge throttling and retention policy.
type ChallengeConfig struct {
	Cooldown           time.Duration
	MaxAttemptsPerHour int
	AttemptRetention   int
	DefaultDifficulty  domain.Difficulty
	MaxAttemptAge      time.Duration
}

// DefaultChallengeConfig returns the stock challenge policy.
func DefaultChallengeConfig() ChallengeConfig {
	return ChallengeConfig{
		Cooldown:           30 * time.Second,
		MaxAttemptsPerHour: 10,
		AttemptRetention:   100,
		DefaultDifficulty:  domain.DifficultyMedium,
		MaxAttemptAge:      30 * 24 * time.Hour,
	}
}
