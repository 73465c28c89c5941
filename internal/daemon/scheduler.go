// Package daemon implements the background scheduler.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
)

// ErrAlreadyRunning is returned when another live scheduler is registered.
var ErrAlreadyRunning = errors.New("scheduler daemon already running")

// SessionTicker advances an owner's focus session.
type SessionTicker interface {
	Tick(ctx context.Context, ownerID string) (*domain.FocusSession, error)
}

// UnlockSweeper drops expired temporary unlocks.
type UnlockSweeper interface {
	ListActive(ctx context.Context, ownerID string) []domain.TemporaryUnlock
}

// AttemptPruner drops stale challenge history.
type AttemptPruner interface {
	ClearOldData(ctx context.Context, ownerID string) error
}

// OwnerLister reports which owners have saved data.
type OwnerLister interface {
	ListOwners(ctx context.Context) ([]string, error)
}

// Config holds scheduler configuration.
type Config struct {
	TickInterval      time.Duration // How often sessions advance
	HeartbeatInterval time.Duration // How often to update heartbeat
	CleanupInterval   time.Duration // How often old challenge attempts are pruned
	AppVersion        string
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval:      15 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		CleanupInterval:   24 * time.Hour,
	}
}

// Scheduler drives session progress, auto-ends sessions whose deadline
// passed and sweeps expired unlocks. It covers the configured owners plus,
// when an OwnerLister is set, every owner found in the store on each pass.
type Scheduler struct {
	config         Config
	owners         []string
	ownerSource    OwnerLister
	sessions       SessionTicker
	unlocks        UnlockSweeper
	attempts       AttemptPruner
	registry       domain.DaemonRegistry
	processManager domain.ProcessManager
	clock          domain.Clock
	logger         *zap.Logger
}

// NewScheduler creates a scheduler. unlocks and attempts may be nil.
func NewScheduler(
	config Config,
	owners []string,
	sessions SessionTicker,
	unlocks UnlockSweeper,
	attempts AttemptPruner,
	registry domain.DaemonRegistry,
	pm domain.ProcessManager,
	clock domain.Clock,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		config:         config,
		owners:         owners,
		sessions:       sessions,
		unlocks:        unlocks,
		attempts:       attempts,
		registry:       registry,
		processManager: pm,
		clock:          clock,
		logger:         logger,
	}
}

// WithOwnerSource makes every pass also cover the owners src reports.
func (s *Scheduler) WithOwnerSource(src OwnerLister) *Scheduler {
	s.ownerSource = src
	return s
}

// Run starts the scheduler loop.
// This blocks until context is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.register(); err != nil {
		s.logger.Error("failed to register scheduler", zap.Error(err))
		return err
	}
	defer func() {
		if err := s.registry.Clear(); err != nil {
			s.logger.Warn("failed to clear registration", zap.Error(err))
		}
	}()

	s.logger.Info("scheduler daemon started",
		zap.Int("pid", s.processManager.GetCurrentPID()),
		zap.Strings("owners", s.owners))

	// Catch up on sessions that expired while nothing was running.
	s.RunOnce(ctx)

	tickTicker := time.NewTicker(s.config.TickInterval)
	heartbeatTicker := time.NewTicker(s.config.HeartbeatInterval)
	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer func() {
		tickTicker.Stop()
		heartbeatTicker.Stop()
		cleanupTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler daemon stopping")
			return ctx.Err()

		case <-tickTicker.C:
			s.RunOnce(ctx)

		case <-heartbeatTicker.C:
			if err := s.registry.UpdateHeartbeat(s.clock.Now()); err != nil {
				s.logger.Warn("failed to update heartbeat", zap.Error(err))
			}

		case <-cleanupTicker.C:
			s.cleanup(ctx)
		}
	}
}

// RunOnce performs one tick for every owner.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, owner := range s.currentOwners(ctx) {
		session, err := s.sessions.Tick(ctx, owner)
		if err != nil {
			s.logger.Error("session tick failed", zap.String("owner", owner), zap.Error(err))
		} else if session != nil && !session.IsActive {
			s.logger.Info("focus session auto-ended",
				zap.String("owner", owner),
				zap.String("session", session.ID))
		}

		if s.unlocks != nil {
			s.unlocks.ListActive(ctx, owner)
		}
	}
}

func (s *Scheduler) cleanup(ctx context.Context) {
	if s.attempts == nil {
		return
	}
	for _, owner := range s.currentOwners(ctx) {
		if err := s.attempts.ClearOldData(ctx, owner); err != nil {
			s.logger.Warn("challenge cleanup failed", zap.String("owner", owner), zap.Error(err))
		}
	}
}

// currentOwners merges the configured owners with the store's, keeping order
// and dropping duplicates. A failed lookup falls back to the configured owners.
func (s *Scheduler) currentOwners(ctx context.Context) []string {
	if s.ownerSource == nil {
		return s.owners
	}
	listed, err := s.ownerSource.ListOwners(ctx)
	if err != nil {
		s.logger.Warn("failed to list owners", zap.Error(err))
		return s.owners
	}

	seen := make(map[string]bool, len(s.owners)+len(listed))
	owners := make([]string, 0, len(s.owners)+len(listed))
	for _, group := range [][]string{s.owners, listed} {
		for _, owner := range group {
			if owner == "" || seen[owner] {
				continue
			}
			seen[owner] = true
			owners = append(owners, owner)
		}
	}
	return owners
}

// register refuses to start when a different live process holds the registration.
func (s *Scheduler) register() error {
	pid := s.processManager.GetCurrentPID()
	existing, err := s.registry.Get()
	if err != nil {
		return fmt.Errorf("read registration: %w", err)
	}
	if existing != nil && existing.PID != pid && s.processManager.IsRunning(existing.PID) {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, existing.PID)
	}

	now := s.clock.Now()
	return s.registry.Register(domain.DaemonInfo{
		PID:           pid,
		StartedAt:     now,
		LastHeartbeat: now,
		AppVersion:    s.config.AppVersion,
	})
}

// Status describes the registered scheduler.
type Status struct {
	Registered    bool
	Running       bool
	PID           int
	StartedAt     time.Time
	LastHeartbeat time.Time
	AppVersion    string
}

// CheckStatus reads the registration and checks the process is alive.
func CheckStatus(registry domain.DaemonRegistry, pm domain.ProcessManager) (Status, error) {
	info, err := registry.Get()
	if err != nil {
		return Status{}, err
	}
	if info == nil {
		return Status{}, nil
	}
	return Status{
		Registered:    true,
		Running:       pm.IsRunning(info.PID),
		PID:           info.PID,
		StartedAt:     info.StartedAt,
		LastHeartbeat: info.LastHeartbeat,
		AppVersion:    info.AppVersion,
	}, nil
}
