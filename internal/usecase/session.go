package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
)

var errAlreadyPaused = domain.NewError(domain.KindStateConflict, "already_paused", "pause session",
	"the focus session is already paused")

// FocusSessionEngine runs the focus session state machine:
// none -> active <-> on break -> ended.
type FocusSessionEngine struct {
	store  domain.Store
	clock  domain.Clock
	cfg    SessionConfig
	logger *zap.Logger

	// mu serializes read-modify-write of the active session in this process.
	mu sync.Mutex
}

// NewFocusSessionEngine creates a session engine.
func NewFocusSessionEngine(store domain.Store, clock domain.Clock, cfg SessionConfig, logger *zap.Logger) *FocusSessionEngine {
	return &FocusSessionEngine{
		store:  store,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// Start begins a session of length d.
func (e *FocusSessionEngine) Start(ctx context.Context, ownerID string, d time.Duration) (domain.FocusSession, error) {
	if d < e.cfg.MinDuration || d > e.cfg.MaxDuration {
		return domain.FocusSession{}, &domain.Error{
			Kind:    domain.KindValidation,
			Code:    domain.ErrInvalidDuration.Code,
			Op:      "start session",
			Message: fmt.Sprintf("Invalid session duration: must be between %s and %s", e.cfg.MinDuration, e.cfg.MaxDuration),
		}
	}

	now := e.clock.Now()
	session := domain.FocusSession{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		OwnerID:   ownerID,
		StartTime: now,
		EndTime:   now.Add(d),
		Duration:  d,
		IsActive:  true,
		Breaks:    []domain.Break{},
	}

	if err := e.store.CreateActiveSession(ctx, session); err != nil {
		if errors.Is(err, domain.ErrAlreadyActive) {
			return domain.FocusSession{}, domain.ErrAlreadyActive
		}
		return domain.FocusSession{}, domain.AsStorage("start session", err)
	}

	sessionEventsTotal.WithLabelValues("start").Inc()
	e.logger.Info("focus session started",
		zap.String("owner", ownerID),
		zap.String("session", session.ID),
		zap.Duration("duration", d))
	return session, nil
}

// Pause opens a break on the active session. The deadline moves on Resume.
func (e *FocusSessionEngine) Pause(ctx context.Context, ownerID, sessionID, reason string) (domain.FocusSession, error) {
	return e.transition(ctx, ownerID, sessionID, "pause session", func(s *domain.FocusSession, now time.Time) (bool, error) {
		if s.IsOnBreak() {
			return false, errAlreadyPaused
		}
		s.Breaks = append(s.Breaks, domain.Break{
			ID:        uuid.NewString(),
			StartTime: now,
			Reason:    strings.TrimSpace(reason),
		})
		sessionEventsTotal.WithLabelValues("pause").Inc()
		return true, nil
	})
}

// Resume closes the open break and pushes the deadline back by its length.
// A session that is not paused is returned unchanged.
func (e *FocusSessionEngine) Resume(ctx context.Context, ownerID, sessionID string) (domain.FocusSession, error) {
	return e.transition(ctx, ownerID, sessionID, "resume session", func(s *domain.FocusSession, now time.Time) (bool, error) {
		if !closeBreak(s, now) {
			return false, nil
		}
		sessionEventsTotal.WithLabelValues("resume").Inc()
		return true, nil
	})
}

// End finishes the active session and archives it. override, when set,
// replaces the computed completion percentage and must be within 0..100.
func (e *FocusSessionEngine) End(ctx context.Context, ownerID, sessionID string, override *int) (domain.FocusSession, error) {
	if override != nil && (*override < 0 || *override > 100) {
		return domain.FocusSession{}, domain.NewValidationError("end session",
			"completed percentage must be between 0 and 100")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.loadActive(ctx, ownerID, sessionID, "end session")
	if err != nil {
		return domain.FocusSession{}, err
	}
	ended := e.finish(s, e.clock.Now(), override)
	if err := e.store.ArchiveSession(ctx, ended); err != nil {
		return domain.FocusSession{}, domain.AsStorage("end session", err)
	}

	sessionEventsTotal.WithLabelValues("end").Inc()
	e.logger.Info("focus session ended",
		zap.String("owner", ownerID),
		zap.String("session", ended.ID),
		zap.Int("completed_percentage", ended.CompletedPercentage))
	return ended, nil
}

// GetActive returns the active session with fresh progress, or nil.
func (e *FocusSessionEngine) GetActive(ctx context.Context, ownerID string) (*domain.FocusSession, error) {
	s, err := e.store.LoadActiveSession(ctx, ownerID)
	if err != nil {
		return nil, domain.AsStorage("get active session", err)
	}
	if s == nil {
		return nil, nil
	}
	s.CompletedPercentage = Progress(s, e.clock.Now())
	return s, nil
}

// History returns ended sessions, newest first. limit 0 means the default page size.
func (e *FocusSessionEngine) History(ctx context.Context, ownerID string, limit, offset int) ([]domain.FocusSession, error) {
	if limit < 0 || offset < 0 {
		return nil, domain.NewValidationError("session history", "limit and offset must not be negative")
	}
	if limit == 0 {
		limit = e.cfg.HistoryPageSize
	}
	history, err := e.store.LoadHistory(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, domain.AsStorage("session history", err)
	}
	if history == nil {
		history = []domain.FocusSession{}
	}
	return history, nil
}

// Tick persists fresh progress for the active session and ends it once the
// deadline has passed outside a break. Returns the session after the tick, or nil.
func (e *FocusSessionEngine) Tick(ctx context.Context, ownerID string) (*domain.FocusSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.store.LoadActiveSession(ctx, ownerID)
	if err != nil {
		return nil, domain.AsStorage("tick session", err)
	}
	if s == nil {
		return nil, nil
	}

	now := e.clock.Now()
	if !s.IsOnBreak() && !now.Before(s.EndTime) {
		complete := 100
		ended := e.finish(s, s.EndTime, &complete)
		if err := e.store.ArchiveSession(ctx, ended); err != nil {
			return nil, domain.AsStorage("tick session", err)
		}
		sessionEventsTotal.WithLabelValues("auto_end").Inc()
		e.logger.Info("focus session completed",
			zap.String("owner", ownerID),
			zap.String("session", ended.ID))
		return &ended, nil
	}

	pct := Progress(s, now)
	if pct == s.CompletedPercentage {
		return s, nil
	}
	s.CompletedPercentage = pct
	if err := e.store.SaveActiveSession(ctx, *s); err != nil {
		return nil, domain.AsStorage("tick session", err)
	}
	return s, nil
}

// SessionContext reports whether a session is active and not on break.
func (e *FocusSessionEngine) SessionContext(ctx context.Context, ownerID string) (domain.SessionContext, error) {
	s, err := e.store.LoadActiveSession(ctx, ownerID)
	if err != nil {
		return domain.SessionContext{}, domain.AsStorage("session context", err)
	}
	if s == nil || !s.IsActive {
		return domain.SessionContext{}, nil
	}
	remaining := s.EndTime.Sub(e.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	return domain.SessionContext{
		HasActiveSession: true,
		IsOnBreak:        s.IsOnBreak(),
		Remaining:        remaining,
	}, nil
}

// Progress is the completed percentage of s at now. Break time counts toward
// neither the elapsed nor the planned focus time, so pause and resume never
// move it backwards. This is not the plain (now-start)/Duration ratio: resume
// extends Duration by the break, and that ratio would drop at that moment.
func Progress(s *domain.FocusSession, now time.Time) int {
	closed := s.ClosedBreakTime()
	planned := s.Duration - closed
	if planned <= 0 {
		return 100
	}
	elapsed := now.Sub(s.StartTime) - closed
	if b := s.OpenBreak(); b != nil {
		elapsed -= now.Sub(b.StartTime)
	}
	pct := int(math.Round(100 * float64(elapsed) / float64(planned)))
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// transition applies fn to the active session and saves it when fn reports a change.
func (e *FocusSessionEngine) transition(
	ctx context.Context,
	ownerID, sessionID, op string,
	fn func(s *domain.FocusSession, now time.Time) (bool, error),
) (domain.FocusSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.loadActive(ctx, ownerID, sessionID, op)
	if err != nil {
		return domain.FocusSession{}, err
	}
	now := e.clock.Now()
	changed, err := fn(s, now)
	if err != nil {
		return domain.FocusSession{}, err
	}
	s.CompletedPercentage = Progress(s, now)
	if changed {
		if err := e.store.SaveActiveSession(ctx, *s); err != nil {
			return domain.FocusSession{}, domain.AsStorage(op, err)
		}
		e.logger.Info("focus session updated",
			zap.String("owner", ownerID),
			zap.String("session", s.ID),
			zap.String("op", op),
			zap.Bool("on_break", s.IsOnBreak()))
	}
	return *s, nil
}

func (e *FocusSessionEngine) loadActive(ctx context.Context, ownerID, sessionID, op string) (*domain.FocusSession, error) {
	s, err := e.store.LoadActiveSession(ctx, ownerID)
	if err != nil {
		return nil, domain.AsStorage(op, err)
	}
	if s == nil || !s.IsActive {
		return nil, domain.ErrNotActive
	}
	if s.ID != sessionID {
		return nil, domain.NewNotFoundError(op, "focus session not found")
	}
	return s, nil
}

// finish closes any open break and marks s ended at the given time.
func (e *FocusSessionEngine) finish(s *domain.FocusSession, at time.Time, override *int) domain.FocusSession {
	ended := s.Clone()
	closeBreak(&ended, at)
	if override != nil {
		ended.CompletedPercentage = *override
	} else {
		ended.CompletedPercentage = Progress(&ended, at)
	}
	ended.IsActive = false
	ended.EndTime = at
	return ended
}

// closeBreak ends the open break at now and extends the session by its length.
// Reports false if no break was open.
func closeBreak(s *domain.FocusSession, now time.Time) bool {
	b := s.OpenBreak()
	if b == nil {
		return false
	}
	end := now
	b.EndTime = &end
	length := now.Sub(b.StartTime)
	s.EndTime = s.EndTime.Add(length)
	s.Duration += length
	return true
}
