package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focus_guard/internal/challenge"
	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
	"github.com/eliteGoblin/focusd/focus_guard/internal/urlmatch"
)

// ChallengeEngine issues challenges, checks answers and keeps the attempt log.
type ChallengeEngine struct {
	store  domain.Store
	bank   *challenge.Bank
	clock  domain.Clock
	cfg    ChallengeConfig
	logger *zap.Logger

	// mu serializes the cooldown check with issuing.
	mu sync.Mutex

	failMu   sync.Mutex
	failures map[string]map[string]int // owner -> challenge id -> consecutive failures
}

// NewChallengeEngine creates a challenge engine over bank.
func NewChallengeEngine(
	store domain.Store,
	bank *challenge.Bank,
	clock domain.Clock,
	cfg ChallengeConfig,
	logger *zap.Logger,
) *ChallengeEngine {
	return &ChallengeEngine{
		store:    store,
		bank:     bank,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		failures: make(map[string]map[string]int),
	}
}

// Generate issues a challenge of difficulty d ("" means the configured default).
// Fails with a cooldown error within the cooldown of the previous issue.
func (e *ChallengeEngine) Generate(ctx context.Context, ownerID string, d domain.Difficulty) (domain.Challenge, error) {
	issued, err := e.issue(ctx, ownerID, "", d)
	if err != nil {
		return domain.Challenge{}, err
	}
	return issued.Challenge, nil
}

// Validate checks answer against the issued challenge and consumes it.
// An answer after the time limit yields false and ErrChallengeExpired.
func (e *ChallengeEngine) Validate(ctx context.Context, ownerID, challengeID, answer string) (bool, error) {
	issued, err := e.lookup(ctx, ownerID, challengeID, "validate answer")
	if err != nil {
		return false, err
	}
	if err := e.consume(ctx, issued, "validate answer"); err != nil {
		return false, err
	}
	return e.check(issued, answer)
}

// RecommendedDifficulty adapts to the owner's success rate over the attempt log:
// above 80% is hard, below 40% is easy, medium otherwise or with no attempts.
func (e *ChallengeEngine) RecommendedDifficulty(ctx context.Context, ownerID string) (domain.Difficulty, error) {
	stats, err := e.Stats(ctx, ownerID)
	if err != nil {
		return "", err
	}
	switch {
	case stats.TotalAttempts == 0:
		return domain.DifficultyMedium, nil
	case stats.SuccessRate > 80:
		return domain.DifficultyHard, nil
	case stats.SuccessRate < 40:
		return domain.DifficultyEasy, nil
	}
	return domain.DifficultyMedium, nil
}

// TrackAttempt appends an attempt to the log. The snapshot comes from the issued
// challenge when it is still pending.
func (e *ChallengeEngine) TrackAttempt(ctx context.Context, ownerID, challengeID string, success bool) error {
	snapshot := domain.Challenge{
		ID:            challengeID,
		Type:          domain.ChallengeMath,
		Question:      "Unknown",
		CorrectAnswer: domain.TextAnswer(""),
		Difficulty:    domain.DifficultyMedium,
	}
	issued, err := e.store.LoadIssuedChallenge(ctx, ownerID, challengeID)
	if err != nil {
		return domain.AsStorage("track attempt", err)
	}
	if issued != nil {
		snapshot = issued.Challenge
	}
	return e.track(ctx, ownerID, snapshot, success)
}

// CanAttempt reports whether the owner is under the hourly attempt limit.
func (e *ChallengeEngine) CanAttempt(ctx context.Context, ownerID string) (bool, error) {
	wait, err := e.rateLimitWait(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return wait == 0, nil
}

// Stats summarizes the owner's retained attempts. SuccessRate is a percentage.
func (e *ChallengeEngine) Stats(ctx context.Context, ownerID string) (domain.ChallengeStats, error) {
	attempts, err := e.store.LoadChallengeAttempts(ctx, ownerID, time.Time{})
	if err != nil {
		return domain.ChallengeStats{}, domain.AsStorage("challenge stats", err)
	}
	var stats domain.ChallengeStats
	for _, a := range attempts {
		stats.TotalAttempts++
		if a.WasSuccessful {
			stats.SuccessfulAttempts++
		}
	}
	if stats.TotalAttempts > 0 {
		stats.SuccessRate = float64(stats.SuccessfulAttempts) / float64(stats.TotalAttempts) * 100
	}
	return stats, nil
}

// ConsecutiveFailures returns the failure streak for one challenge. Observability only.
func (e *ChallengeEngine) ConsecutiveFailures(ownerID, challengeID string) int {
	e.failMu.Lock()
	defer e.failMu.Unlock()
	return e.failures[ownerID][challengeID]
}

// ClearOldData prunes attempts older than MaxAttemptAge and resets failure streaks.
func (e *ChallengeEngine) ClearOldData(ctx context.Context, ownerID string) error {
	cutoff := e.clock.Now().Add(-e.cfg.MaxAttemptAge)
	if err := e.store.PruneChallengeAttempts(ctx, ownerID, cutoff); err != nil {
		return domain.AsStorage("clear challenge data", err)
	}
	e.failMu.Lock()
	delete(e.failures, ownerID)
	e.failMu.Unlock()

	e.logger.Info("old challenge data cleared",
		zap.String("owner", ownerID),
		zap.Time("before", cutoff))
	return nil
}

// LocalChallenge returns a random challenge with its answer for offline use.
// It ignores the cooldown and is not issued, so Validate does not know it.
func (e *ChallengeEngine) LocalChallenge() (domain.Challenge, bool) {
	c, ok := e.bank.PickAny()
	if !ok {
		return domain.Challenge{}, false
	}
	c.ID = uuid.NewString()
	return c, true
}

// issue picks a challenge and stores it as pending for ownerID.
func (e *ChallengeEngine) issue(ctx context.Context, ownerID, url string, d domain.Difficulty) (domain.IssuedChallenge, error) {
	if d == "" {
		d = e.cfg.DefaultDifficulty
	}
	if !d.Valid() {
		return domain.IssuedChallenge{}, domain.NewValidationError("generate challenge",
			"unknown difficulty "+string(d))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	last, err := e.store.LastIssuedAt(ctx, ownerID)
	if err != nil {
		return domain.IssuedChallenge{}, domain.AsStorage("generate challenge", err)
	}
	if !last.IsZero() {
		if since := now.Sub(last); since < e.cfg.Cooldown {
			challengeEventsTotal.WithLabelValues("throttled").Inc()
			return domain.IssuedChallenge{}, &domain.Error{
				Kind:       domain.KindCooldown,
				Op:         "generate challenge",
				Message:    "Please wait before requesting another challenge",
				RetryAfter: e.cfg.Cooldown - since,
			}
		}
	}

	tpl, ok := e.bank.Pick(d)
	if !ok {
		return domain.IssuedChallenge{}, domain.NewError(domain.KindInternal, "", "generate challenge",
			"no challenges available")
	}
	tpl.ID = uuid.NewString()

	issued := domain.IssuedChallenge{
		Challenge: tpl,
		OwnerID:   ownerID,
		URL:       urlmatch.Normalize(url),
		IssuedAt:  now,
	}
	if err := e.store.SaveIssuedChallenge(ctx, issued); err != nil {
		return domain.IssuedChallenge{}, domain.AsStorage("generate challenge", err)
	}

	challengeEventsTotal.WithLabelValues("issued").Inc()
	e.logger.Info("challenge issued",
		zap.String("owner", ownerID),
		zap.String("challenge", issued.Challenge.ID),
		zap.String("difficulty", string(issued.Challenge.Difficulty)))
	return issued, nil
}

func (e *ChallengeEngine) lookup(ctx context.Context, ownerID, challengeID, op string) (*domain.IssuedChallenge, error) {
	issued, err := e.store.LoadIssuedChallenge(ctx, ownerID, challengeID)
	if err != nil {
		return nil, domain.AsStorage(op, err)
	}
	if issued == nil {
		return nil, domain.NewNotFoundError(op, "challenge not found or already answered")
	}
	return issued, nil
}

func (e *ChallengeEngine) consume(ctx context.Context, issued *domain.IssuedChallenge, op string) error {
	if err := e.store.DeleteIssuedChallenge(ctx, issued.OwnerID, issued.Challenge.ID); err != nil {
		return domain.AsStorage(op, err)
	}
	return nil
}

// check compares answer with the issued instance, honoring its time limit.
func (e *ChallengeEngine) check(issued *domain.IssuedChallenge, answer string) (bool, error) {
	if deadline, ok := issued.Deadline(); ok && e.clock.Now().After(deadline) {
		return false, domain.ErrChallengeExpired
	}
	return issued.Challenge.CorrectAnswer.Matches(answer), nil
}

func (e *ChallengeEngine) track(ctx context.Context, ownerID string, c domain.Challenge, success bool) error {
	attempt := domain.ChallengeAttempt{
		OwnerID:       ownerID,
		ChallengeID:   c.ID,
		Challenge:     c,
		WasSuccessful: success,
		AttemptedAt:   e.clock.Now(),
	}
	if err := e.store.AppendChallengeAttempt(ctx, attempt, e.cfg.AttemptRetention); err != nil {
		return domain.AsStorage("track attempt", err)
	}

	e.failMu.Lock()
	if success {
		delete(e.failures[ownerID], c.ID)
	} else {
		if e.failures[ownerID] == nil {
			e.failures[ownerID] = make(map[string]int)
		}
		e.failures[ownerID][c.ID]++
	}
	e.failMu.Unlock()
	return nil
}

// rateLimitWait returns how long until another attempt is allowed (0 if now).
func (e *ChallengeEngine) rateLimitWait(ctx context.Context, ownerID string) (time.Duration, error) {
	if e.cfg.MaxAttemptsPerHour <= 0 {
		return 0, nil
	}
	now := e.clock.Now()
	windowStart := now.Add(-time.Hour)
	loaded, err := e.store.LoadChallengeAttempts(ctx, ownerID, windowStart)
	if err != nil {
		return 0, domain.AsStorage("check attempt limit", err)
	}
	// The window is (now-1h, now]; an attempt exactly an hour old has aged out.
	attempts := loaded[:0]
	for _, a := range loaded {
		if a.AttemptedAt.After(windowStart) {
			attempts = append(attempts, a)
		}
	}
	if len(attempts) < e.cfg.MaxAttemptsPerHour {
		return 0, nil
	}
	// Attempts are oldest first; the window frees up when this one ages out.
	pivot := attempts[len(attempts)-e.cfg.MaxAttemptsPerHour]
	wait := pivot.AttemptedAt.Add(time.Hour).Sub(now)
	if wait <= 0 {
		wait = time.Second
	}
	return wait, nil
}
