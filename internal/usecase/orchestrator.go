package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
	"github.com/eliteGoblin/focusd/focus_guard/internal/unlock"
	"github.com/eliteGoblin/focusd/focus_guard/internal/urlmatch"
)

// SubmitResult is the outcome of answering a challenge.
type SubmitResult struct {
	IsCorrect   bool       `json:"is_correct"`
	Expired     bool       `json:"expired,omitempty"`
	UnlockUntil *time.Time `json:"unlock_until,omitempty"`
}

// UnlockOrchestrator turns a correct challenge answer into a temporary unlock.
type UnlockOrchestrator struct {
	blocks     *BlockListEngine
	challenges *ChallengeEngine
	unlocks    *unlock.Store
	clock      domain.Clock
	unlockFor  time.Duration
	logger     *zap.Logger
}

// NewUnlockOrchestrator wires the three collaborators. unlockFor is the unlock window.
func NewUnlockOrchestrator(
	blocks *BlockListEngine,
	challenges *ChallengeEngine,
	unlocks *unlock.Store,
	clock domain.Clock,
	unlockFor time.Duration,
	logger *zap.Logger,
) *UnlockOrchestrator {
	return &UnlockOrchestrator{
		blocks:     blocks,
		challenges: challenges,
		unlocks:    unlocks,
		clock:      clock,
		unlockFor:  unlockFor,
		logger:     logger,
	}
}

// RequestChallenge issues a challenge at the recommended difficulty for a
// permanently blocked url. The answer key is withheld.
func (o *UnlockOrchestrator) RequestChallenge(ctx context.Context, ownerID, url string) (domain.PublicChallenge, error) {
	result := o.blocks.IsBlocked(ctx, ownerID, url)
	if result.Reason != domain.ReasonPermanent {
		return domain.PublicChallenge{}, domain.ErrNotPermanentlyBlocked
	}

	wait, err := o.challenges.rateLimitWait(ctx, ownerID)
	if err != nil {
		return domain.PublicChallenge{}, err
	}
	if wait > 0 {
		challengeEventsTotal.WithLabelValues("throttled").Inc()
		return domain.PublicChallenge{}, &domain.Error{
			Kind:       domain.KindRateLimit,
			Op:         "request challenge",
			Message:    "Too many challenge attempts. Try again later.",
			RetryAfter: wait,
		}
	}

	d, err := o.challenges.RecommendedDifficulty(ctx, ownerID)
	if err != nil {
		return domain.PublicChallenge{}, err
	}
	issued, err := o.challenges.issue(ctx, ownerID, url, d)
	if err != nil {
		return domain.PublicChallenge{}, err
	}
	return issued.Challenge.Public(), nil
}

// SubmitAnswer checks answer and, when correct, unlocks url for the unlock window.
// The attempt is recorded whatever the outcome, and the challenge is consumed.
func (o *UnlockOrchestrator) SubmitAnswer(ctx context.Context, ownerID, challengeID, url, answer string) (SubmitResult, error) {
	const op = "submit answer"

	normalized := urlmatch.Normalize(url)
	if normalized == "" {
		return SubmitResult{}, domain.NewValidationError(op, "URL cannot be empty")
	}

	issued, err := o.challenges.lookup(ctx, ownerID, challengeID, op)
	if err != nil {
		return SubmitResult{}, err
	}
	if issued.URL != "" && issued.URL != normalized {
		return SubmitResult{}, domain.NewValidationError(op, "this challenge was issued for a different URL")
	}
	if err := o.challenges.consume(ctx, issued, op); err != nil {
		return SubmitResult{}, err
	}

	correct, err := o.challenges.check(issued, answer)
	expired := errors.Is(err, domain.ErrChallengeExpired)
	if err != nil && !expired {
		return SubmitResult{}, err
	}

	if err := o.challenges.track(ctx, ownerID, issued.Challenge, correct); err != nil {
		return SubmitResult{}, err
	}

	switch {
	case expired:
		challengeEventsTotal.WithLabelValues("expired").Inc()
		return SubmitResult{Expired: true}, nil
	case !correct:
		challengeEventsTotal.WithLabelValues("incorrect").Inc()
		o.logger.Info("challenge answered incorrectly",
			zap.String("owner", ownerID),
			zap.String("challenge", challengeID),
			zap.Int("consecutive_failures", o.challenges.ConsecutiveFailures(ownerID, challengeID)))
		return SubmitResult{}, nil
	}

	until := o.clock.Now().Add(o.unlockFor)
	if err := o.unlocks.Grant(ctx, ownerID, normalized, until); err != nil {
		return SubmitResult{}, err
	}
	challengeEventsTotal.WithLabelValues("correct").Inc()
	unlocksGrantedTotal.Inc()
	return SubmitResult{IsCorrect: true, UnlockUntil: &until}, nil
}

// Skip abandons a challenge, recording a failed attempt. The answer is not revealed.
func (o *UnlockOrchestrator) Skip(ctx context.Context, ownerID, challengeID string) error {
	const op = "skip challenge"

	issued, err := o.challenges.lookup(ctx, ownerID, challengeID, op)
	if err != nil {
		return err
	}
	if err := o.challenges.consume(ctx, issued, op); err != nil {
		return err
	}
	if err := o.challenges.track(ctx, ownerID, issued.Challenge, false); err != nil {
		return err
	}
	challengeEventsTotal.WithLabelValues("skipped").Inc()
	o.logger.Info("challenge skipped",
		zap.String("owner", ownerID),
		zap.String("challenge", challengeID))
	return nil
}

// ActiveUnlocks lists the owner's unexpired unlocks.
func (o *UnlockOrchestrator) ActiveUnlocks(ctx context.Context, ownerID string) []domain.TemporaryUnlock {
	return o.unlocks.ListActive(ctx, ownerID)
}

// Relock revokes a temporary unlock early.
func (o *UnlockOrchestrator) Relock(ctx context.Context, ownerID, url string) {
	o.unlocks.Revoke(ctx, ownerID, url)
}
