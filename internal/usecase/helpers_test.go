package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focus_guard/internal/challenge"
	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
	"github.com/eliteGoblin/focusd/focus_guard/internal/infra"
	"github.com/eliteGoblin/focusd/focus_guard/internal/unlock"
)

const owner = "alice"

var (
	baseTime    = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	errDiskFull = errors.New("disk full")
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: baseTime} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingStore wraps a store and fails the operations named in failOn.
type failingStore struct {
	domain.Store
	mu     sync.Mutex
	failOn map[string]bool
}

func newFailingStore(inner domain.Store) *failingStore {
	return &failingStore{Store: inner, failOn: map[string]bool{}}
}

func (f *failingStore) Fail(ops ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, op := range ops {
		f.failOn[op] = true
	}
}

func (f *failingStore) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn = map[string]bool{}
}

func (f *failingStore) fails(op string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failOn[op]
}

func (f *failingStore) LoadBlockList(ctx context.Context, ownerID string) (*domain.BlockList, error) {
	if f.fails("LoadBlockList") {
		return nil, errDiskFull
	}
	return f.Store.LoadBlockList(ctx, ownerID)
}

func (f *failingStore) SaveBlockList(ctx context.Context, list domain.BlockList) error {
	if f.fails("SaveBlockList") {
		return errDiskFull
	}
	return f.Store.SaveBlockList(ctx, list)
}

func (f *failingStore) LoadActiveSession(ctx context.Context, ownerID string) (*domain.FocusSession, error) {
	if f.fails("LoadActiveSession") {
		return nil, errDiskFull
	}
	return f.Store.LoadActiveSession(ctx, ownerID)
}

func (f *failingStore) CreateActiveSession(ctx context.Context, s domain.FocusSession) error {
	if f.fails("CreateActiveSession") {
		return errDiskFull
	}
	return f.Store.CreateActiveSession(ctx, s)
}

func (f *failingStore) ArchiveSession(ctx context.Context, s domain.FocusSession) error {
	if f.fails("ArchiveSession") {
		return errDiskFull
	}
	return f.Store.ArchiveSession(ctx, s)
}

func (f *failingStore) AppendChallengeAttempt(ctx context.Context, a domain.ChallengeAttempt, retain int) error {
	if f.fails("AppendChallengeAttempt") {
		return errDiskFull
	}
	return f.Store.AppendChallengeAttempt(ctx, a, retain)
}

func (f *failingStore) LoadChallengeAttempts(ctx context.Context, ownerID string, since time.Time) ([]domain.ChallengeAttempt, error) {
	if f.fails("LoadChallengeAttempts") {
		return nil, errDiskFull
	}
	return f.Store.LoadChallengeAttempts(ctx, ownerID, since)
}

func (f *failingStore) SaveUnlocks(ctx context.Context, ownerID string, unlocks []domain.TemporaryUnlock) error {
	if f.fails("SaveUnlocks") {
		return errDiskFull
	}
	return f.Store.SaveUnlocks(ctx, ownerID, unlocks)
}

// testTemplates has one challenge per difficulty so picks are predictable.
func testTemplates() []domain.Challenge {
	return []domain.Challenge{
		{ID: "easy_1", Type: domain.ChallengeMath, Question: "What is 2 + 2?",
			CorrectAnswer: domain.NumberAnswer(4), Difficulty: domain.DifficultyEasy, TimeLimitSeconds: 30},
		{ID: "medium_1", Type: domain.ChallengeRiddle, Question: "What has keys but can't open locks?",
			CorrectAnswer: domain.TextAnswer("keyboard"), Difficulty: domain.DifficultyMedium, TimeLimitSeconds: 60},
		{ID: "hard_1", Type: domain.ChallengeScience, Question: "How many bones are in an adult human body?",
			CorrectAnswer: domain.NumberAnswer(206), Difficulty: domain.DifficultyHard},
	}
}

// harness wires every engine over one in-memory store.
type harness struct {
	clock      *fakeClock
	store      *failingStore
	unlocks    *unlock.Store
	sessions   *FocusSessionEngine
	blocks     *BlockListEngine
	challenges *ChallengeEngine
	orch       *UnlockOrchestrator
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	blocks     BlockListConfig
	sessions   SessionConfig
	challenges ChallengeConfig
}

func withBlockConfig(fn func(*BlockListConfig)) harnessOption {
	return func(c *harnessConfig) { fn(&c.blocks) }
}

func withChallengeConfig(fn func(*ChallengeConfig)) harnessOption {
	return func(c *harnessConfig) { fn(&c.challenges) }
}

func newHarness(opts ...harnessOption) *harness {
	cfg := harnessConfig{
		blocks:     DefaultBlockListConfig(),
		sessions:   DefaultSessionConfig(),
		challenges: DefaultChallengeConfig(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := zap.NewNop()
	clock := newFakeClock()
	store := newFailingStore(infra.NewMemoryStore())
	unlocks := unlock.NewStore(clock, store, logger)
	sessions := NewFocusSessionEngine(store, clock, cfg.sessions, logger)
	blocks := NewBlockListEngine(store, unlocks, sessions, clock, cfg.blocks, logger)
	bank := challenge.NewBankWithTemplates(testTemplates()...).WithPicker(func(int) int { return 0 })
	challenges := NewChallengeEngine(store, bank, clock, cfg.challenges, logger)
	orch := NewUnlockOrchestrator(blocks, challenges, unlocks, clock, cfg.blocks.TemporaryUnlockDuration, logger)

	return &harness{
		clock:      clock,
		store:      store,
		unlocks:    unlocks,
		sessions:   sessions,
		blocks:     blocks,
		challenges: challenges,
		orch:       orch,
	}
}

// answerFor returns the correct answer for an issued challenge id.
func (h *harness) answerFor(id string) string {
	issued, err := h.store.LoadIssuedChallenge(context.Background(), owner, id)
	if err != nil || issued == nil {
		return ""
	}
	return issued.Challenge.CorrectAnswer.String()
}
