//go:build integration

package integration

import (
	"context"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focus_guard/internal/challenge"
	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
	"github.com/eliteGoblin/focusd/focus_guard/internal/infra"
	"github.com/eliteGoblin/focusd/focus_guard/internal/unlock"
	"github.com/eliteGoblin/focusd/focus_guard/internal/usecase"
)

const owner = "alice"

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// app is the engine graph the CLI and API build, over an encrypted store.
type app struct {
	store      *infra.EncryptedStore
	unlocks    *unlock.Store
	sessions   *usecase.FocusSessionEngine
	blocks     *usecase.BlockListEngine
	challenges *usecase.ChallengeEngine
	orch       *usecase.UnlockOrchestrator
}

func openApp(dataDir string, key []byte, clock domain.Clock) *app {
	store, err := infra.NewEncryptedStore(dataDir, key)
	Expect(err).NotTo(HaveOccurred())

	logger := zap.NewNop()
	blockCfg := usecase.DefaultBlockListConfig()
	unlocks := unlock.NewStore(clock, store, logger)
	sessions := usecase.NewFocusSessionEngine(store, clock, usecase.DefaultSessionConfig(), logger)
	blocks := usecase.NewBlockListEngine(store, unlocks, sessions, clock, blockCfg, logger)
	challenges := usecase.NewChallengeEngine(store, challenge.NewBank(), clock, usecase.DefaultChallengeConfig(), logger)
	return &app{
		store:      store,
		unlocks:    unlocks,
		sessions:   sessions,
		blocks:     blocks,
		challenges: challenges,
		orch:       usecase.NewUnlockOrchestrator(blocks, challenges, unlocks, clock, blockCfg.TemporaryUnlockDuration, logger),
	}
}

// answerOf reads the answer key of an issued challenge straight from the store.
func (a *app) answerOf(id string) string {
	issued, err := a.store.LoadIssuedChallenge(context.Background(), owner, id)
	Expect(err).NotTo(HaveOccurred())
	Expect(issued).NotTo(BeNil())
	return issued.Challenge.CorrectAnswer.String()
}

var _ = Describe("FocusGuard", func() {
	var (
		ctx     context.Context
		tmpDir  string
		key     []byte
		clock   *stepClock
		current *app
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		tmpDir, err = os.MkdirTemp("", "focusguard-integration-*")
		Expect(err).NotTo(HaveOccurred())
		key, err = infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		clock = &stepClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
		current = openApp(tmpDir, key, clock)
	})

	AfterEach(func() {
		current.store.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("permanent blocks", func() {
		It("should block the domain and its pages", func() {
			_, err := current.blocks.Add(ctx, owner, "facebook.com", usecase.AddOptions{Permanent: true})
			Expect(err).NotTo(HaveOccurred())

			result := current.blocks.IsBlocked(ctx, owner, "https://www.facebook.com/feed")
			Expect(result.IsBlocked).To(BeTrue())
			Expect(result.Reason).To(Equal(domain.ReasonPermanent))
			Expect(result.CanUnlock).To(BeTrue())
		})
	})

	Describe("session blocks", func() {
		It("should follow the focus session state", func() {
			_, err := current.blocks.Add(ctx, owner, "twitter.com", usecase.AddOptions{})
			Expect(err).NotTo(HaveOccurred())

			result := current.blocks.IsBlocked(ctx, owner, "twitter.com")
			Expect(result.IsBlocked).To(BeFalse())
			Expect(result.Reason).To(Equal(domain.ReasonNone))

			session, err := current.sessions.Start(ctx, owner, 25*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			result = current.blocks.IsBlocked(ctx, owner, "twitter.com")
			Expect(result.IsBlocked).To(BeTrue())
			Expect(result.Reason).To(Equal(domain.ReasonSession))

			_, err = current.sessions.Pause(ctx, owner, session.ID, "stretch")
			Expect(err).NotTo(HaveOccurred())
			Expect(current.blocks.IsBlocked(ctx, owner, "twitter.com").IsBlocked).To(BeFalse())
		})

		Context("when the deadline passes", func() {
			It("should auto-complete on tick and archive the session", func() {
				session, err := current.sessions.Start(ctx, owner, 10*time.Minute)
				Expect(err).NotTo(HaveOccurred())

				clock.Advance(11 * time.Minute)
				ended, err := current.sessions.Tick(ctx, owner)
				Expect(err).NotTo(HaveOccurred())
				Expect(ended.IsActive).To(BeFalse())
				Expect(ended.CompletedPercentage).To(Equal(100))

				history, err := current.sessions.History(ctx, owner, 0, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(history).To(HaveLen(1))
				Expect(history[0].ID).To(Equal(session.ID))
			})
		})
	})

	Describe("challenge unlocks", func() {
		BeforeEach(func() {
			_, err := current.blocks.Add(ctx, owner, "facebook.com", usecase.AddOptions{Permanent: true})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should unlock for the unlock window after a correct answer", func() {
			pc, err := current.orch.RequestChallenge(ctx, owner, "facebook.com")
			Expect(err).NotTo(HaveOccurred())

			result, err := current.orch.SubmitAnswer(ctx, owner, pc.ID, "facebook.com", current.answerOf(pc.ID))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsCorrect).To(BeTrue())
			Expect(current.blocks.IsBlocked(ctx, owner, "facebook.com").IsBlocked).To(BeFalse())

			clock.Advance(9 * time.Minute)
			Expect(current.blocks.IsBlocked(ctx, owner, "facebook.com").IsBlocked).To(BeFalse())

			clock.Advance(time.Minute)
			Expect(current.blocks.IsBlocked(ctx, owner, "facebook.com").IsBlocked).To(BeTrue())
		})

		It("should keep an unlock across a restart", func() {
			pc, err := current.orch.RequestChallenge(ctx, owner, "facebook.com")
			Expect(err).NotTo(HaveOccurred())
			_, err = current.orch.SubmitAnswer(ctx, owner, pc.ID, "facebook.com", current.answerOf(pc.ID))
			Expect(err).NotTo(HaveOccurred())

			Expect(current.store.Close()).To(Succeed())
			current = openApp(tmpDir, key, clock)

			Expect(current.blocks.IsBlocked(ctx, owner, "facebook.com").IsBlocked).To(BeFalse())
			Expect(current.orch.ActiveUnlocks(ctx, owner)).To(HaveLen(1))
		})

		It("should refuse challenges for sites that are not permanently blocked", func() {
			_, err := current.orch.RequestChallenge(ctx, owner, "golang.org")
			Expect(err).To(MatchError(domain.ErrNotPermanentlyBlocked))
		})
	})

	Describe("challenge cooldown", func() {
		It("should reject a second challenge within the cooldown", func() {
			_, err := current.challenges.Generate(ctx, owner, domain.DifficultyEasy)
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(5 * time.Second)
			_, err = current.challenges.Generate(ctx, owner, domain.DifficultyEasy)
			Expect(domain.KindOf(err)).To(Equal(domain.KindCooldown))

			clock.Advance(25 * time.Second)
			_, err = current.challenges.Generate(ctx, owner, domain.DifficultyEasy)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should survive a restart", func() {
			_, err := current.challenges.Generate(ctx, owner, "")
			Expect(err).NotTo(HaveOccurred())

			Expect(current.store.Close()).To(Succeed())
			current = openApp(tmpDir, key, clock)

			_, err = current.challenges.Generate(ctx, owner, "")
			Expect(domain.KindOf(err)).To(Equal(domain.KindCooldown))
		})
	})
})
