package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
)

func TestFocusSessionEngine_Start(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	s, err := h.sessions.Start(ctx, owner, 25*time.Minute)
	require.NoError(t, err)
	assert.Len(t, s.ID, 26, "ulid")
	assert.True(t, s.IsActive)
	assert.Equal(t, baseTime, s.StartTime)
	assert.Equal(t, baseTime.Add(25*time.Minute), s.EndTime)
	assert.Equal(t, 25*time.Minute, s.Duration)
	assert.Empty(t, s.Breaks)
	assert.Zero(t, s.CompletedPercentage)

	_, err = h.sessions.Start(ctx, owner, 25*time.Minute)
	assert.ErrorIs(t, err, domain.ErrAlreadyActive)

	_, err = h.sessions.Start(ctx, "bob", time.Hour)
	assert.NoError(t, err, "sessions are per owner")
}

func TestFocusSessionEngine_StartRejectsDuration(t *testing.T) {
	for _, d := range []time.Duration{0, 59 * time.Second, 8*time.Hour + time.Second, -time.Minute} {
		t.Run(d.String(), func(t *testing.T) {
			h := newHarness()
			_, err := h.sessions.Start(context.Background(), owner, d)
			assert.ErrorIs(t, err, domain.ErrInvalidDuration)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		})
	}
}

func TestFocusSessionEngine_StartBoundaries(t *testing.T) {
	for _, d := range []time.Duration{time.Minute, 8 * time.Hour} {
		h := newHarness()
		_, err := h.sessions.Start(context.Background(), owner, d)
		assert.NoError(t, err, d.String())
	}
}

func TestFocusSessionEngine_PauseResume(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s, err := h.sessions.Start(ctx, owner, 20*time.Minute)
	require.NoError(t, err)

	h.clock.Advance(5 * time.Minute)
	paused, err := h.sessions.Pause(ctx, owner, s.ID, " lunch ")
	require.NoError(t, err)
	require.Len(t, paused.Breaks, 1)
	assert.True(t, paused.Breaks[0].IsOpen())
	assert.Equal(t, "lunch", paused.Breaks[0].Reason)
	assert.Equal(t, 25, paused.CompletedPercentage)

	_, err = h.sessions.Pause(ctx, owner, s.ID, "")
	assert.ErrorIs(t, err, domain.ErrStateConflict)
	assert.Equal(t, "already_paused", domain.CodeOf(err))

	h.clock.Advance(10 * time.Minute)
	active, err := h.sessions.GetActive(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 25, active.CompletedPercentage, "progress holds during a break")

	resumed, err := h.sessions.Resume(ctx, owner, s.ID)
	require.NoError(t, err)
	assert.False(t, resumed.IsOnBreak())
	assert.Equal(t, baseTime.Add(30*time.Minute), resumed.EndTime, "deadline moves by the break length")
	assert.Equal(t, 30*time.Minute, resumed.Duration)
	assert.Equal(t, 25, resumed.CompletedPercentage)

	again, err := h.sessions.Resume(ctx, owner, s.ID)
	require.NoError(t, err, "resume without a break is a no-op")
	assert.Equal(t, resumed.EndTime, again.EndTime)

	h.clock.Advance(5 * time.Minute)
	active, err = h.sessions.GetActive(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 50, active.CompletedPercentage)
}

func TestFocusSessionEngine_TransitionsNeedMatchingSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	_, err := h.sessions.Pause(ctx, owner, "nope", "")
	assert.ErrorIs(t, err, domain.ErrNotActive)
	_, err = h.sessions.End(ctx, owner, "nope", nil)
	assert.ErrorIs(t, err, domain.ErrNotActive)

	_, err = h.sessions.Start(ctx, owner, 25*time.Minute)
	require.NoError(t, err)
	_, err = h.sessions.Resume(ctx, owner, "stale-id")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFocusSessionEngine_End(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s, err := h.sessions.Start(ctx, owner, 40*time.Minute)
	require.NoError(t, err)

	h.clock.Advance(10 * time.Minute)
	ended, err := h.sessions.End(ctx, owner, s.ID, nil)
	require.NoError(t, err)
	assert.False(t, ended.IsActive)
	assert.Equal(t, 25, ended.CompletedPercentage)
	assert.Equal(t, baseTime.Add(10*time.Minute), ended.EndTime)

	active, err := h.sessions.GetActive(ctx, owner)
	require.NoError(t, err)
	assert.Nil(t, active)

	history, err := h.sessions.History(ctx, owner, 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, s.ID, history[0].ID)

	_, err = h.sessions.End(ctx, owner, s.ID, nil)
	assert.ErrorIs(t, err, domain.ErrNotActive)
}

func TestFocusSessionEngine_EndClosesOpenBreak(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s, err := h.sessions.Start(ctx, owner, 20*time.Minute)
	require.NoError(t, err)

	h.clock.Advance(10 * time.Minute)
	_, err = h.sessions.Pause(ctx, owner, s.ID, "")
	require.NoError(t, err)
	h.clock.Advance(5 * time.Minute)

	ended, err := h.sessions.End(ctx, owner, s.ID, nil)
	require.NoError(t, err)
	require.Len(t, ended.Breaks, 1)
	assert.False(t, ended.Breaks[0].IsOpen())
	assert.Equal(t, 50, ended.CompletedPercentage)
	assert.Equal(t, baseTime.Add(15*time.Minute), ended.EndTime)
}

func TestFocusSessionEngine_EndOverride(t *testing.T) {
	ctx := context.Background()

	t.Run("valid override", func(t *testing.T) {
		h := newHarness()
		s, err := h.sessions.Start(ctx, owner, 25*time.Minute)
		require.NoError(t, err)
		pct := 80
		ended, err := h.sessions.End(ctx, owner, s.ID, &pct)
		require.NoError(t, err)
		assert.Equal(t, 80, ended.CompletedPercentage)
	})

	for _, pct := range []int{-1, 101} {
		t.Run("rejects out of range", func(t *testing.T) {
			h := newHarness()
			s, err := h.sessions.Start(ctx, owner, 25*time.Minute)
			require.NoError(t, err)
			v := pct
			_, err = h.sessions.End(ctx, owner, s.ID, &v)
			assert.ErrorIs(t, err, domain.ErrValidation)

			active, err := h.sessions.GetActive(ctx, owner)
			require.NoError(t, err)
			assert.NotNil(t, active, "session stays active")
		})
	}
}

func TestFocusSessionEngine_History(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	var ids []string
	for i := 0; i < 3; i++ {
		s, err := h.sessions.Start(ctx, owner, 25*time.Minute)
		require.NoError(t, err)
		h.clock.Advance(time.Minute)
		_, err = h.sessions.End(ctx, owner, s.ID, nil)
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}

	history, err := h.sessions.History(ctx, owner, 2, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ids[2], history[0].ID, "newest first")
	assert.Equal(t, ids[1], history[1].ID)

	history, err = h.sessions.History(ctx, owner, 2, 2)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ids[0], history[0].ID)

	empty, err := h.sessions.History(ctx, "bob", 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = h.sessions.History(ctx, owner, -1, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFocusSessionEngine_Tick(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	none, err := h.sessions.Tick(ctx, owner)
	require.NoError(t, err)
	assert.Nil(t, none)

	s, err := h.sessions.Start(ctx, owner, 10*time.Minute)
	require.NoError(t, err)

	h.clock.Advance(3 * time.Minute)
	ticked, err := h.sessions.Tick(ctx, owner)
	require.NoError(t, err)
	require.NotNil(t, ticked)
	assert.True(t, ticked.IsActive)
	assert.Equal(t, 30, ticked.CompletedPercentage)

	stored, err := h.store.LoadActiveSession(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 30, stored.CompletedPercentage, "tick persists progress")

	h.clock.Advance(8 * time.Minute)
	ended, err := h.sessions.Tick(ctx, owner)
	require.NoError(t, err)
	require.NotNil(t, ended)
	assert.False(t, ended.IsActive)
	assert.Equal(t, 100, ended.CompletedPercentage)
	assert.Equal(t, s.EndTime, ended.EndTime, "ends at the deadline, not at the tick")

	history, err := h.sessions.History(ctx, owner, 0, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestFocusSessionEngine_TickDoesNotEndDuringBreak(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s, err := h.sessions.Start(ctx, owner, 10*time.Minute)
	require.NoError(t, err)
	h.clock.Advance(5 * time.Minute)
	_, err = h.sessions.Pause(ctx, owner, s.ID, "")
	require.NoError(t, err)

	h.clock.Advance(20 * time.Minute)
	ticked, err := h.sessions.Tick(ctx, owner)
	require.NoError(t, err)
	assert.True(t, ticked.IsActive)
	assert.Equal(t, 50, ticked.CompletedPercentage)
}

func TestFocusSessionEngine_SessionContext(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	sc, err := h.sessions.SessionContext(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionContext{}, sc)

	s, err := h.sessions.Start(ctx, owner, 10*time.Minute)
	require.NoError(t, err)
	h.clock.Advance(4 * time.Minute)
	sc, err = h.sessions.SessionContext(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionContext{HasActiveSession: true, Remaining: 6 * time.Minute}, sc)

	_, err = h.sessions.Pause(ctx, owner, s.ID, "")
	require.NoError(t, err)
	sc, err = h.sessions.SessionContext(ctx, owner)
	require.NoError(t, err)
	assert.True(t, sc.IsOnBreak)

	h.store.Fail("LoadActiveSession")
	_, err = h.sessions.SessionContext(ctx, owner)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestFocusSessionEngine_StorageFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	h.store.Fail("CreateActiveSession")
	_, err := h.sessions.Start(ctx, owner, 25*time.Minute)
	assert.ErrorIs(t, err, domain.ErrStorage)

	h.store.Heal()
	s, err := h.sessions.Start(ctx, owner, 25*time.Minute)
	require.NoError(t, err)

	h.store.Fail("ArchiveSession")
	_, err = h.sessions.End(ctx, owner, s.ID, nil)
	assert.ErrorIs(t, err, domain.ErrStorage)

	h.store.Heal()
	active, err := h.sessions.GetActive(ctx, owner)
	require.NoError(t, err)
	assert.NotNil(t, active, "failed end leaves the session active")
}

func TestProgress(t *testing.T) {
	closedEnd := baseTime.Add(15 * time.Minute)
	tests := []struct {
		name    string
		session domain.FocusSession
		at      time.Duration
		want    int
	}{
		{name: "start", session: domain.FocusSession{StartTime: baseTime, Duration: 10 * time.Minute}, at: 0, want: 0},
		{name: "rounds", session: domain.FocusSession{StartTime: baseTime, Duration: 3 * time.Minute}, at: time.Minute, want: 33},
		{name: "clamps high", session: domain.FocusSession{StartTime: baseTime, Duration: 10 * time.Minute}, at: time.Hour, want: 100},
		{name: "clamps low", session: domain.FocusSession{StartTime: baseTime, Duration: 10 * time.Minute}, at: -time.Minute, want: 0},
		{
			name: "closed break excluded",
			session: domain.FocusSession{StartTime: baseTime, Duration: 30 * time.Minute, Breaks: []domain.Break{
				{StartTime: baseTime.Add(5 * time.Minute), EndTime: &closedEnd},
			}},
			at:   20 * time.Minute,
			want: 50,
		},
		{
			name: "open break excluded",
			session: domain.FocusSession{StartTime: baseTime, Duration: 20 * time.Minute, Breaks: []domain.Break{
				{StartTime: baseTime.Add(5 * time.Minute)},
			}},
			at:   time.Hour,
			want: 25,
		},
		{name: "no planned time", session: domain.FocusSession{StartTime: baseTime}, at: 0, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.session
			assert.Equal(t, tt.want, Progress(&s, baseTime.Add(tt.at)))
		})
	}
}

func TestProgress_NeverDropsAcrossBreak(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s, err := h.sessions.Start(ctx, owner, 20*time.Minute)
	require.NoError(t, err)

	last := 0
	sample := func(step string) {
		active, err := h.sessions.GetActive(ctx, owner)
		require.NoError(t, err)
		require.NotNil(t, active)
		pct := Progress(active, h.clock.Now())
		assert.GreaterOrEqual(t, pct, last, step)
		last = pct
	}

	h.clock.Advance(10 * time.Minute)
	sample("before pause")
	assert.Equal(t, 50, last)

	_, err = h.sessions.Pause(ctx, owner, s.ID, "coffee")
	require.NoError(t, err)
	h.clock.Advance(5 * time.Minute)
	sample("on break")

	h.clock.Advance(5 * time.Minute)
	_, err = h.sessions.Resume(ctx, owner, s.ID)
	require.NoError(t, err)
	sample("after resume")
	assert.Equal(t, 50, last, "break time is not focus time")

	h.clock.Advance(5 * time.Minute)
	sample("after more focus")
	assert.Equal(t, 75, last)
}
