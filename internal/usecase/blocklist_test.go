package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
)

func TestBlockListEngine_Add(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	entry, err := h.blocks.Add(ctx, owner, "https://www.Facebook.com/", AddOptions{Permanent: true, Category: " social "})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "facebook.com", entry.NormalizedURL)
	assert.Equal(t, "*://*.facebook.com/*", entry.Pattern)
	assert.Equal(t, "social", entry.Category)
	assert.True(t, entry.IsPermanent)
	assert.Equal(t, baseTime, entry.CreatedAt)

	list, err := h.blocks.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, entry.ID, list[0].ID)
}

func TestBlockListEngine_AddErrors(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		url      string
		wantKind domain.ErrorKind
		wantMsg  string
	}{
		{name: "empty", url: "  ", wantKind: domain.KindValidation, wantMsg: "URL cannot be empty"},
		{name: "not a url", url: "not a url", wantKind: domain.KindValidation},
		{name: "duplicate after normalization", existing: []string{"reddit.com"}, url: "http://www.reddit.com/",
			wantKind: domain.KindDuplicate, wantMsg: "This URL is already in your block list"},
		{name: "list full", existing: []string{"a.com", "b.com"}, url: "c.com",
			wantKind: domain.KindCapacity, wantMsg: "Block list is full. Maximum 2 items allowed."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(withBlockConfig(func(c *BlockListConfig) { c.MaxItems = 2 }))
			for _, u := range tt.existing {
				_, err := h.blocks.Add(ctx, owner, u, AddOptions{})
				require.NoError(t, err)
			}

			_, err := h.blocks.Add(ctx, owner, tt.url, AddOptions{})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, domain.KindOf(err))
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, err.Error())
			}

			list, err := h.blocks.List(ctx, owner)
			require.NoError(t, err)
			assert.Len(t, list, len(tt.existing), "failed add leaves the list unchanged")
		})
	}
}

func TestBlockListEngine_AddStorageFailure(t *testing.T) {
	h := newHarness()
	h.store.Fail("SaveBlockList")

	_, err := h.blocks.Add(context.Background(), owner, "facebook.com", AddOptions{})
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.ErrorIs(t, err, errDiskFull)
}

func TestBlockListEngine_RemoveAndEdit(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	fb, err := h.blocks.Add(ctx, owner, "facebook.com", AddOptions{})
	require.NoError(t, err)
	rd, err := h.blocks.Add(ctx, owner, "reddit.com", AddOptions{})
	require.NoError(t, err)

	toggled, err := h.blocks.TogglePermanent(ctx, owner, fb.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsPermanent)

	categorized, err := h.blocks.UpdateCategory(ctx, owner, rd.ID, "news")
	require.NoError(t, err)
	assert.Equal(t, "news", categorized.Category)

	require.NoError(t, h.blocks.Remove(ctx, owner, fb.ID))
	assert.ErrorIs(t, h.blocks.Remove(ctx, owner, fb.ID), domain.ErrNotFound)

	_, err = h.blocks.TogglePermanent(ctx, owner, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "Block item not found", err.Error())

	list, err := h.blocks.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "reddit.com", list[0].NormalizedURL)

	require.NoError(t, h.blocks.ClearAll(ctx, owner))
	list, err = h.blocks.List(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBlockListEngine_Import(t *testing.T) {
	ctx := context.Background()
	h := newHarness(withBlockConfig(func(c *BlockListConfig) { c.MaxItems = 3 }))
	_, err := h.blocks.Add(ctx, owner, "reddit.com", AddOptions{})
	require.NoError(t, err)

	created := baseTime.Add(-48 * time.Hour)
	result, err := h.blocks.Import(ctx, owner, []domain.BlockEntry{
		{ID: "keep-me", NormalizedURL: "twitter.com", IsPermanent: true, Category: "social", CreatedAt: created},
		{NormalizedURL: "not a url"},
		{NormalizedURL: "www.reddit.com"},
		{NormalizedURL: "youtube.com"},
		{NormalizedURL: "tiktok.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "Invalid item not a url")
	assert.Equal(t, "Item reddit.com already exists", result.Errors[1])
	assert.Equal(t, "Block list size limit reached (3 items)", result.Errors[2])

	list, err := h.blocks.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "keep-me", list[1].ID)
	assert.True(t, list[1].IsPermanent)
	assert.Equal(t, created, list[1].CreatedAt)
	assert.Equal(t, "youtube.com", list[2].NormalizedURL)
}

func TestBlockListEngine_ImportNothingValid(t *testing.T) {
	h := newHarness()
	h.store.Fail("SaveBlockList")

	result, err := h.blocks.Import(context.Background(), owner, []domain.BlockEntry{{NormalizedURL: ""}})
	require.NoError(t, err, "nothing to save never reaches the store")
	assert.Zero(t, result.Imported)
	assert.Len(t, result.Errors, 1)
}

func TestBlockListEngine_ImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newHarness()
	for _, u := range []string{"https://x.com", "https://www.reddit.com/r/golang", "youtube.com"} {
		_, err := src.blocks.Add(ctx, owner, u, AddOptions{})
		require.NoError(t, err)
	}
	exported, err := src.blocks.List(ctx, owner)
	require.NoError(t, err)

	dst := newHarness()
	result, err := dst.blocks.Import(ctx, owner, exported)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.Equal(t, len(exported), result.Imported)

	imported, err := dst.blocks.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, imported, len(exported))
	for i := range exported {
		assert.Equal(t, exported[i].ID, imported[i].ID)
		assert.Equal(t, exported[i].NormalizedURL, imported[i].NormalizedURL)
	}
}

func TestBlockListEngine_AddShortDomains(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	for _, u := range []string{"x.com", "t.co", "vk.com", "fb.com"} {
		entry, err := h.blocks.Add(ctx, owner, u, AddOptions{})
		require.NoError(t, err, u)
		assert.Equal(t, u, entry.NormalizedURL)
	}
}

func TestBlockListEngine_Queries(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	for _, in := range []struct{ url, category string }{
		{"facebook.com", "social"},
		{"twitter.com", "social"},
		{"news.ycombinator.com", "News"},
		{"example.com", ""},
	} {
		_, err := h.blocks.Add(ctx, owner, in.url, AddOptions{Category: in.category})
		require.NoError(t, err)
	}

	found, err := h.blocks.Search(ctx, owner, "SOCIAL")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = h.blocks.Search(ctx, owner, "ycomb")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "news.ycombinator.com", found[0].NormalizedURL)

	found, err = h.blocks.Search(ctx, owner, "   ")
	require.NoError(t, err)
	assert.Empty(t, found)

	social, err := h.blocks.FilterByCategory(ctx, owner, "social")
	require.NoError(t, err)
	assert.Len(t, social, 2)

	uncategorized, err := h.blocks.FilterByCategory(ctx, owner, "")
	require.NoError(t, err)
	require.Len(t, uncategorized, 1)
	assert.Equal(t, "example.com", uncategorized[0].NormalizedURL)

	cats, err := h.blocks.Categories(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []string{"News", "social"}, cats)
}

func TestBlockListEngine_IsBlocked(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	fb, err := h.blocks.Add(ctx, owner, "facebook.com", AddOptions{Permanent: true})
	require.NoError(t, err)
	_, err = h.blocks.Add(ctx, owner, "reddit.com", AddOptions{})
	require.NoError(t, err)

	t.Run("permanent entry blocks subdomains and paths", func(t *testing.T) {
		r := h.blocks.IsBlocked(ctx, owner, "https://m.facebook.com/groups")
		assert.True(t, r.IsBlocked)
		assert.Equal(t, domain.ReasonPermanent, r.Reason)
		assert.True(t, r.CanUnlock)
		require.NotNil(t, r.Entry)
		assert.Equal(t, fb.ID, r.Entry.ID)
	})

	t.Run("session entry without a session", func(t *testing.T) {
		r := h.blocks.IsBlocked(ctx, owner, "reddit.com")
		assert.False(t, r.IsBlocked)
		assert.Equal(t, domain.ReasonNone, r.Reason)
		require.NotNil(t, r.Entry, "the matching entry is still reported")
	})

	t.Run("unmatched and empty urls", func(t *testing.T) {
		assert.False(t, h.blocks.IsBlocked(ctx, owner, "golang.org").IsBlocked)
		r := h.blocks.IsBlocked(ctx, owner, "")
		assert.False(t, r.IsBlocked)
		assert.Nil(t, r.Entry)
	})

	t.Run("other owners are unaffected", func(t *testing.T) {
		assert.False(t, h.blocks.IsBlocked(ctx, "bob", "facebook.com").IsBlocked)
	})
}

func TestBlockListEngine_IsBlockedDuringSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	_, err := h.blocks.Add(ctx, owner, "reddit.com", AddOptions{})
	require.NoError(t, err)

	session, err := h.sessions.Start(ctx, owner, 25*time.Minute)
	require.NoError(t, err)

	r := h.blocks.IsBlocked(ctx, owner, "reddit.com/r/golang")
	assert.True(t, r.IsBlocked)
	assert.Equal(t, domain.ReasonSession, r.Reason)
	assert.False(t, r.CanUnlock)

	_, err = h.sessions.Pause(ctx, owner, session.ID, "coffee")
	require.NoError(t, err)
	assert.False(t, h.blocks.IsBlocked(ctx, owner, "reddit.com").IsBlocked, "breaks lift session blocks")

	_, err = h.sessions.Resume(ctx, owner, session.ID)
	require.NoError(t, err)
	assert.True(t, h.blocks.IsBlocked(ctx, owner, "reddit.com").IsBlocked)

	_, err = h.sessions.End(ctx, owner, session.ID, nil)
	require.NoError(t, err)
	assert.False(t, h.blocks.IsBlocked(ctx, owner, "reddit.com").IsBlocked)
}

func TestBlockListEngine_IsBlockedFailsOpen(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	_, err := h.blocks.Add(ctx, owner, "facebook.com", AddOptions{Permanent: true})
	require.NoError(t, err)
	_, err = h.blocks.Add(ctx, owner, "reddit.com", AddOptions{})
	require.NoError(t, err)
	_, err = h.sessions.Start(ctx, owner, 25*time.Minute)
	require.NoError(t, err)

	h.store.Fail("LoadActiveSession")
	assert.True(t, h.blocks.IsBlocked(ctx, owner, "facebook.com").IsBlocked, "permanent blocks need no session")
	assert.False(t, h.blocks.IsBlocked(ctx, owner, "reddit.com").IsBlocked, "unknown session state counts as none")

	h.store.Fail("LoadBlockList")
	r := h.blocks.IsBlocked(ctx, owner, "facebook.com")
	assert.False(t, r.IsBlocked)
	assert.Equal(t, domain.ReasonNone, r.Reason)
	assert.Equal(t, domain.BlockStats{}, h.blocks.Stats(ctx, owner))
	assert.Equal(t, domain.BlockingContext{}, h.blocks.BlockingContext(ctx, owner))
}

func TestBlockListEngine_MatchCacheTracksMutations(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	fb, err := h.blocks.Add(ctx, owner, "facebook.com", AddOptions{Permanent: true})
	require.NoError(t, err)

	// Same clock reading for every mutation: the purge must not depend on time moving.
	assert.True(t, h.blocks.IsBlocked(ctx, owner, "facebook.com").IsBlocked)
	assert.True(t, h.blocks.IsBlocked(ctx, owner, "facebook.com").IsBlocked)

	_, err = h.blocks.TogglePermanent(ctx, owner, fb.ID)
	require.NoError(t, err)
	assert.False(t, h.blocks.IsBlocked(ctx, owner, "facebook.com").IsBlocked)

	_, err = h.blocks.TogglePermanent(ctx, owner, fb.ID)
	require.NoError(t, err)
	require.NoError(t, h.blocks.Remove(ctx, owner, fb.ID))
	assert.False(t, h.blocks.IsBlocked(ctx, owner, "facebook.com").IsBlocked)

	assert.False(t, h.blocks.IsBlocked(ctx, owner, "twitter.com").IsBlocked)
	_, err = h.blocks.Add(ctx, owner, "twitter.com", AddOptions{Permanent: true})
	require.NoError(t, err)
	assert.True(t, h.blocks.IsBlocked(ctx, owner, "twitter.com").IsBlocked, "cached miss is invalidated")
}

func TestBlockListEngine_MatchCacheDisabled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(withBlockConfig(func(c *BlockListConfig) { c.MatchCacheSize = 0 }))
	_, err := h.blocks.Add(ctx, owner, "facebook.com", AddOptions{Permanent: true})
	require.NoError(t, err)

	entry, err := h.blocks.GetBlockedEntry(ctx, owner, "www.facebook.com")
	require.NoError(t, err)
	require.NotNil(t, entry)

	none, err := h.blocks.GetBlockedEntry(ctx, owner, "golang.org")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestBlockListEngine_FirstMatchWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	first, err := h.blocks.Add(ctx, owner, "google.com", AddOptions{})
	require.NoError(t, err)
	_, err = h.blocks.Add(ctx, owner, "mail.google.com", AddOptions{Permanent: true})
	require.NoError(t, err)

	entry, err := h.blocks.GetBlockedEntry(ctx, owner, "mail.google.com")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, first.ID, entry.ID)
}

func TestBlockListEngine_UnlocksLiftPermanentBlocks(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	_, err := h.blocks.Add(ctx, owner, "facebook.com", AddOptions{Permanent: true})
	require.NoError(t, err)
	assert.True(t, h.blocks.IsBlocked(ctx, owner, "facebook.com").IsBlocked)

	require.NoError(t, h.unlocks.Grant(ctx, owner, "facebook.com", baseTime.Add(10*time.Minute)))
	assert.False(t, h.blocks.IsBlocked(ctx, owner, "https://facebook.com/").IsBlocked)

	h.clock.Advance(10 * time.Minute)
	assert.True(t, h.blocks.IsBlocked(ctx, owner, "facebook.com").IsBlocked, "unlock ends at its deadline")

	require.NoError(t, h.unlocks.Grant(ctx, owner, "facebook.com", h.clock.Now().Add(time.Minute)))
	h.unlocks.Revoke(ctx, owner, "facebook.com")
	assert.True(t, h.blocks.IsBlocked(ctx, owner, "facebook.com").IsBlocked)
}

func TestBlockListEngine_StatsAndContext(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	fb, err := h.blocks.Add(ctx, owner, "facebook.com", AddOptions{Permanent: true, Category: "social"})
	require.NoError(t, err)
	_, err = h.blocks.Add(ctx, owner, "reddit.com", AddOptions{})
	require.NoError(t, err)
	old, err := h.blocks.Add(ctx, owner, "twitter.com", AddOptions{})
	require.NoError(t, err)

	h.blocks.TouchAccess(ctx, owner, old.ID)
	h.clock.Advance(25 * time.Hour)
	h.blocks.TouchAccess(ctx, owner, fb.ID)
	h.blocks.TouchAccess(ctx, owner, "missing")

	stats := h.blocks.Stats(ctx, owner)
	assert.Equal(t, domain.BlockStats{Total: 3, Permanent: 1, Temporary: 2, Categorized: 1, RecentlyAccessed: 1}, stats)

	_, err = h.sessions.Start(ctx, owner, 30*time.Minute)
	require.NoError(t, err)
	h.clock.Advance(10 * time.Minute)

	bc := h.blocks.BlockingContext(ctx, owner)
	assert.True(t, bc.HasActiveSession)
	assert.False(t, bc.IsOnBreak)
	assert.Equal(t, 20*time.Minute, bc.SessionTimeRemaining)
	assert.Equal(t, 3, bc.TotalBlocks)
	assert.Equal(t, 1, bc.PermanentBlocks)
	assert.Equal(t, 2, bc.SessionBlocks)
}

func TestBlockListEngine_TouchAccessKeepsMatchStamp(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	entry, err := h.blocks.Add(ctx, owner, "facebook.com", AddOptions{})
	require.NoError(t, err)
	before, err := h.store.LoadBlockList(ctx, owner)
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	h.blocks.TouchAccess(ctx, owner, entry.ID)

	after, err := h.store.LoadBlockList(ctx, owner)
	require.NoError(t, err)
	assert.True(t, before.LastUpdated.Equal(after.LastUpdated))
	require.NotNil(t, after.Entries[0].LastAccessed)
	assert.Equal(t, h.clock.Now(), *after.Entries[0].LastAccessed)
}

func TestBlockListEngine_BlockedAttempts(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	_, err := h.blocks.Add(ctx, owner, "facebook.com", AddOptions{Permanent: true})
	require.NoError(t, err)

	h.blocks.IsBlocked(ctx, owner, "facebook.com")
	h.blocks.IsBlocked(ctx, owner, "https://www.facebook.com/")
	h.blocks.IsBlocked(ctx, owner, "golang.org")

	assert.Equal(t, map[string]int{"facebook.com": 2}, h.blocks.BlockedAttempts(owner))
	h.blocks.ClearBlockedAttempts(owner)
	assert.Empty(t, h.blocks.BlockedAttempts(owner))
}

func TestMessageFor(t *testing.T) {
	entry := &domain.BlockEntry{NormalizedURL: "facebook.com"}
	tests := []struct {
		name   string
		result domain.BlockCheckResult
		want   domain.BlockingMessage
	}{
		{
			name:   "permanent",
			result: domain.BlockCheckResult{IsBlocked: true, Entry: entry, Reason: domain.ReasonPermanent},
			want: domain.BlockingMessage{
				Title:      "Site Permanently Blocked",
				Message:    "facebook.com is permanently blocked. Complete a challenge to unlock it temporarily.",
				ActionText: "Take Challenge",
			},
		},
		{
			name:   "session",
			result: domain.BlockCheckResult{IsBlocked: true, Entry: entry, Reason: domain.ReasonSession},
			want: domain.BlockingMessage{
				Title:      "Focus Session Active",
				Message:    "facebook.com is blocked during your focus session. Stay focused!",
				ActionText: "End Session",
			},
		},
		{
			name:   "fallback",
			result: domain.BlockCheckResult{Reason: domain.ReasonNone},
			want:   domain.BlockingMessage{Title: "Access Denied", Message: "This site is currently blocked."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MessageFor(tt.result))
		})
	}
}
