// Package unlock tracks time-boxed exemptions from blocking, per owner and URL.
package unlock

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
	"github.com/eliteGoblin/focusd/focus_guard/internal/urlmatch"
)

// Listener is notified after a grant or revoke for a normalized URL.
type Listener func(ownerID, normalizedURL string)

// Persister saves unlock snapshots so grants survive process restarts.
// domain.Store satisfies it.
type Persister interface {
	LoadUnlocks(ctx context.Context, ownerID string) ([]domain.TemporaryUnlock, error)
	SaveUnlocks(ctx context.Context, ownerID string, unlocks []domain.TemporaryUnlock) error
}

// Store holds temporary unlocks in memory with lazy expiry on read.
// A later grant for the same URL overwrites the earlier one.
//
// Reads use the loaded snapshot. Grants, revokes and ListActive reload it
// from the persister first, so changes made by another process sharing the
// store are picked up and never overwritten by a stale snapshot.
type Store struct {
	mu        sync.Mutex
	clock     domain.Clock
	persister Persister
	logger    *zap.Logger
	owners    map[string]map[string]time.Time
	unsaved   map[string]bool // owners whose last save failed
	listeners []Listener
}

// NewStore creates an unlock store. persister may be nil for memory-only use.
func NewStore(clock domain.Clock, persister Persister, logger *zap.Logger) *Store {
	return &Store{
		clock:     clock,
		persister: persister,
		logger:    logger,
		owners:    make(map[string]map[string]time.Time),
		unsaved:   make(map[string]bool),
	}
}

// OnChange registers a listener for grants and revokes.
func (s *Store) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Grant unlocks url for owner until the given time. Idempotent upsert.
func (s *Store) Grant(ctx context.Context, ownerID, url string, until time.Time) error {
	key := urlmatch.Normalize(url)
	if key == "" {
		return domain.NewValidationError("grant unlock", "URL cannot be empty")
	}

	s.mu.Lock()
	changed := s.refreshLocked(ctx, ownerID)
	s.owners[ownerID][key] = until
	s.persistLocked(ctx, ownerID)
	listeners := s.listeners
	s.mu.Unlock()

	s.logger.Info("temporary unlock granted",
		zap.String("owner", ownerID),
		zap.String("url", key),
		zap.Time("until", until))

	notifyAll(listeners, ownerID, changed)
	notify(listeners, ownerID, key)
	return nil
}

// IsUnlocked reports whether url is unlocked right now (now < until).
// Expired grants are deleted on the way out.
func (s *Store) IsUnlocked(ctx context.Context, ownerID, url string) bool {
	_, ok := s.UnlockUntil(ctx, ownerID, url)
	return ok
}

// UnlockUntil returns the expiry of an active unlock for url.
func (s *Store) UnlockUntil(ctx context.Context, ownerID, url string) (time.Time, bool) {
	key := urlmatch.Normalize(url)
	if key == "" {
		return time.Time{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	grants := s.ownerLocked(ctx, ownerID)
	until, ok := grants[key]
	if !ok {
		return time.Time{}, false
	}
	if !s.clock.Now().Before(until) {
		delete(grants, key)
		return time.Time{}, false
	}
	return until, true
}

// Revoke removes any unlock for url.
func (s *Store) Revoke(ctx context.Context, ownerID, url string) {
	key := urlmatch.Normalize(url)
	if key == "" {
		return
	}

	s.mu.Lock()
	changed := s.refreshLocked(ctx, ownerID)
	grants := s.owners[ownerID]
	_, existed := grants[key]
	if existed {
		delete(grants, key)
		s.persistLocked(ctx, ownerID)
	}
	listeners := s.listeners
	s.mu.Unlock()

	notifyAll(listeners, ownerID, changed)
	if !existed {
		return
	}
	s.logger.Info("temporary unlock revoked",
		zap.String("owner", ownerID),
		zap.String("url", key))
	notify(listeners, ownerID, key)
}

// ListActive sweeps expired grants and returns the rest, ordered by URL.
func (s *Store) ListActive(ctx context.Context, ownerID string) []domain.TemporaryUnlock {
	s.mu.Lock()
	changed := s.refreshLocked(ctx, ownerID)
	grants := s.owners[ownerID]
	now := s.clock.Now()
	var expired []string
	for key, until := range grants {
		if !now.Before(until) {
			delete(grants, key)
			expired = append(expired, key)
		}
	}
	active := s.snapshotLocked(ownerID)
	listeners := s.listeners
	s.mu.Unlock()

	notifyAll(listeners, ownerID, changed)
	notifyAll(listeners, ownerID, expired)
	return active
}

// ownerLocked returns the owner's grant map, loading the saved snapshot on first use.
// Caller must hold s.mu.
func (s *Store) ownerLocked(ctx context.Context, ownerID string) map[string]time.Time {
	if grants, ok := s.owners[ownerID]; ok {
		return grants
	}
	grants := make(map[string]time.Time)
	s.owners[ownerID] = grants

	if saved, ok := s.loadLocked(ctx, ownerID); ok {
		for key, until := range saved {
			grants[key] = until
		}
	}
	return grants
}

// refreshLocked replaces the owner's grants with the saved snapshot and
// returns the URLs whose state changed. Memory wins while the owner has an
// unsaved change or the load fails. Caller must hold s.mu.
func (s *Store) refreshLocked(ctx context.Context, ownerID string) []string {
	current, loaded := s.owners[ownerID]
	if !loaded {
		s.ownerLocked(ctx, ownerID)
		return nil
	}
	if s.unsaved[ownerID] {
		return nil
	}
	fresh, ok := s.loadLocked(ctx, ownerID)
	if !ok {
		return nil
	}

	var changed []string
	for key, until := range current {
		if f, ok := fresh[key]; !ok || !f.Equal(until) {
			changed = append(changed, key)
		}
	}
	for key := range fresh {
		if _, ok := current[key]; !ok {
			changed = append(changed, key)
		}
	}
	s.owners[ownerID] = fresh
	sort.Strings(changed)
	return changed
}

// loadLocked reads the owner's unexpired saved grants. ok is false without a
// persister or when the load fails. Caller must hold s.mu.
func (s *Store) loadLocked(ctx context.Context, ownerID string) (map[string]time.Time, bool) {
	if s.persister == nil {
		return nil, false
	}
	saved, err := s.persister.LoadUnlocks(ctx, ownerID)
	if err != nil {
		s.logger.Warn("failed to load temporary unlocks",
			zap.String("owner", ownerID),
			zap.Error(err))
		return nil, false
	}
	now := s.clock.Now()
	grants := make(map[string]time.Time, len(saved))
	for _, u := range saved {
		if now.Before(u.UnlockUntil) {
			grants[u.NormalizedURL] = u.UnlockUntil
		}
	}
	return grants, true
}

// snapshotLocked copies the owner's grants. Caller must hold s.mu.
func (s *Store) snapshotLocked(ownerID string) []domain.TemporaryUnlock {
	grants := s.owners[ownerID]
	out := make([]domain.TemporaryUnlock, 0, len(grants))
	for key, until := range grants {
		out = append(out, domain.TemporaryUnlock{NormalizedURL: key, UnlockUntil: until})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NormalizedURL < out[j].NormalizedURL })
	return out
}

// persistLocked writes the owner's snapshot. Failures are logged and the
// in-memory grants still hold. Caller must hold s.mu.
func (s *Store) persistLocked(ctx context.Context, ownerID string) {
	if s.persister == nil {
		return
	}
	if err := s.persister.SaveUnlocks(ctx, ownerID, s.snapshotLocked(ownerID)); err != nil {
		s.unsaved[ownerID] = true
		s.logger.Warn("failed to save temporary unlocks",
			zap.String("owner", ownerID),
			zap.Error(err))
		return
	}
	delete(s.unsaved, ownerID)
}

func notify(listeners []Listener, ownerID, key string) {
	for _, l := range listeners {
		l(ownerID, key)
	}
}

func notifyAll(listeners []Listener, ownerID string, keys []string) {
	for _, key := range keys {
		notify(listeners, ownerID, key)
	}
}
