package infra

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
)

// MemoryStore implements domain.Store and domain.DaemonRegistry in process memory.
// Values are copied on the way in and out, so callers never share state with it.
type MemoryStore struct {
	mu         sync.Mutex
	lists      map[string]domain.BlockList
	active     map[string]domain.FocusSession
	history    map[string][]domain.FocusSession // oldest first
	attempts   map[string][]domain.ChallengeAttempt
	issued     map[string]map[string]domain.IssuedChallenge
	lastIssued map[string]time.Time
	unlocks    map[string][]domain.TemporaryUnlock
	daemon     *domain.DaemonInfo
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lists:      make(map[string]domain.BlockList),
		active:     make(map[string]domain.FocusSession),
		history:    make(map[string][]domain.FocusSession),
		attempts:   make(map[string][]domain.ChallengeAttempt),
		issued:     make(map[string]map[string]domain.IssuedChallenge),
		lastIssued: make(map[string]time.Time),
		unlocks:    make(map[string][]domain.TemporaryUnlock),
	}
}

func (m *MemoryStore) LoadBlockList(_ context.Context, ownerID string) (*domain.BlockList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.lists[ownerID]
	if !ok {
		return &domain.BlockList{OwnerID: ownerID, Entries: []domain.BlockEntry{}}, nil
	}
	out := list.Clone()
	return &out, nil
}

func (m *MemoryStore) SaveBlockList(_ context.Context, list domain.BlockList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[list.OwnerID] = list.Clone()
	return nil
}

func (m *MemoryStore) LoadActiveSession(_ context.Context, ownerID string) (*domain.FocusSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.active[ownerID]
	if !ok {
		return nil, nil
	}
	out := s.Clone()
	return &out, nil
}

func (m *MemoryStore) CreateActiveSession(_ context.Context, session domain.FocusSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[session.OwnerID]; ok {
		return domain.ErrAlreadyActive
	}
	m.active[session.OwnerID] = session.Clone()
	return nil
}

func (m *MemoryStore) SaveActiveSession(_ context.Context, session domain.FocusSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.active[session.OwnerID]
	if !ok || cur.ID != session.ID {
		return domain.ErrNotActive
	}
	m.active[session.OwnerID] = session.Clone()
	return nil
}

func (m *MemoryStore) ArchiveSession(_ context.Context, session domain.FocusSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.active[session.OwnerID]
	if !ok || cur.ID != session.ID {
		return domain.ErrNotActive
	}
	delete(m.active, session.OwnerID)
	m.history[session.OwnerID] = append(m.history[session.OwnerID], session.Clone())
	return nil
}

func (m *MemoryStore) LoadHistory(_ context.Context, ownerID string, limit, offset int) ([]domain.FocusSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.history[ownerID]
	out := []domain.FocusSession{}
	for i := len(all) - 1 - offset; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, all[i].Clone())
	}
	return out, nil
}

func (m *MemoryStore) AppendChallengeAttempt(_ context.Context, attempt domain.ChallengeAttempt, retain int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := append(m.attempts[attempt.OwnerID], attempt)
	if retain > 0 && len(log) > retain {
		log = append([]domain.ChallengeAttempt(nil), log[len(log)-retain:]...)
	}
	m.attempts[attempt.OwnerID] = log
	return nil
}

func (m *MemoryStore) LoadChallengeAttempts(_ context.Context, ownerID string, since time.Time) ([]domain.ChallengeAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.ChallengeAttempt{}
	for _, a := range m.attempts[ownerID] {
		if !a.AttemptedAt.Before(since) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AttemptedAt.Before(out[j].AttemptedAt) })
	return out, nil
}

func (m *MemoryStore) PruneChallengeAttempts(_ context.Context, ownerID string, before time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []domain.ChallengeAttempt
	for _, a := range m.attempts[ownerID] {
		if !a.AttemptedAt.Before(before) {
			kept = append(kept, a)
		}
	}
	m.attempts[ownerID] = kept
	return nil
}

func (m *MemoryStore) SaveIssuedChallenge(_ context.Context, issued domain.IssuedChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.issued[issued.OwnerID] == nil {
		m.issued[issued.OwnerID] = make(map[string]domain.IssuedChallenge)
	}
	m.issued[issued.OwnerID][issued.Challenge.ID] = issued
	if issued.IssuedAt.After(m.lastIssued[issued.OwnerID]) {
		m.lastIssued[issued.OwnerID] = issued.IssuedAt
	}
	return nil
}

func (m *MemoryStore) LoadIssuedChallenge(_ context.Context, ownerID, challengeID string) (*domain.IssuedChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issued, ok := m.issued[ownerID][challengeID]
	if !ok {
		return nil, nil
	}
	issued.Challenge.Options = append([]string(nil), issued.Challenge.Options...)
	return &issued, nil
}

func (m *MemoryStore) DeleteIssuedChallenge(_ context.Context, ownerID, challengeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.issued[ownerID], challengeID)
	return nil
}

func (m *MemoryStore) LastIssuedAt(_ context.Context, ownerID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastIssued[ownerID], nil
}

func (m *MemoryStore) LoadUnlocks(_ context.Context, ownerID string) ([]domain.TemporaryUnlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TemporaryUnlock(nil), m.unlocks[ownerID]...), nil
}

func (m *MemoryStore) SaveUnlocks(_ context.Context, ownerID string, unlocks []domain.TemporaryUnlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlocks[ownerID] = append([]domain.TemporaryUnlock(nil), unlocks...)
	return nil
}

func (m *MemoryStore) ListOwners(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	for owner := range m.lists {
		seen[owner] = struct{}{}
	}
	for owner := range m.active {
		seen[owner] = struct{}{}
	}
	for owner := range m.history {
		seen[owner] = struct{}{}
	}
	for owner := range m.attempts {
		seen[owner] = struct{}{}
	}
	for owner, unlocks := range m.unlocks {
		if len(unlocks) > 0 {
			seen[owner] = struct{}{}
		}
	}
	owners := make([]string, 0, len(seen))
	for owner := range seen {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// --- domain.DaemonRegistry implementation ---

func (m *MemoryStore) Register(info domain.DaemonInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daemon = &info
	return nil
}

func (m *MemoryStore) UpdateHeartbeat(at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.daemon == nil {
		return errDaemonNotRegistered
	}
	m.daemon.LastHeartbeat = at
	return nil
}

func (m *MemoryStore) Get() (*domain.DaemonInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.daemon == nil {
		return nil, nil
	}
	out := *m.daemon
	return &out, nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daemon = nil
	return nil
}

var (
	_ domain.Store          = (*MemoryStore)(nil)
	_ domain.DaemonRegistry = (*MemoryStore)(nil)
)
