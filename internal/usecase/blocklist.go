// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
	"github.com/eliteGoblin/focusd/focus_guard/internal/unlock"
	"github.com/eliteGoblin/focusd/focus_guard/internal/urlmatch"
)

// AddOptions are the optional fields of a new block entry.
type AddOptions struct {
	Permanent bool
	Category  string
	Pattern   string // empty means DefaultPattern(url)
}

// ImportResult reports a bulk import. Errors name skipped items.
type ImportResult struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors,omitempty"`
}

// cachedMatch is a memoized first-match for a normalized URL.
// stamp is the list's LastUpdated when the match was computed.
type cachedMatch struct {
	entryID string // empty means no entry matched
	stamp   time.Time
}

// BlockListEngine owns each owner's block list and answers IsBlocked.
type BlockListEngine struct {
	store    domain.Store
	unlocks  *unlock.Store
	sessions domain.SessionState
	clock    domain.Clock
	cfg      BlockListConfig
	logger   *zap.Logger

	// mu serializes load-modify-save of block lists.
	mu sync.Mutex

	cacheMu  sync.Mutex
	caches   map[string]*lru.Cache[string, cachedMatch]
	attempts map[string]map[string]int
}

// NewBlockListEngine creates the engine and subscribes to unlock changes.
// sessions may be nil, in which case session-scoped entries never block.
func NewBlockListEngine(
	store domain.Store,
	unlocks *unlock.Store,
	sessions domain.SessionState,
	clock domain.Clock,
	cfg BlockListConfig,
	logger *zap.Logger,
) *BlockListEngine {
	e := &BlockListEngine{
		store:    store,
		unlocks:  unlocks,
		sessions: sessions,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		caches:   make(map[string]*lru.Cache[string, cachedMatch]),
		attempts: make(map[string]map[string]int),
	}
	unlocks.OnChange(e.forgetURL)
	return e
}

// Add validates url and appends a new entry to the owner's list.
func (e *BlockListEngine) Add(ctx context.Context, ownerID, rawURL string, opts AddOptions) (domain.BlockEntry, error) {
	normalized, err := urlmatch.Validate(rawURL)
	if err != nil {
		return domain.BlockEntry{}, err
	}

	var added domain.BlockEntry
	err = e.mutate(ctx, ownerID, "add block", func(list *domain.BlockList) error {
		if list.IndexOfURL(normalized) >= 0 {
			return domain.NewError(domain.KindDuplicate, "", "add block",
				"This URL is already in your block list")
		}
		if len(list.Entries) >= e.cfg.MaxItems {
			return domain.NewError(domain.KindCapacity, "", "add block",
				fmt.Sprintf("Block list is full. Maximum %d items allowed.", e.cfg.MaxItems))
		}
		added = e.newEntry(normalized, opts)
		list.Entries = append(list.Entries, added)
		return nil
	})
	if err != nil {
		return domain.BlockEntry{}, err
	}

	e.logger.Info("block added",
		zap.String("owner", ownerID),
		zap.String("url", added.NormalizedURL),
		zap.Bool("permanent", added.IsPermanent))
	return added, nil
}

// Remove deletes the entry with the given id.
func (e *BlockListEngine) Remove(ctx context.Context, ownerID, id string) error {
	err := e.mutate(ctx, ownerID, "remove block", func(list *domain.BlockList) error {
		i := list.IndexOf(id)
		if i < 0 {
			return errBlockNotFound("remove block")
		}
		list.Entries = append(list.Entries[:i], list.Entries[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}
	e.logger.Info("block removed", zap.String("owner", ownerID), zap.String("id", id))
	return nil
}

// TogglePermanent flips IsPermanent on the entry.
func (e *BlockListEngine) TogglePermanent(ctx context.Context, ownerID, id string) (domain.BlockEntry, error) {
	return e.updateEntry(ctx, ownerID, id, "toggle permanent", func(entry *domain.BlockEntry) {
		entry.IsPermanent = !entry.IsPermanent
	})
}

// UpdateCategory sets or clears (empty string) the entry's category.
func (e *BlockListEngine) UpdateCategory(ctx context.Context, ownerID, id, category string) (domain.BlockEntry, error) {
	return e.updateEntry(ctx, ownerID, id, "update category", func(entry *domain.BlockEntry) {
		entry.Category = strings.TrimSpace(category)
	})
}

// ClearAll removes every entry.
func (e *BlockListEngine) ClearAll(ctx context.Context, ownerID string) error {
	err := e.mutate(ctx, ownerID, "clear blocks", func(list *domain.BlockList) error {
		list.Entries = []domain.BlockEntry{}
		return nil
	})
	if err != nil {
		return err
	}
	e.logger.Info("block list cleared", zap.String("owner", ownerID))
	return nil
}

// Import adds entries in order. Items may carry a URL or the normalized form
// printed by List. Invalid and duplicate items are skipped and reported;
// importing stops once the list is full.
func (e *BlockListEngine) Import(ctx context.Context, ownerID string, entries []domain.BlockEntry) (ImportResult, error) {
	var result ImportResult
	err := e.mutate(ctx, ownerID, "import blocks", func(list *domain.BlockList) error {
		for _, item := range entries {
			normalized, err := urlmatch.ValidateStored(item.NormalizedURL)
			if err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("Invalid item %s: %s", item.NormalizedURL, err.Error()))
				continue
			}
			if list.IndexOfURL(normalized) >= 0 {
				result.Errors = append(result.Errors, fmt.Sprintf("Item %s already exists", normalized))
				continue
			}
			if len(list.Entries) >= e.cfg.MaxItems {
				result.Errors = append(result.Errors,
					fmt.Sprintf("Block list size limit reached (%d items)", e.cfg.MaxItems))
				break
			}

			entry := e.newEntry(normalized, AddOptions{
				Permanent: item.IsPermanent,
				Category:  item.Category,
				Pattern:   item.Pattern,
			})
			if item.ID != "" && list.IndexOf(item.ID) < 0 {
				entry.ID = item.ID
			}
			if !item.CreatedAt.IsZero() {
				entry.CreatedAt = item.CreatedAt
			}
			entry.LastAccessed = item.LastAccessed
			list.Entries = append(list.Entries, entry)
			result.Imported++
		}
		if result.Imported == 0 {
			return errNothingToSave
		}
		return nil
	})
	if err != nil && err != errNothingToSave {
		return ImportResult{}, err
	}

	e.logger.Info("blocks imported",
		zap.String("owner", ownerID),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", len(result.Errors)))
	return result, nil
}

// TouchAccess records that the entry was just accessed.
// Failures are logged, never surfaced.
func (e *BlockListEngine) TouchAccess(ctx context.Context, ownerID, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list, err := e.store.LoadBlockList(ctx, ownerID)
	if err != nil {
		e.logger.Warn("failed to load block list for access update",
			zap.String("owner", ownerID), zap.Error(err))
		return
	}
	i := list.IndexOf(id)
	if i < 0 {
		return
	}
	now := e.clock.Now()
	list.Entries[i].LastAccessed = &now
	// LastUpdated is left alone: access time does not affect matching.
	if err := e.store.SaveBlockList(ctx, *list); err != nil {
		e.logger.Warn("failed to save access time",
			zap.String("owner", ownerID), zap.String("id", id), zap.Error(err))
	}
}

// List returns all entries in insertion order.
func (e *BlockListEngine) List(ctx context.Context, ownerID string) ([]domain.BlockEntry, error) {
	list, err := e.load(ctx, ownerID, "list blocks")
	if err != nil {
		return nil, err
	}
	return list.Entries, nil
}

// Search returns entries whose URL or category contains query (case-insensitive).
func (e *BlockListEngine) Search(ctx context.Context, ownerID, query string) ([]domain.BlockEntry, error) {
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return []domain.BlockEntry{}, nil
	}
	return e.filter(ctx, ownerID, "search blocks", func(entry domain.BlockEntry) bool {
		return strings.Contains(strings.ToLower(entry.NormalizedURL), term) ||
			strings.Contains(strings.ToLower(entry.Category), term)
	})
}

// FilterByCategory returns entries in category, or uncategorized entries for "".
func (e *BlockListEngine) FilterByCategory(ctx context.Context, ownerID, category string) ([]domain.BlockEntry, error) {
	return e.filter(ctx, ownerID, "filter blocks", func(entry domain.BlockEntry) bool {
		return entry.Category == category
	})
}

// Categories returns the sorted set of categories in use.
func (e *BlockListEngine) Categories(ctx context.Context, ownerID string) ([]string, error) {
	list, err := e.load(ctx, ownerID, "list categories")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	out := []string{}
	for _, entry := range list.Entries {
		if entry.Category == "" {
			continue
		}
		if _, ok := seen[entry.Category]; ok {
			continue
		}
		seen[entry.Category] = struct{}{}
		out = append(out, entry.Category)
	}
	sort.Strings(out)
	return out, nil
}

// GetBlockedEntry returns the first entry matching url, or nil.
// Temporary unlocks and session state are not consulted.
func (e *BlockListEngine) GetBlockedEntry(ctx context.Context, ownerID, url string) (*domain.BlockEntry, error) {
	list, err := e.load(ctx, ownerID, "get blocked entry")
	if err != nil {
		return nil, err
	}
	return e.match(ownerID, list, url), nil
}

// IsBlocked decides whether url is blocked for owner right now.
// Never fails: any internal error yields a not-blocked result.
func (e *BlockListEngine) IsBlocked(ctx context.Context, ownerID, url string) domain.BlockCheckResult {
	notBlocked := domain.BlockCheckResult{Reason: domain.ReasonNone}
	if urlmatch.Normalize(url) == "" {
		blockChecksTotal.WithLabelValues("none").Inc()
		return notBlocked
	}

	if e.unlocks.IsUnlocked(ctx, ownerID, url) {
		blockChecksTotal.WithLabelValues("unlocked").Inc()
		return notBlocked
	}

	list, err := e.store.LoadBlockList(ctx, ownerID)
	if err != nil {
		e.logger.Warn("block check failed open",
			zap.String("owner", ownerID),
			zap.String("url", url),
			zap.Error(err))
		blockChecksTotal.WithLabelValues("error").Inc()
		return notBlocked
	}

	entry := e.match(ownerID, list, url)
	if entry == nil {
		blockChecksTotal.WithLabelValues("none").Inc()
		return notBlocked
	}

	if entry.IsPermanent {
		e.trackBlockedAttempt(ownerID, url)
		blockChecksTotal.WithLabelValues("permanent").Inc()
		return domain.BlockCheckResult{
			IsBlocked: true,
			Entry:     entry,
			Reason:    domain.ReasonPermanent,
			CanUnlock: true,
		}
	}

	sc := e.sessionContext(ctx, ownerID)
	if sc.HasActiveSession && !sc.IsOnBreak {
		e.trackBlockedAttempt(ownerID, url)
		blockChecksTotal.WithLabelValues("session").Inc()
		return domain.BlockCheckResult{
			IsBlocked: true,
			Entry:     entry,
			Reason:    domain.ReasonSession,
		}
	}

	blockChecksTotal.WithLabelValues("none").Inc()
	return domain.BlockCheckResult{Entry: entry, Reason: domain.ReasonNone}
}

// Stats aggregates the owner's list. Returns zeroes on error.
func (e *BlockListEngine) Stats(ctx context.Context, ownerID string) domain.BlockStats {
	list, err := e.store.LoadBlockList(ctx, ownerID)
	if err != nil {
		e.logger.Warn("block stats unavailable",
			zap.String("owner", ownerID),
			zap.Error(err))
		return domain.BlockStats{}
	}

	cutoff := e.clock.Now().Add(-e.cfg.RecentAccessWindow)
	var stats domain.BlockStats
	for _, entry := range list.Entries {
		stats.Total++
		if entry.IsPermanent {
			stats.Permanent++
		} else {
			stats.Temporary++
		}
		if entry.Category != "" {
			stats.Categorized++
		}
		if entry.LastAccessed != nil && entry.LastAccessed.After(cutoff) {
			stats.RecentlyAccessed++
		}
	}
	return stats
}

// BlockingContext summarizes session and list state. Returns zeroes on error.
func (e *BlockListEngine) BlockingContext(ctx context.Context, ownerID string) domain.BlockingContext {
	sc := e.sessionContext(ctx, ownerID)
	stats := e.Stats(ctx, ownerID)
	return domain.BlockingContext{
		HasActiveSession:     sc.HasActiveSession,
		SessionTimeRemaining: sc.Remaining,
		IsOnBreak:            sc.IsOnBreak,
		TotalBlocks:          stats.Total,
		PermanentBlocks:      stats.Permanent,
		SessionBlocks:        stats.Temporary,
	}
}

// BlockedAttempts returns per-URL counts of blocked checks since start or last clear.
func (e *BlockListEngine) BlockedAttempts(ownerID string) map[string]int {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	out := make(map[string]int, len(e.attempts[ownerID]))
	for url, n := range e.attempts[ownerID] {
		out[url] = n
	}
	return out
}

// ClearBlockedAttempts resets the owner's blocked-attempt counters.
func (e *BlockListEngine) ClearBlockedAttempts(ownerID string) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	delete(e.attempts, ownerID)
}

// MessageFor builds the blocked-page text for a check result.
func MessageFor(r domain.BlockCheckResult) domain.BlockingMessage {
	url := ""
	if r.Entry != nil {
		url = r.Entry.NormalizedURL
	}
	switch r.Reason {
	case domain.ReasonPermanent:
		return domain.BlockingMessage{
			Title:      "Site Permanently Blocked",
			Message:    url + " is permanently blocked. Complete a challenge to unlock it temporarily.",
			ActionText: "Take Challenge",
		}
	case domain.ReasonSession:
		return domain.BlockingMessage{
			Title:      "Focus Session Active",
			Message:    url + " is blocked during your focus session. Stay focused!",
			ActionText: "End Session",
		}
	default:
		return domain.BlockingMessage{
			Title:   "Access Denied",
			Message: "This site is currently blocked.",
		}
	}
}

func (e *BlockListEngine) newEntry(normalized string, opts AddOptions) domain.BlockEntry {
	pattern := strings.TrimSpace(opts.Pattern)
	if pattern == "" {
		pattern = urlmatch.DefaultPattern(normalized)
	}
	return domain.BlockEntry{
		ID:            uuid.NewString(),
		NormalizedURL: normalized,
		Pattern:       pattern,
		IsPermanent:   opts.Permanent,
		Category:      strings.TrimSpace(opts.Category),
		CreatedAt:     e.clock.Now(),
	}
}

// errNothingToSave aborts a mutation without saving or failing.
var errNothingToSave = &domain.Error{Kind: domain.KindInternal, Code: "nothing_to_save"}

// mutate loads the owner's list, applies fn and saves it with a fresh LastUpdated.
// Errors returned by fn abort the save and are returned as-is.
func (e *BlockListEngine) mutate(ctx context.Context, ownerID, op string, fn func(*domain.BlockList) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	list, err := e.load(ctx, ownerID, op)
	if err != nil {
		return err
	}
	if err := fn(list); err != nil {
		return err
	}
	list.LastUpdated = e.clock.Now()
	if err := e.store.SaveBlockList(ctx, *list); err != nil {
		return domain.AsStorage(op, err)
	}
	e.purgeCache(ownerID)
	return nil
}

func (e *BlockListEngine) updateEntry(
	ctx context.Context,
	ownerID, id, op string,
	fn func(*domain.BlockEntry),
) (domain.BlockEntry, error) {
	var updated domain.BlockEntry
	err := e.mutate(ctx, ownerID, op, func(list *domain.BlockList) error {
		i := list.IndexOf(id)
		if i < 0 {
			return errBlockNotFound(op)
		}
		fn(&list.Entries[i])
		updated = list.Entries[i]
		return nil
	})
	if err != nil {
		return domain.BlockEntry{}, err
	}
	e.logger.Info("block updated",
		zap.String("owner", ownerID),
		zap.String("id", id),
		zap.String("op", op))
	return updated, nil
}

func (e *BlockListEngine) load(ctx context.Context, ownerID, op string) (*domain.BlockList, error) {
	list, err := e.store.LoadBlockList(ctx, ownerID)
	if err != nil {
		return nil, domain.AsStorage(op, err)
	}
	if list.OwnerID == "" {
		list.OwnerID = ownerID
	}
	if list.Entries == nil {
		list.Entries = []domain.BlockEntry{}
	}
	return list, nil
}

func (e *BlockListEngine) filter(
	ctx context.Context,
	ownerID, op string,
	keep func(domain.BlockEntry) bool,
) ([]domain.BlockEntry, error) {
	list, err := e.load(ctx, ownerID, op)
	if err != nil {
		return nil, err
	}
	out := []domain.BlockEntry{}
	for _, entry := range list.Entries {
		if keep(entry) {
			out = append(out, entry)
		}
	}
	return out, nil
}

// match returns the first entry (insertion order) matching url, using the cache.
func (e *BlockListEngine) match(ownerID string, list *domain.BlockList, url string) *domain.BlockEntry {
	key := urlmatch.Normalize(url)
	cache := e.cacheFor(ownerID)

	if cache != nil {
		if hit, ok := cache.Get(key); ok && hit.stamp.Equal(list.LastUpdated) {
			if hit.entryID == "" {
				matchCacheTotal.WithLabelValues("hit").Inc()
				return nil
			}
			if i := list.IndexOf(hit.entryID); i >= 0 {
				matchCacheTotal.WithLabelValues("hit").Inc()
				entry := list.Entries[i]
				return &entry
			}
		}
	}
	matchCacheTotal.WithLabelValues("miss").Inc()

	var found *domain.BlockEntry
	for i := range list.Entries {
		if urlmatch.Matches(url, list.Entries[i]) {
			entry := list.Entries[i]
			found = &entry
			break
		}
	}

	if cache != nil {
		cm := cachedMatch{stamp: list.LastUpdated}
		if found != nil {
			cm.entryID = found.ID
		}
		cache.Add(key, cm)
	}
	return found
}

func (e *BlockListEngine) cacheFor(ownerID string) *lru.Cache[string, cachedMatch] {
	if e.cfg.MatchCacheSize <= 0 {
		return nil
	}
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	if c, ok := e.caches[ownerID]; ok {
		return c
	}
	c, err := lru.New[string, cachedMatch](e.cfg.MatchCacheSize)
	if err != nil {
		e.logger.Warn("match cache disabled", zap.Error(err))
		return nil
	}
	e.caches[ownerID] = c
	return c
}

func (e *BlockListEngine) purgeCache(ownerID string) {
	e.cacheMu.Lock()
	c := e.caches[ownerID]
	e.cacheMu.Unlock()
	if c != nil {
		c.Purge()
		e.logger.Debug("match cache purged", zap.String("owner", ownerID))
	}
}

// forgetURL drops one cached match; registered as an unlock listener.
func (e *BlockListEngine) forgetURL(ownerID, normalizedURL string) {
	e.cacheMu.Lock()
	c := e.caches[ownerID]
	e.cacheMu.Unlock()
	if c != nil {
		c.Remove(normalizedURL)
	}
}

func (e *BlockListEngine) sessionContext(ctx context.Context, ownerID string) domain.SessionContext {
	if e.sessions == nil {
		return domain.SessionContext{}
	}
	sc, err := e.sessions.SessionContext(ctx, ownerID)
	if err != nil {
		e.logger.Warn("session state unavailable, treating as no session",
			zap.String("owner", ownerID),
			zap.Error(err))
		return domain.SessionContext{}
	}
	return sc
}

func (e *BlockListEngine) trackBlockedAttempt(ownerID, url string) {
	key := urlmatch.Normalize(url)
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if e.attempts[ownerID] == nil {
		e.attempts[ownerID] = make(map[string]int)
	}
	e.attempts[ownerID][key]++
}

func errBlockNotFound(op string) error {
	return domain.NewNotFoundError(op, "Block item not found")
}
