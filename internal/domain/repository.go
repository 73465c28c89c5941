package domain

import (
	"context"
	"time"
)

// Clock supplies wall-clock time. Injected so expiry and cooldown are testable.
type Clock interface {
	Now() time.Time
}

// Store is the persistence collaborator. Every method is fallible and
// callers must not assume synchronous durability.
// Implementations: SQLCipher database (infra.EncryptedStore), in-memory (infra.MemoryStore).
type Store interface {
	// LoadBlockList returns the owner's list, or an empty list if none was saved.
	LoadBlockList(ctx context.Context, ownerID string) (*BlockList, error)

	// SaveBlockList replaces the owner's list.
	SaveBlockList(ctx context.Context, list BlockList) error

	// LoadActiveSession returns the owner's active session, or nil.
	LoadActiveSession(ctx context.Context, ownerID string) (*FocusSession, error)

	// CreateActiveSession stores a new active session only if the owner has none.
	// Returns ErrAlreadyActive otherwise (compare-and-swap).
	CreateActiveSession(ctx context.Context, session FocusSession) error

	// SaveActiveSession overwrites the owner's active session.
	SaveActiveSession(ctx context.Context, session FocusSession) error

	// ArchiveSession removes the active session and appends it to history atomically.
	ArchiveSession(ctx context.Context, session FocusSession) error

	// LoadHistory returns ended sessions, newest first.
	LoadHistory(ctx context.Context, ownerID string, limit, offset int) ([]FocusSession, error)

	// AppendChallengeAttempt adds one entry to the attempt log and trims it to retain entries.
	AppendChallengeAttempt(ctx context.Context, attempt ChallengeAttempt, retain int) error

	// LoadChallengeAttempts returns attempts at or after since, oldest first.
	LoadChallengeAttempts(ctx context.Context, ownerID string, since time.Time) ([]ChallengeAttempt, error)

	// PruneChallengeAttempts deletes attempts older than before.
	PruneChallengeAttempts(ctx context.Context, ownerID string, before time.Time) error

	// SaveIssuedChallenge remembers a challenge handed out to an owner and
	// advances LastIssuedAt to its IssuedAt.
	SaveIssuedChallenge(ctx context.Context, issued IssuedChallenge) error

	// LoadIssuedChallenge returns an issued challenge, or nil if unknown.
	LoadIssuedChallenge(ctx context.Context, ownerID, challengeID string) (*IssuedChallenge, error)

	// DeleteIssuedChallenge forgets an issued challenge.
	DeleteIssuedChallenge(ctx context.Context, ownerID, challengeID string) error

	// LastIssuedAt returns when the owner was last issued a challenge (zero if never).
	LastIssuedAt(ctx context.Context, ownerID string) (time.Time, error)

	// LoadUnlocks returns the saved temporary unlocks for an owner.
	LoadUnlocks(ctx context.Context, ownerID string) ([]TemporaryUnlock, error)

	// SaveUnlocks replaces the saved temporary unlocks for an owner.
	SaveUnlocks(ctx context.Context, ownerID string, unlocks []TemporaryUnlock) error

	// ListOwners returns every owner with saved block lists, sessions,
	// attempts or unlocks, sorted.
	ListOwners(ctx context.Context) ([]string, error)

	// Close releases resources (e.g., database connection).
	Close() error
}

// DaemonRegistry records the running scheduler daemon for status checks.
type DaemonRegistry interface {
	// Register saves the daemon's PID and start time.
	Register(info DaemonInfo) error

	// UpdateHeartbeat updates timestamp for liveness check.
	UpdateHeartbeat(at time.Time) error

	// Get returns the registered daemon, or nil.
	Get() (*DaemonInfo, error)

	// Clear removes the registration (on clean shutdown).
	Clear() error
}

// ProcessManager handles OS process queries.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// KeyProvider abstracts the source of the database encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// SessionState exposes the session facts the block-list engine needs.
type SessionState interface {
	SessionContext(ctx context.Context, ownerID string) (SessionContext, error)
}
