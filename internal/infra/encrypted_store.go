package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	storeDBName = "focusguard.db"
)

var errDaemonNotRegistered = errors.New("daemon not registered")

// EncryptedStore implements domain.Store and domain.DaemonRegistry
// using a SQLCipher encrypted SQLite database. Rows carry the JSON encoding
// of the domain value plus the columns needed for lookups and ordering.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) an encrypted database in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_busy_timeout=5000", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}
	// One connection: SQLite has a single writer and transactions must not interleave.
	db.SetMaxOpenConns(1)

	// A wrong key only shows up on first read.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStore{db: db, dbPath: dbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// createTables creates the schema if it doesn't exist.
func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS block_lists (
		owner_id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		last_updated INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS active_sessions (
		owner_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session_history (
		session_id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		ended_at INTEGER NOT NULL,
		data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_owner ON session_history (owner_id, ended_at);

	CREATE TABLE IF NOT EXISTS challenge_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id TEXT NOT NULL,
		attempted_at INTEGER NOT NULL,
		data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_owner ON challenge_attempts (owner_id, attempted_at);

	CREATE TABLE IF NOT EXISTS issued_challenges (
		owner_id TEXT NOT NULL,
		challenge_id TEXT NOT NULL,
		issued_at INTEGER NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (owner_id, challenge_id)
	);

	CREATE TABLE IF NOT EXISTS temporary_unlocks (
		owner_id TEXT NOT NULL,
		url TEXT NOT NULL,
		unlock_until INTEGER NOT NULL,
		PRIMARY KEY (owner_id, url)
	);

	CREATE TABLE IF NOT EXISTS owner_meta (
		owner_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (owner_id, key)
	);

	CREATE TABLE IF NOT EXISTS daemon_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		pid INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		last_heartbeat INTEGER NOT NULL,
		app_version TEXT DEFAULT ''
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- domain.Store implementation ---

// LoadBlockList returns the saved list, or an empty one.
func (s *EncryptedStore) LoadBlockList(ctx context.Context, ownerID string) (*domain.BlockList, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM block_lists WHERE owner_id = ?`, ownerID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.BlockList{OwnerID: ownerID, Entries: []domain.BlockEntry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load block list: %w", err)
	}
	var list domain.BlockList
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, fmt.Errorf("failed to decode block list: %w", err)
	}
	return &list, nil
}

// SaveBlockList replaces the owner's list.
func (s *EncryptedStore) SaveBlockList(ctx context.Context, list domain.BlockList) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to encode block list: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO block_lists (owner_id, data, last_updated)
		VALUES (?, ?, ?)`,
		list.OwnerID, string(data), list.LastUpdated.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save block list: %w", err)
	}
	return nil
}

// LoadActiveSession returns the owner's active session, or nil.
func (s *EncryptedStore) LoadActiveSession(ctx context.Context, ownerID string) (*domain.FocusSession, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM active_sessions WHERE owner_id = ?`, ownerID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}
	var session domain.FocusSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to decode active session: %w", err)
	}
	return &session, nil
}

// CreateActiveSession inserts the session unless the owner already has one.
func (s *EncryptedStore) CreateActiveSession(ctx context.Context, session domain.FocusSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO active_sessions (owner_id, session_id, data)
		VALUES (?, ?, ?)`,
		session.OwnerID, session.ID, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrAlreadyActive
	}
	return nil
}

// SaveActiveSession overwrites the active session with the same id.
func (s *EncryptedStore) SaveActiveSession(ctx context.Context, session domain.FocusSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE active_sessions SET data = ? WHERE owner_id = ? AND session_id = ?`,
		string(data), session.OwnerID, session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotActive
	}
	return nil
}

// ArchiveSession moves the session from active to history in one transaction.
func (s *EncryptedStore) ArchiveSession(ctx context.Context, session domain.FocusSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM active_sessions WHERE owner_id = ? AND session_id = ?`,
		session.OwnerID, session.ID)
	if err != nil {
		return fmt.Errorf("failed to clear active session: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrNotActive
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_history (session_id, owner_id, ended_at, data)
		VALUES (?, ?, ?, ?)`,
		session.ID, session.OwnerID, session.EndTime.UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive: %w", err)
	}
	return nil
}

// LoadHistory returns ended sessions, newest first.
func (s *EncryptedStore) LoadHistory(ctx context.Context, ownerID string, limit, offset int) ([]domain.FocusSession, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM session_history
		WHERE owner_id = ?
		ORDER BY ended_at DESC, session_id DESC
		LIMIT ? OFFSET ?`,
		ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	out := []domain.FocusSession{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var session domain.FocusSession
		if err := json.Unmarshal([]byte(data), &session); err != nil {
			return nil, fmt.Errorf("failed to decode session: %w", err)
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

// AppendChallengeAttempt inserts the attempt and keeps only the newest retain rows.
func (s *EncryptedStore) AppendChallengeAttempt(ctx context.Context, attempt domain.ChallengeAttempt, retain int) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("failed to encode attempt: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO challenge_attempts (owner_id, attempted_at, data) VALUES (?, ?, ?)`,
		attempt.OwnerID, attempt.AttemptedAt.UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("failed to append attempt: %w", err)
	}

	if retain > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM challenge_attempts
			WHERE owner_id = ? AND id NOT IN (
				SELECT id FROM challenge_attempts WHERE owner_id = ? ORDER BY id DESC LIMIT ?
			)`,
			attempt.OwnerID, attempt.OwnerID, retain)
		if err != nil {
			return fmt.Errorf("failed to trim attempts: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit attempt: %w", err)
	}
	return nil
}

// LoadChallengeAttempts returns attempts at or after since, oldest first.
func (s *EncryptedStore) LoadChallengeAttempts(ctx context.Context, ownerID string, since time.Time) ([]domain.ChallengeAttempt, error) {
	var sinceNano int64
	if !since.IsZero() {
		sinceNano = since.UnixNano()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM challenge_attempts
		WHERE owner_id = ? AND attempted_at >= ?
		ORDER BY attempted_at ASC, id ASC`,
		ownerID, sinceNano)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempts: %w", err)
	}
	defer rows.Close()

	out := []domain.ChallengeAttempt{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var attempt domain.ChallengeAttempt
		if err := json.Unmarshal([]byte(data), &attempt); err != nil {
			return nil, fmt.Errorf("failed to decode attempt: %w", err)
		}
		out = append(out, attempt)
	}
	return out, rows.Err()
}

// PruneChallengeAttempts deletes attempts older than before.
func (s *EncryptedStore) PruneChallengeAttempts(ctx context.Context, ownerID string, before time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM challenge_attempts WHERE owner_id = ? AND attempted_at < ?`,
		ownerID, before.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to prune attempts: %w", err)
	}
	return nil
}

// SaveIssuedChallenge stores a pending challenge and advances last_issued_at.
func (s *EncryptedStore) SaveIssuedChallenge(ctx context.Context, issued domain.IssuedChallenge) error {
	data, err := json.Marshal(issued)
	if err != nil {
		return fmt.Errorf("failed to encode challenge: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO issued_challenges (owner_id, challenge_id, issued_at, data)
		VALUES (?, ?, ?, ?)`,
		issued.OwnerID, issued.Challenge.ID, issued.IssuedAt.UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO owner_meta (owner_id, key, value) VALUES (?, 'last_issued_at', ?)`,
		issued.OwnerID, strconv.FormatInt(issued.IssuedAt.UnixNano(), 10))
	if err != nil {
		return fmt.Errorf("failed to save last issue time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit challenge: %w", err)
	}
	return nil
}

// LoadIssuedChallenge returns a pending challenge, or nil.
func (s *EncryptedStore) LoadIssuedChallenge(ctx context.Context, ownerID, challengeID string) (*domain.IssuedChallenge, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM issued_challenges WHERE owner_id = ? AND challenge_id = ?`,
		ownerID, challengeID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	var issued domain.IssuedChallenge
	if err := json.Unmarshal([]byte(data), &issued); err != nil {
		return nil, fmt.Errorf("failed to decode challenge: %w", err)
	}
	return &issued, nil
}

// DeleteIssuedChallenge forgets a pending challenge.
func (s *EncryptedStore) DeleteIssuedChallenge(ctx context.Context, ownerID, challengeID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM issued_challenges WHERE owner_id = ? AND challenge_id = ?`,
		ownerID, challengeID)
	if err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	return nil
}

// LastIssuedAt returns the last issue time, or zero.
func (s *EncryptedStore) LastIssuedAt(ctx context.Context, ownerID string) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM owner_meta WHERE owner_id = ? AND key = 'last_issued_at'`,
		ownerID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load last issue time: %w", err)
	}
	nanos, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last issue time: %w", err)
	}
	return time.Unix(0, nanos), nil
}

// LoadUnlocks returns the saved unlocks ordered by URL.
func (s *EncryptedStore) LoadUnlocks(ctx context.Context, ownerID string) ([]domain.TemporaryUnlock, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, unlock_until FROM temporary_unlocks WHERE owner_id = ? ORDER BY url`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unlocks: %w", err)
	}
	defer rows.Close()

	out := []domain.TemporaryUnlock{}
	for rows.Next() {
		var url string
		var until int64
		if err := rows.Scan(&url, &until); err != nil {
			return nil, err
		}
		out = append(out, domain.TemporaryUnlock{NormalizedURL: url, UnlockUntil: time.Unix(0, until)})
	}
	return out, rows.Err()
}

// SaveUnlocks replaces the owner's unlock snapshot.
func (s *EncryptedStore) SaveUnlocks(ctx context.Context, ownerID string, unlocks []domain.TemporaryUnlock) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM temporary_unlocks WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("failed to clear unlocks: %w", err)
	}
	for _, u := range unlocks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO temporary_unlocks (owner_id, url, unlock_until) VALUES (?, ?, ?)`,
			ownerID, u.NormalizedURL, u.UnlockUntil.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to save unlock: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit unlocks: %w", err)
	}
	return nil
}

// ListOwners returns the distinct owners across the per-owner tables.
func (s *EncryptedStore) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id FROM block_lists
		UNION SELECT owner_id FROM active_sessions
		UNION SELECT owner_id FROM session_history
		UNION SELECT owner_id FROM challenge_attempts
		UNION SELECT owner_id FROM temporary_unlocks
		ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer rows.Close()

	owners := []string{}
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

// --- domain.DaemonRegistry implementation ---

// Register saves the running daemon's PID and start time.
func (s *EncryptedStore) Register(info domain.DaemonInfo) error {
	heartbeat := info.LastHeartbeat
	if heartbeat.IsZero() {
		heartbeat = info.StartedAt
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO daemon_state (id, pid, started_at, last_heartbeat, app_version)
		VALUES (1, ?, ?, ?, ?)`,
		info.PID, info.StartedAt.Unix(), heartbeat.Unix(), info.AppVersion,
	)
	return err
}

// UpdateHeartbeat updates timestamp for liveness check.
func (s *EncryptedStore) UpdateHeartbeat(at time.Time) error {
	result, err := s.db.Exec(`UPDATE daemon_state SET last_heartbeat = ? WHERE id = 1`, at.Unix())
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errDaemonNotRegistered
	}
	return nil
}

// Get returns the registered daemon, or nil.
func (s *EncryptedStore) Get() (*domain.DaemonInfo, error) {
	var info domain.DaemonInfo
	var started, heartbeat int64
	err := s.db.QueryRow(`SELECT pid, started_at, last_heartbeat, app_version FROM daemon_state WHERE id = 1`).
		Scan(&info.PID, &started, &heartbeat, &info.AppVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	info.StartedAt = time.Unix(started, 0)
	info.LastHeartbeat = time.Unix(heartbeat, 0)
	return &info, nil
}

// Clear removes the daemon registration (for clean shutdown).
func (s *EncryptedStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM daemon_state`)
	return err
}

// Path returns the database file path.
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure EncryptedStore implements both interfaces.
var (
	_ domain.Store          = (*EncryptedStore)(nil)
	_ domain.DaemonRegistry = (*EncryptedStore)(nil)
)
