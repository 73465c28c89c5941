package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
)

// RegistryFileName is the registration file written under the data directory.
const RegistryFileName = "daemon.json"

// FileRegistry implements domain.DaemonRegistry with a JSON file.
// The memory store driver uses it so status works across processes.
type FileRegistry struct {
	path string
}

// NewFileRegistry creates a registry backed by path.
func NewFileRegistry(path string) *FileRegistry {
	return &FileRegistry{path: path}
}

// Path returns the registration file path.
func (r *FileRegistry) Path() string {
	return r.path
}

// Register saves the daemon's PID and start time.
func (r *FileRegistry) Register(info domain.DaemonInfo) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	// Two schedulers starting together must not interleave writes.
	lockFile, err := os.OpenFile(r.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()
	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	if info.LastHeartbeat.IsZero() {
		info.LastHeartbeat = info.StartedAt
	}
	return r.atomicWrite(info)
}

// UpdateHeartbeat updates timestamp for liveness check.
func (r *FileRegistry) UpdateHeartbeat(at time.Time) error {
	info, err := r.Get()
	if err != nil {
		return err
	}
	if info == nil {
		return errDaemonNotRegistered
	}
	info.LastHeartbeat = at
	return r.atomicWrite(*info)
}

// Get returns the registered daemon, or nil when none is registered.
func (r *FileRegistry) Get() (*domain.DaemonInfo, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	var info domain.DaemonInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to decode registry: %w", err)
	}
	return &info, nil
}

// Clear removes the registry file. Clearing an empty registry is not an error.
func (r *FileRegistry) Clear() error {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear registry: %w", err)
	}
	return nil
}

// atomicWrite writes registry to file atomically (write + rename).
func (r *FileRegistry) atomicWrite(info domain.DaemonInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	// Write to temp file first (unique per process to avoid race)
	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write registry: %w", err)
	}
	return nil
}

var _ domain.DaemonRegistry = (*FileRegistry)(nil)
