package infra

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
)

const (
	keyFileName = ".focusguard.key"
	keySize     = 32 // 256-bit AES key

	// KeyEnvVar overrides the key file when set (base64, 32 bytes).
	KeyEnvVar = "FOCUSGUARD_DB_KEY"
)

// FileKeyProvider implements domain.KeyProvider using a local file
// stored next to the database with 0600 permissions.
type FileKeyProvider struct {
	keyPath string
}

// NewFileKeyProvider creates a FileKeyProvider for the given data directory.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{
		keyPath: filepath.Join(dataDir, keyFileName),
	}
}

// GetKey reads the encryption key from the key file.
func (p *FileKeyProvider) GetKey() ([]byte, error) {
	encoded, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return decodeKey(string(encoded))
}

// StoreKey writes the encryption key to the key file with restricted permissions.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(p.keyPath, []byte(encoded), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// KeyExists checks if the key file exists.
func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.keyPath)
	return err == nil
}

// EnvKeyProvider reads the key from an environment variable. It is read-only.
type EnvKeyProvider struct {
	name   string
	lookup func(string) (string, bool)
}

// NewEnvKeyProvider creates a provider reading the named variable.
func NewEnvKeyProvider(name string) *EnvKeyProvider {
	return &EnvKeyProvider{name: name, lookup: os.LookupEnv}
}

// GetKey decodes the variable's value.
func (p *EnvKeyProvider) GetKey() ([]byte, error) {
	v, ok := p.lookup(p.name)
	if !ok {
		return nil, fmt.Errorf("environment variable %s is not set", p.name)
	}
	return decodeKey(v)
}

// StoreKey always fails: environment keys are managed outside the process.
func (p *EnvKeyProvider) StoreKey([]byte) error {
	return fmt.Errorf("cannot store key in environment variable %s", p.name)
}

// KeyExists reports whether the variable is set and non-empty.
func (p *EnvKeyProvider) KeyExists() bool {
	v, ok := p.lookup(p.name)
	return ok && strings.TrimSpace(v) != ""
}

// ResolveKeyProvider prefers the environment key when it is set.
func ResolveKeyProvider(dataDir string) domain.KeyProvider {
	if env := NewEnvKeyProvider(KeyEnvVar); env.KeyExists() {
		return env
	}
	return NewFileKeyProvider(dataDir)
}

func decodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	return key, nil
}

// GenerateKey creates a new random 256-bit encryption key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}

// EnsureKey generates and stores a key if one doesn't exist.
// Returns the key (existing or newly generated).
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Ensure both providers implement domain.KeyProvider.
var (
	_ domain.KeyProvider = (*FileKeyProvider)(nil)
	_ domain.KeyProvider = (*EnvKeyProvider)(nil)
)
