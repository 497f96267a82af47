package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// KeyPrefix marks merchant API keys so they are recognizable in logs and secret scanners
const KeyPrefix = "pos_"

const keyBytes = 32

var (
	// ErrCredentialExists is returned when a tenant already holds a live key.
	// The raw key is never retained, so it cannot be shown again; rotate instead.
	ErrCredentialExists = errors.New("credential already issued")
	// ErrNoCredential is returned when rotating or revoking a tenant without a key
	ErrNoCredential = errors.New("no credential issued")
)

// IssuedKey is returned exactly once, at issuance
type IssuedKey struct {
	RawKey   string    `json:"apiKey"`
	Prefix   string    `json:"apiKeyPrefix"`
	IssuedAt time.Time `json:"issuedAt"`
}

// CredentialStore persists key digests. Every method must be a single atomic
// statement at the storage layer.
type CredentialStore interface {
	// SetKeyIfAbsent stores the digest only if the tenant has none; false means one exists.
	SetKeyIfAbsent(ctx context.Context, tenantPK uint, hash, prefix string, at time.Time) (bool, error)
	// ReplaceKey swaps the digest of a tenant that has one; false means none exists.
	ReplaceKey(ctx context.Context, tenantPK uint, hash, prefix string, at time.Time) (bool, error)
	// ClearKey removes the digest; false means none existed.
	ClearKey(ctx context.Context, tenantPK uint) (bool, error)
}

// CredentialService generates, hashes and verifies merchant API keys
type CredentialService struct {
	store CredentialStore
	now   func() time.Time
}

// NewCredentialService creates a service persisting digests in store
func NewCredentialService(store CredentialStore) *CredentialService {
	return &CredentialService{store: store, now: time.Now}
}

// Issue creates the tenant's first key. A concurrent or repeated call for a tenant
// that already holds a key gets ErrCredentialExists and no second key is created.
func (s *CredentialService) Issue(ctx context.Context, tenantPK uint) (*IssuedKey, error) {
	raw, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	at := s.now().UTC()

	ok, err := s.store.SetKeyIfAbsent(ctx, tenantPK, HashKey(raw), DisplayPrefix(raw), at)
	if err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}
	if !ok {
		return nil, ErrCredentialExists
	}
	return &IssuedKey{RawKey: raw, Prefix: DisplayPrefix(raw), IssuedAt: at}, nil
}

// Rotate replaces the tenant's key; the old key stops verifying immediately.
func (s *CredentialService) Rotate(ctx context.Context, tenantPK uint) (*IssuedKey, error) {
	raw, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	at := s.now().UTC()

	ok, err := s.store.ReplaceKey(ctx, tenantPK, HashKey(raw), DisplayPrefix(raw), at)
	if err != nil {
		return nil, fmt.Errorf("rotate credential: %w", err)
	}
	if !ok {
		return nil, ErrNoCredential
	}
	return &IssuedKey{RawKey: raw, Prefix: DisplayPrefix(raw), IssuedAt: at}, nil
}

// Revoke removes the tenant's key
func (s *CredentialService) Revoke(ctx context.Context, tenantPK uint) error {
	ok, err := s.store.ClearKey(ctx, tenantPK)
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	if !ok {
		return ErrNoCredential
	}
	return nil
}

// GenerateKey returns a new raw key: KeyPrefix followed by 64 hex characters
func GenerateKey() (string, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(b), nil
}

// HashKey is the one-way digest stored for a raw key
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// VerifyKey recomputes the digest of raw and compares it with storedHash in constant time.
// An empty stored hash never verifies.
func VerifyKey(raw, storedHash string) bool {
	computed := HashKey(raw)
	if storedHash == "" {
		// keep the work identical to a real comparison
		subtle.ConstantTimeCompare([]byte(computed), []byte(computed))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(storedHash))) == 1
}

// DisplayPrefix is the non-secret hint shown in place of the key ("pos_1a2b")
func DisplayPrefix(raw string) string {
	if len(raw) <= len(KeyPrefix)+4 {
		return raw
	}
	return raw[:len(KeyPrefix)+4]
}
