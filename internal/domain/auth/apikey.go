package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned by repositories when no key matches.
	ErrNotFound = errors.New("api key not found")
	// ErrInvalidKey is returned by Verify for unknown, inactive or tampered keys.
	ErrInvalidKey = errors.New("invalid api key")
	// ErrExpired is returned by Verify for keys past their expiry.
	ErrExpired = errors.New("api key expired")
)

// Key prefixes issued by the application.
const (
	LivePrefix = "mk_live_"
	TestPrefix = "mk_test_"
)

// APIKeyInfo holds the identity and permission data of a stored API key.
type APIKeyInfo struct {
	ID        string
	UserID    string
	KeyHash   string
	Prefix    string
	Name      string
	Scopes    []string
	Active    bool
	ExpiresAt *time.Time
}

// HasScope reports whether the key grants scope. "admin:all" grants every scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope) || slices.Contains(k.Scopes, "admin:all")
}

// Repository provides lookup and listing of API keys.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
	List(ctx context.Context) ([]APIKeyInfo, error)
}

// Hash returns the hex HMAC-SHA256 of raw keyed by pepper.
func Hash(raw string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// DisplayPrefix returns the part of a raw key that is safe to print.
func DisplayPrefix(raw string) string {
	for _, p := range []string{LivePrefix, TestPrefix} {
		if strings.HasPrefix(raw, p) {
			rest := raw[len(p):]
			if len(rest) > 4 {
				rest = rest[:4]
			}
			return p + rest
		}
	}
	if len(raw) > 4 {
		return raw[:4]
	}
	return raw
}

// Verifier authenticates raw API keys against a Repository.
type Verifier struct {
	keys   Repository
	pepper []byte
	now    func() time.Time
}

// NewVerifier creates a Verifier with the given repository and HMAC pepper.
func NewVerifier(keys Repository, pepper []byte) *Verifier {
	return &Verifier{keys: keys, pepper: pepper, now: time.Now}
}

// Verify hashes raw, looks it up and compares the stored hash in constant
// time. Inactive and expired keys are rejected.
func (v *Verifier) Verify(ctx context.Context, raw string) (*APIKeyInfo, error) {
	if raw == "" {
		return nil, ErrInvalidKey
	}

	mac := hmac.New(sha256.New, v.pepper)
	mac.Write([]byte(raw))
	hash := mac.Sum(nil)

	info, err := v.keys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, errors.Wrap(err, "lookup api key")
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, ErrInvalidKey
	}
	if !info.Active {
		return nil, ErrInvalidKey
	}
	if info.ExpiresAt != nil && v.now().After(*info.ExpiresAt) {
		return nil, ErrExpired
	}

	return info, nil
}
