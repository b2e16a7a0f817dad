package auth

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockKeyRepo struct {
	byHash map[string]*APIKeyInfo
	err    error
}

func (m *mockKeyRepo) FindByHash(_ context.Context, hash string) (*APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	info, ok := m.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return info, nil
}

func (m *mockKeyRepo) List(_ context.Context) ([]APIKeyInfo, error) {
	return nil, nil
}

func TestVerifier_Verify(t *testing.T) {
	pepper := []byte("pepper")
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)

	const raw = "mk_live_abcdef123456"
	hash := Hash(raw, pepper)

	tests := []struct {
		name    string
		info    *APIKeyInfo
		repoErr error
		key     string
		wantErr error
	}{
		{
			name: "active key verifies",
			info: &APIKeyInfo{ID: "k1", KeyHash: hash, Active: true, Scopes: []string{"receipts:read"}},
			key:  raw,
		},
		{
			name: "key with future expiry verifies",
			info: &APIKeyInfo{ID: "k1", KeyHash: hash, Active: true, ExpiresAt: &future},
			key:  raw,
		},
		{
			name:    "unknown key is invalid",
			key:     "mk_live_other",
			wantErr: ErrInvalidKey,
		},
		{
			name:    "empty key is invalid",
			key:     "",
			wantErr: ErrInvalidKey,
		},
		{
			name:    "inactive key is invalid",
			info:    &APIKeyInfo{ID: "k1", KeyHash: hash, Active: false},
			key:     raw,
			wantErr: ErrInvalidKey,
		},
		{
			name:    "expired key",
			info:    &APIKeyInfo{ID: "k1", KeyHash: hash, Active: true, ExpiresAt: &past},
			key:     raw,
			wantErr: ErrExpired,
		},
		{
			name:    "stored hash mismatch is invalid",
			info:    &APIKeyInfo{ID: "k1", KeyHash: "not-hex", Active: true},
			key:     raw,
			wantErr: ErrInvalidKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockKeyRepo{byHash: map[string]*APIKeyInfo{}}
			if tt.info != nil {
				repo.byHash[hash] = tt.info
			}
			v := NewVerifier(repo, pepper)
			v.now = func() time.Time { return fixedNow }

			info, err := v.Verify(context.Background(), tt.key)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, info)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "k1", info.ID)
		})
	}
}

func TestVerifier_RepositoryError(t *testing.T) {
	v := NewVerifier(&mockKeyRepo{err: errors.New("connection reset")}, nil)

	_, err := v.Verify(context.Background(), "mk_test_x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidKey)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestHasScope(t *testing.T) {
	k := &APIKeyInfo{Scopes: []string{"receipts:read"}}
	assert.True(t, k.HasScope("receipts:read"))
	assert.False(t, k.HasScope("receipts:write"))

	admin := &APIKeyInfo{Scopes: []string{"admin:all"}}
	assert.True(t, admin.HasScope("claims:write"))
}

func TestDisplayPrefix(t *testing.T) {
	assert.Equal(t, "mk_live_abcd", DisplayPrefix("mk_live_abcdef123456"))
	assert.Equal(t, "mk_test_ab", DisplayPrefix("mk_test_ab"))
	assert.Equal(t, "sk-1", DisplayPrefix("sk-12345"))
	assert.Equal(t, "abc", DisplayPrefix("abc"))
}
