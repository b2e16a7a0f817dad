package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/mataresit-ops/internal/domain/auth"
)

const (
	apiKeyColumns = `id, COALESCE(user_id::text, ''), key_hash, key_prefix, name, scopes, is_active, expires_at`

	getAPIKeyByHashSQL = `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`

	listAPIKeysSQL = `SELECT ` + apiKeyColumns + ` FROM api_keys ORDER BY created_at DESC, id`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, user_id, key_hash, key_prefix, name, scopes, is_active, expires_at)
	VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		key_hash = EXCLUDED.key_hash,
		key_prefix = EXCLUDED.key_prefix,
		name = EXCLUDED.name,
		scopes = EXCLUDED.scopes,
		is_active = EXCLUDED.is_active,
		expires_at = EXCLUDED.expires_at`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an API key by its HMAC-SHA256 hash, active or not.
// Returns auth.ErrNotFound when no matching key exists.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, err := scanAPIKey(r.pool.QueryRow(ctx, getAPIKeyByHashSQL, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	return &info, nil
}

// List returns all API keys, newest first.
func (r *APIKeyRepository) List(ctx context.Context) ([]auth.APIKeyInfo, error) {
	rows, err := r.pool.Query(ctx, listAPIKeysSQL)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (auth.APIKeyInfo, error) {
		return scanAPIKey(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning api keys: %w", err)
	}
	return out, nil
}

// Upsert stores an API key. Used for seeding.
func (r *APIKeyRepository) Upsert(ctx context.Context, k auth.APIKeyInfo) error {
	_, err := r.pool.Exec(ctx, upsertAPIKeySQL,
		k.ID, k.UserID, k.KeyHash, k.Prefix, k.Name, k.Scopes, k.Active, k.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upserting api key %q: %w", k.ID, err)
	}
	return nil
}

func scanAPIKey(row pgx.Row) (auth.APIKeyInfo, error) {
	var k auth.APIKeyInfo
	err := row.Scan(&k.ID, &k.UserID, &k.KeyHash, &k.Prefix, &k.Name, &k.Scopes, &k.Active, &k.ExpiresAt)
	return k, err
}
