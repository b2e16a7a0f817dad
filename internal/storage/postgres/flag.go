package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/mataresit-ops/internal/domain/flag"
)

type flagQueries struct {
	get string
	set string
}

// flagSQL is the only source of SQL text for flag toggles.
var flagSQL = map[flag.Name]flagQueries{
	flag.APIKeyActive: {
		get: `SELECT is_active FROM api_keys WHERE id = $1`,
		set: `UPDATE api_keys SET is_active = $2 WHERE id = $1`,
	},
	flag.NotificationRead: {
		get: `SELECT read FROM notifications WHERE id::text = $1`,
		set: `UPDATE notifications SET read = $2 WHERE id::text = $1`,
	},
	flag.EmailNotifications: {
		get: `SELECT email_enabled FROM notification_preferences WHERE user_id::text = $1`,
		set: `UPDATE notification_preferences SET email_enabled = $2 WHERE user_id::text = $1`,
	},
}

var _ flag.Repository = (*FlagRepository)(nil)

// FlagRepository implements flag.Repository backed by PostgreSQL.
type FlagRepository struct {
	pool *pgxpool.Pool
}

// NewFlagRepository returns a FlagRepository that uses the given pool.
func NewFlagRepository(pool *pgxpool.Pool) *FlagRepository {
	return &FlagRepository{pool: pool}
}

// Get reads the current flag value. Returns flag.ErrNotFound for missing rows.
func (r *FlagRepository) Get(ctx context.Context, name flag.Name, id string) (bool, error) {
	q, ok := flagSQL[name]
	if !ok {
		return false, errors.Wrapf(flag.ErrUnknownFlag, "%q", name)
	}

	var v bool
	if err := r.pool.QueryRow(ctx, q.get, id).Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, errors.Wrapf(flag.ErrNotFound, "%s %s", name, id)
		}
		return false, fmt.Errorf("reading %s for %s: %w", name, id, err)
	}
	return v, nil
}

// Set writes the flag value. Returns flag.ErrNotFound when no row matched.
func (r *FlagRepository) Set(ctx context.Context, name flag.Name, id string, value bool) error {
	q, ok := flagSQL[name]
	if !ok {
		return errors.Wrapf(flag.ErrUnknownFlag, "%q", name)
	}

	tag, err := r.pool.Exec(ctx, q.set, id, value)
	if err != nil {
		return fmt.Errorf("writing %s for %s: %w", name, id, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(flag.ErrNotFound, "%s %s", name, id)
	}
	return nil
}
