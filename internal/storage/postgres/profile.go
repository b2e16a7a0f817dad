package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository writes the user-owned rows seed-db needs so that
// receipts, notifications and preferences have a valid owner.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository returns a ProfileRepository that uses the given pool.
func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// Upsert creates or renames a profile together with its notification
// preferences row.
func (r *ProfileRepository) Upsert(ctx context.Context, id uuid.UUID, email, fullName string) error {
	if _, err := r.pool.Exec(ctx, `INSERT INTO profiles (id, email, full_name) VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, full_name = EXCLUDED.full_name`,
		id, email, fullName); err != nil {
		return fmt.Errorf("upserting profile %s: %w", id, err)
	}
	if _, err := r.pool.Exec(ctx, `INSERT INTO notification_preferences (user_id) VALUES ($1)
	ON CONFLICT (user_id) DO NOTHING`, id); err != nil {
		return fmt.Errorf("upserting notification preferences for %s: %w", id, err)
	}
	return nil
}

// AddNotification inserts an unread notification.
func (r *ProfileRepository) AddNotification(ctx context.Context, id, userID uuid.UUID, title string) error {
	if _, err := r.pool.Exec(ctx, `INSERT INTO notifications (id, user_id, title) VALUES ($1, $2, $3)
	ON CONFLICT (id) DO NOTHING`, id, userID, title); err != nil {
		return fmt.Errorf("inserting notification %s: %w", id, err)
	}
	return nil
}
