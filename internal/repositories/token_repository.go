package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// DeviceTokenRepository stores (user, push-token) pairs.
type DeviceTokenRepository interface {
	SaveToken(ctx context.Context, userID int, token string) error
	TokensByUser(ctx context.Context, userID int) ([]string, error)
	DeleteToken(ctx context.Context, token string) error
	DeleteAllForUser(ctx context.Context, userID int) error
}

// DeviceTokenRepo is a sqlx-backed repository.
type DeviceTokenRepo struct {
	db *sqlx.DB
}

// NewDeviceTokenRepo constructs DeviceTokenRepo.
func NewDeviceTokenRepo(db *sqlx.DB) *DeviceTokenRepo {
	return &DeviceTokenRepo{db: db}
}

// SaveToken registers a token for a user. Registering an existing
// (user, token) pair is a no-op; the composite primary key serializes
// concurrent registration and pruning of the same pair.
func (r *DeviceTokenRepo) SaveToken(ctx context.Context, userID int, token string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_tokens (user_id, token) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, token)
	return err
}

// TokensByUser returns every registered token for a user.
func (r *DeviceTokenRepo) TokensByUser(ctx context.Context, userID int) ([]string, error) {
	var tokens []string
	err := r.db.SelectContext(ctx, &tokens,
		`SELECT token FROM device_tokens WHERE user_id=$1 ORDER BY created_at ASC`, userID)
	return tokens, err
}

// DeleteToken removes a token wherever it is registered. Deleting an
// already-deleted token is a no-op.
func (r *DeviceTokenRepo) DeleteToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM device_tokens WHERE token=$1`, token)
	return err
}

// DeleteAllForUser removes every token a user holds (logout-all).
func (r *DeviceTokenRepo) DeleteAllForUser(ctx context.Context, userID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM device_tokens WHERE user_id=$1`, userID)
	return err
}
