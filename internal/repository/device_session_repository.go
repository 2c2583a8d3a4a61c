package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatdeck/api/internal/models"
)

var ErrDeviceSessionNotFound = errors.New("device session not found")

const deviceSessionColumns = `id, user_id, device_id, device_name, refresh_token_hash, ip_address, user_agent, created_at, last_seen_at, expires_at`

type DeviceSessionRepository struct {
	pool *pgxpool.Pool
}

func NewDeviceSessionRepository(pool *pgxpool.Pool) *DeviceSessionRepository {
	return &DeviceSessionRepository{pool: pool}
}

// Upsert creates or replaces the session for (user, device). Logging in again
// from the same device rotates the refresh token instead of stacking rows.
func (r *DeviceSessionRepository) Upsert(ctx context.Context, session models.DeviceSession) error {
	const query = `
		INSERT INTO device_sessions (id, user_id, device_id, device_name, refresh_token_hash, ip_address, user_agent, created_at, last_seen_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), $8)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			id = EXCLUDED.id,
			device_name = EXCLUDED.device_name,
			refresh_token_hash = EXCLUDED.refresh_token_hash,
			ip_address = EXCLUDED.ip_address,
			user_agent = EXCLUDED.user_agent,
			last_seen_at = NOW(),
			expires_at = EXCLUDED.expires_at
	`
	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.DeviceID,
		session.DeviceName,
		session.RefreshTokenHash,
		session.IPAddress,
		session.UserAgent,
		session.ExpiresAt,
	)
	return err
}

func (r *DeviceSessionRepository) GetByID(ctx context.Context, id string) (models.DeviceSession, error) {
	const query = `SELECT ` + deviceSessionColumns + ` FROM device_sessions WHERE id = $1`
	return r.scan(r.pool.QueryRow(ctx, query, id))
}

func (r *DeviceSessionRepository) FindByRefreshHash(ctx context.Context, userID string, hash []byte) (models.DeviceSession, error) {
	const query = `SELECT ` + deviceSessionColumns + ` FROM device_sessions WHERE user_id = $1 AND refresh_token_hash = $2`
	return r.scan(r.pool.QueryRow(ctx, query, userID, hash))
}

func (r *DeviceSessionRepository) Touch(ctx context.Context, id string, ip string, userAgent string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE device_sessions SET last_seen_at = NOW(), ip_address = $2, user_agent = $3 WHERE id = $1`,
		id, ip, userAgent)
	return err
}

func (r *DeviceSessionRepository) DeleteByDevice(ctx context.Context, userID, deviceID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM device_sessions WHERE user_id = $1 AND device_id = $2`,
		userID, deviceID)
	return err
}

func (r *DeviceSessionRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM device_sessions WHERE id = $1`, id)
	return err
}

func (r *DeviceSessionRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM device_sessions WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}

// DeleteOldestSessions trims the user down to keep sessions, dropping the
// least recently seen rows first.
func (r *DeviceSessionRepository) DeleteOldestSessions(ctx context.Context, userID string, keep int) error {
	const query = `
		DELETE FROM device_sessions
		WHERE id IN (
			SELECT id FROM device_sessions
			WHERE user_id = $1
			ORDER BY last_seen_at DESC
			OFFSET $2
		)
	`
	_, err := r.pool.Exec(ctx, query, userID, keep)
	return err
}

// DeleteExpired is called by the scheduler; returns the number of rows purged.
func (r *DeviceSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM device_sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *DeviceSessionRepository) scan(row pgx.Row) (models.DeviceSession, error) {
	var session models.DeviceSession
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.DeviceID,
		&session.DeviceName,
		&session.RefreshTokenHash,
		&session.IPAddress,
		&session.UserAgent,
		&session.CreatedAt,
		&session.LastSeenAt,
		&session.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DeviceSession{}, ErrDeviceSessionNotFound
		}
		return models.DeviceSession{}, err
	}
	return session, nil
}
