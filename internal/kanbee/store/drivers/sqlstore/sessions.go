package sqlstore

import (
	"context"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
)

type sessionsRepo struct {
	q *Queries
}

func (r *sessionsRepo) UpsertSession(ctx context.Context, s domain.Session) error {
	_, err := r.q.exec(ctx, `INSERT INTO sessions (token, user_id, user_agent, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, user_agent) DO UPDATE SET
			token = excluded.token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		s.Token, s.UserID, s.UserAgent, toMillis(s.ExpiresAt), toMillis(s.CreatedAt), toMillis(s.UpdatedAt))
	return r.q.mapWriteErr(err)
}

func (r *sessionsRepo) GetSession(ctx context.Context, token string) (domain.Session, error) {
	var (
		s                               domain.Session
		expiresAt, createdAt, updatedAt int64
	)
	err := r.q.queryRow(ctx, `SELECT token, user_id, user_agent, expires_at, created_at, updated_at
		FROM sessions WHERE token = ?`, token).
		Scan(&s.Token, &s.UserID, &s.UserAgent, &expiresAt, &createdAt, &updatedAt)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	s.ExpiresAt = fromMillis(expiresAt)
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)
	return s, nil
}

func (r *sessionsRepo) RotateSession(
	ctx context.Context,
	oldToken, userAgent, newToken string,
	expiresAt, now time.Time,
) (string, error) {
	var userID string
	err := r.q.queryRow(ctx, `UPDATE sessions SET token = ?, expires_at = ?, updated_at = ?
		WHERE token = ? AND user_agent = ? AND expires_at > ?
		RETURNING user_id`,
		newToken, toMillis(expiresAt), toMillis(now), oldToken, userAgent, toMillis(now)).
		Scan(&userID)
	if err != nil {
		return "", mapNotFound(err)
	}
	return userID, nil
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, token string) error {
	_, err := r.q.exec(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.exec(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
