package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
)

type sessionsRepo struct {
	run runner
}

func (r *sessionsRepo) UpsertSession(_ context.Context, s domain.Session) error {
	return r.run(func(st *state) error {
		if _, ok := st.users[s.UserID]; !ok {
			return fmt.Errorf("memory: session references unknown user %q", s.UserID)
		}
		key := deviceKey{s.UserID, s.UserAgent}
		if owner, ok := st.sessions[s.Token]; ok && (deviceKey{owner.UserID, owner.UserAgent}) != key {
			return store.ErrAlreadyExists
		}

		if old, ok := st.sessionKey[key]; ok {
			prev := st.sessions[old]
			delete(st.sessions, old)
			s.CreatedAt = prev.CreatedAt
		}
		st.sessions[s.Token] = s
		st.sessionKey[key] = s.Token
		return nil
	})
}

func (r *sessionsRepo) GetSession(_ context.Context, token string) (domain.Session, error) {
	var out domain.Session
	err := r.run(func(st *state) error {
		s, ok := st.sessions[token]
		if !ok {
			return store.ErrNotFound
		}
		out = s
		return nil
	})
	return out, err
}

func (r *sessionsRepo) RotateSession(
	_ context.Context,
	oldToken, userAgent, newToken string,
	expiresAt, now time.Time,
) (string, error) {
	var userID string
	err := r.run(func(st *state) error {
		s, ok := st.sessions[oldToken]
		if !ok || s.UserAgent != userAgent || !s.ExpiresAt.After(now) {
			return store.ErrNotFound
		}
		if _, taken := st.sessions[newToken]; taken {
			return store.ErrAlreadyExists
		}

		delete(st.sessions, oldToken)
		s.Token = newToken
		s.ExpiresAt = expiresAt
		s.UpdatedAt = now
		st.sessions[newToken] = s
		st.sessionKey[deviceKey{s.UserID, s.UserAgent}] = newToken
		userID = s.UserID
		return nil
	})
	return userID, err
}

func (r *sessionsRepo) DeleteSession(_ context.Context, token string) error {
	return r.run(func(st *state) error {
		if s, ok := st.sessions[token]; ok {
			delete(st.sessions, token)
			delete(st.sessionKey, deviceKey{s.UserID, s.UserAgent})
		}
		return nil
	})
}

func (r *sessionsRepo) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.run(func(st *state) error {
		for tok, s := range st.sessions {
			if !s.ExpiresAt.After(now) {
				delete(st.sessions, tok)
				delete(st.sessionKey, deviceKey{s.UserID, s.UserAgent})
				n++
			}
		}
		return nil
	})
	return n, err
}
