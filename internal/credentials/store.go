// Package credentials is the Postgres-backed store for per-identity token
// records and the booking attempt log.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/court-scheduler/internal/booking"
	"github.com/example/court-scheduler/internal/crypto"
	"github.com/example/court-scheduler/internal/db"
	"github.com/example/court-scheduler/internal/token"
)

type Store struct {
	db   *db.DB
	aead *crypto.AEAD // nil means tokens are stored in the clear
}

func NewStore(d *db.DB, aead *crypto.AEAD) *Store {
	return &Store{db: d, aead: aead}
}

func (s *Store) Get(ctx context.Context, userID string) (token.Credential, error) {
	var c token.Credential
	err := s.db.QueryRow(ctx, `
SELECT access_token, refresh_token, expires_in, token_type, updated_at
FROM credentials
WHERE user_id=$1`, userID).
		Scan(&c.AccessToken, &c.RefreshToken, &c.ExpiresIn, &c.TokenType, &c.UpdatedAt)
	if err != nil {
		if errors.Is(db.WrapNotFound(err), db.ErrNotFound) {
			return token.Credential{}, token.ErrNotFound
		}
		return token.Credential{}, db.WrapNotFound(err)
	}

	if s.aead != nil {
		if c.AccessToken, err = s.decrypt(c.AccessToken); err != nil {
			return token.Credential{}, fmt.Errorf("decrypt access token: %w", err)
		}
		if c.RefreshToken, err = s.decrypt(c.RefreshToken); err != nil {
			return token.Credential{}, fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	return c, nil
}

// Put overwrites the whole record in one statement, so a credential update is
// atomic: a crash mid-refresh leaves either the old record or the new one,
// never a mix.
func (s *Store) Put(ctx context.Context, userID string, c token.Credential) error {
	access, refresh := c.AccessToken, c.RefreshToken
	if s.aead != nil {
		var err error
		if access, err = s.encrypt(access); err != nil {
			return fmt.Errorf("encrypt access token: %w", err)
		}
		if refresh, err = s.encrypt(refresh); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	return s.db.Exec(ctx, `
INSERT INTO credentials(user_id, access_token, refresh_token, expires_in, token_type, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (user_id) DO UPDATE SET
  access_token=EXCLUDED.access_token,
  refresh_token=EXCLUDED.refresh_token,
  expires_in=EXCLUDED.expires_in,
  token_type=EXCLUDED.token_type,
  updated_at=EXCLUDED.updated_at`,
		userID, access, refresh, c.ExpiresIn, c.TokenType, c.UpdatedAt)
}

// RecordAttempt appends one booking attempt outcome.
func (s *Store) RecordAttempt(ctx context.Context, a booking.Attempt) error {
	var errText *string
	if a.Error != "" {
		errText = &a.Error
	}
	return s.db.Exec(ctx, `
INSERT INTO booking_attempts(user_id, venue, target_date, outcome, error)
VALUES ($1,$2,$3,$4,$5)`,
		a.UserID, a.Venue, a.Date, string(a.Outcome), errText)
}

func (s *Store) encrypt(v string) (string, error) {
	if v == "" {
		return "", nil
	}
	return s.aead.EncryptToString(v)
}

func (s *Store) decrypt(v string) (string, error) {
	if v == "" {
		return "", nil
	}
	return s.aead.DecryptString(v)
}
