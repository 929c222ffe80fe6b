// Package pgstore is a PostgreSQL CredentialStore on pgx. One row per
// account; password history and refresh token hashes are TEXT[] columns,
// and every operation the engine needs to be atomic is a single UPDATE
// with the check folded into the WHERE clause.
package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medinest/authcore"
)

// Schema creates the accounts table. Run it through your migration tool;
// the store never issues DDL on its own.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id                  TEXT PRIMARY KEY,
    email               TEXT NOT NULL UNIQUE,
    name                TEXT NOT NULL,
    avatar_url          TEXT NOT NULL DEFAULT '',
    role                TEXT NOT NULL DEFAULT 'user',
    is_active           BOOLEAN NOT NULL DEFAULT TRUE,
    password_hash       TEXT NOT NULL,
    password_history    TEXT[] NOT NULL DEFAULT '{}',
    password_changed_at TIMESTAMPTZ NOT NULL,
    failed_logins       INTEGER NOT NULL DEFAULT 0,
    locked_until        TIMESTAMPTZ,
    two_factor_enabled  BOOLEAN NOT NULL DEFAULT FALSE,
    login_otp_value     TEXT,
    login_otp_expires   TIMESTAMPTZ,
    login_otp_attempts  INTEGER NOT NULL DEFAULT 0,
    reset_otp_value     TEXT,
    reset_otp_expires   TIMESTAMPTZ,
    reset_otp_attempts  INTEGER NOT NULL DEFAULT 0,
    totp_secret         BYTEA,
    pending_totp_secret BYTEA,
    refresh_hashes      TEXT[] NOT NULL DEFAULT '{}',
    created_at          TIMESTAMPTZ NOT NULL
);
`

var errNotFound = errors.New("pgstore: account not found")

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const accountColumns = `
    id, email, name, avatar_url, role, is_active,
    password_hash, password_history, password_changed_at,
    failed_logins, locked_until, two_factor_enabled,
    login_otp_value, login_otp_expires, login_otp_attempts,
    reset_otp_value, reset_otp_expires, reset_otp_attempts,
    totp_secret, pending_totp_secret, refresh_hashes, created_at`

func (s *Store) CreateAccount(ctx context.Context, acct *authcore.Account) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO accounts (
            id, email, name, avatar_url, role, is_active,
            password_hash, password_history, password_changed_at, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		acct.ID, acct.Email, acct.Name, acct.AvatarURL, string(acct.Role), acct.IsActive,
		acct.PasswordHash, acct.PreviousPasswordHashes, acct.PasswordChangedAt, acct.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return authcore.ErrAccountExists
	}
	return err
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	return s.scanOne(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

func (s *Store) AccountByID(ctx context.Context, id string) (*authcore.Account, error) {
	return s.scanOne(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (s *Store) scanOne(row pgx.Row) (*authcore.Account, error) {
	var (
		acct            authcore.Account
		role            string
		lockedUntil     *time.Time
		loginOTPValue   *string
		loginOTPExpires *time.Time
		loginAttempts   int
		resetOTPValue   *string
		resetOTPExpires *time.Time
		resetAttempts   int
	)
	err := row.Scan(
		&acct.ID, &acct.Email, &acct.Name, &acct.AvatarURL, &role, &acct.IsActive,
		&acct.PasswordHash, &acct.PreviousPasswordHashes, &acct.PasswordChangedAt,
		&acct.FailedLoginAttempts, &lockedUntil, &acct.TwoFactorEnabled,
		&loginOTPValue, &loginOTPExpires, &loginAttempts,
		&resetOTPValue, &resetOTPExpires, &resetAttempts,
		&acct.TOTPSecret, &acct.PendingTOTPSecret, &acct.RefreshTokenHashes, &acct.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	acct.Role = authcore.Role(role)
	acct.LockedUntil = lockedUntil
	if loginOTPValue != nil {
		acct.LoginOTP = &authcore.OneTimeCode{
			Value:    *loginOTPValue,
			Attempts: loginAttempts,
		}
		if loginOTPExpires != nil {
			acct.LoginOTP.ExpiresAt = *loginOTPExpires
		}
	}
	if resetOTPValue != nil {
		acct.ResetOTP = &authcore.OneTimeCode{
			Value:    *resetOTPValue,
			Attempts: resetAttempts,
		}
		if resetOTPExpires != nil {
			acct.ResetOTP.ExpiresAt = *resetOTPExpires
		}
	}
	return &acct, nil
}

func (s *Store) IncrementFailedLogins(ctx context.Context, id string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`UPDATE accounts SET failed_logins = failed_logins + 1 WHERE id = $1 RETURNING failed_logins`,
		id).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errNotFound
	}
	return count, err
}

func (s *Store) SetLockedUntil(ctx context.Context, id string, until time.Time) error {
	return s.exec(ctx, `UPDATE accounts SET locked_until = $2 WHERE id = $1`, id, until)
}

func (s *Store) ResetLockout(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE accounts SET failed_logins = 0, locked_until = NULL WHERE id = $1`, id)
}

func (s *Store) UpdatePassword(ctx context.Context, id, hash string, history []string, changedAt time.Time) error {
	return s.exec(ctx, `
        UPDATE accounts
           SET password_hash = $2, password_history = $3, password_changed_at = $4
         WHERE id = $1`, id, hash, history, changedAt)
}

func (s *Store) SetLoginOTP(ctx context.Context, id string, code *authcore.OneTimeCode) error {
	if code == nil {
		return s.exec(ctx, `
            UPDATE accounts
               SET login_otp_value = NULL, login_otp_expires = NULL, login_otp_attempts = 0
             WHERE id = $1`, id)
	}
	return s.exec(ctx, `
        UPDATE accounts
           SET login_otp_value = $2, login_otp_expires = $3, login_otp_attempts = $4
         WHERE id = $1`, id, code.Value, code.ExpiresAt, code.Attempts)
}

func (s *Store) IncrementLoginOTPAttempts(ctx context.Context, id string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`UPDATE accounts SET login_otp_attempts = login_otp_attempts + 1 WHERE id = $1 RETURNING login_otp_attempts`,
		id).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errNotFound
	}
	return count, err
}

func (s *Store) SetResetOTP(ctx context.Context, id string, code *authcore.OneTimeCode) error {
	if code == nil {
		return s.exec(ctx, `
            UPDATE accounts
               SET reset_otp_value = NULL, reset_otp_expires = NULL, reset_otp_attempts = 0
             WHERE id = $1`, id)
	}
	return s.exec(ctx, `
        UPDATE accounts
           SET reset_otp_value = $2, reset_otp_expires = $3, reset_otp_attempts = $4
         WHERE id = $1`, id, code.Value, code.ExpiresAt, code.Attempts)
}

func (s *Store) IncrementResetOTPAttempts(ctx context.Context, id string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`UPDATE accounts SET reset_otp_attempts = reset_otp_attempts + 1 WHERE id = $1 RETURNING reset_otp_attempts`,
		id).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errNotFound
	}
	return count, err
}

func (s *Store) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error {
	return s.exec(ctx, `UPDATE accounts SET two_factor_enabled = $2 WHERE id = $1`, id, enabled)
}

func (s *Store) SetPendingTOTPSecret(ctx context.Context, id string, sealed []byte) error {
	return s.exec(ctx, `UPDATE accounts SET pending_totp_secret = $2 WHERE id = $1`, id, sealed)
}

func (s *Store) ActivateTOTPSecret(ctx context.Context, id string, sealed []byte) error {
	return s.exec(ctx, `
        UPDATE accounts
           SET totp_secret = $2, pending_totp_secret = NULL
         WHERE id = $1`, id, sealed)
}

func (s *Store) ClearTOTPSecret(ctx context.Context, id string) error {
	return s.exec(ctx, `
        UPDATE accounts
           SET totp_secret = NULL, pending_totp_secret = NULL
         WHERE id = $1`, id)
}

func (s *Store) AddRefreshTokenHash(ctx context.Context, id, hash string) error {
	return s.exec(ctx, `
        UPDATE accounts
           SET refresh_hashes = array_append(refresh_hashes, $2)
         WHERE id = $1`, id, hash)
}

// RemoveRefreshTokenHash folds the membership test into the UPDATE, so two
// concurrent presentations of the same token can never both succeed.
func (s *Store) RemoveRefreshTokenHash(ctx context.Context, id, hash string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
        UPDATE accounts
           SET refresh_hashes = array_remove(refresh_hashes, $2)
         WHERE id = $1 AND $2 = ANY(refresh_hashes)`, id, hash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ClearRefreshTokenHashes(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE accounts SET refresh_hashes = '{}' WHERE id = $1`, id)
}

func (s *Store) exec(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errNotFound
	}
	return nil
}
