// Package redistore is a redis-backed CredentialStore. Accounts live in a
// hash per account with a separate email index key, counters ride on
// HINCRBY, and refresh token hashes ride on a set, so every operation the
// engine needs to be atomic maps onto a single redis command.
package redistore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medinest/authcore"
)

const (
	fieldEmail            = "email"
	fieldName             = "name"
	fieldAvatar           = "avatar"
	fieldRole             = "role"
	fieldActive           = "active"
	fieldPasswordHash     = "pwd_hash"
	fieldPasswordHistory  = "pwd_history"
	fieldPasswordChanged  = "pwd_changed_at"
	fieldFailedLogins     = "failed_logins"
	fieldLockedUntil      = "locked_until"
	fieldTwoFactor        = "two_factor"
	fieldLoginOTPValue    = "login_otp_value"
	fieldLoginOTPExpires  = "login_otp_expires"
	fieldLoginOTPAttempts = "login_otp_attempts"
	fieldResetOTPValue    = "reset_otp_value"
	fieldResetOTPExpires  = "reset_otp_expires"
	fieldResetOTPAttempts = "reset_otp_attempts"
	fieldTOTPSecret       = "totp_secret"
	fieldPendingTOTP      = "pending_totp_secret"
	fieldCreatedAt        = "created_at"
)

var errNotFound = errors.New("redistore: account not found")

type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

func New(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "authcore"
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) acctKey(id string) string    { return s.prefix + ":acct:" + id }
func (s *Store) emailKey(e string) string    { return s.prefix + ":email:" + e }
func (s *Store) refreshKey(id string) string { return s.prefix + ":rt:" + id }

func (s *Store) CreateAccount(ctx context.Context, acct *authcore.Account) error {
	// The email index claim is the uniqueness check.
	claimed, err := s.rdb.SetNX(ctx, s.emailKey(acct.Email), acct.ID, 0).Result()
	if err != nil {
		return err
	}
	if !claimed {
		return authcore.ErrAccountExists
	}

	history, err := json.Marshal(acct.PreviousPasswordHashes)
	if err != nil {
		return err
	}

	fields := map[string]interface{}{
		fieldEmail:           acct.Email,
		fieldName:            acct.Name,
		fieldAvatar:          acct.AvatarURL,
		fieldRole:            string(acct.Role),
		fieldActive:          boolField(acct.IsActive),
		fieldPasswordHash:    acct.PasswordHash,
		fieldPasswordHistory: string(history),
		fieldPasswordChanged: acct.PasswordChangedAt.UnixNano(),
		fieldFailedLogins:    acct.FailedLoginAttempts,
		fieldTwoFactor:       boolField(acct.TwoFactorEnabled),
		fieldCreatedAt:       acct.CreatedAt.UnixNano(),
	}
	return s.rdb.HSet(ctx, s.acctKey(acct.ID), fields).Err()
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	id, err := s.rdb.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.AccountByID(ctx, id)
}

func (s *Store) AccountByID(ctx context.Context, id string) (*authcore.Account, error) {
	fields, err := s.rdb.HGetAll(ctx, s.acctKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	acct := &authcore.Account{
		ID:               id,
		Email:            fields[fieldEmail],
		Name:             fields[fieldName],
		AvatarURL:        fields[fieldAvatar],
		Role:             authcore.Role(fields[fieldRole]),
		IsActive:         fields[fieldActive] == "1",
		PasswordHash:     fields[fieldPasswordHash],
		TwoFactorEnabled: fields[fieldTwoFactor] == "1",
	}

	if raw := fields[fieldPasswordHistory]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &acct.PreviousPasswordHashes); err != nil {
			return nil, err
		}
	}
	acct.PasswordChangedAt = nanoTime(fields[fieldPasswordChanged])
	acct.CreatedAt = nanoTime(fields[fieldCreatedAt])
	acct.FailedLoginAttempts = intField(fields[fieldFailedLogins])

	if raw := fields[fieldLockedUntil]; raw != "" {
		t := nanoTime(raw)
		acct.LockedUntil = &t
	}

	acct.LoginOTP = codeFromFields(fields, fieldLoginOTPValue, fieldLoginOTPExpires, fieldLoginOTPAttempts)
	acct.ResetOTP = codeFromFields(fields, fieldResetOTPValue, fieldResetOTPExpires, fieldResetOTPAttempts)

	if acct.TOTPSecret, err = binField(fields[fieldTOTPSecret]); err != nil {
		return nil, err
	}
	if acct.PendingTOTPSecret, err = binField(fields[fieldPendingTOTP]); err != nil {
		return nil, err
	}

	hashes, err := s.rdb.SMembers(ctx, s.refreshKey(id)).Result()
	if err != nil {
		return nil, err
	}
	acct.RefreshTokenHashes = hashes

	return acct, nil
}

func (s *Store) IncrementFailedLogins(ctx context.Context, id string) (int, error) {
	if err := s.exists(ctx, id); err != nil {
		return 0, err
	}
	count, err := s.rdb.HIncrBy(ctx, s.acctKey(id), fieldFailedLogins, 1).Result()
	return int(count), err
}

func (s *Store) SetLockedUntil(ctx context.Context, id string, until time.Time) error {
	return s.rdb.HSet(ctx, s.acctKey(id), fieldLockedUntil, until.UnixNano()).Err()
}

func (s *Store) ResetLockout(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, s.acctKey(id), fieldFailedLogins, 0)
	pipe.HDel(ctx, s.acctKey(id), fieldLockedUntil)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) UpdatePassword(ctx context.Context, id, hash string, history []string, changedAt time.Time) error {
	raw, err := json.Marshal(history)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, s.acctKey(id), map[string]interface{}{
		fieldPasswordHash:    hash,
		fieldPasswordHistory: string(raw),
		fieldPasswordChanged: changedAt.UnixNano(),
	}).Err()
}

func (s *Store) SetLoginOTP(ctx context.Context, id string, code *authcore.OneTimeCode) error {
	return s.setCode(ctx, id, code, fieldLoginOTPValue, fieldLoginOTPExpires, fieldLoginOTPAttempts)
}

func (s *Store) IncrementLoginOTPAttempts(ctx context.Context, id string) (int, error) {
	count, err := s.rdb.HIncrBy(ctx, s.acctKey(id), fieldLoginOTPAttempts, 1).Result()
	return int(count), err
}

func (s *Store) SetResetOTP(ctx context.Context, id string, code *authcore.OneTimeCode) error {
	return s.setCode(ctx, id, code, fieldResetOTPValue, fieldResetOTPExpires, fieldResetOTPAttempts)
}

func (s *Store) IncrementResetOTPAttempts(ctx context.Context, id string) (int, error) {
	count, err := s.rdb.HIncrBy(ctx, s.acctKey(id), fieldResetOTPAttempts, 1).Result()
	return int(count), err
}

func (s *Store) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error {
	return s.rdb.HSet(ctx, s.acctKey(id), fieldTwoFactor, boolField(enabled)).Err()
}

func (s *Store) SetPendingTOTPSecret(ctx context.Context, id string, sealed []byte) error {
	return s.rdb.HSet(ctx, s.acctKey(id), fieldPendingTOTP, base64.StdEncoding.EncodeToString(sealed)).Err()
}

func (s *Store) ActivateTOTPSecret(ctx context.Context, id string, sealed []byte) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, s.acctKey(id), fieldTOTPSecret, base64.StdEncoding.EncodeToString(sealed))
	pipe.HDel(ctx, s.acctKey(id), fieldPendingTOTP)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) ClearTOTPSecret(ctx context.Context, id string) error {
	return s.rdb.HDel(ctx, s.acctKey(id), fieldTOTPSecret, fieldPendingTOTP).Err()
}

func (s *Store) AddRefreshTokenHash(ctx context.Context, id, hash string) error {
	return s.rdb.SAdd(ctx, s.refreshKey(id), hash).Err()
}

func (s *Store) RemoveRefreshTokenHash(ctx context.Context, id, hash string) (bool, error) {
	removed, err := s.rdb.SRem(ctx, s.refreshKey(id), hash).Result()
	if err != nil {
		return false, err
	}
	return removed == 1, nil
}

func (s *Store) ClearRefreshTokenHashes(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.refreshKey(id)).Err()
}

func (s *Store) setCode(ctx context.Context, id string, code *authcore.OneTimeCode, valueField, expiresField, attemptsField string) error {
	key := s.acctKey(id)
	if code == nil {
		return s.rdb.HDel(ctx, key, valueField, expiresField, attemptsField).Err()
	}
	return s.rdb.HSet(ctx, key, map[string]interface{}{
		valueField:    code.Value,
		expiresField:  code.ExpiresAt.UnixNano(),
		attemptsField: code.Attempts,
	}).Err()
}

func (s *Store) exists(ctx context.Context, id string) error {
	n, err := s.rdb.Exists(ctx, s.acctKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return errNotFound
	}
	return nil
}

func codeFromFields(fields map[string]string, valueField, expiresField, attemptsField string) *authcore.OneTimeCode {
	value, ok := fields[valueField]
	if !ok {
		return nil
	}
	return &authcore.OneTimeCode{
		Value:     value,
		ExpiresAt: nanoTime(fields[expiresField]),
		Attempts:  intField(fields[attemptsField]),
	}
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func intField(raw string) int {
	n, _ := strconv.Atoi(raw)
	return n
}

func nanoTime(raw string) time.Time {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func binField(raw string) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(raw)
}
