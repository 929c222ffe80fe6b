// Package memstore is an in-memory CredentialStore for tests and local
// development. Accounts are deep-copied on the way in and out, so callers
// can never mutate stored state through a returned pointer.
package memstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/medinest/authcore"
)

type Store struct {
	mu       sync.Mutex
	accounts map[string]*authcore.Account
	byEmail  map[string]string
}

func New() *Store {
	return &Store{
		accounts: make(map[string]*authcore.Account),
		byEmail:  make(map[string]string),
	}
}

func (s *Store) CreateAccount(_ context.Context, acct *authcore.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[acct.Email]; exists {
		return authcore.ErrAccountExists
	}
	s.accounts[acct.ID] = clone(acct)
	s.byEmail[acct.Email] = acct.ID
	return nil
}

func (s *Store) AccountByEmail(_ context.Context, email string) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, nil
	}
	return clone(s.accounts[id]), nil
}

func (s *Store) AccountByID(_ context.Context, id string) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	return clone(acct), nil
}

func (s *Store) IncrementFailedLogins(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return 0, errNotFound
	}
	acct.FailedLoginAttempts++
	return acct.FailedLoginAttempts, nil
}

func (s *Store) SetLockedUntil(_ context.Context, id string, until time.Time) error {
	return s.update(id, func(acct *authcore.Account) {
		u := until
		acct.LockedUntil = &u
	})
}

func (s *Store) ResetLockout(_ context.Context, id string) error {
	return s.update(id, func(acct *authcore.Account) {
		acct.FailedLoginAttempts = 0
		acct.LockedUntil = nil
	})
}

func (s *Store) UpdatePassword(_ context.Context, id, hash string, history []string, changedAt time.Time) error {
	return s.update(id, func(acct *authcore.Account) {
		acct.PasswordHash = hash
		acct.PreviousPasswordHashes = append([]string(nil), history...)
		acct.PasswordChangedAt = changedAt
	})
}

func (s *Store) SetLoginOTP(_ context.Context, id string, code *authcore.OneTimeCode) error {
	return s.update(id, func(acct *authcore.Account) {
		acct.LoginOTP = cloneCode(code)
	})
}

func (s *Store) IncrementLoginOTPAttempts(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return 0, errNotFound
	}
	if acct.LoginOTP == nil {
		return 0, errNoCode
	}
	acct.LoginOTP.Attempts++
	return acct.LoginOTP.Attempts, nil
}

func (s *Store) SetResetOTP(_ context.Context, id string, code *authcore.OneTimeCode) error {
	return s.update(id, func(acct *authcore.Account) {
		acct.ResetOTP = cloneCode(code)
	})
}

func (s *Store) IncrementResetOTPAttempts(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return 0, errNotFound
	}
	if acct.ResetOTP == nil {
		return 0, errNoCode
	}
	acct.ResetOTP.Attempts++
	return acct.ResetOTP.Attempts, nil
}

func (s *Store) SetTwoFactorEnabled(_ context.Context, id string, enabled bool) error {
	return s.update(id, func(acct *authcore.Account) {
		acct.TwoFactorEnabled = enabled
	})
}

func (s *Store) SetPendingTOTPSecret(_ context.Context, id string, sealed []byte) error {
	return s.update(id, func(acct *authcore.Account) {
		acct.PendingTOTPSecret = append([]byte(nil), sealed...)
	})
}

func (s *Store) ActivateTOTPSecret(_ context.Context, id string, sealed []byte) error {
	return s.update(id, func(acct *authcore.Account) {
		acct.TOTPSecret = append([]byte(nil), sealed...)
		acct.PendingTOTPSecret = nil
	})
}

func (s *Store) ClearTOTPSecret(_ context.Context, id string) error {
	return s.update(id, func(acct *authcore.Account) {
		acct.TOTPSecret = nil
		acct.PendingTOTPSecret = nil
	})
}

func (s *Store) AddRefreshTokenHash(_ context.Context, id, hash string) error {
	return s.update(id, func(acct *authcore.Account) {
		acct.RefreshTokenHashes = append(acct.RefreshTokenHashes, hash)
	})
}

func (s *Store) RemoveRefreshTokenHash(_ context.Context, id, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return false, errNotFound
	}
	for i, h := range acct.RefreshTokenHashes {
		if h == hash {
			acct.RefreshTokenHashes = append(acct.RefreshTokenHashes[:i], acct.RefreshTokenHashes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ClearRefreshTokenHashes(_ context.Context, id string) error {
	return s.update(id, func(acct *authcore.Account) {
		acct.RefreshTokenHashes = nil
	})
}

// SetActive is a test and admin hook; deactivation is outside the engine's
// surface but inside its threat model.
func (s *Store) SetActive(id string, active bool) error {
	return s.update(id, func(acct *authcore.Account) {
		acct.IsActive = active
	})
}

var (
	errNotFound = errors.New("memstore: account not found")
	errNoCode   = errors.New("memstore: no outstanding code")
)

func (s *Store) update(id string, fn func(*authcore.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return errNotFound
	}
	fn(acct)
	return nil
}

func clone(acct *authcore.Account) *authcore.Account {
	if acct == nil {
		return nil
	}
	out := *acct
	out.PreviousPasswordHashes = append([]string(nil), acct.PreviousPasswordHashes...)
	out.RefreshTokenHashes = append([]string(nil), acct.RefreshTokenHashes...)
	out.TOTPSecret = append([]byte(nil), acct.TOTPSecret...)
	out.PendingTOTPSecret = append([]byte(nil), acct.PendingTOTPSecret...)
	if acct.LockedUntil != nil {
		u := *acct.LockedUntil
		out.LockedUntil = &u
	}
	out.LoginOTP = cloneCode(acct.LoginOTP)
	out.ResetOTP = cloneCode(acct.ResetOTP)
	return &out
}

func cloneCode(code *authcore.OneTimeCode) *authcore.OneTimeCode {
	if code == nil {
		return nil
	}
	out := *code
	return &out
}
