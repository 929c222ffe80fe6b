package authcore

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"
)

// fakeStore is an in-memory CredentialStore for engine tests. Tests reach
// into accounts directly to arrange state and assert on writes.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	byEmail  map[string]string
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[string]*Account),
		byEmail:  make(map[string]string),
	}
}

func (s *fakeStore) get(id string) (*Account, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	acct, ok := s.accounts[id]
	if !ok {
		return nil, errors.New("fakeStore: account not found")
	}
	return acct, nil
}

func (s *fakeStore) CreateAccount(_ context.Context, acct *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if _, ok := s.byEmail[acct.Email]; ok {
		return ErrAccountExists
	}
	cp := *acct
	s.accounts[acct.ID] = &cp
	s.byEmail[acct.Email] = acct.ID
	return nil
}

func (s *fakeStore) AccountByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	id, ok := s.byEmail[email]
	if !ok {
		return nil, nil
	}
	cp := *s.accounts[id]
	return &cp, nil
}

func (s *fakeStore) AccountByID(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	acct, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *acct
	return &cp, nil
}

func (s *fakeStore) IncrementFailedLogins(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, err := s.get(id)
	if err != nil {
		return 0, err
	}
	acct.FailedLoginAttempts++
	return acct.FailedLoginAttempts, nil
}

func (s *fakeStore) SetLockedUntil(_ context.Context, id string, until time.Time) error {
	return s.update(id, func(a *Account) { u := until; a.LockedUntil = &u })
}

func (s *fakeStore) ResetLockout(_ context.Context, id string) error {
	return s.update(id, func(a *Account) {
		a.FailedLoginAttempts = 0
		a.LockedUntil = nil
	})
}

func (s *fakeStore) UpdatePassword(_ context.Context, id, hash string, history []string, changedAt time.Time) error {
	return s.update(id, func(a *Account) {
		a.PasswordHash = hash
		a.PreviousPasswordHashes = history
		a.PasswordChangedAt = changedAt
	})
}

func (s *fakeStore) SetLoginOTP(_ context.Context, id string, code *OneTimeCode) error {
	return s.update(id, func(a *Account) { a.LoginOTP = code })
}

func (s *fakeStore) IncrementLoginOTPAttempts(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, err := s.get(id)
	if err != nil {
		return 0, err
	}
	acct.LoginOTP.Attempts++
	return acct.LoginOTP.Attempts, nil
}

func (s *fakeStore) SetResetOTP(_ context.Context, id string, code *OneTimeCode) error {
	return s.update(id, func(a *Account) { a.ResetOTP = code })
}

func (s *fakeStore) IncrementResetOTPAttempts(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, err := s.get(id)
	if err != nil {
		return 0, err
	}
	acct.ResetOTP.Attempts++
	return acct.ResetOTP.Attempts, nil
}

func (s *fakeStore) SetTwoFactorEnabled(_ context.Context, id string, enabled bool) error {
	return s.update(id, func(a *Account) { a.TwoFactorEnabled = enabled })
}

func (s *fakeStore) SetPendingTOTPSecret(_ context.Context, id string, sealed []byte) error {
	return s.update(id, func(a *Account) { a.PendingTOTPSecret = sealed })
}

func (s *fakeStore) ActivateTOTPSecret(_ context.Context, id string, sealed []byte) error {
	return s.update(id, func(a *Account) {
		a.TOTPSecret = sealed
		a.PendingTOTPSecret = nil
	})
}

func (s *fakeStore) ClearTOTPSecret(_ context.Context, id string) error {
	return s.update(id, func(a *Account) {
		a.TOTPSecret = nil
		a.PendingTOTPSecret = nil
	})
}

func (s *fakeStore) AddRefreshTokenHash(_ context.Context, id, hash string) error {
	return s.update(id, func(a *Account) {
		a.RefreshTokenHashes = append(a.RefreshTokenHashes, hash)
	})
}

func (s *fakeStore) RemoveRefreshTokenHash(_ context.Context, id, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, err := s.get(id)
	if err != nil {
		return false, err
	}
	for i, h := range acct.RefreshTokenHashes {
		if h == hash {
			acct.RefreshTokenHashes = append(acct.RefreshTokenHashes[:i], acct.RefreshTokenHashes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) ClearRefreshTokenHashes(_ context.Context, id string) error {
	return s.update(id, func(a *Account) { a.RefreshTokenHashes = nil })
}

func (s *fakeStore) update(id string, fn func(*Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, err := s.get(id)
	if err != nil {
		return err
	}
	fn(acct)
	return nil
}

// raw returns the live stored account for direct inspection and mutation.
func (s *fakeStore) raw(t *testing.T, id string) *Account {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		t.Fatalf("account %s not in store", id)
	}
	return acct
}

// fakeMailer records every message and can be told to fail.
type fakeMailer struct {
	mu       sync.Mutex
	sent     []sentMail
	failWith error
}

type sentMail struct {
	to      string
	subject string
	body    string
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

var codeRe = regexp.MustCompile(`\b\d{6}\b`)

// lastCode extracts the six-digit code from the most recent mail.
func (m *fakeMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no mail sent")
	}
	code := codeRe.FindString(m.sent[len(m.sent)-1].body)
	if code == "" {
		t.Fatalf("no code in mail body: %q", m.sent[len(m.sent)-1].body)
	}
	return code
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Tokens.AccessSecret = []byte("test-access-secret-0123456789abcdef")
	cfg.Tokens.RefreshSecret = []byte("test-refresh-secret-0123456789abcde")
	// Small argon2 costs keep the suite fast.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

type testRig struct {
	engine *Engine
	store  *fakeStore
	mailer *fakeMailer
	now    time.Time
}

func newTestRig(t *testing.T, cfg Config) *testRig {
	t.Helper()

	rig := &testRig{
		store:  newFakeStore(),
		mailer: &fakeMailer{},
		now:    time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}

	engine, err := New().
		WithConfig(cfg).
		WithStore(rig.store).
		WithMailer(rig.mailer).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	engine.now = func() time.Time { return rig.now }
	rig.engine = engine
	return rig
}

func (r *testRig) advance(d time.Duration) {
	r.now = r.now.Add(d)
}

const testPassword = "Str0ng&Secret!"

// register creates an account through the engine and returns its ID.
func (r *testRig) register(t *testing.T, email string) string {
	t.Helper()
	result, err := r.engine.Register(context.Background(), RegisterRequest{
		Name:     "Test User",
		Email:    email,
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return result.AccountID
}
