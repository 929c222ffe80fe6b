package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoginSuccess(t *testing.T) {
	rig := newTestRig(t, testConfig())
	id := rig.register(t, "login@example.com")

	result, err := rig.engine.Login(context.Background(), LoginRequest{
		Email:    "Login@Example.com",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.TwoFactorRequired {
		t.Fatal("two-factor must be off by default")
	}
	if result.AccountID != id || result.Tokens == nil {
		t.Fatal("expected tokens for the registered account")
	}
}

func TestLoginUnknownEmailIsGeneric(t *testing.T) {
	rig := newTestRig(t, testConfig())

	_, err := rig.engine.Login(context.Background(), LoginRequest{
		Email:    "nobody@example.com",
		Password: testPassword,
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	var creds *CredentialsError
	if errors.As(err, &creds) {
		t.Fatal("unknown accounts must not leak remaining attempts")
	}
}

func TestLoginWrongPasswordCountsDown(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.register(t, "count@example.com")

	_, err := rig.engine.Login(context.Background(), LoginRequest{
		Email:    "count@example.com",
		Password: "Wrong#Pass1",
	})
	var creds *CredentialsError
	if !errors.As(err, &creds) {
		t.Fatalf("expected CredentialsError, got %v", err)
	}
	if creds.RemainingAttempts != 4 {
		t.Fatalf("expected 4 remaining attempts, got %d", creds.RemainingAttempts)
	}
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("CredentialsError must match ErrInvalidCredentials")
	}
}

func TestLoginLockoutAfterThreshold(t *testing.T) {
	rig := newTestRig(t, testConfig())
	id := rig.register(t, "lock@example.com")

	var err error
	for i := 0; i < 5; i++ {
		_, err = rig.engine.Login(context.Background(), LoginRequest{
			Email:    "lock@example.com",
			Password: "Wrong#Pass1",
		})
	}
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError on fifth failure, got %v", err)
	}
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatal("LockedError must match ErrAccountLocked")
	}
	if locked.RemainingMinutes() != 15 {
		t.Fatalf("expected 15 minutes remaining, got %d", locked.RemainingMinutes())
	}
	if rig.store.raw(t, id).LockedUntil == nil {
		t.Fatal("lock must be persisted")
	}

	// The right password does not open a locked account.
	_, err = rig.engine.Login(context.Background(), LoginRequest{
		Email:    "lock@example.com",
		Password: testPassword,
	})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("locked account accepted a login: %v", err)
	}
}

func TestLoginLockExpiresOnCorrectPassword(t *testing.T) {
	rig := newTestRig(t, testConfig())
	id := rig.register(t, "expire@example.com")

	for i := 0; i < 5; i++ {
		_, _ = rig.engine.Login(context.Background(), LoginRequest{
			Email:    "expire@example.com",
			Password: "Wrong#Pass1",
		})
	}
	rig.advance(16 * time.Minute)

	result, err := rig.engine.Login(context.Background(), LoginRequest{
		Email:    "expire@example.com",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("login after lock expiry failed: %v", err)
	}
	if result.Tokens == nil {
		t.Fatal("expected tokens after lock expiry")
	}

	acct := rig.store.raw(t, id)
	if acct.LockedUntil != nil || acct.FailedLoginAttempts != 0 {
		t.Fatal("lock and counter must clear on the correct password")
	}
}

func TestLoginWrongPasswordAfterLockExpiryRelocks(t *testing.T) {
	rig := newTestRig(t, testConfig())
	id := rig.register(t, "relock@example.com")

	for i := 0; i < 5; i++ {
		_, _ = rig.engine.Login(context.Background(), LoginRequest{
			Email:    "relock@example.com",
			Password: "Wrong#Pass1",
		})
	}
	rig.advance(16 * time.Minute)

	// The elapsed lock does not refund the attempt budget: a wrong password
	// increments the stale counter past the threshold and re-locks.
	_, err := rig.engine.Login(context.Background(), LoginRequest{
		Email:    "relock@example.com",
		Password: "Wrong#Pass1",
	})
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError on a wrong password after expiry, got %v", err)
	}
	if locked.RemainingMinutes() != 15 {
		t.Fatalf("expected a fresh 15 minute lock, got %d", locked.RemainingMinutes())
	}

	acct := rig.store.raw(t, id)
	if acct.LockedUntil == nil || !acct.LockedUntil.After(rig.now) {
		t.Fatal("a new lock must be persisted")
	}
	if acct.FailedLoginAttempts < 6 {
		t.Fatalf("counter must keep growing from the stale value, got %d", acct.FailedLoginAttempts)
	}
}

func TestLoginSuccessResetsCounter(t *testing.T) {
	rig := newTestRig(t, testConfig())
	id := rig.register(t, "reset@example.com")

	for i := 0; i < 4; i++ {
		_, _ = rig.engine.Login(context.Background(), LoginRequest{
			Email:    "reset@example.com",
			Password: "Wrong#Pass1",
		})
	}
	if _, err := rig.engine.Login(context.Background(), LoginRequest{
		Email:    "reset@example.com",
		Password: testPassword,
	}); err != nil {
		t.Fatalf("login at 4 failures failed: %v", err)
	}
	if rig.store.raw(t, id).FailedLoginAttempts != 0 {
		t.Fatal("success must reset the failure counter")
	}
}

func TestLoginStoreFaultIsOpaque(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.register(t, "fault@example.com")
	rig.store.failWith = errors.New("dial tcp 10.0.0.5:5432: connection refused")

	_, err := rig.engine.Login(context.Background(), LoginRequest{
		Email:    "fault@example.com",
		Password: testPassword,
	})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("a backend fault must not read as a credential failure")
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	rig := newTestRig(t, testConfig())
	id := rig.register(t, "inactive@example.com")
	rig.store.raw(t, id).IsActive = false

	_, err := rig.engine.Login(context.Background(), LoginRequest{
		Email:    "inactive@example.com",
		Password: testPassword,
	})
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestLoginPasswordExpiredFlag(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.register(t, "aged@example.com")
	rig.advance(91 * 24 * time.Hour)

	result, err := rig.engine.Login(context.Background(), LoginRequest{
		Email:    "aged@example.com",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("aged password must still log in: %v", err)
	}
	if !result.PasswordExpired {
		t.Fatal("expected the password-expired flag after 90 days")
	}
}

func TestAuthenticateZeroTrust(t *testing.T) {
	rig := newTestRig(t, testConfig())
	id := rig.register(t, "ztrust@example.com")

	result, err := rig.engine.Login(context.Background(), LoginRequest{
		Email:    "ztrust@example.com",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	auth, err := rig.engine.Authenticate(context.Background(), result.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if auth.AccountID != id || auth.Role != RoleUser {
		t.Fatalf("unexpected auth result: %+v", auth)
	}

	// Deactivation kills the token before expiry.
	rig.store.raw(t, id).IsActive = false
	if _, err := rig.engine.Authenticate(context.Background(), result.Tokens.AccessToken); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive for deactivated account, got %v", err)
	}

	if _, err := rig.engine.Authenticate(context.Background(), "not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}
}
