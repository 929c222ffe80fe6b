package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterIssuesTokens(t *testing.T) {
	rig := newTestRig(t, testConfig())

	result, err := rig.engine.Register(context.Background(), RegisterRequest{
		Name:     "Grace Hopper",
		Email:    "  Grace@Example.COM ",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if result.Tokens == nil || result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
	if result.Account.Email != "grace@example.com" {
		t.Fatalf("email not normalized: %q", result.Account.Email)
	}

	acct := rig.store.raw(t, result.AccountID)
	if acct.Role != RoleUser {
		t.Fatalf("new accounts must default to user role, got %q", acct.Role)
	}
	if len(acct.PreviousPasswordHashes) != 1 || acct.PreviousPasswordHashes[0] != acct.PasswordHash {
		t.Fatal("history must be seeded with the initial hash")
	}
	if len(acct.RefreshTokenHashes) != 1 {
		t.Fatalf("expected one anchored refresh hash, got %d", len(acct.RefreshTokenHashes))
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.register(t, "dup@example.com")

	_, err := rig.engine.Register(context.Background(), RegisterRequest{
		Name:     "Second Try",
		Email:    "DUP@example.com",
		Password: testPassword,
	})
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestRegisterNameValidation(t *testing.T) {
	rig := newTestRig(t, testConfig())

	for _, name := range []string{"ab", "name-with-dash", "x2y2", "", "   "} {
		_, err := rig.engine.Register(context.Background(), RegisterRequest{
			Name:     name,
			Email:    "name@example.com",
			Password: testPassword,
		})
		if !errors.Is(err, ErrNameInvalid) {
			t.Fatalf("name %q: expected ErrNameInvalid, got %v", name, err)
		}
	}
}

func TestRegisterWeakPassword(t *testing.T) {
	rig := newTestRig(t, testConfig())

	_, err := rig.engine.Register(context.Background(), RegisterRequest{
		Name:     "Weak Password",
		Email:    "weak@example.com",
		Password: "short",
	})
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected policy error, got %v", err)
	}

	var policy *PolicyError
	if !errors.As(err, &policy) || len(policy.Violations) == 0 {
		t.Fatalf("expected violations, got %v", err)
	}
}

func TestRegisterCaptchaGate(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.engine.captcha = CaptchaVerifierFunc(func(_ context.Context, token, _ string) (bool, error) {
		return token == "good", nil
	})

	_, err := rig.engine.Register(context.Background(), RegisterRequest{
		Name:         "Captcha Fail",
		Email:        "captcha@example.com",
		Password:     testPassword,
		CaptchaToken: "bad",
	})
	if !errors.Is(err, ErrCaptchaFailed) {
		t.Fatalf("expected ErrCaptchaFailed, got %v", err)
	}

	_, err = rig.engine.Register(context.Background(), RegisterRequest{
		Name:         "Captcha Pass",
		Email:        "captcha@example.com",
		Password:     testPassword,
		CaptchaToken: "good",
	})
	if err != nil {
		t.Fatalf("expected success with passing captcha, got %v", err)
	}
}
