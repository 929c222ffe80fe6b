package authcore

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/medinest/authcore/password"
)

// Display names are letters and spaces only, 3 to 50 characters.
var nameRe = regexp.MustCompile(`^[a-zA-Z\s]{3,50}$`)

// Register creates an account and signs it in immediately. Unlike login,
// registration is allowed to reveal that an email is already taken.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.verifyCaptcha(ctx, req.CaptchaToken); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if !nameRe.MatchString(name) {
		return nil, ErrNameInvalid
	}

	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, ErrInvalidCredentials
	}

	if violations := (password.Policy{}).Validate(req.Password); len(violations) > 0 {
		return nil, &PolicyError{Violations: violations}
	}

	existing, err := e.store.AccountByEmail(ctx, email)
	if err != nil {
		return nil, storeFault(err)
	}
	if existing != nil {
		return nil, ErrAccountExists
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	acct := &Account{
		ID:                     uuid.NewString(),
		Email:                  email,
		Name:                   name,
		AvatarURL:              req.AvatarURL,
		Role:                   RoleUser,
		IsActive:               true,
		PasswordHash:           hash,
		PreviousPasswordHashes: []string{hash},
		PasswordChangedAt:      now,
		CreatedAt:              now,
	}

	// A concurrent registration can lose the race after the lookup above;
	// the store's uniqueness error passes through untouched.
	if err := e.store.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return nil, err
		}
		return nil, storeFault(err)
	}

	tokens, err := e.issueTokens(ctx, acct)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, AuditEvent{
		EventType: EventRegister,
		AccountID: acct.ID,
		Email:     acct.Email,
		Success:   true,
	})

	return &LoginResult{
		AccountID: acct.ID,
		Tokens:    tokens,
		Account:   publicProjection(acct),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
