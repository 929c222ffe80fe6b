package authcore

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
)

// breakGlassSubject is the reserved subject for emergency admin sessions.
// No stored account ever carries it.
const breakGlassSubject = "break-glass"

// BreakGlassLogin authenticates against the environment-sourced emergency
// credential pair, bypassing the credential store entirely. It mints a
// bounded access token and no refresh token, and it always raises a
// critical admin-access event.
func (e *Engine) BreakGlassLogin(ctx context.Context, email, password string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	cfg := e.config.BreakGlass
	if cfg.Email == "" || cfg.Password == "" {
		return nil, ErrInvalidCredentials
	}

	// Hash before comparing so the comparison length leaks nothing about
	// the configured values.
	emailOK := constantTimeEqual(normalizeEmail(email), normalizeEmail(cfg.Email))
	passOK := constantTimeEqual(password, cfg.Password)
	if !(emailOK && passOK) {
		e.emitAudit(ctx, AuditEvent{EventType: EventLoginFailed, Email: normalizeEmail(email), Detail: "break glass"})
		return nil, ErrInvalidCredentials
	}

	access, err := e.tokens.MintAccessWithTTL(breakGlassSubject, string(RoleAdmin), cfg.AccessTTL)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, AuditEvent{EventType: EventAdminAccess, AccountID: breakGlassSubject, Success: true, Detail: "break glass"})
	e.recordCritical(ctx, EventAdminAccess, breakGlassSubject)

	return &TokenPair{AccessToken: access}, nil
}

func constantTimeEqual(a, b string) bool {
	ah := sha256.Sum256([]byte(a))
	bh := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ah[:], bh[:]) == 1
}
