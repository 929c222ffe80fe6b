package authcore

import (
	"context"
	"fmt"
	"time"

	"github.com/medinest/authcore/alert"
	"github.com/medinest/authcore/internal"
	"github.com/medinest/authcore/jwt"
	"github.com/medinest/authcore/password"
)

// Engine implements the credential and session lifecycle. It owns no
// transport and no schema; callers supply a CredentialStore and a Mailer
// and mount the operations behind whatever surface they run.
type Engine struct {
	config  Config
	store   CredentialStore
	mailer  Mailer
	captcha CaptchaVerifier
	hasher  *password.Argon2
	tokens  *jwt.Manager
	totp    *totpManager
	audit   *auditDispatcher
	alerts  *alert.Tracker

	// now is swapped in tests.
	now func() time.Time
}

// Close flushes the audit dispatcher. Call it during shutdown.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher's buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

// storeFault folds backend failures into one error callers can match with
// errors.Is(err, ErrStoreUnavailable). The cause rides along for server logs.
func storeFault(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// Authenticate validates an access token and re-checks the account on
// every call. A token minted before a deactivation or deletion stops
// working immediately, not at expiry.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == breakGlassSubject {
		return &AuthResult{AccountID: breakGlassSubject, Role: RoleAdmin}, nil
	}

	acct, err := e.store.AccountByID(ctx, claims.Subject)
	if err != nil {
		return nil, storeFault(err)
	}
	if acct == nil {
		return nil, ErrTokenInvalid
	}
	if !acct.IsActive {
		return nil, ErrAccountInactive
	}

	return &AuthResult{
		AccountID:       acct.ID,
		Role:            acct.Role,
		PasswordExpired: e.passwordExpired(acct),
		Account:         publicProjection(acct),
	}, nil
}

// issueTokens mints an access/refresh pair and anchors the refresh token's
// hash on the account.
func (e *Engine) issueTokens(ctx context.Context, acct *Account) (*TokenPair, error) {
	access, err := e.tokens.MintAccess(acct.ID, string(acct.Role))
	if err != nil {
		return nil, err
	}
	refresh, err := e.tokens.MintRefresh(acct.ID)
	if err != nil {
		return nil, err
	}
	if err := e.store.AddRefreshTokenHash(ctx, acct.ID, internal.HashToken(refresh)); err != nil {
		return nil, storeFault(err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (e *Engine) passwordExpired(acct *Account) bool {
	if e.config.Password.MaxAge <= 0 || acct.PasswordChangedAt.IsZero() {
		return false
	}
	return e.clock().Sub(acct.PasswordChangedAt) > e.config.Password.MaxAge
}

func publicProjection(acct *Account) *PublicAccount {
	return &PublicAccount{
		ID:        acct.ID,
		Name:      acct.Name,
		Email:     acct.Email,
		Role:      acct.Role,
		AvatarURL: acct.AvatarURL,
	}
}

func (e *Engine) emitAudit(ctx context.Context, ev AuditEvent) {
	if e.audit == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = e.clock()
	}
	ev.IP = ClientIP(ctx)
	e.audit.Emit(ev)
}

// recordCritical forwards a critical security event to the alert tracker,
// if one is attached. Tracker failures never fail the calling operation.
func (e *Engine) recordCritical(ctx context.Context, event, accountID string) {
	if e.alerts == nil {
		return
	}
	_, _ = e.alerts.Record(ctx, event, accountID)
}

func (e *Engine) verifyCaptcha(ctx context.Context, token string) error {
	if e.captcha == nil {
		return nil
	}
	ok, err := e.captcha.Verify(ctx, token, ClientIP(ctx))
	if err != nil {
		return err
	}
	if !ok {
		return ErrCaptchaFailed
	}
	return nil
}
