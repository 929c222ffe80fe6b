package authcore

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/medinest/authcore/internal"
)

// Login checks the password and either issues tokens or opens a two-factor
// challenge. Unknown emails and wrong passwords both come back as
// ErrInvalidCredentials so the endpoint cannot be used to probe for
// accounts.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.verifyCaptcha(ctx, req.CaptchaToken); err != nil {
		return nil, err
	}

	email := normalizeEmail(req.Email)
	acct, err := e.store.AccountByEmail(ctx, email)
	if err != nil {
		return nil, storeFault(err)
	}
	if acct == nil {
		e.emitAudit(ctx, AuditEvent{EventType: EventLoginFailed, Email: email, Detail: "unknown account"})
		return nil, ErrInvalidCredentials
	}
	if !acct.IsActive {
		return nil, ErrAccountInactive
	}

	now := e.clock()
	if acct.Locked(now) {
		e.emitAudit(ctx, AuditEvent{EventType: EventLoginFailed, AccountID: acct.ID, Email: email, Detail: "account locked"})
		return nil, &LockedError{Remaining: acct.LockedUntil.Sub(now)}
	}

	ok, err := e.hasher.Verify(req.Password, acct.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A wrong password after the lock elapsed increments the stale
		// counter, which is already at the threshold, so the account
		// re-locks immediately.
		return nil, e.recordFailedLogin(ctx, acct)
	}

	// An elapsed lock clears only on a correct password.
	if acct.FailedLoginAttempts > 0 || acct.LockedUntil != nil {
		if err := e.store.ResetLockout(ctx, acct.ID); err != nil {
			return nil, storeFault(err)
		}
	}

	if acct.TwoFactorEnabled {
		return e.openSecondFactor(ctx, acct)
	}

	return e.completeLogin(ctx, acct)
}

// recordFailedLogin bumps the failure counter and locks the account once
// the threshold is reached. The increment is atomic in the store, so
// concurrent failures cannot overshoot without locking.
func (e *Engine) recordFailedLogin(ctx context.Context, acct *Account) error {
	count, err := e.store.IncrementFailedLogins(ctx, acct.ID)
	if err != nil {
		return storeFault(err)
	}

	if count >= e.config.Lockout.Threshold {
		until := e.clock().Add(e.config.Lockout.Duration)
		if err := e.store.SetLockedUntil(ctx, acct.ID, until); err != nil {
			return storeFault(err)
		}
		e.emitAudit(ctx, AuditEvent{EventType: EventAccountLocked, AccountID: acct.ID, Email: acct.Email})
		e.recordCritical(ctx, EventAccountLocked, acct.ID)
		return &LockedError{Remaining: e.config.Lockout.Duration}
	}

	e.emitAudit(ctx, AuditEvent{EventType: EventLoginFailed, AccountID: acct.ID, Email: acct.Email, Detail: "wrong password"})
	return &CredentialsError{RemainingAttempts: e.config.Lockout.Threshold - count}
}

// openSecondFactor starts the enabled second-factor challenge. TOTP
// accounts get no email; the caller prompts for the authenticator code.
func (e *Engine) openSecondFactor(ctx context.Context, acct *Account) (*LoginResult, error) {
	method := acct.SecondFactor()
	if method == TwoFactorEmail {
		if err := e.sendLoginCode(ctx, acct); err != nil {
			return nil, err
		}
	}
	return &LoginResult{
		TwoFactorRequired: true,
		TwoFactorMethod:   method,
		AccountID:         acct.ID,
	}, nil
}

func (e *Engine) completeLogin(ctx context.Context, acct *Account) (*LoginResult, error) {
	tokens, err := e.issueTokens(ctx, acct)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, AuditEvent{EventType: EventLoginSuccess, AccountID: acct.ID, Email: acct.Email, Success: true})
	if acct.Role == RoleAdmin {
		e.recordCritical(ctx, EventAdminAccess, acct.ID)
	}

	return &LoginResult{
		AccountID:       acct.ID,
		Tokens:          tokens,
		PasswordExpired: e.passwordExpired(acct),
		Account:         publicProjection(acct),
	}, nil
}

// sendLoginCode issues a fresh code, replacing any outstanding one and its
// attempt count. Delivery failure fails the request; a challenge the user
// can never answer helps nobody.
func (e *Engine) sendLoginCode(ctx context.Context, acct *Account) error {
	code, err := internal.NewOTP(e.config.LoginOTP.Digits)
	if err != nil {
		return err
	}

	otp := &OneTimeCode{
		Value:     code,
		ExpiresAt: e.clock().Add(e.config.LoginOTP.TTL),
	}
	if err := e.store.SetLoginOTP(ctx, acct.ID, otp); err != nil {
		return storeFault(err)
	}

	body := fmt.Sprintf(
		"Your MediNest sign-in code is %s. It expires in %d minutes. If you did not try to sign in, change your password now.",
		code, int(e.config.LoginOTP.TTL.Minutes()),
	)
	if err := e.mailer.Send(ctx, acct.Email, "Your MediNest sign-in code", body); err != nil {
		return ErrDeliveryFailed
	}

	e.emitAudit(ctx, AuditEvent{EventType: EventOTPSent, AccountID: acct.ID, Email: acct.Email, Success: true})
	return nil
}

// ResendLoginCode re-issues the email challenge for a pending two-factor
// login. The new code voids the old one and resets its attempt budget.
func (e *Engine) ResendLoginCode(ctx context.Context, accountID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	acct, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return storeFault(err)
	}
	if acct == nil {
		return ErrAccountNotFound
	}
	if !acct.IsActive {
		return ErrAccountInactive
	}
	if !acct.TwoFactorEnabled || acct.SecondFactor() != TwoFactorEmail {
		return ErrCodeInvalid
	}

	return e.sendLoginCode(ctx, acct)
}

// VerifyLoginCode closes an email two-factor challenge. The attempt budget
// is spent before the value is compared, and exhausting it voids the code.
func (e *Engine) VerifyLoginCode(ctx context.Context, accountID, code string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	acct, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return nil, storeFault(err)
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}
	if !acct.IsActive {
		return nil, ErrAccountInactive
	}

	otp := acct.LoginOTP
	if otp == nil {
		return nil, ErrCodeInvalid
	}

	now := e.clock()
	if otp.Expired(now) {
		if err := e.store.SetLoginOTP(ctx, acct.ID, nil); err != nil {
			return nil, storeFault(err)
		}
		return nil, ErrCodeExpired
	}
	if otp.Attempts >= e.config.LoginOTP.MaxAttempts {
		return nil, e.exhaustLoginCode(ctx, acct)
	}

	if subtle.ConstantTimeCompare([]byte(otp.Value), []byte(code)) != 1 {
		count, err := e.store.IncrementLoginOTPAttempts(ctx, acct.ID)
		if err != nil {
			return nil, storeFault(err)
		}
		if count >= e.config.LoginOTP.MaxAttempts {
			return nil, e.exhaustLoginCode(ctx, acct)
		}
		e.emitAudit(ctx, AuditEvent{EventType: EventOTPFailed, AccountID: acct.ID, Email: acct.Email})
		return nil, ErrCodeInvalid
	}

	if err := e.store.SetLoginOTP(ctx, acct.ID, nil); err != nil {
		return nil, storeFault(err)
	}

	e.emitAudit(ctx, AuditEvent{EventType: EventOTPVerified, AccountID: acct.ID, Email: acct.Email, Success: true})
	return e.completeLogin(ctx, acct)
}

func (e *Engine) exhaustLoginCode(ctx context.Context, acct *Account) error {
	if err := e.store.SetLoginOTP(ctx, acct.ID, nil); err != nil {
		return storeFault(err)
	}
	e.emitAudit(ctx, AuditEvent{EventType: EventOTPMaxAttempts, AccountID: acct.ID, Email: acct.Email})
	e.recordCritical(ctx, EventOTPMaxAttempts, acct.ID)
	return ErrTooManyAttempts
}

// VerifyLoginTOTP closes a TOTP two-factor challenge.
func (e *Engine) VerifyLoginTOTP(ctx context.Context, accountID, code string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	acct, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return nil, storeFault(err)
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}
	if !acct.IsActive {
		return nil, ErrAccountInactive
	}
	if len(acct.TOTPSecret) == 0 {
		return nil, ErrTOTPNotConfigured
	}

	secret, err := e.totp.Open(acct.TOTPSecret)
	if err != nil {
		return nil, err
	}

	ok, _, err := e.totp.VerifyCode(secret, code, e.clock())
	if err != nil {
		return nil, err
	}
	if !ok {
		e.emitAudit(ctx, AuditEvent{EventType: EventOTPFailed, AccountID: acct.ID, Email: acct.Email, Detail: "totp"})
		return nil, ErrCodeInvalid
	}

	e.emitAudit(ctx, AuditEvent{EventType: EventOTPVerified, AccountID: acct.ID, Email: acct.Email, Success: true, Detail: "totp"})
	return e.completeLogin(ctx, acct)
}
