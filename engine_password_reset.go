package authcore

import (
	"context"
	"fmt"

	"github.com/medinest/authcore/internal"
	"github.com/medinest/authcore/password"
)

// RequestPasswordReset emails a reset code to the account, if one exists.
// The outcome is identical for known and unknown emails; only delivery
// failures for real accounts surface an error.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	acct, err := e.store.AccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return storeFault(err)
	}
	if acct == nil || !acct.IsActive {
		return nil
	}

	code, err := internal.NewOTP(e.config.ResetOTP.Digits)
	if err != nil {
		return err
	}

	// Reset codes are stored hashed. A database read must not be enough
	// to take over an account mid-reset.
	hashed, err := e.hasher.Hash(code)
	if err != nil {
		return err
	}

	otp := &OneTimeCode{
		Value:     hashed,
		ExpiresAt: e.clock().Add(e.config.ResetOTP.TTL),
	}
	if err := e.store.SetResetOTP(ctx, acct.ID, otp); err != nil {
		return storeFault(err)
	}

	body := fmt.Sprintf(
		"Your MediNest password reset code is %s. It expires in %d minutes. If you did not request a reset, you can ignore this email.",
		code, int(e.config.ResetOTP.TTL.Minutes()),
	)
	if err := e.mailer.Send(ctx, acct.Email, "Reset your MediNest password", body); err != nil {
		return ErrDeliveryFailed
	}

	e.emitAudit(ctx, AuditEvent{EventType: EventPasswordResetRequest, AccountID: acct.ID, Email: acct.Email, Success: true})
	return nil
}

// VerifyResetCode checks a reset code without consuming it, so a client
// can validate before collecting the new password. Failed checks still
// spend the attempt budget.
func (e *Engine) VerifyResetCode(ctx context.Context, email, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	acct, err := e.store.AccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return storeFault(err)
	}
	if acct == nil {
		return ErrCodeInvalid
	}

	return e.checkResetCode(ctx, acct, code)
}

// CommitPasswordReset re-verifies the code and installs the new password.
// The commit voids the code, clears any lockout, and revokes every
// refresh token the account holds.
func (e *Engine) CommitPasswordReset(ctx context.Context, email, code, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	acct, err := e.store.AccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return storeFault(err)
	}
	if acct == nil {
		return ErrCodeInvalid
	}

	// The code is re-checked at commit: verification does not consume it,
	// and the window may have closed in between.
	if err := e.checkResetCode(ctx, acct, code); err != nil {
		return err
	}

	if err := e.installPassword(ctx, acct, newPassword); err != nil {
		return err
	}

	if err := e.store.SetResetOTP(ctx, acct.ID, nil); err != nil {
		return storeFault(err)
	}
	if err := e.store.ResetLockout(ctx, acct.ID); err != nil {
		return storeFault(err)
	}
	if err := e.store.ClearRefreshTokenHashes(ctx, acct.ID); err != nil {
		return storeFault(err)
	}

	e.emitAudit(ctx, AuditEvent{EventType: EventPasswordResetSuccess, AccountID: acct.ID, Email: acct.Email, Success: true})
	return nil
}

func (e *Engine) checkResetCode(ctx context.Context, acct *Account, code string) error {
	otp := acct.ResetOTP
	if otp == nil {
		return ErrCodeInvalid
	}

	if otp.Expired(e.clock()) {
		if err := e.store.SetResetOTP(ctx, acct.ID, nil); err != nil {
			return storeFault(err)
		}
		return ErrCodeExpired
	}
	if otp.Attempts >= e.config.ResetOTP.MaxAttempts {
		return e.exhaustResetCode(ctx, acct)
	}

	ok, err := e.hasher.Verify(code, otp.Value)
	if err != nil {
		return ErrCodeInvalid
	}
	if !ok {
		count, err := e.store.IncrementResetOTPAttempts(ctx, acct.ID)
		if err != nil {
			return storeFault(err)
		}
		if count >= e.config.ResetOTP.MaxAttempts {
			return e.exhaustResetCode(ctx, acct)
		}
		e.emitAudit(ctx, AuditEvent{EventType: EventOTPFailed, AccountID: acct.ID, Email: acct.Email, Detail: "reset"})
		return ErrCodeInvalid
	}

	return nil
}

func (e *Engine) exhaustResetCode(ctx context.Context, acct *Account) error {
	if err := e.store.SetResetOTP(ctx, acct.ID, nil); err != nil {
		return storeFault(err)
	}
	e.emitAudit(ctx, AuditEvent{EventType: EventOTPMaxAttempts, AccountID: acct.ID, Email: acct.Email, Detail: "reset"})
	e.recordCritical(ctx, EventOTPMaxAttempts, acct.ID)
	return ErrTooManyAttempts
}

// installPassword runs the policy and reuse checks, then writes the new
// hash and the trimmed history.
func (e *Engine) installPassword(ctx context.Context, acct *Account, newPassword string) error {
	if violations := (password.Policy{}).Validate(newPassword); len(violations) > 0 {
		return &PolicyError{Violations: violations}
	}

	for _, old := range acct.PreviousPasswordHashes {
		match, err := e.hasher.Verify(newPassword, old)
		if err != nil {
			continue
		}
		if match {
			return &PolicyError{Violations: []string{
				fmt.Sprintf("password must differ from your last %d passwords", e.config.Password.HistoryDepth),
			}}
		}
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	history := append([]string{hash}, acct.PreviousPasswordHashes...)
	if len(history) > e.config.Password.HistoryDepth {
		history = history[:e.config.Password.HistoryDepth]
	}

	if err := e.store.UpdatePassword(ctx, acct.ID, hash, history, e.clock()); err != nil {
		return storeFault(err)
	}
	return nil
}
