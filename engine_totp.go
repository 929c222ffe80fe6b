package authcore

import (
	"context"

	qrcode "github.com/skip2/go-qrcode"
)

// BeginTOTPSetup provisions a new authenticator secret. The secret stays
// pending, held server side, until a code generated from it is confirmed;
// login challenges keep using the previous factor in the meantime.
func (e *Engine) BeginTOTPSetup(ctx context.Context, accountID string) (*TOTPSetup, error) {
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

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	sealed, err := e.totp.Seal(secret)
	if err != nil {
		return nil, err
	}
	if err := e.store.SetPendingTOTPSecret(ctx, acct.ID, sealed); err != nil {
		return nil, storeFault(err)
	}

	uri := e.totp.ProvisionURI(secretBase32, acct.Email)
	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		return nil, err
	}

	return &TOTPSetup{
		SecretBase32: secretBase32,
		URI:          uri,
		QRCodePNG:    png,
	}, nil
}

// ConfirmTOTPSetup activates the pending secret once the user proves their
// authenticator produces matching codes.
func (e *Engine) ConfirmTOTPSetup(ctx context.Context, accountID, code string) error {
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
	if len(acct.PendingTOTPSecret) == 0 {
		return ErrTOTPNotConfigured
	}

	secret, err := e.totp.Open(acct.PendingTOTPSecret)
	if err != nil {
		return err
	}

	ok, _, err := e.totp.VerifyCode(secret, code, e.clock())
	if err != nil {
		return err
	}
	if !ok {
		return ErrCodeInvalid
	}

	if err := e.store.ActivateTOTPSecret(ctx, acct.ID, acct.PendingTOTPSecret); err != nil {
		return storeFault(err)
	}
	if err := e.store.SetTwoFactorEnabled(ctx, acct.ID, true); err != nil {
		return storeFault(err)
	}

	e.emitAudit(ctx, AuditEvent{EventType: EventTOTPEnabled, AccountID: acct.ID, Email: acct.Email, Success: true})
	return nil
}

// DisableTOTP removes the authenticator secret. The current password is
// required; a hijacked session alone must not be able to weaken the
// account. Two-factor stays enabled and falls back to email codes.
func (e *Engine) DisableTOTP(ctx context.Context, accountID, currentPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	acct, err := e.verifyAccountPassword(ctx, accountID, currentPassword)
	if err != nil {
		return err
	}
	if len(acct.TOTPSecret) == 0 && len(acct.PendingTOTPSecret) == 0 {
		return ErrTOTPNotConfigured
	}

	if err := e.store.ClearTOTPSecret(ctx, acct.ID); err != nil {
		return storeFault(err)
	}

	e.emitAudit(ctx, AuditEvent{EventType: EventTOTPDisabled, AccountID: acct.ID, Email: acct.Email, Success: true})
	return nil
}

// SetTwoFactor turns the second factor on or off for the account, gated on
// the current password.
func (e *Engine) SetTwoFactor(ctx context.Context, accountID string, enabled bool, currentPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	acct, err := e.verifyAccountPassword(ctx, accountID, currentPassword)
	if err != nil {
		return err
	}

	if err := e.store.SetTwoFactorEnabled(ctx, acct.ID, enabled); err != nil {
		return storeFault(err)
	}

	event := EventTwoFactorDisabled
	if enabled {
		event = EventTwoFactorEnabled
	}
	e.emitAudit(ctx, AuditEvent{EventType: event, AccountID: acct.ID, Email: acct.Email, Success: true})
	return nil
}

func (e *Engine) verifyAccountPassword(ctx context.Context, accountID, currentPassword string) (*Account, error) {
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

	ok, err := e.hasher.Verify(currentPassword, acct.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return acct, nil
}
