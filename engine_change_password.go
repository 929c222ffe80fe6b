package authcore

import "context"

// ChangePassword rotates the password of a signed-in account. The current
// password is required even on an authenticated call, and the change
// revokes every refresh token so stolen sessions do not survive it.
func (e *Engine) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
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

	ok, err := e.hasher.Verify(currentPassword, acct.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		e.emitAudit(ctx, AuditEvent{EventType: EventLoginFailed, AccountID: acct.ID, Email: acct.Email, Detail: "password change"})
		return ErrInvalidCredentials
	}

	if err := e.installPassword(ctx, acct, newPassword); err != nil {
		return err
	}

	if err := e.store.ClearRefreshTokenHashes(ctx, acct.ID); err != nil {
		return storeFault(err)
	}

	e.emitAudit(ctx, AuditEvent{EventType: EventPasswordChanged, AccountID: acct.ID, Email: acct.Email, Success: true})
	return nil
}
