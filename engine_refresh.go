package authcore

import (
	"context"

	"github.com/medinest/authcore/internal"
)

// RefreshSession rotates a refresh token. The presented token is consumed
// atomically; a token that parses but is no longer anchored on the account
// has been rotated or revoked already, which on a single-use scheme means
// either a stale client or a stolen token.
func (e *Engine) RefreshSession(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, ErrTokenInvalid
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

	removed, err := e.store.RemoveRefreshTokenHash(ctx, acct.ID, internal.HashToken(refreshToken))
	if err != nil {
		return nil, storeFault(err)
	}
	if !removed {
		e.emitAudit(ctx, AuditEvent{EventType: EventTokenReplay, AccountID: acct.ID, Email: acct.Email})
		return nil, ErrTokenRevoked
	}

	tokens, err := e.issueTokens(ctx, acct)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, AuditEvent{EventType: EventTokenRefresh, AccountID: acct.ID, Success: true})
	return tokens, nil
}

// Logout revokes the presented refresh token. Revoking a token that is
// already gone is not an error.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return ErrTokenInvalid
	}

	if _, err := e.store.RemoveRefreshTokenHash(ctx, claims.Subject, internal.HashToken(refreshToken)); err != nil {
		return storeFault(err)
	}

	e.emitAudit(ctx, AuditEvent{EventType: EventLogout, AccountID: claims.Subject, Success: true})
	return nil
}

// LogoutAll revokes every refresh token the account holds. Outstanding
// access tokens still expire on their own schedule.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) error {
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

	if err := e.store.ClearRefreshTokenHashes(ctx, accountID); err != nil {
		return storeFault(err)
	}

	e.emitAudit(ctx, AuditEvent{EventType: EventLogoutAll, AccountID: accountID, Success: true})
	return nil
}
