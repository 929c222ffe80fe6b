package authcore

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrInvalidCredentials covers wrong password and wrong verification
	// codes. Login deliberately returns it for unknown accounts too, so the
	// response never reveals whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotFound is returned where plain disclosure is acceptable
	// (authenticated operations, token validation).
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned by registration for duplicate emails.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountInactive rejects deactivated accounts at login and on every
	// authenticated request.
	ErrAccountInactive = errors.New("account has been deactivated")
	// ErrAccountLocked rejects login attempts while a lockout is active.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrCodeExpired means the one-time code is absent or past its expiry.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeInvalid means the presented one-time code did not match.
	ErrCodeInvalid = errors.New("invalid verification code")
	// ErrTooManyAttempts means the code's attempt budget is exhausted; the
	// code is invalidated and a fresh one must be requested.
	ErrTooManyAttempts = errors.New("too many verification attempts")
	// ErrPasswordPolicy covers strength and reuse violations; the concrete
	// error is always a [PolicyError] carrying the itemized list.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrNameInvalid rejects registration names outside the allowed format.
	ErrNameInvalid = errors.New("name must contain only letters and be 3-50 characters long")
	// ErrTOTPNotConfigured rejects TOTP operations on accounts without an
	// active authenticator secret.
	ErrTOTPNotConfigured = errors.New("authenticator app not configured")
	// ErrTokenInvalid covers malformed, forged, and expired tokens.
	ErrTokenInvalid = errors.New("invalid or expired token")
	// ErrTokenRevoked is terminal for a refresh token: its hash is no longer
	// in the account's set, either by rotation, logout, or password reset.
	ErrTokenRevoked = errors.New("refresh token revoked")
	// ErrCaptchaFailed rejects the request before any account lookup.
	ErrCaptchaFailed = errors.New("captcha verification failed")
	// ErrDeliveryFailed surfaces a failed outbound email. Retryable, and
	// deliberately distinct from credential errors.
	ErrDeliveryFailed = errors.New("failed to send verification code")
	// ErrStoreUnavailable wraps unexpected persistence faults so callers
	// see one opaque error regardless of backend. Match with errors.Is.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrEngineNotReady is returned when the engine was not built with its
	// required collaborators.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockedError reports an active lockout together with the remaining wait.
// It matches [ErrAccountLocked] under errors.Is.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account temporarily locked, try again in %d minutes", e.RemainingMinutes())
}

func (e *LockedError) Is(target error) bool { return target == ErrAccountLocked }

// RemainingMinutes rounds the wait up to whole minutes for display.
func (e *LockedError) RemainingMinutes() int {
	return int(math.Ceil(e.Remaining.Minutes()))
}

// CredentialsError reports a failed password check together with the number
// of attempts left before lockout. It matches [ErrInvalidCredentials] under
// errors.Is.
type CredentialsError struct {
	RemainingAttempts int
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("invalid credentials, %d attempts remaining before lockout", e.RemainingAttempts)
}

func (e *CredentialsError) Is(target error) bool { return target == ErrInvalidCredentials }

// PolicyError itemizes every rule a candidate password violated, never just
// the first. It matches [ErrPasswordPolicy] under errors.Is.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return "password policy violation: " + strings.Join(e.Violations, "; ")
}

func (e *PolicyError) Is(target error) bool { return target == ErrPasswordPolicy }
