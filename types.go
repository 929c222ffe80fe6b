package authcore

import (
	"context"
	"time"
)

// Role is the account's authorization tier.
type Role string

const (
	// RoleUser is the default role for registered shoppers.
	RoleUser Role = "user"
	// RoleAdmin marks back-office accounts; admin logins are always
	// recorded as critical security events.
	RoleAdmin Role = "admin"
)

// TwoFactorMethod identifies which second factor an account uses.
type TwoFactorMethod string

const (
	// TwoFactorEmail delivers a 6-digit code to the account's email.
	TwoFactorEmail TwoFactorMethod = "email"
	// TwoFactorTOTP expects a code from the account's authenticator app.
	TwoFactorTOTP TwoFactorMethod = "totp"
)

// OneTimeCode is the ephemeral code state embedded in an account record.
// Login codes keep Value in plaintext (short-lived, low value); reset codes
// keep only the argon2 hash of the code. One instance exists per purpose at
// a time: issuing a new code replaces the prior one wholesale.
type OneTimeCode struct {
	Value     string
	ExpiresAt time.Time
	Attempts  int
}

// Expired reports whether the code can no longer be redeemed at now.
func (c *OneTimeCode) Expired(now time.Time) bool {
	return c == nil || c.Value == "" || now.After(c.ExpiresAt)
}

// Account is the persisted credential record, one per registered user.
// Accounts are never hard-deleted by this engine; deactivation is a flag.
type Account struct {
	ID        string
	Email     string // unique, stored lowercase
	Name      string
	AvatarURL string
	Role      Role
	IsActive  bool

	PasswordHash string
	// PreviousPasswordHashes is most-recent-first and capped at the
	// configured history depth. The current hash is always element zero.
	PreviousPasswordHashes []string
	PasswordChangedAt      time.Time

	FailedLoginAttempts int
	LockedUntil         *time.Time

	TwoFactorEnabled bool
	LoginOTP         *OneTimeCode
	ResetOTP         *OneTimeCode
	// TOTPSecret and PendingTOTPSecret are AES-256-GCM sealed; the engine
	// never hands the store a plaintext authenticator secret.
	TOTPSecret        []byte
	PendingTOTPSecret []byte

	// RefreshTokenHashes holds hex SHA-256 digests of every refresh token
	// currently valid for the account. Plaintext tokens are never at rest.
	RefreshTokenHashes []string

	CreatedAt time.Time
}

// Locked reports whether a lockout is active at now. Expiry is lazy: the
// field is only cleared by the next successful password match.
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// SecondFactor returns the method the account's next login must satisfy:
// TOTP when an authenticator secret is active, email OTP otherwise.
func (a *Account) SecondFactor() TwoFactorMethod {
	if len(a.TOTPSecret) > 0 {
		return TwoFactorTOTP
	}
	return TwoFactorEmail
}

// PublicAccount is the projection safe to return to clients. It never
// includes hashes, codes, or secrets.
type PublicAccount struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// TokenPair is a freshly minted access + refresh token set. Both values are
// returned in plaintext exactly once, for cookie or header delivery.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is returned by Login and by the second-factor verification
// operations. When TwoFactorRequired is set no tokens have been issued yet;
// the caller must come back through VerifyLoginCode or VerifyLoginTOTP with
// the echoed AccountID.
type LoginResult struct {
	TwoFactorRequired bool
	TwoFactorMethod   TwoFactorMethod
	AccountID         string

	Tokens          *TokenPair
	PasswordExpired bool
	Account         *PublicAccount
}

// AuthResult is returned by Authenticate for every bearer-token request.
type AuthResult struct {
	AccountID       string
	Role            Role
	PasswordExpired bool
	Account         *PublicAccount
}

// TOTPSetup carries the provisioning material from BeginTOTPSetup. The
// secret is also held server-side, unconfirmed, until ConfirmTOTPSetup
// succeeds.
type TOTPSetup struct {
	SecretBase32 string
	URI          string
	QRCodePNG    []byte
}

// RegisterRequest is the input to Register.
type RegisterRequest struct {
	Name         string
	Email        string
	Password     string
	AvatarURL    string
	CaptchaToken string
}

// LoginRequest is the input to Login.
type LoginRequest struct {
	Email        string
	Password     string
	CaptchaToken string
}

// CredentialStore is the persistence contract the engine runs against.
// Implementations must make the increment operations atomic
// increment-and-fetch, and RemoveRefreshTokenHash an atomic test-and-remove,
// so concurrent attempts against one account cannot lose updates.
//
// Lookup misses return (nil, nil); duplicate emails on create return
// [ErrAccountExists]. Any other failure should wrap [ErrStoreUnavailable].
type CredentialStore interface {
	CreateAccount(ctx context.Context, acct *Account) error
	AccountByEmail(ctx context.Context, email string) (*Account, error)
	AccountByID(ctx context.Context, id string) (*Account, error)

	// IncrementFailedLogins atomically bumps the failure counter and
	// returns the new value.
	IncrementFailedLogins(ctx context.Context, id string) (int, error)
	SetLockedUntil(ctx context.Context, id string, until time.Time) error
	// ResetLockout zeroes the failure counter and clears any lock.
	ResetLockout(ctx context.Context, id string) error

	// UpdatePassword replaces the hash, history, and change timestamp in a
	// single write.
	UpdatePassword(ctx context.Context, id, hash string, history []string, changedAt time.Time) error

	// SetLoginOTP / SetResetOTP replace the code state wholesale; nil
	// clears it.
	SetLoginOTP(ctx context.Context, id string, code *OneTimeCode) error
	IncrementLoginOTPAttempts(ctx context.Context, id string) (int, error)
	SetResetOTP(ctx context.Context, id string, code *OneTimeCode) error
	IncrementResetOTPAttempts(ctx context.Context, id string) (int, error)

	SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error
	SetPendingTOTPSecret(ctx context.Context, id string, sealed []byte) error
	// ActivateTOTPSecret promotes the sealed secret to active and clears
	// the pending slot in a single write.
	ActivateTOTPSecret(ctx context.Context, id string, sealed []byte) error
	ClearTOTPSecret(ctx context.Context, id string) error

	AddRefreshTokenHash(ctx context.Context, id, hash string) error
	// RemoveRefreshTokenHash reports whether the hash was present. A false
	// return on a syntactically valid token is the replay signal.
	RemoveRefreshTokenHash(ctx context.Context, id, hash string) (bool, error)
	ClearRefreshTokenHashes(ctx context.Context, id string) error
}

// Mailer delivers one-time codes out of band. Send reports delivery
// failure; the engine fails the surrounding operation rather than leaving
// the caller waiting for a code that never left the building.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// CaptchaVerifier is the external boolean gate consulted before
// registration and login. A nil verifier disables the gate.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}
