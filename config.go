package authcore

import (
	"errors"
	"time"
)

// Config is the engine's tuning surface. Zero values are filled in from
// [DefaultConfig] during Build; only the secrets have no usable default.
type Config struct {
	Tokens     TokenConfig
	Password   PasswordConfig
	Lockout    LockoutConfig
	LoginOTP   CodeConfig
	ResetOTP   CodeConfig
	TOTP       TOTPConfig
	BreakGlass BreakGlassConfig
	Audit      AuditConfig
	Alerts     AlertConfig
}

// TokenConfig controls the token issuer. Access tokens are stateless and
// short-lived; refresh tokens are long-lived and anchored to the account's
// stored hash set.
type TokenConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// AccessSecret signs access tokens (HS256). RefreshSecret defaults to
	// AccessSecret when empty, but separate keys are recommended.
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
}

// PasswordConfig carries the argon2id parameters plus the history and age
// policies layered on top of hashing.
type PasswordConfig struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// HistoryDepth is how many prior hashes are retained for the reuse
	// check, current hash included.
	HistoryDepth int
	// MaxAge flags (never blocks) logins once the password is older than
	// this.
	MaxAge time.Duration
}

// LockoutConfig controls the per-account brute-force tracker.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// CodeConfig parameterizes one one-time-code purpose.
type CodeConfig struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int
}

// TOTPConfig controls authenticator-app verification. EncryptionKey seals
// the shared secret at rest and must be exactly 32 bytes.
type TOTPConfig struct {
	Issuer        string
	Digits        int
	Period        int
	Skew          int
	Algorithm     string // SHA1 (default), SHA256, SHA512
	EncryptionKey []byte
}

// BreakGlassConfig is the environment-sourced administrative credential
// pair, independent of the credential store. Disabled unless both fields
// are set.
type BreakGlassConfig struct {
	Email    string
	Password string
	// AccessTTL bounds the break-glass session; no refresh token is ever
	// issued for it.
	AccessTTL time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
}

// AlertConfig controls the sliding-window critical-event thresholds applied
// by an attached [alert.Tracker].
type AlertConfig struct {
	Window              time.Duration
	LockoutThreshold    int
	OTPFailureThreshold int
}

// DefaultConfig mirrors the production platform's policy: 15-minute access
// tokens, 7-day refresh tokens, 5 failures / 15-minute lockout, 6-digit
// codes (5 minutes and 3 tries for login, 10 minutes and 5 tries for
// reset), 5-deep password history with a 90-day age flag, and TOTP at 30
// seconds with two steps of skew.
func DefaultConfig() Config {
	return Config{
		Tokens: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "medinest",
		},
		Password: PasswordConfig{
			Memory:       64 * 1024,
			Time:         3,
			Parallelism:  2,
			SaltLength:   16,
			KeyLength:    32,
			HistoryDepth: 5,
			MaxAge:       90 * 24 * time.Hour,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		LoginOTP: CodeConfig{
			Digits:      6,
			TTL:         5 * time.Minute,
			MaxAttempts: 3,
		},
		ResetOTP: CodeConfig{
			Digits:      6,
			TTL:         10 * time.Minute,
			MaxAttempts: 5,
		},
		TOTP: TOTPConfig{
			Issuer:    "MediNest",
			Digits:    6,
			Period:    30,
			Skew:      2,
			Algorithm: "SHA1",
		},
		BreakGlass: BreakGlassConfig{
			AccessTTL: 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
		},
		Alerts: AlertConfig{
			Window:              time.Hour,
			LockoutThreshold:    3,
			OTPFailureThreshold: 3,
		},
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Tokens.AccessTTL <= 0 {
		c.Tokens.AccessTTL = def.Tokens.AccessTTL
	}
	if c.Tokens.RefreshTTL <= 0 {
		c.Tokens.RefreshTTL = def.Tokens.RefreshTTL
	}
	if c.Tokens.Issuer == "" {
		c.Tokens.Issuer = def.Tokens.Issuer
	}
	if len(c.Tokens.RefreshSecret) == 0 {
		c.Tokens.RefreshSecret = c.Tokens.AccessSecret
	}
	if c.Password.Memory == 0 {
		c.Password.Memory = def.Password.Memory
	}
	if c.Password.Time == 0 {
		c.Password.Time = def.Password.Time
	}
	if c.Password.Parallelism == 0 {
		c.Password.Parallelism = def.Password.Parallelism
	}
	if c.Password.SaltLength == 0 {
		c.Password.SaltLength = def.Password.SaltLength
	}
	if c.Password.KeyLength == 0 {
		c.Password.KeyLength = def.Password.KeyLength
	}
	if c.Password.HistoryDepth == 0 {
		c.Password.HistoryDepth = def.Password.HistoryDepth
	}
	if c.Password.MaxAge == 0 {
		c.Password.MaxAge = def.Password.MaxAge
	}
	if c.Lockout.Threshold == 0 {
		c.Lockout.Threshold = def.Lockout.Threshold
	}
	if c.Lockout.Duration == 0 {
		c.Lockout.Duration = def.Lockout.Duration
	}
	if c.LoginOTP.Digits == 0 {
		c.LoginOTP = def.LoginOTP
	}
	if c.ResetOTP.Digits == 0 {
		c.ResetOTP = def.ResetOTP
	}
	if c.TOTP.Digits == 0 {
		c.TOTP.Digits = def.TOTP.Digits
	}
	if c.TOTP.Period == 0 {
		c.TOTP.Period = def.TOTP.Period
	}
	if c.TOTP.Skew == 0 {
		c.TOTP.Skew = def.TOTP.Skew
	}
	if c.TOTP.Algorithm == "" {
		c.TOTP.Algorithm = def.TOTP.Algorithm
	}
	if c.TOTP.Issuer == "" {
		c.TOTP.Issuer = def.TOTP.Issuer
	}
	if c.BreakGlass.AccessTTL <= 0 {
		c.BreakGlass.AccessTTL = def.BreakGlass.AccessTTL
	}
	if c.Audit.BufferSize <= 0 {
		c.Audit.BufferSize = def.Audit.BufferSize
	}
	if c.Alerts.Window <= 0 {
		c.Alerts.Window = def.Alerts.Window
	}
	if c.Alerts.LockoutThreshold <= 0 {
		c.Alerts.LockoutThreshold = def.Alerts.LockoutThreshold
	}
	if c.Alerts.OTPFailureThreshold <= 0 {
		c.Alerts.OTPFailureThreshold = def.Alerts.OTPFailureThreshold
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.Tokens.AccessSecret) < 32 {
		return errors.New("token access secret must be at least 32 bytes")
	}
	if len(c.Tokens.RefreshSecret) < 32 {
		return errors.New("token refresh secret must be at least 32 bytes")
	}
	if c.LoginOTP.Digits < 6 || c.LoginOTP.Digits > 10 {
		return errors.New("login otp digits must be 6-10")
	}
	if c.ResetOTP.Digits < 6 || c.ResetOTP.Digits > 10 {
		return errors.New("reset otp digits must be 6-10")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("totp digits must be 6-8")
	}
	if len(c.TOTP.EncryptionKey) != 0 && len(c.TOTP.EncryptionKey) != 32 {
		return errors.New("totp encryption key must be 32 bytes")
	}
	if c.Lockout.Threshold < 1 {
		return errors.New("lockout threshold must be positive")
	}
	return nil
}
