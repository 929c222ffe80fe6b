package authcore

import (
	"errors"

	"github.com/medinest/authcore/alert"
	"github.com/medinest/authcore/jwt"
	"github.com/medinest/authcore/password"
)

// Builder assembles an Engine. Configure it once during startup; the
// resulting Engine is immutable and safe for concurrent use.
type Builder struct {
	config Config

	store   CredentialStore
	mailer  Mailer
	captcha CaptchaVerifier
	sink    AuditSink
	alerts  *alert.Tracker

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the seeded configuration. Unset fields are filled
// back in from defaults during Build.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(s CredentialStore) *Builder {
	b.store = s
	return b
}

// WithMailer sets the one-time-code delivery channel. Required.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithCaptcha attaches a captcha verifier. When set, Register and Login
// require a passing captcha token.
func (b *Builder) WithCaptcha(v CaptchaVerifier) *Builder {
	b.captcha = v
	return b
}

// WithAuditSink attaches a sink for security audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithAlertTracker attaches a sliding-window tracker for critical
// security events.
func (b *Builder) WithAlertTracker(t *alert.Tracker) *Builder {
	b.alerts = t
	return b
}

// Build validates the configuration and wires the engine. The builder is
// single use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	cfg := b.config
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}

	hasher := password.NewArgon2(password.Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})

	tokens := jwt.NewManager(jwt.Config{
		AccessSecret:  cfg.Tokens.AccessSecret,
		RefreshSecret: cfg.Tokens.RefreshSecret,
		AccessTTL:     cfg.Tokens.AccessTTL,
		RefreshTTL:    cfg.Tokens.RefreshTTL,
		Issuer:        cfg.Tokens.Issuer,
	})

	totp, err := newTOTPManager(cfg.TOTP)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:  cfg,
		store:   b.store,
		mailer:  b.mailer,
		captcha: b.captcha,
		hasher:  hasher,
		tokens:  tokens,
		totp:    totp,
		alerts:  b.alerts,
	}

	if cfg.Audit.Enabled {
		sink := b.sink
		if sink == nil {
			sink = NoOpSink{}
		}
		e.audit = newAuditDispatcher(sink, cfg.Audit.BufferSize)
	}

	return e, nil
}
