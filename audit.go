package authcore

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Audit event names. These are stable identifiers meant for log pipelines
// and the alert tracker, not for display.
const (
	EventRegister             = "REGISTER"
	EventLoginSuccess         = "LOGIN_SUCCESS"
	EventLoginFailed          = "LOGIN_FAILED"
	EventAccountLocked        = "ACCOUNT_LOCKED"
	EventOTPSent              = "OTP_SENT"
	EventOTPVerified          = "OTP_VERIFIED"
	EventOTPFailed            = "OTP_FAILED"
	EventOTPMaxAttempts       = "OTP_MAX_ATTEMPTS"
	EventTokenRefresh         = "TOKEN_REFRESH"
	EventTokenReplay          = "TOKEN_REPLAY"
	EventLogout               = "LOGOUT"
	EventLogoutAll            = "LOGOUT_ALL"
	EventPasswordResetRequest = "PASSWORD_RESET_REQUEST"
	EventPasswordResetSuccess = "PASSWORD_RESET_SUCCESS"
	EventPasswordChanged      = "PASSWORD_CHANGED"
	EventTwoFactorEnabled     = "TWO_FACTOR_ENABLED"
	EventTwoFactorDisabled    = "TWO_FACTOR_DISABLED"
	EventTOTPEnabled          = "TOTP_ENABLED"
	EventTOTPDisabled         = "TOTP_DISABLED"
	EventAdminAccess          = "ADMIN_ACCESS"
)

// AuditEvent is one security-relevant occurrence. Events are delivered
// asynchronously and may be dropped under pressure; they are observability,
// not a ledger.
type AuditEvent struct {
	At        time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	AccountID string    `json:"account_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Success   bool      `json:"success"`
	Detail    string    `json:"detail,omitempty"`
}

// AuditSink receives audit events from the dispatcher goroutine. Emit must
// not block for long; slow sinks cause event drops.
type AuditSink interface {
	Emit(event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Emit(AuditEvent) {}

// ChannelSink buffers events on a channel for consumption elsewhere.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan AuditEvent, buffer)}
}

func (s *ChannelSink) Emit(event AuditEvent) {
	select {
	case s.events <- event:
	default:
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line to w.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// ZapSink logs events through a zap logger at Info for successes and Warn
// for failures.
type ZapSink struct {
	log *zap.Logger
}

func NewZapSink(log *zap.Logger) *ZapSink {
	return &ZapSink{log: log}
}

func (s *ZapSink) Emit(event AuditEvent) {
	if s == nil || s.log == nil {
		return
	}
	fields := []zap.Field{
		zap.Time("timestamp", event.At),
		zap.String("account_id", event.AccountID),
		zap.String("email", event.Email),
		zap.String("ip", event.IP),
		zap.Bool("success", event.Success),
	}
	if event.Detail != "" {
		fields = append(fields, zap.String("detail", event.Detail))
	}
	if event.Success {
		s.log.Info(event.EventType, fields...)
		return
	}
	s.log.Warn(event.EventType, fields...)
}
