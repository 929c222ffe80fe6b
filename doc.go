// Package authcore implements the credential and session lifecycle engine
// for the MediNest pharmacy platform: registration, password login with
// progressive lockout, email-OTP and TOTP second factors, access/refresh
// token issuance and rotation, OTP-based password reset, and password
// history enforcement.
//
// The engine owns no transport and no schema. Callers supply a
// [CredentialStore] for persistence, a [Mailer] for out-of-band code
// delivery, and optionally a [CaptchaVerifier] and an [AuditSink]; HTTP
// routing, rate limiting, and the rest of the platform's CRUD surface sit
// outside this module and consume the exported operations.
package authcore
