// Package auth owns accounts and every sign-in flow: registration and
// password login, the email-only flow for external users, the platform
// identity flow, one-time-code verification, password reset and logout.
// It also provides the access gate that every vault route sits behind.
//
// This is a CORE plugin: always enabled, cannot be disabled.
package auth

import (
	"time"
)

// Account is a self-registered application account. The normalized email
// is the account's owner key.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	PasswordSalt []byte    `json:"-"`
	IsActive     bool      `json:"is_active"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// --- Request DTOs (bound from HTTP requests) ---

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	Confirm  string `json:"confirm" form:"confirm"`
}

// EmailRequest is the body of the external send-code and forgot-password
// endpoints.
type EmailRequest struct {
	Email string `json:"email" form:"email"`
}

// CodeRequest is the body of the verify endpoints.
type CodeRequest struct {
	Code string `json:"code" form:"code"`
}

// NewPasswordRequest is the body of the password reset endpoint.
type NewPasswordRequest struct {
	Password string `json:"password" form:"password"`
	Confirm  string `json:"confirm" form:"confirm"`
}

// --- Responses ---

// FlowResponse is the JSON answer of every sign-in step.
type FlowResponse struct {
	// Status is "code_sent", "validated", "reset_verified", "password_reset"
	// or "signed_out".
	Status string `json:"status"`

	Message         string `json:"message,omitempty"`
	Redirect        string `json:"redirect,omitempty"`
	CooldownSeconds int    `json:"cooldown_seconds,omitempty"`
}

// StatusResponse is the body of GET /account/status.
type StatusResponse struct {
	Validated       bool   `json:"validated"`
	OwnerKey        string `json:"owner_key,omitempty"`
	IsAdmin         bool   `json:"is_admin"`
	Channel         string `json:"channel,omitempty"`
	CodePending     bool   `json:"code_pending"`
	Locked          bool   `json:"locked"`
	CooldownSeconds int    `json:"cooldown_seconds"`
}
