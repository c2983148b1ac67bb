// Package queue carries password-reset notices to the mail transport over
// RabbitMQ and delivers them on the consuming side.
package queue

// DefaultMailQueue is the durable queue reset notices are published to.
const DefaultMailQueue = "identity.password_reset"

// PasswordResetRequested is published when a reset token has been issued.
// It contains everything the mailer needs to compose the message without
// querying the credential store. ResetToken is the raw token; it only ever
// travels to the mail transport, never back to the HTTP caller.
type PasswordResetRequested struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	ResetToken  string `json:"reset_token"`
	ResetURL    string `json:"reset_url,omitempty"`
	ExpiresAt   string `json:"expires_at"`
	RequestedAt string `json:"requested_at"`
}
