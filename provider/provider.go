// Package provider defines the interface for email delivery backends.
package provider

import (
	"context"

	"github.com/shineum/mailgun-lite/email"
)

// Provider is the interface that email delivery backends must implement.
// Each provider handles the actual sending of email messages
// to the target service (e.g., Mailgun, AWS SES, stdout).
type Provider interface {
	// Send delivers an email message through this provider.
	// It returns an error if the delivery fails.
	Send(ctx context.Context, msg *email.Email) (*Receipt, error)

	// Name returns the human-readable name of this provider.
	Name() string

	// SupportsAttachments reports whether Send delivers attachments.
	SupportsAttachments() bool
}

// Receipt is the provider-neutral summary of an accepted message.
type Receipt struct {
	ID         string
	Message    string
	StatusCode int
}
