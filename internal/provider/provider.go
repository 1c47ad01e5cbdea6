// Package provider defines the interface for message delivery backends.
package provider

import (
	"context"

	"github.com/shineum/smtp-mailer-lite/internal/email"
)

// Provider is the interface that delivery backends must implement.
// Each provider renders the message and hands the result to the target
// service (e.g., an SMTP relay, Amazon SES, Microsoft Graph, stdout).
type Provider interface {
	// Send delivers the message through this provider.
	// It returns an error if rendering or delivery fails.
	Send(ctx context.Context, msg *email.Message) error

	// Name returns the human-readable name of this provider.
	Name() string
}
