// Package stdout implements a Provider that prints messages to standard output.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/docker/go-units"

	"github.com/shineum/smtp-mailer-lite/internal/email"
	"github.com/shineum/smtp-mailer-lite/internal/parser"
)

const separator = "========================================\n"

// Provider renders messages and prints a human-readable preview.
type Provider struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer

	// Verbose also prints the rendered payload, DATA terminator included.
	Verbose bool
}

// New creates a new stdout Provider that writes to os.Stdout.
func New() *Provider {
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Provider that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Provider {
	return &Provider{writer: w}
}

// Send renders the message, parses the result back and prints a preview.
// Render and parse failures are returned; write failures are not.
func (p *Provider) Send(_ context.Context, msg *email.Message) error {
	rendered, err := msg.Render()
	if err != nil {
		return fmt.Errorf("stdout: failed to render message: %w", err)
	}

	parsed, err := parser.Parse([]byte(rendered))
	if err != nil {
		return fmt.Errorf("stdout: failed to parse rendered message: %w", err)
	}

	var b strings.Builder

	b.WriteString(separator)
	b.WriteString(fmt.Sprintf("From: %s\n", parsed.From))
	b.WriteString(fmt.Sprintf("To: %s\n", strings.Join(parsed.To, ", ")))

	if len(parsed.Cc) > 0 {
		b.WriteString(fmt.Sprintf("Cc: %s\n", strings.Join(parsed.Cc, ", ")))
	}
	if len(parsed.Bcc) > 0 {
		b.WriteString(fmt.Sprintf("Bcc: %s\n", strings.Join(parsed.Bcc, ", ")))
	}
	if parsed.ReplyTo != "" {
		b.WriteString(fmt.Sprintf("Reply-To: %s\n", parsed.ReplyTo))
	}

	b.WriteString(fmt.Sprintf("Subject: %s\n", parsed.Subject))
	b.WriteString(fmt.Sprintf("Size: %s\n", units.HumanSize(float64(len(rendered)))))
	b.WriteString("Body:\n")

	body := parsed.TextBody
	if body == "" {
		body = parsed.HtmlBody
	}
	b.WriteString(body + "\n")

	if len(parsed.Attachments) > 0 {
		attachments := make([]string, 0, len(parsed.Attachments))
		for _, att := range parsed.Attachments {
			attachments = append(attachments, fmt.Sprintf("%s (%s)", att.Filename, formatSize(len(att.Content))))
		}
		b.WriteString(fmt.Sprintf("Attachments: %s\n", strings.Join(attachments, ", ")))
	}

	if p.Verbose {
		b.WriteString("Raw:\n")
		b.WriteString(rendered)
	}

	b.WriteString(separator)

	// The preview is best effort; a broken writer does not fail delivery.
	_, _ = fmt.Fprint(p.writer, b.String())

	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	return units.HumanSize(float64(bytes))
}
