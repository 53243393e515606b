// Package stdout implements a Provider that prints emails to standard output
// instead of opening an SMTP session. It is used for dry runs.
package stdout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/shineum/http-email/internal/email"
	"github.com/shineum/http-email/internal/provider"
	"github.com/shineum/http-email/internal/sender"
)

// Provider prints email messages in a human-readable format followed by the
// rendered MIME payload.
type Provider struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Provider that writes to os.Stdout.
func New() *Provider {
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Provider that writes to the given writer.
func NewWithWriter(w io.Writer) *Provider {
	return &Provider{writer: w}
}

// Send prints the message. The sender's SMTP endpoint is shown but never
// contacted, and the password is never printed.
func (p *Provider) Send(_ context.Context, from sender.Profile, msg *email.Email) error {
	raw, err := msg.Bytes()
	if err != nil {
		return &provider.DeliveryError{Stage: provider.StageSend, Err: err}
	}

	var b strings.Builder

	b.WriteString("========================================\n")
	b.WriteString(fmt.Sprintf("Relay: %s:%d (user %s)\n", from.Host, from.Port, from.User))
	b.WriteString(fmt.Sprintf("From: %s\n", msg.From))
	b.WriteString(fmt.Sprintf("To: %s\n", strings.Join(msg.To, ", ")))
	b.WriteString(fmt.Sprintf("Subject: %s\n", msg.Subject))
	b.WriteString(fmt.Sprintf("Content-Type: %s (%s)\n", msg.ContentType(), formatSize(len(raw))))
	b.WriteString("----------------------------------------\n")
	b.Write(raw)
	if len(raw) > 0 && raw[len(raw)-1] != '\n' {
		b.WriteString("\n")
	}
	b.WriteString("========================================\n")

	if _, err := fmt.Fprint(p.writer, b.String()); err != nil {
		// A dry run has nothing to deliver, so a broken writer is not a failure.
		slog.Warn("failed to print email", "error", err)
	}

	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
