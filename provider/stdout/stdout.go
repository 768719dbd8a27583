// Package stdout implements a Provider that prints emails to standard output.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/shineum/mailgun-lite/email"
	"github.com/shineum/mailgun-lite/provider"
)

const separator = "========================================\n"

// Provider prints email messages to stdout in a human-readable format.
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

// Send prints the email message in a readable format and returns a receipt
// with a generated ID.
func (p *Provider) Send(_ context.Context, msg *email.Email) (*provider.Receipt, error) {
	id := "stdout-" + uuid.New().String()

	var b strings.Builder

	b.WriteString(separator)
	fmt.Fprintf(&b, "ID: %s\n", id)
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "To: %s\n", joinAddresses(msg.To))

	if len(msg.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", joinAddresses(msg.Cc))
	}
	if len(msg.Bcc) > 0 {
		fmt.Fprintf(&b, "Bcc: %s\n", joinAddresses(msg.Bcc))
	}

	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)

	for _, name := range sortedKeys(msg.Headers) {
		fmt.Fprintf(&b, "Header %s: %s\n", name, msg.Headers[name])
	}
	for _, name := range sortedKeys(msg.Options) {
		fmt.Fprintf(&b, "Option %s: %v\n", name, msg.Options[name])
	}

	b.WriteString("Body:\n")

	body := msg.TextBody
	if body == "" {
		body = msg.HTMLBody
	}
	b.WriteString(body + "\n")

	if len(msg.Attachments) > 0 {
		attachments := make([]string, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			entry := fmt.Sprintf("%s (%s)", att.Filename, formatSize(len(att.Content)))
			if att.Inline {
				entry += " inline"
			}
			attachments = append(attachments, entry)
		}
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(attachments, ", "))
	}

	b.WriteString(separator)

	if _, err := io.WriteString(p.writer, b.String()); err != nil {
		return nil, fmt.Errorf("failed to write message: %w", err)
	}

	return &provider.Receipt{ID: id, Message: "printed"}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

// SupportsAttachments reports true; attachments are listed by name and size.
func (p *Provider) SupportsAttachments() bool {
	return true
}

// joinAddresses uses ", " for readability; the wire format in
// email.JoinAddresses has no space.
func joinAddresses(addrs []email.Address) string {
	return strings.Join(email.FormatAddresses(addrs), ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
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
