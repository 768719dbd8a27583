// Package email defines the core email data model shared by every delivery provider.
package email

import "errors"

var (
	// ErrNoSender indicates the message has no From address.
	ErrNoSender = errors.New("email must have a sender")

	// ErrNoRecipient indicates the message has no To recipients.
	ErrNoRecipient = errors.New("email must have at least one recipient")
)

// ReplyToHeader is the Headers key that carries the reply-to override.
const ReplyToHeader = "reply-to"

// Email represents a message ready to be handed to a provider.
type Email struct {
	From        Address
	To          []Address
	Cc          []Address
	Bcc         []Address
	Subject     string
	TextBody    string
	HTMLBody    string
	Headers     map[string]string // raw header name -> value
	Options     map[string]any    // provider-specific private options
	Attachments []Attachment
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
	Inline      bool
}

// SetReplyTo stores addr as the reply-to override of the message.
func (e *Email) SetReplyTo(addr Address) {
	if e.Headers == nil {
		e.Headers = make(map[string]string)
	}
	e.Headers[ReplyToHeader] = addr.String()
}

// ReplyTo returns the reply-to override and whether one is set.
func (e *Email) ReplyTo() (string, bool) {
	v, ok := e.Headers[ReplyToHeader]
	return v, ok
}

// Validate reports whether the message carries the fields every provider needs.
func (e *Email) Validate() error {
	if e.From.IsZero() {
		return ErrNoSender
	}
	if len(e.To) == 0 {
		return ErrNoRecipient
	}
	return nil
}
