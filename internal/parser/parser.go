// Package parser converts raw RFC 5322 messages into email.Email values.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/textproto"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/shineum/mailgun-lite/email"
)

// optionHeaderPrefix marks headers that carry provider options,
// e.g. X-Mailgun-Tag or X-Mailgun-Tracking-Clicks.
const optionHeaderPrefix = "X-Mailgun-"

// passthroughHeaders are copied into Email.Headers in addition to X-* headers.
var passthroughHeaders = map[string]bool{
	"Message-Id":       true,
	"In-Reply-To":      true,
	"References":       true,
	"List-Unsubscribe": true,
}

// Parse parses a raw RFC 5322 message. It handles single-part messages,
// nested multipart bodies and attachments; transfer encodings and charsets
// are decoded by go-message.
func Parse(raw []byte) (*email.Email, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if err != nil {
		slog.Warn("unknown charset in message header", "error", err)
	}
	defer mr.Close()

	result := &email.Email{
		Headers: make(map[string]string),
		Options: make(map[string]any),
	}

	if err := parseHeader(mr.Header, result); err != nil {
		return nil, err
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("failed to read next part: %w", err)
		}
		if part == nil {
			continue
		}
		if err != nil {
			slog.Warn("unknown charset in part, keeping raw bytes", "error", err)
		}

		if err := parsePart(part, result); err != nil {
			slog.Warn("failed to read part content", "error", err)
		}
	}

	return result, nil
}

// parseHeader fills addresses, subject, custom headers and options.
func parseHeader(h mail.Header, result *email.Email) error {
	from, err := addressList(h, "From")
	if err != nil {
		return err
	}
	if len(from) > 0 {
		result.From = from[0]
	}

	if result.To, err = addressList(h, "To"); err != nil {
		return err
	}
	if result.Cc, err = addressList(h, "Cc"); err != nil {
		return err
	}
	if result.Bcc, err = addressList(h, "Bcc"); err != nil {
		return err
	}

	subject, err := h.Subject()
	if err != nil {
		slog.Warn("failed to decode subject, using raw value", "error", err)
		subject = h.Get("Subject")
	}
	result.Subject = subject

	if raw := h.Get("Reply-To"); raw != "" {
		replyTo, err := h.Text("Reply-To")
		if err != nil {
			slog.Warn("failed to decode Reply-To, using raw value", "error", err)
			replyTo = raw
		}
		result.Headers[email.ReplyToHeader] = replyTo
	}

	fields := h.Fields()
	for fields.Next() {
		key := textproto.CanonicalMIMEHeaderKey(fields.Key())
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}

		switch {
		case strings.HasPrefix(key, optionHeaderPrefix):
			name := strings.ToLower(strings.TrimPrefix(key, optionHeaderPrefix))
			if name != "" {
				result.Options[name] = value
			}
		case strings.HasPrefix(key, "X-"), passthroughHeaders[key]:
			result.Headers[key] = value
		}
	}

	return nil
}

// addressList parses an address header, falling back to a plain comma split
// of bare addresses when the header is not valid RFC 5322.
func addressList(h mail.Header, key string) ([]email.Address, error) {
	raw := h.Get(key)
	if raw == "" {
		return nil, nil
	}

	list, err := h.AddressList(key)
	if err != nil {
		slog.Warn("failed to parse address list, splitting on commas",
			"header", key,
			"error", err,
		)
		var result []email.Address
		for _, p := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, email.Bare(trimmed))
			}
		}
		return result, nil
	}

	result := make([]email.Address, 0, len(list))
	for _, addr := range list {
		result = append(result, email.NewAddress(addr.Name, addr.Address))
	}
	return result, nil
}

// parsePart routes one leaf part to the text body, the HTML body or the
// attachment list.
func parsePart(part *mail.Part, result *email.Email) error {
	content, err := io.ReadAll(part.Body)
	if err != nil {
		return err
	}

	switch h := part.Header.(type) {
	case *mail.InlineHeader:
		mediaType, params, err := h.ContentType()
		if err != nil {
			mediaType = "text/plain"
		}
		switch mediaType {
		case "text/plain":
			if result.TextBody == "" {
				result.TextBody = string(content)
			}
		case "text/html":
			if result.HTMLBody == "" {
				result.HTMLBody = string(content)
			}
		default:
			filename := inlineFilename(h, params, mediaType)
			result.Attachments = append(result.Attachments, email.Attachment{
				Filename:    filename,
				ContentType: mediaType,
				Content:     content,
				Inline:      true,
			})
		}
	case *mail.AttachmentHeader:
		mediaType, params, err := h.ContentType()
		if err != nil {
			mediaType = "application/octet-stream"
		}
		filename, err := h.Filename()
		if err != nil || filename == "" {
			filename = fallbackFilename(params, mediaType)
		}
		result.Attachments = append(result.Attachments, email.Attachment{
			Filename:    filename,
			ContentType: mediaType,
			Content:     content,
		})
	}
	return nil
}

// inlineFilename picks a filename for an inline, non-text part.
func inlineFilename(h *mail.InlineHeader, params map[string]string, mediaType string) string {
	if _, dispParams, err := h.ContentDisposition(); err == nil && dispParams["filename"] != "" {
		return dispParams["filename"]
	}
	return fallbackFilename(params, mediaType)
}

// fallbackFilename uses the Content-Type "name" parameter, or derives a
// name from the media type.
func fallbackFilename(params map[string]string, mediaType string) string {
	if name := params["name"]; name != "" {
		if decoded, err := new(mime.WordDecoder).DecodeHeader(name); err == nil {
			return decoded
		}
		return name
	}
	parts := strings.SplitN(mediaType, "/", 2)
	if len(parts) == 2 && parts[1] != "" {
		return "attachment." + parts[1]
	}
	return "attachment"
}
