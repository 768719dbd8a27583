// Package ses implements a Provider that sends emails via AWS SES v2.
package ses

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	netmail "net/mail"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/emersion/go-message/mail"

	"github.com/shineum/mailgun-lite/email"
	"github.com/shineum/mailgun-lite/provider"
)

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// taggedOptions are the message options forwarded as SES message tags.
var taggedOptions = []string{"tag", "campaign"}

// Config holds the configuration for creating a Provider.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Sender          string
}

// Provider sends emails via the AWS SES v2 API.
type Provider struct {
	sender     string
	client     SendEmailAPI
	retryDelay time.Duration
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new Provider with the given configuration. Static
// credentials are used when both keys are set, otherwise the default AWS
// credential chain applies.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(cfg.Sender, sesv2.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a Provider around an existing SES client.
func NewWithClient(sender string, client SendEmailAPI) *Provider {
	return &Provider{
		sender:     sender,
		client:     client,
		retryDelay: baseRetryDelay,
	}
}

// Send delivers msg via AWS SES v2. Messages with attachments go out as raw
// MIME, everything else uses the simple content format.
func (p *Provider) Send(ctx context.Context, msg *email.Email) (*provider.Receipt, error) {
	input, err := p.buildInput(msg)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying SES API request",
				"attempt", attempt,
				"max_retries", maxRetries,
			)
			if err := sleepWithContext(ctx, backoffDelay(p.retryDelay, attempt)); err != nil {
				return nil, fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		out, err := p.client.SendEmail(ctx, input)
		if err == nil {
			return &provider.Receipt{ID: aws.ToString(out.MessageId)}, nil
		}

		lastErr = err
		slog.Warn("SES API error",
			"attempt", attempt,
			"error", err,
		)
	}

	return nil, fmt.Errorf("SES API request failed after %d retries: %w", maxRetries, lastErr)
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "ses"
}

// SupportsAttachments reports true; attachments switch Send to raw MIME.
func (p *Provider) SupportsAttachments() bool {
	return true
}

// buildInput picks the simple or raw content format. The configured sender
// wins over the message's own From address.
func (p *Provider) buildInput(msg *email.Email) (*sesv2.SendEmailInput, error) {
	sender := p.sender
	if sender == "" {
		sender = msg.From.String()
	}

	if len(msg.Attachments) == 0 {
		return buildSimpleInput(sender, msg), nil
	}

	raw, err := buildRawMessage(sender, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to build raw message: %w", err)
	}
	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(sender),
		Destination:      destination(msg),
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
		EmailTags: emailTags(msg),
	}, nil
}

// buildSimpleInput creates a SES SendEmailInput for emails without attachments.
func buildSimpleInput(sender string, msg *email.Email) *sesv2.SendEmailInput {
	body := &types.Body{}

	if msg.HTMLBody != "" {
		body.Html = &types.Content{
			Data:    aws.String(msg.HTMLBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.TextBody != "" {
		body.Text = &types.Content{
			Data:    aws.String(msg.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(sender),
		Destination:      destination(msg),
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body:    body,
				Headers: messageHeaders(msg),
			},
		},
		EmailTags: emailTags(msg),
	}
	if replyTo, ok := msg.ReplyTo(); ok && replyTo != "" {
		input.ReplyToAddresses = []string{replyTo}
	}
	return input
}

func destination(msg *email.Email) *types.Destination {
	return &types.Destination{
		ToAddresses:  email.FormatAddresses(msg.To),
		CcAddresses:  email.FormatAddresses(msg.Cc),
		BccAddresses: email.FormatAddresses(msg.Bcc),
	}
}

// messageHeaders returns the custom headers in name order. The reply-to
// override travels in ReplyToAddresses instead.
func messageHeaders(msg *email.Email) []types.MessageHeader {
	names := make([]string, 0, len(msg.Headers))
	for name := range msg.Headers {
		if strings.EqualFold(name, email.ReplyToHeader) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var headers []types.MessageHeader
	for _, name := range names {
		headers = append(headers, types.MessageHeader{
			Name:  aws.String(name),
			Value: aws.String(msg.Headers[name]),
		})
	}
	return headers
}

// emailTags maps the tag and campaign options onto SES message tags.
func emailTags(msg *email.Email) []types.MessageTag {
	var tags []types.MessageTag
	for _, name := range taggedOptions {
		v, ok := msg.Options[name]
		if !ok || v == nil {
			continue
		}
		tags = append(tags, types.MessageTag{
			Name:  aws.String(name),
			Value: aws.String(fmt.Sprint(v)),
		})
	}
	return tags
}

// buildRawMessage renders msg as a multipart/mixed MIME message with a
// text/html alternative part followed by the attachments.
func buildRawMessage(sender string, msg *email.Email) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{mailAddress(email.Bare(sender))})
	if len(msg.To) > 0 {
		h.SetAddressList("To", mailAddresses(msg.To))
	}
	if len(msg.Cc) > 0 {
		h.SetAddressList("Cc", mailAddresses(msg.Cc))
	}
	h.SetSubject(msg.Subject)
	for name, value := range msg.Headers {
		if strings.EqualFold(name, email.ReplyToHeader) {
			h.Set("Reply-To", value)
			continue
		}
		h.Set(name, value)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create MIME writer: %w", err)
	}

	if msg.TextBody != "" || msg.HTMLBody != "" {
		iw, err := mw.CreateInline()
		if err != nil {
			return nil, fmt.Errorf("failed to create body part: %w", err)
		}
		if msg.TextBody != "" {
			if err := writeInline(iw, "text/plain", msg.TextBody); err != nil {
				return nil, err
			}
		}
		if msg.HTMLBody != "" {
			if err := writeInline(iw, "text/html", msg.HTMLBody); err != nil {
				return nil, err
			}
		}
		if err := iw.Close(); err != nil {
			return nil, fmt.Errorf("failed to close body part: %w", err)
		}
	}

	for _, att := range msg.Attachments {
		var ah mail.AttachmentHeader
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		ah.SetContentType(contentType, nil)
		ah.SetFilename(att.Filename)
		if att.Inline {
			ah.Set("Content-Id", "<"+att.Filename+">")
		}

		w, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment part: %w", err)
		}
		if _, err := w.Write(att.Content); err != nil {
			return nil, fmt.Errorf("failed to write attachment %q: %w", att.Filename, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to close attachment %q: %w", att.Filename, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close MIME writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writeInline(iw *mail.InlineWriter, mediaType, content string) error {
	var ih mail.InlineHeader
	ih.SetContentType(mediaType, map[string]string{"charset": "utf-8"})
	w, err := iw.CreatePart(ih)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", mediaType, err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		return fmt.Errorf("failed to write %s part: %w", mediaType, err)
	}
	return w.Close()
}

func mailAddresses(addrs []email.Address) []*mail.Address {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, mailAddress(a))
	}
	return out
}

// mailAddress converts an Address for the MIME writer. Bare addresses are
// parsed so display names survive; unparsable ones are used as the mailbox.
func mailAddress(a email.Address) *mail.Address {
	if a.Kind == email.KindBare {
		if parsed, err := netmail.ParseAddress(a.Raw); err == nil {
			return parsed
		}
		return &mail.Address{Address: a.Raw}
	}
	return &mail.Address{Name: a.Name, Address: a.Email}
}

// backoffDelay returns the exponential backoff delay for the given attempt number.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
