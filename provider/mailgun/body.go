package mailgun

import (
	"bytes"
	"fmt"
	"maps"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"slices"
	"strconv"

	"github.com/shineum/mailgun-lite/email"
)

const (
	contentTypeForm      = "application/x-www-form-urlencoded"
	contentTypeMultipart = "multipart/form-data"
	contentTypeFile      = "application/octet-stream"
)

// providerVars are the private options forwarded as "o:" fields.
// Any other option key is dropped.
var providerVars = []string{
	"tag",
	"campaign",
	"testmode",
	"tracking",
	"tracking-clicks",
	"tracking-opens",
}

// Body is the wire payload of a messages request. It is either a *FormBody
// or a *MultipartBody.
type Body interface {
	// ContentType returns the media type of the encoded body.
	ContentType() string

	// Encode serializes the body. The returned content type carries any
	// parameters (the multipart boundary) needed in the request header.
	Encode() (payload []byte, contentType string, err error)

	isBody()
}

// FormBody is a flat field map sent as application/x-www-form-urlencoded.
type FormBody struct {
	Fields map[string]string
}

// MultipartBody is sent as multipart/form-data: every field, then the file
// parts in order.
type MultipartBody struct {
	Fields map[string]string
	Files  []FilePart
}

// FilePart is one file in a multipart body.
type FilePart struct {
	Name        string // form field name, "attachment" or "inline"
	Filename    string
	ContentType string
	Content     []byte
}

func (*FormBody) isBody()      {}
func (*MultipartBody) isBody() {}

// ContentType implements Body.
func (*FormBody) ContentType() string { return contentTypeForm }

// ContentType implements Body.
func (*MultipartBody) ContentType() string { return contentTypeMultipart }

// Encode implements Body. Keys are sorted by url.Values.Encode.
func (b *FormBody) Encode() ([]byte, string, error) {
	values := make(url.Values, len(b.Fields))
	for k, v := range b.Fields {
		values.Set(k, v)
	}
	return []byte(values.Encode()), contentTypeForm, nil
}

// Encode implements Body. Fields are written in sorted key order so the
// payload is stable for a given message.
func (b *MultipartBody) Encode() ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, key := range slices.Sorted(maps.Keys(b.Fields)) {
		if err := writer.WriteField(key, b.Fields[key]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %q: %w", key, err)
		}
	}

	for _, f := range b.Files {
		header := make(textproto.MIMEHeader)
		// The filename is not escaped; Mailgun receives it exactly as given.
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="%s"; filename="%s"`, f.Name, f.Filename))
		header.Set("Content-Type", f.ContentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", fmt.Errorf("failed to write file part: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

// BuildBody maps msg onto the fields of a Mailgun messages request. It never
// fails: a message without attachments yields a *FormBody, anything else a
// *MultipartBody whose files are in reverse attachment order.
func BuildBody(msg *email.Email) Body {
	fields := make(map[string]string)

	fields["from"] = msg.From.String()
	fields["to"] = email.JoinAddresses(msg.To)
	if len(msg.Cc) > 0 {
		fields["cc"] = email.JoinAddresses(msg.Cc)
	}
	if len(msg.Bcc) > 0 {
		fields["bcc"] = email.JoinAddresses(msg.Bcc)
	}
	if replyTo, ok := msg.ReplyTo(); ok {
		fields["h:Reply-To"] = replyTo
	}
	fields["subject"] = msg.Subject
	if msg.HTMLBody != "" {
		fields["html"] = msg.HTMLBody
	}
	if msg.TextBody != "" {
		fields["text"] = msg.TextBody
	}

	// A "reply-to" header lands here a second time as "h:reply-to".
	for name, value := range msg.Headers {
		fields["h:"+name] = value
	}

	for _, key := range providerVars {
		if v, ok := msg.Options[key]; ok && v != nil {
			fields["o:"+key] = optionValue(v)
		}
	}

	if len(msg.Attachments) == 0 {
		return &FormBody{Fields: fields}
	}

	files := make([]FilePart, 0, len(msg.Attachments))
	for i := len(msg.Attachments) - 1; i >= 0; i-- {
		files = append(files, filePart(msg.Attachments[i]))
	}
	return &MultipartBody{Fields: fields, Files: files}
}

func filePart(att email.Attachment) FilePart {
	name := "attachment"
	if att.Inline {
		name = "inline"
	}
	contentType := att.ContentType
	if contentType == "" {
		contentType = contentTypeFile
	}
	return FilePart{
		Name:        name,
		Filename:    att.Filename,
		ContentType: contentType,
		Content:     att.Content,
	}
}

// optionValue converts a private option value to its form string.
// Strings pass through unmodified.
func optionValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
