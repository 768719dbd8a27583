// Package mailgun implements a Provider that sends emails via the Mailgun
// messages API.
package mailgun

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/shineum/mailgun-lite/email"
)

// Client performs single-attempt requests against the messages endpoint.
// It keeps no per-domain state; the Config is passed on every call.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// NewClient creates a Client. Timeouts and connection reuse belong to the
// supplied *http.Client; the default is a plain client without a timeout.
// Redirects are never followed: a 3xx from the messages endpoint is
// classified like any other status above 299.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.httpClient.CheckRedirect == nil {
		hc := *c.httpClient
		hc.CheckRedirect = noRedirect
		c.httpClient = &hc
	}
	return c
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// Response is a message accepted by the API (status 299 or below).
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// ID and Message are read from the JSON success body when present.
	ID      string
	Message string
}

// apiResponse is the JSON document Mailgun returns on success and on most errors.
type apiResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Deliver builds the request body for msg, posts it to
// {baseURL}{domain}/messages and classifies the response.
// Every failure is an *APIError.
func (c *Client) Deliver(ctx context.Context, msg *email.Email, cfg Config) (*Response, error) {
	body := BuildBody(msg)
	payload, contentType, err := body.Encode()
	if err != nil {
		return nil, transportError("failed to encode request body", err)
	}

	c.logger.Debug("sending message via Mailgun API",
		"domain", cfg.Domain,
		"content_type", body.ContentType(),
		"attachments", len(msg.Attachments),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, transportError("failed to create request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.SetBasicAuth("api", cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError("HTTP request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError("failed to read response body", err)
	}

	result, apiErr := classify(resp.StatusCode, resp.Header, respBody, payload)
	if apiErr != nil {
		c.logger.Warn("Mailgun API error",
			"domain", cfg.Domain,
			"status", apiErr.StatusCode,
			"error", apiErr,
		)
		return nil, apiErr
	}
	return result, nil
}

// classify turns a completed HTTP exchange into a Response or an *APIError.
func classify(status int, header http.Header, body, requestBody []byte) (*Response, *APIError) {
	var parsed apiResponse
	jsonErr := json.Unmarshal(body, &parsed)

	if status > 299 {
		apiErr := &APIError{
			Service:     ServiceName,
			StatusCode:  status,
			Body:        string(body),
			RequestBody: requestBody,
		}
		if jsonErr == nil {
			apiErr.Message = parsed.Message
		}
		return nil, apiErr
	}

	resp := &Response{
		StatusCode: status,
		Header:     header,
		Body:       body,
	}
	if jsonErr == nil {
		resp.ID = parsed.ID
		resp.Message = parsed.Message
	}
	return resp, nil
}
