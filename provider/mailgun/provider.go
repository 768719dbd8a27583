package mailgun

import (
	"context"

	"github.com/shineum/mailgun-lite/email"
	"github.com/shineum/mailgun-lite/provider"
)

// Provider adapts a Client and a validated Config to provider.Provider.
type Provider struct {
	client *Client
	config Config
}

// New validates cfg and creates a Provider. A *ConfigError here means the
// provider cannot be used at all.
func New(cfg Config, opts ...Option) (*Provider, error) {
	valid, err := ValidateConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Provider{
		client: NewClient(opts...),
		config: valid,
	}, nil
}

// Send delivers msg in a single attempt.
func (p *Provider) Send(ctx context.Context, msg *email.Email) (*provider.Receipt, error) {
	resp, err := p.client.Deliver(ctx, msg, p.config)
	if err != nil {
		return nil, err
	}
	return &provider.Receipt{
		ID:         resp.ID,
		Message:    resp.Message,
		StatusCode: resp.StatusCode,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return ServiceName
}

// SupportsAttachments reports that attachments are sent as multipart file parts.
func (p *Provider) SupportsAttachments() bool {
	return true
}
