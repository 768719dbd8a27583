package mailgun

import (
	"errors"
	"fmt"
)

const (
	// BaseURL is the production API root for US-hosted domains.
	BaseURL = "https://api.mailgun.net/v3/"

	// BaseURLEU is the production API root for EU-hosted domains.
	BaseURLEU = "https://api.eu.mailgun.net/v3/"

	// RegionEU selects BaseURLEU when no BaseURL override is set.
	RegionEU = "eu"
)

// ErrMissingSetting is matched by every *ConfigError.
var ErrMissingSetting = errors.New("missing required setting")

// Config holds the settings needed to talk to the Mailgun messages API.
type Config struct {
	APIKey string
	Domain string

	// BaseURL overrides the production API root, e.g. to point at a mock
	// server. It must end with a slash.
	BaseURL string

	// Region is "us" (default) or "eu".
	Region string
}

// ConfigError reports a required setting that is missing or empty.
type ConfigError struct {
	Setting string
	Config  Config
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("mailgun: missing required setting %q in config: %s", e.Setting, e.Config.redacted())
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrMissingSetting
}

// ValidateConfig checks that the API key and domain are set. It is meant to
// run once at setup; a failure there is fatal.
func ValidateConfig(cfg Config) (Config, error) {
	if cfg.APIKey == "" {
		return Config{}, &ConfigError{Setting: "api_key", Config: cfg}
	}
	if cfg.Domain == "" {
		return Config{}, &ConfigError{Setting: "domain", Config: cfg}
	}
	return cfg, nil
}

// endpoint returns the messages URL for cfg.
func (c Config) endpoint() string {
	return c.baseURL() + c.Domain + "/messages"
}

func (c Config) baseURL() string {
	switch {
	case c.BaseURL != "":
		return c.BaseURL
	case c.Region == RegionEU:
		return BaseURLEU
	default:
		return BaseURL
	}
}

func (c Config) redacted() string {
	key := ""
	if c.APIKey != "" {
		key = "[REDACTED]"
	}
	return fmt.Sprintf("{api_key: %q, domain: %q, base_url: %q, region: %q}", key, c.Domain, c.BaseURL, c.Region)
}
