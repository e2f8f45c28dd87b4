package gateway

import (
	"errors"
	"strings"
	"time"
)

// Config contains settings for the hosted payment gateway API
type Config struct {
	// BaseURL is the API root, e.g. https://api.nowpayments.io/v1
	BaseURL string
	APIKey  string
	// IPNSecret signs instant payment notifications
	IPNSecret   string
	CallbackURL string
	SuccessURL  string
	CancelURL   string
	// Timeout bounds each HTTP attempt
	Timeout time.Duration
	// MaxRetries bounds retries of transient failures
	MaxRetries uint64
}

// Errors for configuration validation
var (
	ErrMissingBaseURL   = errors.New("gateway: missing base URL")
	ErrMissingAPIKey    = errors.New("gateway: missing API key")
	ErrMissingIPNSecret = errors.New("gateway: missing IPN secret")
)

// Validate validates the configuration and fills defaults
func (c *Config) Validate() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		return ErrMissingBaseURL
	}
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return nil
}
