package payout

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// ProviderConfig contains configuration for the payout provider API
type ProviderConfig struct {
	// BaseURL is the provider API root, e.g. https://payouts.example.com
	BaseURL string
	// APIKey authenticates requests and keys the request signature
	APIKey string
	// Timeout bounds a single HTTP call
	Timeout time.Duration
	// UserAgent is sent with every request
	UserAgent string
}

// Errors for configuration validation
var (
	ErrMissingBaseURL = errors.New("payout provider: missing base URL")
	ErrInvalidBaseURL = errors.New("payout provider: invalid base URL")
	ErrMissingAPIKey  = errors.New("payout provider: missing API key")
)

// Validate checks the configuration and fills defaults
func (c *ProviderConfig) Validate() error {
	if c.BaseURL == "" {
		return ErrMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "settlement-engine/1.0"
	}
	return nil
}
