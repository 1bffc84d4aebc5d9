package spapi

import (
	"fmt"

	"github.com/erp/sellersync/internal/domain/marketplace"
	"github.com/go-playground/validator/v10"
)

const (
	// DefaultEndpoint is the North America selling-partner API endpoint
	DefaultEndpoint = "https://sellingpartnerapi-na.amazon.com"
	// DefaultTokenURL is the login-with-amazon token endpoint
	DefaultTokenURL = "https://api.amazon.com/auth/o2/token"
	// DefaultMarketplaceID is the US marketplace
	DefaultMarketplaceID = "ATVPDKIKX0DER"
)

// Config holds the vendor API credentials and client tuning.
type Config struct {
	Endpoint          string  `validate:"required,url"`
	TokenURL          string  `validate:"required,url"`
	ClientID          string  `validate:"required"`
	ClientSecret      string  `validate:"required"`
	RefreshToken      string  `validate:"required"`
	MarketplaceID     string  `validate:"required"`
	TimeoutSeconds    int     `validate:"gte=0"`
	RequestsPerSecond float64 `validate:"gte=0"`
	Burst             int     `validate:"gte=0"`
}

// NewConfig creates a configuration with defaults for everything except
// the credentials.
func NewConfig(clientID, clientSecret, refreshToken string) *Config {
	return &Config{
		Endpoint:          DefaultEndpoint,
		TokenURL:          DefaultTokenURL,
		ClientID:          clientID,
		ClientSecret:      clientSecret,
		RefreshToken:      refreshToken,
		MarketplaceID:     DefaultMarketplaceID,
		TimeoutSeconds:    60,
		RequestsPerSecond: 0.5,
		Burst:             5,
	}
}

var validate = validator.New()

// Validate fills defaults and checks that credentials are present. A
// failure wraps marketplace.ErrNotConfigured.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.MarketplaceID == "" {
		c.MarketplaceID = DefaultMarketplaceID
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 60
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 0.5
	}
	if c.Burst == 0 {
		c.Burst = 5
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", marketplace.ErrNotConfigured, err)
	}
	return nil
}
