package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port               string `envconfig:"PORT" default:"8080"`
	Environment        string `envconfig:"ENV" default:"development"`
	DBConnectionString string `envconfig:"DATABASE_URL" required:"true"`
	JWTSecret          string `envconfig:"SUPABASE_JWT_SECRET" required:"true"`

	// OpenAI settings
	OpenAIAPIKey            string `envconfig:"OPENAI_API_KEY" required:"true"`
	OpenAIModel             string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIRequestTimeoutSec int    `envconfig:"OPENAI_REQUEST_TIMEOUT_SEC" default:"60"`

	// Stripe settings
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET" required:"true"`
	StripePricePro      string `envconfig:"STRIPE_PRICE_PRO_MONTHLY" required:"true"`
	CheckoutSuccessURL  string `envconfig:"CHECKOUT_SUCCESS_URL" default:"http://localhost:3000/dashboard?upgrade=success"`
	CheckoutCancelURL   string `envconfig:"CHECKOUT_CANCEL_URL" default:"http://localhost:3000/pricing?canceled=1"`
	PortalReturnURL     string `envconfig:"PORTAL_RETURN_URL" default:"http://localhost:3000/dashboard"`

	// Quota settings
	DailyFreeLimit int `envconfig:"DAILY_FREE_LIMIT" default:"5"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
