package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds everything the payments backend reads from the environment.
// godotenv.Load() in main fills the env in dev; prod uses real env vars.
type Config struct {
	ListenAddr string
	DBDSN      string

	GatewayBaseURL       string
	GatewayKeyID         string
	GatewayKeySecret     string
	GatewayWebhookSecret string
	DefaultCurrency      string

	CreateTimeout  time.Duration
	CaptureTimeout time.Duration
	RefundTimeout  time.Duration
	FetchTimeout   time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:           envOr("LISTEN_ADDR", ":8080"),
		DBDSN:                os.Getenv("DB_DSN"),
		GatewayBaseURL:       envOr("GATEWAY_BASE_URL", "https://api.razorpay.com"),
		GatewayKeyID:         os.Getenv("GATEWAY_KEY_ID"),
		GatewayKeySecret:     os.Getenv("GATEWAY_KEY_SECRET"),
		GatewayWebhookSecret: os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		DefaultCurrency:      envOr("GATEWAY_DEFAULT_CURRENCY", "INR"),
	}

	if cfg.DBDSN == "" {
		return Config{}, fmt.Errorf("DB_DSN is required")
	}
	if cfg.GatewayKeyID == "" || cfg.GatewayKeySecret == "" {
		return Config{}, fmt.Errorf("GATEWAY_KEY_ID and GATEWAY_KEY_SECRET are required")
	}

	var err error
	if cfg.CreateTimeout, err = durationOr("GATEWAY_CREATE_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.CaptureTimeout, err = durationOr("GATEWAY_CAPTURE_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RefundTimeout, err = durationOr("GATEWAY_REFUND_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.FetchTimeout, err = durationOr("GATEWAY_FETCH_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func durationOr(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}
