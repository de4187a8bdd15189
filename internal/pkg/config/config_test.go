package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
database:
  host: db
  user: shop
  dbname: shop
  port: "5432"
  sslmode: disable
jwt:
  secret: 0123456789abcdef0123456789abcdef
payment:
  provider: cashfree
  cashfree:
    app_id: app
    secret_key: from-file
checkout:
  notify_url: https://shop.example.com/api/payment/webhook
email:
  provider: log
  from: orders@shop.example.com
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	return dir
}

func TestLoad(t *testing.T) {
	t.Run("file values and defaults", func(t *testing.T) {
		dir := writeConfig(t, "config.yaml", testYAML)

		cfg, err := Load("dev", dir)
		require.NoError(t, err)

		assert.Equal(t, "db", cfg.Database.Host)
		assert.Equal(t, "from-file", cfg.Payment.Cashfree.SecretKey)
		assert.Equal(t, "sandbox", cfg.Payment.Cashfree.Mode)
		assert.Equal(t, 5*time.Minute, cfg.Payment.Cashfree.WebhookTolerance)
		assert.Equal(t, "INR", cfg.Checkout.Currency)
		assert.Equal(t, "499", cfg.Checkout.FreeDeliveryThreshold)
		assert.Equal(t, 3, cfg.Email.MaxRetry)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("env overrides nested keys", func(t *testing.T) {
		dir := writeConfig(t, "config.yaml", testYAML)
		t.Setenv("PAYMENT_CASHFREE_SECRET_KEY", "from-env")
		t.Setenv("DB_HOST", "db-from-env")

		cfg, err := Load("dev", dir)
		require.NoError(t, err)

		assert.Equal(t, "from-env", cfg.Payment.Cashfree.SecretKey)
		assert.Equal(t, "db-from-env", cfg.Database.Host)
	})

	t.Run("environment specific file", func(t *testing.T) {
		dir := writeConfig(t, "config.prod.yaml", testYAML+"\napp:\n  env: prod\n")

		cfg, err := Load("prod", dir)
		require.NoError(t, err)
		assert.Equal(t, "prod", cfg.App.Env)
	})

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := Load("dev", t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.Server.Port)
		assert.Error(t, cfg.Validate())
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		dir := writeConfig(t, "config.yaml", testYAML)
		cfg, err := Load("dev", dir)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"short jwt secret", func(c *Config) { c.JWT.Secret = "short" }, "at least 32"},
		{"unknown payment provider", func(c *Config) { c.Payment.Provider = "paypal" }, "unsupported payment provider"},
		{"cashfree without secret", func(c *Config) { c.Payment.Cashfree.SecretKey = "" }, "cashfree credentials"},
		{"cashfree without webhook window", func(c *Config) { c.Payment.Cashfree.WebhookTolerance = 0 }, "webhook_tolerance"},
		{"cashfree negative webhook window", func(c *Config) { c.Payment.Cashfree.WebhookTolerance = -time.Minute }, "webhook_tolerance"},
		{"unknown courier", func(c *Config) { c.Delivery.Provider = "bluedart" }, "unsupported delivery provider"},
		{"unknown email provider", func(c *Config) { c.Email.Provider = "smtp" }, "unsupported email provider"},
		{"missing notify url", func(c *Config) { c.Checkout.NotifyURL = "" }, "notify_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
