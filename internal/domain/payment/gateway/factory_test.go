package gateway

import (
	"context"
	"testing"

	"rakhi_store/internal/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	g, err := New(context.Background(), config.PaymentConfig{
		Provider: "cashfree",
		Cashfree: config.CashfreeConfig{AppID: "app", SecretKey: "secret", Mode: "production"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderCashfree, g.Name())
	assert.Equal(t, cashfreeProductionURL, g.(*CashfreeGateway).baseURL)

	_, err = New(context.Background(), config.PaymentConfig{Provider: "cashfree"}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), config.PaymentConfig{Provider: "alipay"}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), config.PaymentConfig{Provider: "paypal"}, nil)
	assert.Error(t, err)
}
