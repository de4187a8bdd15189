package gateway

import (
	"context"
	"fmt"

	"rakhi_store/internal/pkg/config"
	"rakhi_store/pkg/metrics"
)

// New 按配置选择支付网关，启动时调用一次
func New(ctx context.Context, cfg config.PaymentConfig, m *metrics.MetricsCollector) (Gateway, error) {
	switch cfg.Provider {
	case ProviderCashfree:
		return NewCashfreeGateway(cfg.Cashfree, cfg.Timeout, m)
	case ProviderAlipay:
		return NewAlipayGateway(cfg.Alipay)
	case ProviderWechat:
		return NewWechatGateway(ctx, cfg.Wechat)
	default:
		return nil, fmt.Errorf("unsupported payment provider %q", cfg.Provider)
	}
}

var _ Gateway = (*CashfreeGateway)(nil)
