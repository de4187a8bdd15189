package courier

import (
	"fmt"

	"rakhi_store/internal/pkg/config"
	"rakhi_store/pkg/metrics"
)

// NewRegistryFromConfig 创建已配置凭证的物流商，cfg.Provider 为默认物流商
func NewRegistryFromConfig(cfg config.DeliveryConfig, m *metrics.MetricsCollector) (*Registry, error) {
	var couriers []Courier

	if cfg.Delhivery.Token != "" {
		d, err := NewDelhiveryCourier(cfg.Delhivery, cfg.Timeout, m)
		if err != nil {
			return nil, err
		}
		couriers = append(couriers, d)
	}
	if cfg.Shiprocket.Email != "" {
		s, err := NewShiprocketCourier(cfg.Shiprocket, cfg.Timeout, m)
		if err != nil {
			return nil, err
		}
		couriers = append(couriers, s)
	}

	// 默认物流商放在第一个
	for i, c := range couriers {
		if c.Name() == cfg.Provider {
			couriers[0], couriers[i] = couriers[i], couriers[0]
			break
		}
	}

	r := NewRegistry(couriers...)
	if cfg.Provider != "" {
		if _, err := r.Get(cfg.Provider); err != nil {
			return nil, fmt.Errorf("delivery provider %q not configured: %w", cfg.Provider, err)
		}
	}
	return r, nil
}

// PickupAddress 配置中的取件地址
func PickupAddress(cfg config.PickupConfig) Address {
	return Address{
		Name:       cfg.Name,
		Phone:      cfg.Phone,
		Line1:      cfg.Address,
		City:       cfg.City,
		State:      cfg.State,
		PostalCode: cfg.PostalCode,
		Country:    cfg.Country,
	}
}
