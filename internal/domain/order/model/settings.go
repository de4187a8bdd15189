package model

import (
	"github.com/shopspring/decimal"
)

// site_settings 中的运费配置 key
const (
	SettingDeliveryCharge        = "delivery_charge"
	SettingFreeDeliveryThreshold = "free_delivery_threshold"
)

// DeliverySettings 运费设置，下单开始时读取一次并作为参数传递
type DeliverySettings struct {
	FlatCharge    decimal.Decimal
	FreeThreshold decimal.Decimal
}

// ShippingFor 小计达到门槛免运费，否则收取固定运费
func (s DeliverySettings) ShippingFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(s.FreeThreshold) {
		return decimal.Zero
	}
	return s.FlatCharge
}

// SiteSetting 站点配置键值表
type SiteSetting struct {
	Key   string `gorm:"primaryKey;size:64"`
	Value string `gorm:"type:text;not null"`
}

// TableName 表名
func (SiteSetting) TableName() string {
	return "site_settings"
}
