package repository

import (
	"context"
	"fmt"

	"rakhi_store/internal/domain/order/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SettingsRepository 运费设置
type SettingsRepository interface {
	LoadDeliverySettings(ctx context.Context) (model.DeliverySettings, error)
}

type settingsRepository struct {
	db       *gorm.DB
	defaults model.DeliverySettings
}

// NewSettingsRepository defaults 用于 site_settings 中缺失的项
func NewSettingsRepository(db *gorm.DB, defaults model.DeliverySettings) SettingsRepository {
	return &settingsRepository{db: db, defaults: defaults}
}

func (r *settingsRepository) LoadDeliverySettings(ctx context.Context) (model.DeliverySettings, error) {
	var rows []model.SiteSetting
	err := r.db.WithContext(ctx).
		Where("key IN ?", []string{model.SettingDeliveryCharge, model.SettingFreeDeliveryThreshold}).
		Find(&rows).Error
	if err != nil {
		return model.DeliverySettings{}, fmt.Errorf("load delivery settings: %w", err)
	}

	settings := r.defaults
	for _, row := range rows {
		v, err := decimal.NewFromString(row.Value)
		if err != nil || v.IsNegative() {
			return model.DeliverySettings{}, fmt.Errorf("invalid setting %s=%q", row.Key, row.Value)
		}
		switch row.Key {
		case model.SettingDeliveryCharge:
			settings.FlatCharge = v
		case model.SettingFreeDeliveryThreshold:
			settings.FreeThreshold = v
		}
	}
	return settings, nil
}
