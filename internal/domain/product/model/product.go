package model

import (
	baseModel "rakhi_store/pkg/model"

	"github.com/shopspring/decimal"
)

// Product 商品，价格和库存以此为准，购物车里的价格只用于展示
type Product struct {
	baseModel.BaseModel
	Name        string          `gorm:"size:255;not null" json:"name"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Stock       int             `gorm:"not null" json:"stock"`
	WeightGrams int             `gorm:"not null" json:"weightGrams"`
	IsActive    bool            `gorm:"not null" json:"isActive"`
}

// TableName 表名
func (Product) TableName() string {
	return "products"
}
