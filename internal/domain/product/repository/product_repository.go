package repository

import (
	"context"

	"rakhi_store/internal/domain/product/model"

	"gorm.io/gorm"
)

// ProductRepository 商品只读接口，商品管理不在本服务内
type ProductRepository interface {
	// GetByIDs 返回存在且上架的商品，按 ID 索引
	GetByIDs(ctx context.Context, ids []string) (map[string]model.Product, error)
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) GetByIDs(ctx context.Context, ids []string) (map[string]model.Product, error) {
	var products []model.Product
	if len(ids) == 0 {
		return map[string]model.Product{}, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ? AND is_active = ?", ids, true).Find(&products).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string]model.Product, len(products))
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}
