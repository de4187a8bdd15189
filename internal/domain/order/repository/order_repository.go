package repository

import (
	"context"
	"errors"
	"fmt"

	"rakhi_store/internal/domain/order/model"
	"rakhi_store/pkg/database"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateOrderNum = errors.New("order number already exists")
)

// ItemsWriteError 订单主表已写入但明细写入失败
// 调用方需要把它登记到运营工单，订单本身仍然返回
type ItemsWriteError struct {
	OrderNumber string
	Err         error
}

func (e *ItemsWriteError) Error() string {
	return fmt.Sprintf("order %s saved without items: %v", e.OrderNumber, e.Err)
}

func (e *ItemsWriteError) Unwrap() error { return e.Err }

// OrderRepository 订单仓库，订单状态的唯一数据源
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id string) (*model.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*model.Order, error)
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.Order, int64, error)
	// UpdateIf 仅当当前行满足 guard 时写入 patch，返回是否写入成功
	UpdateIf(ctx context.Context, orderNumber string, guard model.Guard, patch model.Patch) (bool, error)
	// SetPaymentSession 记录最新的支付会话，仅对待支付订单生效
	SetPaymentSession(ctx context.Context, orderNumber, sessionID string) (bool, error)
}

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create 在一个事务中写入订单和明细
// 订单号冲突返回 ErrDuplicateOrderNum，由调用方重新生成订单号
// 明细写入失败时回滚到保存点，订单本身照常提交并返回 *ItemsWriteError
func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	items := order.Items
	var itemsErr error

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDuplicateOrderNum
			}
			return fmt.Errorf("insert order: %w", err)
		}
		if len(items) == 0 {
			return nil
		}

		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := tx.SavePoint("order_items").Error; err != nil {
			return fmt.Errorf("savepoint: %w", err)
		}
		if err := tx.Create(&items).Error; err != nil {
			itemsErr = err
			return tx.RollbackTo("order_items").Error
		}
		return nil
	})
	if err != nil {
		return err
	}

	if itemsErr != nil {
		order.Items = nil
		return &ItemsWriteError{OrderNumber: order.OrderNumber, Err: itemsErr}
	}
	order.Items = items
	return nil
}

// GetByID 根据ID获取订单（含明细）
func (r *orderRepository) GetByID(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// GetByNumber 根据订单号获取订单（含明细）
func (r *orderRepository) GetByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Preload("Items").Where("order_number = ?", orderNumber).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// ListByUser 用户订单列表（分页，按创建时间倒序）
func (r *orderRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Order{}).Where("user_id = ?", userID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Preload("Items").Order("created_at DESC").Offset(offset).Limit(limit).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateIf 条件更新
// 并发写同一订单时只有一个能匹配前置条件，另一个影响 0 行
func (r *orderRepository) UpdateIf(ctx context.Context, orderNumber string, guard model.Guard, patch model.Patch) (bool, error) {
	db := r.db.WithContext(ctx).Model(&model.Order{}).Where("order_number = ?", orderNumber)
	if len(guard.Statuses) > 0 {
		db = db.Where("status IN ?", guard.Statuses)
	}
	if len(guard.PaymentStatuses) > 0 {
		db = db.Where("payment_status IN ?", guard.PaymentStatuses)
	}
	if guard.TrackingNumber != nil {
		db = db.Where("COALESCE(tracking_number, '') = ?", *guard.TrackingNumber)
	}

	result := db.Updates(patch.Columns())
	if result.Error != nil {
		return false, fmt.Errorf("update order %s: %w", orderNumber, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// SetPaymentSession 保存支付会话，只有 pending/pending 的订单才会被更新
func (r *orderRepository) SetPaymentSession(ctx context.Context, orderNumber, sessionID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_number = ? AND status = ? AND payment_status = ?", orderNumber, model.StatusPending, model.PaymentPending).
		Update("payment_session_id", sessionID)
	if result.Error != nil {
		return false, fmt.Errorf("save payment session for %s: %w", orderNumber, result.Error)
	}
	return result.RowsAffected == 1, nil
}
