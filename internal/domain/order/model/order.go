package model

import (
	"time"

	baseModel "rakhi_store/pkg/model"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Status 订单状态
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Valid 是否为已知状态
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal 终态不再变化
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// PaymentStatus 支付状态
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// ShippingAddress 收货地址快照，下单时写入，之后不随用户资料变化
type ShippingAddress struct {
	Name         string `gorm:"size:120" json:"name" binding:"required,max=120"`
	Phone        string `gorm:"size:20" json:"phone" binding:"required,phone"`
	AddressLine1 string `gorm:"size:255" json:"addressLine1" binding:"required,max=255"`
	AddressLine2 string `gorm:"size:255" json:"addressLine2" binding:"max=255"`
	City         string `gorm:"size:100" json:"city" binding:"required,max=100"`
	State        string `gorm:"size:100" json:"state" binding:"required,max=100"`
	PostalCode   string `gorm:"size:12" json:"postalCode" binding:"required,pincode"`
	Country      string `gorm:"size:60" json:"country" binding:"max=60"`
}

// Order 订单聚合根
type Order struct {
	baseModel.BaseModel
	OrderNumber      string          `gorm:"uniqueIndex;size:32;not null" json:"orderNumber"`
	UserID           *string         `gorm:"type:uuid;index" json:"userId,omitempty"`
	Status           Status          `gorm:"size:16;not null;index" json:"status"`
	PaymentStatus    PaymentStatus   `gorm:"size:16;not null" json:"paymentStatus"`
	PaymentID        *string         `gorm:"size:64" json:"paymentId,omitempty"`
	PaymentSessionID *string         `gorm:"size:255" json:"-"`
	Subtotal         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	ShippingCharge   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"shippingCharge"`
	TotalAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"totalAmount"`
	Currency         string          `gorm:"size:3;not null" json:"currency"`

	CustomerName  string `gorm:"size:120;not null" json:"customerName"`
	CustomerEmail string `gorm:"size:255;not null" json:"customerEmail"`
	CustomerPhone string `gorm:"size:20;not null" json:"customerPhone"`

	ShippingAddress ShippingAddress `gorm:"embedded;embeddedPrefix:shipping_" json:"shippingAddress"`

	TrackingNumber    *string    `gorm:"size:64" json:"trackingNumber,omitempty"`
	AWBNumber         *string    `gorm:"column:awb_number;size:64" json:"awbNumber,omitempty"`
	DeliveryPartner   *string    `gorm:"size:32" json:"deliveryPartner,omitempty"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
	ShippedAt         *time.Time `json:"shippedAt,omitempty"`
	DeliveredAt       *time.Time `json:"deliveredAt,omitempty"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
}

// TableName 表名
func (Order) TableName() string {
	return "orders"
}

// Paid 支付已完成
func (o *Order) Paid() bool {
	return o.PaymentStatus == PaymentCompleted
}

// Apply 将变更字段写回内存中的订单
func (o *Order) Apply(p Patch) {
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.PaymentStatus != nil {
		o.PaymentStatus = *p.PaymentStatus
	}
	if p.PaymentID != nil {
		o.PaymentID = p.PaymentID
	}
	if p.TrackingNumber != nil {
		o.TrackingNumber = p.TrackingNumber
	}
	if p.AWBNumber != nil {
		o.AWBNumber = p.AWBNumber
	}
	if p.DeliveryPartner != nil {
		o.DeliveryPartner = p.DeliveryPartner
	}
	if p.EstimatedDelivery != nil {
		o.EstimatedDelivery = p.EstimatedDelivery
	}
	if p.ShippedAt != nil {
		o.ShippedAt = p.ShippedAt
	}
	if p.DeliveredAt != nil {
		o.DeliveredAt = p.DeliveredAt
	}
	if !p.UpdatedAt.IsZero() {
		o.UpdatedAt = p.UpdatedAt
	}
}

// OrderItem 订单明细，下单时一次性写入，不再修改
type OrderItem struct {
	ID          string          `gorm:"primaryKey;type:uuid" json:"id"`
	OrderID     string          `gorm:"type:uuid;not null;index" json:"-"`
	ProductID   string          `gorm:"type:uuid;not null" json:"productId"`
	ProductName string          `gorm:"size:255;not null" json:"productName"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"` // 下单时单价
	WeightGrams int             `gorm:"not null" json:"-"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// TableName 表名
func (OrderItem) TableName() string {
	return "order_items"
}

// BeforeCreate 钩子：生成 UUID
func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// LineTotal 小计
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Patch 条件更新时写入的字段，nil 表示不修改
type Patch struct {
	Status            *Status
	PaymentStatus     *PaymentStatus
	PaymentID         *string
	TrackingNumber    *string
	AWBNumber         *string
	DeliveryPartner   *string
	EstimatedDelivery *time.Time
	ShippedAt         *time.Time
	DeliveredAt       *time.Time
	UpdatedAt         time.Time
}

// Columns 转换为 gorm Updates 使用的列映射
func (p Patch) Columns() map[string]interface{} {
	cols := map[string]interface{}{"updated_at": p.UpdatedAt}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.PaymentStatus != nil {
		cols["payment_status"] = *p.PaymentStatus
	}
	if p.PaymentID != nil {
		cols["payment_id"] = *p.PaymentID
	}
	if p.TrackingNumber != nil {
		cols["tracking_number"] = *p.TrackingNumber
	}
	if p.AWBNumber != nil {
		cols["awb_number"] = *p.AWBNumber
	}
	if p.DeliveryPartner != nil {
		cols["delivery_partner"] = *p.DeliveryPartner
	}
	if p.EstimatedDelivery != nil {
		cols["estimated_delivery"] = *p.EstimatedDelivery
	}
	if p.ShippedAt != nil {
		cols["shipped_at"] = *p.ShippedAt
	}
	if p.DeliveredAt != nil {
		cols["delivered_at"] = *p.DeliveredAt
	}
	return cols
}

// Guard 条件更新的前置条件，只有当前行满足全部条件时才写入
type Guard struct {
	Statuses        []Status
	PaymentStatuses []PaymentStatus
	// 非 nil 时要求 tracking_number 等于该值（空串表示尚未设置）
	TrackingNumber *string
}

// Matches 判断订单是否满足前置条件
func (g Guard) Matches(o *Order) bool {
	if len(g.Statuses) > 0 && !lo.Contains(g.Statuses, o.Status) {
		return false
	}
	if len(g.PaymentStatuses) > 0 && !lo.Contains(g.PaymentStatuses, o.PaymentStatus) {
		return false
	}
	if g.TrackingNumber != nil && lo.FromPtr(o.TrackingNumber) != *g.TrackingNumber {
		return false
	}
	return true
}

// OrderChange 推送给前台的状态变化，只读
type OrderChange struct {
	OrderID        string        `json:"orderId"`
	OrderNumber    string        `json:"orderNumber"`
	UserID         string        `json:"userId,omitempty"`
	Status         Status        `json:"status"`
	PaymentStatus  PaymentStatus `json:"paymentStatus"`
	TrackingNumber string        `json:"trackingNumber,omitempty"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// EventKey 消息分区键
func (c OrderChange) EventKey() string {
	return c.OrderNumber
}

// ChangeOf 由订单生成推送消息
func ChangeOf(o *Order) OrderChange {
	c := OrderChange{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.UserID != nil {
		c.UserID = *o.UserID
	}
	if o.TrackingNumber != nil {
		c.TrackingNumber = *o.TrackingNumber
	}
	return c
}
