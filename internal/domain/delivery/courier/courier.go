// Package courier 物流适配层，每个物流商实现同一个 Courier 接口
package courier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrUnknownCourier = errors.New("unknown courier")

// Error 物流接口调用失败，不做自动切换
type Error struct {
	Courier    string
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Courier, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Courier, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// PaymentMode 付款方式
type PaymentMode string

const (
	PaymentPrepaid PaymentMode = "Prepaid"
	PaymentCOD     PaymentMode = "COD"
)

// Address 取件/收件地址
type Address struct {
	Name       string
	Phone      string
	Email      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Item 包裹内商品
type Item struct {
	Name        string
	SKU         string
	Quantity    int
	UnitPrice   decimal.Decimal
	WeightGrams int
}

// ShipmentRequest 创建运单参数
type ShipmentRequest struct {
	OrderNumber   string
	OrderDate     time.Time
	PickupName    string // 物流后台登记的取件点名称
	Pickup        Address
	Delivery      Address
	Items         []Item
	DeclaredValue decimal.Decimal
	PaymentMode   PaymentMode
	CODAmount     decimal.Decimal
}

// TotalWeightGrams 包裹总重量
func (r ShipmentRequest) TotalWeightGrams() int {
	total := 0
	for _, it := range r.Items {
		total += it.WeightGrams * it.Quantity
	}
	return total
}

// ShipmentResult 运单号
type ShipmentResult struct {
	TrackingNumber string
	AWBNumber      string
	ProviderRef    string // 物流商内部单号，例如 Shiprocket shipment_id
	EstimatedAt    *time.Time
}

// TrackingInfo 物流轨迹
type TrackingInfo struct {
	TrackingNumber string     `json:"trackingNumber"`
	Status         string     `json:"status"`
	Location       string     `json:"location,omitempty"`
	EstimatedAt    *time.Time `json:"estimatedDelivery,omitempty"`
	Delivered      bool       `json:"delivered"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

// Courier 物流商
type Courier interface {
	Name() string
	CreateShipment(ctx context.Context, req ShipmentRequest) (*ShipmentResult, error)
	TrackShipment(ctx context.Context, trackingNumber string) (*TrackingInfo, error)
	TrackingURL(trackingNumber string) string
}

// Registry 已配置的物流商，Default 用于后台未指定物流商时创建运单
type Registry struct {
	couriers map[string]Courier
	def      string
}

// NewRegistry 第一个为默认物流商
func NewRegistry(couriers ...Courier) *Registry {
	r := &Registry{couriers: make(map[string]Courier, len(couriers))}
	for i, c := range couriers {
		if i == 0 {
			r.def = c.Name()
		}
		r.couriers[c.Name()] = c
	}
	return r
}

// Get 按名称获取，name 为空时返回默认物流商
func (r *Registry) Get(name string) (Courier, error) {
	if r == nil {
		return nil, ErrUnknownCourier
	}
	if name == "" {
		name = r.def
	}
	c, ok := r.couriers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCourier, name)
	}
	return c, nil
}

// TrackingURL 订单未记录物流商或物流商未配置时返回空串
func (r *Registry) TrackingURL(partner, trackingNumber string) string {
	if trackingNumber == "" || partner == "" {
		return ""
	}
	c, err := r.Get(partner)
	if err != nil {
		return ""
	}
	return c.TrackingURL(trackingNumber)
}

// parseTime 物流商返回的时间格式不统一
func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func retryableStatus(status int) bool {
	return status >= 500 || status == 429 || status == 408
}
