package model

import (
	"fmt"
	"time"

	baseModel "rakhi_store/pkg/model"

	"github.com/shopspring/decimal"
)

// PaymentEvent 已验签的支付回调记录
// EventKey 唯一，同一逻辑事件重复投递只会留下一条
type PaymentEvent struct {
	baseModel.BaseModel
	EventKey    string          `gorm:"uniqueIndex;size:160;not null" json:"eventKey"`
	Provider    string          `gorm:"size:20;not null" json:"provider"`
	EventType   string          `gorm:"size:60;not null" json:"eventType"`
	OrderNumber string          `gorm:"size:32;not null;index" json:"orderNumber"`
	PaymentID   string          `gorm:"size:64" json:"paymentId"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2)" json:"amount"`
	Outcome     string          `gorm:"size:20" json:"outcome"`
	ReceivedAt  time.Time       `gorm:"not null" json:"receivedAt"`
}

// TableName 表名
func (PaymentEvent) TableName() string {
	return "payment_events"
}

// EventKeyOf 回调幂等键：orderNumber:type:paymentId
func EventKeyOf(orderNumber, eventType, paymentID string) string {
	return fmt.Sprintf("%s:%s:%s", orderNumber, eventType, paymentID)
}
