package model

import (
	"time"

	baseModel "rakhi_store/pkg/model"
)

// IssueKind 运营工单类型
type IssueKind string

const (
	IssuePartialWrite        IssueKind = "partial_write"
	IssuePaymentSession      IssueKind = "payment_session_failed"
	IssueNotificationFailed  IssueKind = "notification_failed"
	IssueWebhookAmount       IssueKind = "webhook_amount_mismatch"
	IssueWebhookUnknownOrder IssueKind = "webhook_unknown_order"
	IssueGuestAccountFailed  IssueKind = "guest_account_failed"
)

// Issue 需要人工处理的问题，例如邮件多次发送失败、回调金额不一致
type Issue struct {
	baseModel.BaseModel
	Kind        IssueKind  `gorm:"size:40;not null;index" json:"kind"`
	OrderNumber string     `gorm:"size:32;index" json:"orderNumber"`
	Detail      string     `gorm:"type:text" json:"detail"`
	Resolved    bool       `gorm:"not null;default:false;index" json:"resolved"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	Note        string     `gorm:"type:text" json:"note,omitempty"`
}

// TableName 表名
func (Issue) TableName() string {
	return "order_issues"
}
