package repository

import (
	"context"
	"errors"
	"time"

	"rakhi_store/internal/domain/order/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrIssueNotFound = errors.New("issue not found")

// IssueRepository 运营工单
type IssueRepository interface {
	Record(ctx context.Context, issue *model.Issue) error
	List(ctx context.Context, onlyOpen bool, offset, limit int) ([]model.Issue, int64, error)
	Resolve(ctx context.Context, id, note string) error
}

type issueRepository struct {
	db *gorm.DB
}

func NewIssueRepository(db *gorm.DB) IssueRepository {
	return &issueRepository{db: db}
}

func (r *issueRepository) Record(ctx context.Context, issue *model.Issue) error {
	return r.db.WithContext(ctx).Create(issue).Error
}

func (r *issueRepository) List(ctx context.Context, onlyOpen bool, offset, limit int) ([]model.Issue, int64, error) {
	var issues []model.Issue
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Issue{})
	if onlyOpen {
		db = db.Where("resolved = ?", false)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&issues).Error; err != nil {
		return nil, 0, err
	}
	return issues, total, nil
}

func (r *issueRepository) Resolve(ctx context.Context, id, note string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&model.Issue{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_at": now,
			"note":        note,
			"updated_at":  now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrIssueNotFound
	}
	return nil
}

// EventRepository 支付回调记录
type EventRepository interface {
	// Record 写入回调记录，重复的 EventKey 返回 false
	Record(ctx context.Context, ev *model.PaymentEvent) (bool, error)
	ListByOrder(ctx context.Context, orderNumber string) ([]model.PaymentEvent, error)
}

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Record(ctx context.Context, ev *model.PaymentEvent) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_key"}}, DoNothing: true}).
		Create(ev)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *eventRepository) ListByOrder(ctx context.Context, orderNumber string) ([]model.PaymentEvent, error) {
	var events []model.PaymentEvent
	err := r.db.WithContext(ctx).Where("order_number = ?", orderNumber).Order("received_at").Find(&events).Error
	return events, err
}
