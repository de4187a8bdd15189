package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"rakhi_store/internal/domain/order/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func newOrder() *model.Order {
	return &model.Order{
		OrderNumber:   "RK260810093000ABCDEF",
		Status:        model.StatusPending,
		PaymentStatus: model.PaymentPending,
		Subtotal:      decimal.NewFromInt(499),
		TotalAmount:   decimal.NewFromInt(499),
		Currency:      "INR",
		CustomerName:  "Asha",
		CustomerEmail: "asha@example.com",
		CustomerPhone: "9876543210",
		Items: []model.OrderItem{
			{ProductID: "9b2f5c64-1d2e-4c8a-9f00-000000000001", ProductName: "Silk Rakhi", Quantity: 1, Price: decimal.NewFromInt(499)},
		},
	}
}

func TestOrderRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("order and items in one transaction", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "orders"`)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`SAVEPOINT order_items`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "order_items"`)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		order := newOrder()
		require.NoError(t, repo.Create(ctx, order))

		assert.NotEmpty(t, order.ID)
		require.Len(t, order.Items, 1)
		assert.Equal(t, order.ID, order.Items[0].OrderID)
		assert.NotEmpty(t, order.Items[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate order number", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "orders"`)).WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectRollback()

		err := repo.Create(ctx, newOrder())
		assert.ErrorIs(t, err, ErrDuplicateOrderNum)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("item failure keeps the order and reports a partial write", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "orders"`)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`SAVEPOINT order_items`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "order_items"`)).WillReturnError(errors.New("disk full"))
		mock.ExpectExec(`ROLLBACK TO SAVEPOINT order_items`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		order := newOrder()
		err := repo.Create(ctx, order)

		var partial *ItemsWriteError
		require.ErrorAs(t, err, &partial)
		assert.Equal(t, order.OrderNumber, partial.OrderNumber)
		assert.NotEmpty(t, order.ID)
		assert.Empty(t, order.Items)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrderRepository_UpdateIf(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 10, 9, 30, 0, 0, time.UTC)
	confirmed := model.StatusConfirmed
	completed := model.PaymentCompleted
	paymentID := "555"
	patch := model.Patch{Status: &confirmed, PaymentStatus: &completed, PaymentID: &paymentID, UpdatedAt: now}
	guard := model.Guard{
		Statuses:        []model.Status{model.StatusPending},
		PaymentStatuses: []model.PaymentStatus{model.PaymentPending},
	}

	t.Run("winner updates one row", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderRepository(db)

		mock.ExpectExec(`UPDATE "orders" SET .* WHERE order_number = \$\d+ AND status IN \(\$\d+\) AND payment_status IN \(\$\d+\)`).
			WithArgs("555", "completed", "confirmed", now, "RK1", "pending", "pending").
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.UpdateIf(ctx, "RK1", guard, patch)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("loser affects zero rows", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderRepository(db)

		mock.ExpectExec(`UPDATE "orders" SET`).WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.UpdateIf(ctx, "RK1", guard, patch)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("tracking number guard", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderRepository(db)
		old := "AWB1"

		mock.ExpectExec(`UPDATE "orders" SET .* AND COALESCE\(tracking_number, ''\) = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.UpdateIf(ctx, "RK1", model.Guard{Statuses: []model.Status{model.StatusShipped}, TrackingNumber: &old}, patch)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderRepository(db)

		mock.ExpectExec(`UPDATE "orders" SET`).WillReturnError(errors.New("connection reset"))

		ok, err := repo.UpdateIf(ctx, "RK1", guard, patch)
		assert.Error(t, err)
		assert.False(t, ok)
	})
}

func TestOrderRepository_GetByNumber(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderRepository(db)

		mock.ExpectQuery(`SELECT \* FROM "orders" WHERE order_number = \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.GetByNumber(ctx, "RK404")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("loads items", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderRepository(db)

		mock.ExpectQuery(`SELECT \* FROM "orders" WHERE order_number = \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "order_number", "status", "payment_status", "total_amount", "currency"}).
				AddRow("o-1", "RK1", "confirmed", "completed", "548.00", "INR"))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "order_items" WHERE "order_items"."order_id" = $1`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "product_name", "quantity", "price"}).
				AddRow("i-1", "o-1", "p-1", "Silk Rakhi", 2, "249.50"))

		order, err := repo.GetByNumber(ctx, "RK1")
		require.NoError(t, err)
		assert.Equal(t, model.StatusConfirmed, order.Status)
		assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("548")))
		require.Len(t, order.Items, 1)
		assert.Equal(t, 2, order.Items[0].Quantity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrderRepository_SetPaymentSession(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	mock.ExpectExec(`UPDATE "orders" SET "payment_session_id"=\$1`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.SetPaymentSession(context.Background(), "RK1", "session_abc")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEventRepository_Record(t *testing.T) {
	ctx := context.Background()
	ev := func() *model.PaymentEvent {
		return &model.PaymentEvent{
			EventKey:    model.EventKeyOf("RK1", "PAYMENT_SUCCESS_WEBHOOK", "555"),
			Provider:    "cashfree",
			EventType:   "PAYMENT_SUCCESS_WEBHOOK",
			OrderNumber: "RK1",
			PaymentID:   "555",
			Amount:      decimal.NewFromInt(548),
			ReceivedAt:  time.Now(),
		}
	}

	db, mock := newMockDB(t)
	repo := NewEventRepository(db)

	mock.ExpectExec(`INSERT INTO "payment_events" .* ON CONFLICT \("event_key"\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "payment_events" .* ON CONFLICT \("event_key"\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.Record(ctx, ev())
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Record(ctx, ev())
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepository_Resolve(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewIssueRepository(db)

	mock.ExpectExec(`UPDATE "order_issues" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "order_issues" SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Resolve(context.Background(), "issue-1", "resent manually"))
	assert.ErrorIs(t, repo.Resolve(context.Background(), "issue-1", "again"), ErrIssueNotFound)
}

func TestSettingsRepository_LoadDeliverySettings(t *testing.T) {
	defaults := model.DeliverySettings{FlatCharge: decimal.NewFromInt(49), FreeThreshold: decimal.NewFromInt(499)}

	t.Run("stored values override defaults", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSettingsRepository(db, defaults)

		mock.ExpectQuery(`SELECT \* FROM "site_settings" WHERE key IN`).
			WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).AddRow("delivery_charge", "79"))

		s, err := repo.LoadDeliverySettings(context.Background())
		require.NoError(t, err)
		assert.True(t, s.FlatCharge.Equal(decimal.NewFromInt(79)))
		assert.True(t, s.FreeThreshold.Equal(decimal.NewFromInt(499)))
	})

	t.Run("invalid value", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSettingsRepository(db, defaults)

		mock.ExpectQuery(`SELECT \* FROM "site_settings"`).
			WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).AddRow("free_delivery_threshold", "lots"))

		_, err := repo.LoadDeliverySettings(context.Background())
		assert.Error(t, err)
	})
}
