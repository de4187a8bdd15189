package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestDeliverySettingsShippingFor(t *testing.T) {
	s := DeliverySettings{
		FlatCharge:    decimal.NewFromInt(49),
		FreeThreshold: decimal.NewFromInt(499),
	}

	tests := []struct {
		subtotal string
		want     string
	}{
		{"499", "0"},
		{"498", "49"},
		{"498.99", "49"},
		{"1200", "0"},
		{"0", "49"},
	}
	for _, tt := range tests {
		t.Run(tt.subtotal, func(t *testing.T) {
			got := s.ShippingFor(decimal.RequireFromString(tt.subtotal))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestGuardMatches(t *testing.T) {
	order := &Order{Status: StatusShipped, PaymentStatus: PaymentCompleted, TrackingNumber: strPtr("AWB1")}

	assert.True(t, Guard{}.Matches(order))
	assert.True(t, Guard{Statuses: []Status{StatusConfirmed, StatusShipped}}.Matches(order))
	assert.False(t, Guard{Statuses: []Status{StatusPending}}.Matches(order))
	assert.False(t, Guard{PaymentStatuses: []PaymentStatus{PaymentPending}}.Matches(order))
	assert.True(t, Guard{TrackingNumber: strPtr("AWB1")}.Matches(order))
	assert.False(t, Guard{TrackingNumber: strPtr("AWB2")}.Matches(order))

	order.TrackingNumber = nil
	assert.True(t, Guard{TrackingNumber: strPtr("")}.Matches(order))
}

func TestPatchColumnsAndApply(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	status := StatusConfirmed
	paid := PaymentCompleted
	p := Patch{Status: &status, PaymentStatus: &paid, PaymentID: strPtr("cf_1"), UpdatedAt: now}

	cols := p.Columns()
	assert.Equal(t, map[string]interface{}{
		"status":         StatusConfirmed,
		"payment_status": PaymentCompleted,
		"payment_id":     "cf_1",
		"updated_at":     now,
	}, cols)

	order := &Order{Status: StatusPending, PaymentStatus: PaymentPending}
	order.Apply(p)
	assert.Equal(t, StatusConfirmed, order.Status)
	assert.Equal(t, PaymentCompleted, order.PaymentStatus)
	assert.Equal(t, "cf_1", *order.PaymentID)
	assert.Equal(t, now, order.UpdatedAt)
	assert.Nil(t, order.TrackingNumber)
}

func TestOrderItemLineTotal(t *testing.T) {
	item := OrderItem{Quantity: 3, Price: decimal.RequireFromString("149.50")}
	assert.Equal(t, "448.5", item.LineTotal().String())
}

func TestEventKeyOf(t *testing.T) {
	assert.Equal(t, "RK1:PAYMENT_SUCCESS_WEBHOOK:555", EventKeyOf("RK1", "PAYMENT_SUCCESS_WEBHOOK", "555"))
}
