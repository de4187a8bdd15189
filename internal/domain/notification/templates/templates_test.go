package templates

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleData() Data {
	eta := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)
	return Data{
		StoreName:    "Rakhi Store",
		SupportEmail: "help@rakhi.example.com",
		OrderURL:     "https://rakhi.example.com/orders/RK1",
		OrderNumber:  "RK1",
		CustomerName: "Asha <Admin>",
		Currency:     "INR",
		Items: []Item{
			{Name: "Silk Rakhi", Quantity: 2, UnitPrice: decimal.NewFromInt(150)},
		},
		Subtotal:          decimal.NewFromInt(300),
		Shipping:          decimal.NewFromInt(49),
		Total:             decimal.NewFromInt(349),
		Address:           []string{"Asha", "4 Park St", "Kolkata, West Bengal 700016"},
		TrackingNumber:    "1490811234567",
		DeliveryPartner:   "delhivery",
		TrackingURL:       "https://www.delhivery.com/track/package/1490811234567",
		EstimatedDelivery: &eta,
	}
}

func TestRenderConfirmation(t *testing.T) {
	msg, err := Render(OrderConfirmation, sampleData())
	require.NoError(t, err)

	assert.Equal(t, "Rakhi Store: Order RK1 confirmed", msg.Subject)
	assert.Contains(t, msg.HTML, "Silk Rakhi")
	assert.Contains(t, msg.HTML, "₹300.00")
	assert.Contains(t, msg.HTML, "₹349.00")
	assert.Contains(t, msg.HTML, "Asha &lt;Admin&gt;")
	assert.NotContains(t, msg.HTML, "<Admin>")
	assert.Contains(t, msg.Text, "Silk Rakhi x 2")
	assert.Contains(t, msg.Text, "Shipping: ₹49.00")
	assert.Contains(t, msg.Text, "Kolkata, West Bengal 700016")
}

func TestRenderFreeShipping(t *testing.T) {
	data := sampleData()
	data.Shipping = decimal.Zero
	data.Subtotal = decimal.NewFromInt(499)
	data.Total = decimal.NewFromInt(499)

	msg, err := Render(OrderConfirmation, data)
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "Shipping: Free")
}

func TestRenderShipped(t *testing.T) {
	msg, err := Render(OrderShipped, sampleData())
	require.NoError(t, err)

	assert.Equal(t, "Rakhi Store: Your order RK1 has shipped", msg.Subject)
	assert.Contains(t, msg.HTML, "1490811234567")
	assert.Contains(t, msg.HTML, "https://www.delhivery.com/track/package/1490811234567")
	assert.Contains(t, msg.Text, "Estimated delivery: 14 Aug 2026")
}

func TestRenderDelivered(t *testing.T) {
	data := sampleData()
	at := time.Date(2026, 8, 13, 15, 0, 0, 0, time.UTC)
	data.DeliveredAt = &at

	msg, err := Render(OrderDelivered, data)
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "delivered on 13 Aug 2026")
}

func TestRenderErrors(t *testing.T) {
	_, err := Render(Kind("refund"), sampleData())
	assert.ErrorIs(t, err, ErrUnknownKind)

	data := sampleData()
	data.OrderNumber = ""
	_, err = Render(OrderShipped, data)
	assert.Error(t, err)
}

func TestRenderIsDeterministic(t *testing.T) {
	a, err := Render(OrderConfirmation, sampleData())
	require.NoError(t, err)
	b, err := Render(OrderConfirmation, sampleData())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("order_shipped")
	require.NoError(t, err)
	assert.Equal(t, OrderShipped, k)

	_, err = ParseKind("nope")
	assert.ErrorIs(t, err, ErrUnknownKind)
}
