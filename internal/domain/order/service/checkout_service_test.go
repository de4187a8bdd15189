package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"rakhi_store/internal/domain/order/model"
	"rakhi_store/internal/domain/order/repository"
	"rakhi_store/internal/domain/payment/gateway"
	userRepo "rakhi_store/internal/domain/user/repository"
	userService "rakhi_store/internal/domain/user/service"
	"rakhi_store/internal/pkg/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testSettings = model.DeliverySettings{
	FlatCharge:    decimal.RequireFromString("50.00"),
	FreeThreshold: decimal.RequireFromString("499.00"),
}

var testCheckoutConfig = config.CheckoutConfig{
	Currency:            "INR",
	ReturnURL:           "https://rakhi.example/order-success?order={order_number}",
	NotifyURL:           "https://api.rakhi.example/api/payment/webhook",
	CreateGuestAccounts: true,
}

type checkoutDeps struct {
	*fixture
	gateway  *MockGateway
	accounts *MockAccountService
	svc      CheckoutService
}

func newCheckoutDeps(products memProducts, withAccounts bool) *checkoutDeps {
	d := &checkoutDeps{fixture: newFixture(), gateway: new(MockGateway)}
	var accounts userService.AccountService
	if withAccounts {
		d.accounts = new(MockAccountService)
		accounts = d.accounts
	}
	d.svc = NewCheckoutService(d.orders, staticSettings{settings: testSettings}, products, accounts, d.gateway, d.lifecycle, testCheckoutConfig, nil)
	return d
}

func checkoutInput(lines ...CartLine) CheckoutInput {
	return CheckoutInput{
		Lines:    lines,
		Customer: Contact{Name: "Asha", Email: "Asha@Example.com", Phone: "9876543210"},
		Address: model.ShippingAddress{
			Name: "Asha", Phone: "9876543210", AddressLine1: "12 MG Road",
			City: "Pune", State: "MH", PostalCode: "411001", Country: "India",
		},
	}
}

func okSession(sid string) *gateway.Session {
	return &gateway.Session{Provider: gateway.ProviderCashfree, SessionID: sid}
}

func TestCheckoutFreeShippingBoundary(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		shipping string
		total    string
	}{
		{"at threshold ships free", "499.00", "0", "499.00"},
		{"below threshold pays flat fee", "498.00", "50.00", "548.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newCheckoutDeps(memProducts{"p1": product("p1", "Silver Rakhi", tt.price, 5)}, false)
			d.gateway.On("CreateSession", mock.Anything, mock.MatchedBy(func(req gateway.SessionRequest) bool {
				return req.Amount.Equal(decimal.RequireFromString(tt.total)) &&
					req.Currency == "INR" &&
					req.ReturnURL == "https://rakhi.example/order-success?order="+req.OrderNumber &&
					req.Customer.ID == "guest-"+req.OrderNumber
			})).Return(okSession("session_1"), nil)

			res, err := d.svc.Checkout(context.Background(), checkoutInput(CartLine{ProductID: "p1", Quantity: 1}))
			require.NoError(t, err)

			assert.True(t, res.Order.ShippingCharge.Equal(decimal.RequireFromString(tt.shipping)))
			assert.True(t, res.Order.TotalAmount.Equal(decimal.RequireFromString(tt.total)))
			assert.Equal(t, "session_1", res.Session.SessionID)

			saved := d.orders.only(t)
			assert.Equal(t, model.StatusPending, saved.Status)
			assert.Equal(t, model.PaymentPending, saved.PaymentStatus)
			assert.Equal(t, "asha@example.com", saved.CustomerEmail)
			require.NotNil(t, saved.PaymentSessionID)
			assert.Equal(t, "session_1", *saved.PaymentSessionID)
			d.gateway.AssertExpectations(t)
		})
	}
}

func TestCheckoutUsesCurrentPrices(t *testing.T) {
	d := newCheckoutDeps(memProducts{
		"p1": product("p1", "Silver Rakhi", "249.00", 5),
		"p2": product("p2", "Kids Rakhi", "99.50", 5),
	}, false)
	d.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(okSession("s"), nil)

	res, err := d.svc.Checkout(context.Background(), checkoutInput(
		CartLine{ProductID: "p1", Quantity: 1},
		CartLine{ProductID: "p2", Quantity: 2},
		CartLine{ProductID: "p1", Quantity: 1},
	))
	require.NoError(t, err)

	require.Len(t, res.Order.Items, 2)
	assert.Equal(t, 2, res.Order.Items[0].Quantity)
	assert.True(t, res.Order.Subtotal.Equal(decimal.RequireFromString("697.00")))
	assert.True(t, res.Order.ShippingCharge.IsZero())
}

func TestOrderKeepsPricesAfterProductChange(t *testing.T) {
	products := memProducts{"p1": product("p1", "Silver Rakhi", "249.00", 5)}
	d := newCheckoutDeps(products, false)
	d.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(okSession("s"), nil)

	res, err := d.svc.Checkout(context.Background(), checkoutInput(CartLine{ProductID: "p1", Quantity: 2}))
	require.NoError(t, err)

	repriced := products["p1"]
	repriced.Price = decimal.RequireFromString("399.00")
	products["p1"] = repriced

	saved, err := d.orders.GetByNumber(context.Background(), res.Order.OrderNumber)
	require.NoError(t, err)
	assert.True(t, saved.Subtotal.Equal(decimal.RequireFromString("498.00")))
	assert.True(t, saved.TotalAmount.Equal(decimal.RequireFromString("548.00")))
	assert.True(t, saved.ShippingCharge.Equal(decimal.RequireFromString("50.00")))
	require.Len(t, saved.Items, 1)
	assert.True(t, saved.Items[0].Price.Equal(decimal.RequireFromString("249.00")))

	next, err := d.svc.Checkout(context.Background(), checkoutInput(CartLine{ProductID: "p1", Quantity: 2}))
	require.NoError(t, err)
	assert.True(t, next.Order.TotalAmount.Equal(decimal.RequireFromString("798.00")))
}

func TestCheckoutValidation(t *testing.T) {
	products := memProducts{
		"p1":     product("p1", "Silver Rakhi", "249.00", 2),
		"hidden": product("hidden", "Retired Rakhi", "99.00", 10),
	}
	hidden := products["hidden"]
	hidden.IsActive = false
	products["hidden"] = hidden

	tests := []struct {
		name  string
		lines []CartLine
		want  error
	}{
		{"empty cart", nil, ErrEmptyCart},
		{"zero quantity", []CartLine{{ProductID: "p1", Quantity: 0}}, ErrInvalidQuantity},
		{"unknown product", []CartLine{{ProductID: "nope", Quantity: 1}}, ErrProductNotFound},
		{"inactive product", []CartLine{{ProductID: "hidden", Quantity: 1}}, ErrProductNotFound},
		{"insufficient stock after merge", []CartLine{{ProductID: "p1", Quantity: 2}, {ProductID: "p1", Quantity: 1}}, ErrInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newCheckoutDeps(products, false)

			res, err := d.svc.Checkout(context.Background(), checkoutInput(tt.lines...))

			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, res)
			assert.Empty(t, d.orders.orders)
			d.gateway.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
		})
	}

	t.Run("stock error details", func(t *testing.T) {
		d := newCheckoutDeps(products, false)
		_, err := d.svc.Checkout(context.Background(), checkoutInput(CartLine{ProductID: "p1", Quantity: 3}))

		var stockErr *StockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, "Silver Rakhi", stockErr.ProductName)
		assert.Equal(t, 3, stockErr.Requested)
		assert.Equal(t, 2, stockErr.Available)
	})
}

func TestCheckoutGuestAccount(t *testing.T) {
	products := memProducts{"p1": product("p1", "Silver Rakhi", "249.00", 5)}
	line := CartLine{ProductID: "p1", Quantity: 1}

	t.Run("new account links order", func(t *testing.T) {
		d := newCheckoutDeps(products, true)
		d.accounts.On("ProvisionGuest", mock.Anything, mock.MatchedBy(func(acc userService.GuestAccount) bool {
			return acc.Email == "Asha@Example.com" && acc.Name == "Asha"
		})).Return("user-42", nil)
		d.gateway.On("CreateSession", mock.Anything, mock.MatchedBy(func(req gateway.SessionRequest) bool {
			return req.Customer.ID == "user-42"
		})).Return(okSession("s"), nil)

		res, err := d.svc.Checkout(context.Background(), checkoutInput(line))
		require.NoError(t, err)
		require.NotNil(t, res.Order.UserID)
		assert.Equal(t, "user-42", *res.Order.UserID)
		assert.Empty(t, d.issues.kinds())
	})

	t.Run("registered email continues as guest", func(t *testing.T) {
		d := newCheckoutDeps(products, true)
		d.accounts.On("ProvisionGuest", mock.Anything, mock.Anything).Return("", userRepo.ErrEmailTaken)
		d.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(okSession("s"), nil)

		res, err := d.svc.Checkout(context.Background(), checkoutInput(line))
		require.NoError(t, err)
		assert.Nil(t, res.Order.UserID)
		assert.Empty(t, d.issues.kinds())
	})

	t.Run("account failure does not block checkout", func(t *testing.T) {
		d := newCheckoutDeps(products, true)
		d.accounts.On("ProvisionGuest", mock.Anything, mock.Anything).Return("", errors.New("connection reset"))
		d.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(okSession("s"), nil)

		res, err := d.svc.Checkout(context.Background(), checkoutInput(line))
		require.NoError(t, err)
		assert.Nil(t, res.Order.UserID)
		assert.Equal(t, "s", res.Session.SessionID)
		assert.Equal(t, []model.IssueKind{model.IssueGuestAccountFailed}, d.issues.kinds())
	})

	t.Run("signed in user skips provisioning", func(t *testing.T) {
		d := newCheckoutDeps(products, true)
		d.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(okSession("s"), nil)

		in := checkoutInput(line)
		in.UserID = "user-7"
		res, err := d.svc.Checkout(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "user-7", *res.Order.UserID)
		d.accounts.AssertNotCalled(t, "ProvisionGuest", mock.Anything, mock.Anything)
	})
}

func TestCheckoutPartialWrite(t *testing.T) {
	d := newCheckoutDeps(memProducts{"p1": product("p1", "Silver Rakhi", "249.00", 5)}, false)
	d.orders.createErrs = []error{&repository.ItemsWriteError{Err: errors.New("deadlock detected")}}
	d.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(okSession("s"), nil)

	res, err := d.svc.Checkout(context.Background(), checkoutInput(CartLine{ProductID: "p1", Quantity: 1}))

	require.NoError(t, err)
	assert.Equal(t, "s", res.Session.SessionID)
	assert.Empty(t, d.orders.only(t).Items)
	assert.Equal(t, []model.IssueKind{model.IssuePartialWrite}, d.issues.kinds())
}

func TestCheckoutRegeneratesOrderNumber(t *testing.T) {
	d := newCheckoutDeps(memProducts{"p1": product("p1", "Silver Rakhi", "249.00", 5)}, false)
	d.orders.createErrs = []error{repository.ErrDuplicateOrderNum}
	d.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(okSession("s"), nil)

	res, err := d.svc.Checkout(context.Background(), checkoutInput(CartLine{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, res.Order.OrderNumber, d.orders.only(t).OrderNumber)

	t.Run("gives up after repeated collisions", func(t *testing.T) {
		d := newCheckoutDeps(memProducts{"p1": product("p1", "Silver Rakhi", "249.00", 5)}, false)
		d.orders.createErrs = []error{repository.ErrDuplicateOrderNum, repository.ErrDuplicateOrderNum, repository.ErrDuplicateOrderNum}

		_, err := d.svc.Checkout(context.Background(), checkoutInput(CartLine{ProductID: "p1", Quantity: 1}))
		assert.ErrorIs(t, err, repository.ErrDuplicateOrderNum)
	})
}

func TestCheckoutSessionFailureAndRetry(t *testing.T) {
	d := newCheckoutDeps(memProducts{"p1": product("p1", "Silver Rakhi", "249.00", 5)}, false)
	d.gateway.On("CreateSession", mock.Anything, mock.Anything).
		Return(nil, &gateway.Error{Provider: gateway.ProviderCashfree, Op: "create order", StatusCode: 503, Retryable: true, Err: errors.New("unavailable")}).Once()

	res, err := d.svc.Checkout(context.Background(), checkoutInput(CartLine{ProductID: "p1", Quantity: 2}))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPaymentSession)
	assert.True(t, gateway.IsRetryable(err))
	require.NotNil(t, res)
	assert.Nil(t, res.Session)
	number := res.Order.OrderNumber
	assert.Equal(t, model.StatusPending, d.orders.only(t).Status)
	assert.Equal(t, []model.IssueKind{model.IssuePaymentSession}, d.issues.kinds())

	// 重新申请会话，不创建新订单
	d.gateway.On("CreateSession", mock.Anything, mock.MatchedBy(func(req gateway.SessionRequest) bool {
		return req.OrderNumber == number
	})).Return(okSession("session_retry"), nil).Once()

	retry, err := d.svc.RetrySession(context.Background(), number)
	require.NoError(t, err)
	assert.Equal(t, "session_retry", retry.Session.SessionID)
	saved := d.orders.only(t)
	require.NotNil(t, saved.PaymentSessionID)
	assert.Equal(t, "session_retry", *saved.PaymentSessionID)
	d.gateway.AssertExpectations(t)
}

func TestRetrySessionRequiresPendingOrder(t *testing.T) {
	d := newCheckoutDeps(nil, false)
	d.orders = newMemOrders(confirmedOrder(testOrderNumber))
	d.svc = NewCheckoutService(d.orders, staticSettings{settings: testSettings}, nil, nil, d.gateway, d.lifecycle, testCheckoutConfig, nil)

	_, err := d.svc.RetrySession(context.Background(), testOrderNumber)
	assert.ErrorIs(t, err, ErrOrderNotPayable)

	_, err = d.svc.RetrySession(context.Background(), "RK000000000000000000")
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
}

func TestNewOrderNumber(t *testing.T) {
	at := time.Date(2026, 8, 10, 9, 30, 0, 0, time.UTC)
	n := NewOrderNumber(at)

	assert.Len(t, n, 20)
	assert.True(t, strings.HasPrefix(n, "RK260810093000"))
	assert.Equal(t, strings.ToUpper(n), n)
	assert.NotEqual(t, n, NewOrderNumber(at))
}
