package service

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"rakhi_store/internal/domain/delivery/courier"
	"rakhi_store/internal/domain/notification"
	"rakhi_store/internal/domain/order/model"
	"rakhi_store/internal/domain/order/repository"
	"rakhi_store/internal/domain/payment/gateway"
	productModel "rakhi_store/internal/domain/product/model"
	userModel "rakhi_store/internal/domain/user/model"
	userService "rakhi_store/internal/domain/user/service"
	"rakhi_store/internal/pkg/archive"
	"rakhi_store/internal/pkg/config"
	"rakhi_store/internal/pkg/realtime"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// memOrders 内存订单仓库，UpdateIf 与数据库一样按前置条件原子写入
type memOrders struct {
	mu           sync.Mutex
	orders       map[string]*model.Order
	createErrs   []error
	beforeUpdate func()
	updates      int
}

func newMemOrders(orders ...*model.Order) *memOrders {
	r := &memOrders{orders: make(map[string]*model.Order)}
	for _, o := range orders {
		if o.ID == "" {
			o.ID = uuid.NewString()
		}
		r.orders[o.OrderNumber] = cloneOrder(o)
	}
	return r
}

func cloneOrder(o *model.Order) *model.Order {
	c := *o
	c.Items = append([]model.OrderItem(nil), o.Items...)
	return &c
}

func (r *memOrders) Create(ctx context.Context, order *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.createErrs) > 0 {
		err := r.createErrs[0]
		r.createErrs = r.createErrs[1:]
		var partial *repository.ItemsWriteError
		if !errors.As(err, &partial) {
			return err
		}
		order.ID = uuid.NewString()
		saved := cloneOrder(order)
		saved.Items = nil
		r.orders[order.OrderNumber] = saved
		return &repository.ItemsWriteError{OrderNumber: order.OrderNumber, Err: partial.Err}
	}
	if _, exists := r.orders[order.OrderNumber]; exists {
		return repository.ErrDuplicateOrderNum
	}
	order.ID = uuid.NewString()
	order.CreatedAt = time.Now()
	r.orders[order.OrderNumber] = cloneOrder(order)
	return nil
}

func (r *memOrders) GetByID(ctx context.Context, id string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.ID == id {
			return cloneOrder(o), nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (r *memOrders) GetByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderNumber]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *memOrders) ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []model.Order
	for _, o := range r.orders {
		if o.UserID != nil && *o.UserID == userID {
			list = append(list, *cloneOrder(o))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].OrderNumber > list[j].OrderNumber })
	total := int64(len(list))
	if offset >= len(list) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(list) {
		end = len(list)
	}
	return list[offset:end], total, nil
}

func (r *memOrders) UpdateIf(ctx context.Context, orderNumber string, guard model.Guard, patch model.Patch) (bool, error) {
	if r.beforeUpdate != nil {
		r.beforeUpdate()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderNumber]
	if !ok || !guard.Matches(o) {
		return false, nil
	}
	o.Apply(patch)
	r.updates++
	return true, nil
}

func (r *memOrders) SetPaymentSession(ctx context.Context, orderNumber, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderNumber]
	if !ok || o.Status != model.StatusPending || o.PaymentStatus != model.PaymentPending {
		return false, nil
	}
	sid := sessionID
	o.PaymentSessionID = &sid
	return true, nil
}

// set 直接修改存储中的订单，模拟其他请求的写入
func (r *memOrders) set(orderNumber string, fn func(o *model.Order)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.orders[orderNumber])
}

func (r *memOrders) only(t *testing.T) *model.Order {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.orders) != 1 {
		t.Fatalf("expected exactly one order, got %d", len(r.orders))
	}
	for _, o := range r.orders {
		return cloneOrder(o)
	}
	return nil
}

type memIssues struct {
	mu     sync.Mutex
	issues []model.Issue
}

func (r *memIssues) Record(ctx context.Context, issue *model.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	issue.ID = uuid.NewString()
	r.issues = append(r.issues, *issue)
	return nil
}

func (r *memIssues) List(ctx context.Context, onlyOpen bool, offset, limit int) ([]model.Issue, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []model.Issue
	for _, i := range r.issues {
		if !onlyOpen || !i.Resolved {
			list = append(list, i)
		}
	}
	return list, int64(len(list)), nil
}

func (r *memIssues) Resolve(ctx context.Context, id, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.issues {
		if r.issues[i].ID == id && !r.issues[i].Resolved {
			r.issues[i].Resolved = true
			r.issues[i].Note = note
			return nil
		}
	}
	return repository.ErrIssueNotFound
}

func (r *memIssues) kinds() []model.IssueKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.IssueKind
	for _, i := range r.issues {
		out = append(out, i.Kind)
	}
	return out
}

type memEvents struct {
	mu     sync.Mutex
	events map[string]model.PaymentEvent
}

func newMemEvents() *memEvents {
	return &memEvents{events: make(map[string]model.PaymentEvent)}
}

func (r *memEvents) Record(ctx context.Context, ev *model.PaymentEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[ev.EventKey]; ok {
		return false, nil
	}
	r.events[ev.EventKey] = *ev
	return true, nil
}

func (r *memEvents) ListByOrder(ctx context.Context, orderNumber string) ([]model.PaymentEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.PaymentEvent
	for _, ev := range r.events {
		if ev.OrderNumber == orderNumber {
			out = append(out, ev)
		}
	}
	return out, nil
}

type staticSettings struct {
	settings model.DeliverySettings
	err      error
}

func (s staticSettings) LoadDeliverySettings(ctx context.Context) (model.DeliverySettings, error) {
	return s.settings, s.err
}

type memProducts map[string]productModel.Product

func (p memProducts) GetByIDs(ctx context.Context, ids []string) (map[string]productModel.Product, error) {
	out := make(map[string]productModel.Product, len(ids))
	for _, id := range ids {
		if prod, ok := p[id]; ok && prod.IsActive {
			out[id] = prod
		}
	}
	return out, nil
}

func product(id, name, price string, stock int) productModel.Product {
	p := productModel.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock, WeightGrams: 50, IsActive: true}
	p.ID = id
	return p
}

var _ userService.AccountService = (*MockAccountService)(nil)

// MockAccountService is a mock of AccountService
type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) ProvisionGuest(ctx context.Context, acc userService.GuestAccount) (string, error) {
	args := m.Called(ctx, acc)
	return args.String(0), args.Error(1)
}

func (m *MockAccountService) Login(ctx context.Context, email, password string) (*userService.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*userService.Session), args.Error(1)
}

func (m *MockAccountService) GetUser(ctx context.Context, id string) (*userModel.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*userModel.User), args.Error(1)
}

// MockGateway is a mock of gateway.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string { return gateway.ProviderCashfree }

func (m *MockGateway) CreateSession(ctx context.Context, req gateway.SessionRequest) (*gateway.Session, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Session), args.Error(1)
}

func (m *MockGateway) ParseWebhook(ctx context.Context, header http.Header, body []byte) (*gateway.WebhookEvent, error) {
	args := m.Called(ctx, header, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.WebhookEvent), args.Error(1)
}

func (m *MockGateway) Acknowledge() *gateway.Ack { return nil }

// MockCourier is a mock of courier.Courier
type MockCourier struct {
	mock.Mock
	name string
}

func (m *MockCourier) Name() string { return m.name }

func (m *MockCourier) CreateShipment(ctx context.Context, req courier.ShipmentRequest) (*courier.ShipmentResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*courier.ShipmentResult), args.Error(1)
}

func (m *MockCourier) TrackShipment(ctx context.Context, trackingNumber string) (*courier.TrackingInfo, error) {
	args := m.Called(ctx, trackingNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*courier.TrackingInfo), args.Error(1)
}

func (m *MockCourier) TrackingURL(trackingNumber string) string {
	return "https://track.example.com/" + m.name + "/" + trackingNumber
}

// MockMailSender is a mock of MailSender
type MockMailSender struct {
	mock.Mock
}

func (m *MockMailSender) Send(ctx context.Context, req notification.Request) notification.Result {
	args := m.Called(ctx, req)
	return args.Get(0).(notification.Result)
}

// recordingNotifier 记录入队的邮件
type recordingNotifier struct {
	mu       sync.Mutex
	requests []notification.Request
}

func (n *recordingNotifier) Enqueue(req notification.Request) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, req)
	return nil
}

func (n *recordingNotifier) sent() []notification.Request {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Request(nil), n.requests...)
}

type recordingArchiver struct {
	mu      sync.Mutex
	records []archive.Record
}

func (a *recordingArchiver) Archive(ctx context.Context, rec archive.Record) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return "webhooks/" + rec.Outcome, nil
}

// fixture 组装一套使用内存仓库的服务
type fixture struct {
	orders    *memOrders
	issues    *memIssues
	events    *memEvents
	notifier  *recordingNotifier
	hub       *realtime.Hub
	courier   *MockCourier
	lifecycle *Lifecycle
}

func newFixture(orders ...*model.Order) *fixture {
	f := &fixture{
		orders:   newMemOrders(orders...),
		issues:   &memIssues{},
		events:   newMemEvents(),
		notifier: &recordingNotifier{},
		hub:      realtime.NewHub(realtime.NewMemoryBroker()),
		courier:  &MockCourier{name: "delhivery"},
	}
	site := config.AppConfig{StoreName: "Rakhi Store", SupportEmail: "help@rakhi.example", SiteURL: "https://rakhi.example/"}
	f.lifecycle = NewLifecycle(f.orders, f.issues, f.notifier, f.hub, courier.NewRegistry(f.courier), site, nil)
	return f
}

func strPtr(s string) *string { return &s }

// pendingOrder 待支付订单
func pendingOrder(number string) *model.Order {
	return &model.Order{
		OrderNumber:    number,
		UserID:         strPtr("user-1"),
		Status:         model.StatusPending,
		PaymentStatus:  model.PaymentPending,
		Subtotal:       decimal.RequireFromString("498.00"),
		ShippingCharge: decimal.RequireFromString("50.00"),
		TotalAmount:    decimal.RequireFromString("548.00"),
		Currency:       "INR",
		CustomerName:   "Asha",
		CustomerEmail:  "asha@example.com",
		CustomerPhone:  "9876543210",

		ShippingAddress: model.ShippingAddress{
			Name: "Asha", Phone: "9876543210", AddressLine1: "12 MG Road",
			City: "Pune", State: "MH", PostalCode: "411001", Country: "India",
		},

		Items: []model.OrderItem{{ProductID: "p1", ProductName: "Silver Rakhi", Quantity: 2, Price: decimal.RequireFromString("249.00"), WeightGrams: 40}},
	}
}

// confirmedOrder 已支付订单
func confirmedOrder(number string) *model.Order {
	o := pendingOrder(number)
	o.Status = model.StatusConfirmed
	o.PaymentStatus = model.PaymentCompleted
	o.PaymentID = strPtr("cfp_1")
	return o
}
