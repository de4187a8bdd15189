package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"rakhi_store/internal/domain/order/model"
	"rakhi_store/internal/domain/order/repository"
	"rakhi_store/internal/domain/payment/gateway"
	productModel "rakhi_store/internal/domain/product/model"
	productRepo "rakhi_store/internal/domain/product/repository"
	userRepo "rakhi_store/internal/domain/user/repository"
	userService "rakhi_store/internal/domain/user/service"
	"rakhi_store/internal/pkg/config"
	"rakhi_store/pkg/logger"
	"rakhi_store/pkg/metrics"
	"rakhi_store/pkg/security"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 订单号冲突时最多重试次数
const orderNumberAttempts = 3

// StockError 库存不足
type StockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// CartLine 购物车行，价格以商品表为准
type CartLine struct {
	ProductID string
	Quantity  int
}

// Contact 下单联系人
type Contact struct {
	Name     string
	Email    string
	Phone    string
	Password string // 游客下单时用于创建账号，可为空
}

// CheckoutInput 下单参数
type CheckoutInput struct {
	UserID   string // 已登录用户，游客为空
	Lines    []CartLine
	Customer Contact
	Address  model.ShippingAddress
}

// CheckoutResult 下单结果
type CheckoutResult struct {
	Order   *model.Order     `json:"order"`
	Session *gateway.Session `json:"session"`
}

// CheckoutService 结账编排
type CheckoutService interface {
	// Checkout 创建订单并申请支付会话
	// 会话申请失败时订单已创建，返回订单和 ErrPaymentSession
	Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error)
	// RetrySession 为待支付订单重新申请支付会话，不会新建订单
	RetrySession(ctx context.Context, orderNumber string) (*CheckoutResult, error)
}

type checkoutService struct {
	orders    repository.OrderRepository
	settings  repository.SettingsRepository
	products  productRepo.ProductRepository
	accounts  userService.AccountService // nil 表示不为游客创建账号
	gateway   gateway.Gateway
	lifecycle *Lifecycle
	cfg       config.CheckoutConfig
	metrics   *metrics.MetricsCollector
	now       func() time.Time
}

func NewCheckoutService(
	orders repository.OrderRepository,
	settings repository.SettingsRepository,
	products productRepo.ProductRepository,
	accounts userService.AccountService,
	gw gateway.Gateway,
	lifecycle *Lifecycle,
	cfg config.CheckoutConfig,
	m *metrics.MetricsCollector,
) CheckoutService {
	return &checkoutService{
		orders:    orders,
		settings:  settings,
		products:  products,
		accounts:  accounts,
		gateway:   gw,
		lifecycle: lifecycle,
		cfg:       cfg,
		metrics:   m,
		now:       time.Now,
	}
}

func (s *checkoutService) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	// 1. 合并购物车行
	lines, err := mergeLines(in.Lines)
	if err != nil {
		return nil, err
	}

	// 2. 运费设置在本次下单内只读取一次
	settings, err := s.settings.LoadDeliverySettings(ctx)
	if err != nil {
		return nil, err
	}

	// 3. 按当前价格和库存计算金额
	items, subtotal, err := s.priceLines(ctx, lines)
	if err != nil {
		return nil, err
	}
	shipping := settings.ShippingFor(subtotal)

	order := &model.Order{
		Status:          model.StatusPending,
		PaymentStatus:   model.PaymentPending,
		Subtotal:        subtotal,
		ShippingCharge:  shipping,
		TotalAmount:     subtotal.Add(shipping),
		Currency:        s.currency(),
		CustomerName:    security.SanitizeText(in.Customer.Name),
		CustomerEmail:   strings.ToLower(strings.TrimSpace(in.Customer.Email)),
		CustomerPhone:   security.NormalizePhone(in.Customer.Phone),
		ShippingAddress: cleanAddress(in.Address),
		Items:           items,
	}

	// 4. 游客账号，失败不影响下单
	if in.UserID != "" {
		uid := in.UserID
		order.UserID = &uid
	} else if uid := s.provisionGuest(ctx, in.Customer); uid != "" {
		order.UserID = &uid
	}

	// 5. 写入订单
	if err := s.createOrder(ctx, order); err != nil {
		return nil, err
	}

	// 6. 支付会话
	session, err := s.createSession(ctx, order)
	if err != nil {
		return &CheckoutResult{Order: order}, err
	}
	return &CheckoutResult{Order: order, Session: session}, nil
}

func (s *checkoutService) RetrySession(ctx context.Context, orderNumber string) (*CheckoutResult, error) {
	order, err := s.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if order.Status != model.StatusPending || order.PaymentStatus != model.PaymentPending {
		return &CheckoutResult{Order: order}, ErrOrderNotPayable
	}

	session, err := s.createSession(ctx, order)
	if err != nil {
		return &CheckoutResult{Order: order}, err
	}
	return &CheckoutResult{Order: order, Session: session}, nil
}

// mergeLines 同一商品多行合并，结果按商品ID排序
func mergeLines(in []CartLine) ([]CartLine, error) {
	if len(in) == 0 {
		return nil, ErrEmptyCart
	}
	qty := make(map[string]int, len(in))
	for _, l := range in {
		if l.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		qty[l.ProductID] += l.Quantity
	}

	lines := make([]CartLine, 0, len(qty))
	for id, q := range qty {
		lines = append(lines, CartLine{ProductID: id, Quantity: q})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func (s *checkoutService) priceLines(ctx context.Context, lines []CartLine) ([]model.OrderItem, decimal.Decimal, error) {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, err
	}

	items := make([]model.OrderItem, 0, len(lines))
	subtotal := decimal.Zero
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, decimal.Zero, fmt.Errorf("%w: %s", ErrProductNotFound, l.ProductID)
		}
		if p.Stock < l.Quantity {
			return nil, decimal.Zero, &StockError{ProductID: p.ID, ProductName: p.Name, Requested: l.Quantity, Available: p.Stock}
		}
		item := itemOf(p, l.Quantity)
		subtotal = subtotal.Add(item.LineTotal())
		items = append(items, item)
	}
	return items, subtotal, nil
}

func itemOf(p productModel.Product, quantity int) model.OrderItem {
	return model.OrderItem{
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    quantity,
		Price:       p.Price,
		WeightGrams: p.WeightGrams,
	}
}

// provisionGuest 返回新账号ID，邮箱已注册或创建失败时返回空串
func (s *checkoutService) provisionGuest(ctx context.Context, c Contact) string {
	if s.accounts == nil || !s.cfg.CreateGuestAccounts {
		return ""
	}
	uid, err := s.accounts.ProvisionGuest(ctx, userService.GuestAccount{
		Email:    c.Email,
		Name:     c.Name,
		Phone:    c.Phone,
		Password: c.Password,
	})
	switch {
	case err == nil:
		return uid
	case errors.Is(err, userRepo.ErrEmailTaken):
		logger.Log.Info("Guest email already registered, continuing as guest", zap.String("email", c.Email))
	default:
		s.lifecycle.RaiseIssue(ctx, model.IssueGuestAccountFailed, "", fmt.Sprintf("create account for %s: %v", c.Email, err))
	}
	return ""
}

// createOrder 订单号冲突时重新生成
// 明细写入失败时订单仍然返回，问题进入运营工单
func (s *checkoutService) createOrder(ctx context.Context, order *model.Order) error {
	var err error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.OrderNumber = NewOrderNumber(s.now())
		err = s.orders.Create(ctx, order)
		if !errors.Is(err, repository.ErrDuplicateOrderNum) {
			break
		}
		logger.Log.Warn("Order number collision, regenerating", zap.String("order_number", order.OrderNumber))
	}

	var itemsErr *repository.ItemsWriteError
	switch {
	case err == nil:
	case errors.As(err, &itemsErr):
		s.lifecycle.RaiseIssue(ctx, model.IssuePartialWrite, order.OrderNumber, itemsErr.Error())
	default:
		return err
	}

	s.metrics.RecordOrderCreated()
	logger.Log.Info("Order created",
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.TotalAmount.StringFixed(2)),
		zap.Int("items", len(order.Items)),
		zap.Bool("guest", order.UserID == nil))
	return nil
}

// createSession 申请支付会话并记录会话ID
func (s *checkoutService) createSession(ctx context.Context, order *model.Order) (*gateway.Session, error) {
	customerID := "guest-" + order.OrderNumber
	if order.UserID != nil {
		customerID = *order.UserID
	}

	session, err := s.gateway.CreateSession(ctx, gateway.SessionRequest{
		OrderNumber: order.OrderNumber,
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		Customer: gateway.Customer{
			ID:    customerID,
			Name:  order.CustomerName,
			Email: order.CustomerEmail,
			Phone: order.CustomerPhone,
		},
		Description: "Order " + order.OrderNumber,
		ReturnURL:   strings.ReplaceAll(s.cfg.ReturnURL, "{order_number}", order.OrderNumber),
		NotifyURL:   s.cfg.NotifyURL,
	})
	if err != nil {
		s.lifecycle.RaiseIssue(ctx, model.IssuePaymentSession, order.OrderNumber, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrPaymentSession, err)
	}

	saved, err := s.orders.SetPaymentSession(ctx, order.OrderNumber, session.SessionID)
	if err != nil {
		logger.Log.Error("Failed to save payment session",
			zap.String("order_number", order.OrderNumber),
			zap.Error(err))
	} else if !saved {
		logger.Log.Warn("Order left pending before session was saved", zap.String("order_number", order.OrderNumber))
	}
	if err == nil && saved {
		sid := session.SessionID
		order.PaymentSessionID = &sid
	}
	return session, nil
}

func (s *checkoutService) currency() string {
	if s.cfg.Currency == "" {
		return "INR"
	}
	return strings.ToUpper(s.cfg.Currency)
}

// NewOrderNumber RK + yyMMddHHmmss + 6 位大写十六进制
func NewOrderNumber(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return "RK" + now.Format("060102150405") + strings.ToUpper(suffix)
}

// cleanAddress 收货地址写入订单前清理控制字符
func cleanAddress(a model.ShippingAddress) model.ShippingAddress {
	a.Name = security.SanitizeText(a.Name)
	a.Phone = security.NormalizePhone(a.Phone)
	a.AddressLine1 = security.SanitizeText(a.AddressLine1)
	a.AddressLine2 = security.SanitizeText(a.AddressLine2)
	a.City = security.SanitizeText(a.City)
	a.State = security.SanitizeText(a.State)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = security.SanitizeText(a.Country)
	if a.Country == "" {
		a.Country = "India"
	}
	return a
}
