package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rakhi_store/internal/pkg/config"
	"rakhi_store/pkg/logger"
	"rakhi_store/pkg/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	ProviderCashfree = "cashfree"

	cashfreeSandboxURL    = "https://sandbox.cashfree.com/pg"
	cashfreeProductionURL = "https://api.cashfree.com/pg"

	defaultWebhookTolerance = 5 * time.Minute

	headerSignature = "x-webhook-signature"
	headerTimestamp = "x-webhook-timestamp"
)

// Cashfree 回调事件类型
const (
	cashfreePaymentSuccess = "PAYMENT_SUCCESS_WEBHOOK"
	cashfreePaymentFailed  = "PAYMENT_FAILED_WEBHOOK"
	cashfreeUserDropped    = "PAYMENT_USER_DROPPED_WEBHOOK"
)

// CashfreeGateway Cashfree PG，托管收银台模式
type CashfreeGateway struct {
	cfg       config.CashfreeConfig
	baseURL   string
	client    *http.Client
	tolerance time.Duration
	now       func() time.Time
	metrics   *metrics.MetricsCollector
}

// NewCashfreeGateway 创建 Cashfree 网关
func NewCashfreeGateway(cfg config.CashfreeConfig, timeout time.Duration, m *metrics.MetricsCollector) (*CashfreeGateway, error) {
	if cfg.AppID == "" || cfg.SecretKey == "" {
		return nil, errors.New("cashfree config missing")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2023-08-01"
	}
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = defaultWebhookTolerance
	}

	baseURL := cashfreeSandboxURL
	if cfg.Mode == "production" {
		baseURL = cashfreeProductionURL
	}

	return &CashfreeGateway{
		cfg:       cfg,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: timeout},
		tolerance: cfg.WebhookTolerance,
		now:       time.Now,
		metrics:   m,
	}, nil
}

// WithBaseURL 测试时指向本地服务
func (g *CashfreeGateway) WithBaseURL(u string) *CashfreeGateway {
	g.baseURL = strings.TrimRight(u, "/")
	return g
}

func (g *CashfreeGateway) Name() string { return ProviderCashfree }

func (g *CashfreeGateway) Acknowledge() *Ack { return nil }

type cashfreeCustomer struct {
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone"`
}

type cashfreeOrderMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
	NotifyURL string `json:"notify_url,omitempty"`
}

type cashfreeOrderRequest struct {
	OrderID         string            `json:"order_id"`
	OrderAmount     float64           `json:"order_amount"`
	OrderCurrency   string            `json:"order_currency"`
	CustomerDetails cashfreeCustomer  `json:"customer_details"`
	OrderMeta       cashfreeOrderMeta `json:"order_meta"`
	OrderNote       string            `json:"order_note,omitempty"`
}

type cashfreeOrderResponse struct {
	CfOrderID        json.RawMessage `json:"cf_order_id"`
	OrderID          string          `json:"order_id"`
	OrderStatus      string          `json:"order_status"`
	PaymentSessionID string          `json:"payment_session_id"`
}

type cashfreeErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
}

// CreateSession POST /orders
// 订单号已存在 (409) 时查询原订单并复用其 payment_session_id
func (g *CashfreeGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	payload := cashfreeOrderRequest{
		OrderID:       req.OrderNumber,
		OrderAmount:   req.Amount.Round(2).InexactFloat64(),
		OrderCurrency: req.Currency,
		CustomerDetails: cashfreeCustomer{
			CustomerID:    sanitizeCustomerID(req.Customer.ID),
			CustomerName:  req.Customer.Name,
			CustomerEmail: req.Customer.Email,
			CustomerPhone: req.Customer.Phone,
		},
		OrderMeta: cashfreeOrderMeta{ReturnURL: req.ReturnURL, NotifyURL: req.NotifyURL},
		OrderNote: req.Description,
	}

	var resp cashfreeOrderResponse
	status, err := g.do(ctx, "create_order", http.MethodPost, "/orders", payload, &resp)
	if status == http.StatusConflict {
		logger.Log.Info("Cashfree order already exists, reusing session", zap.String("order_number", req.OrderNumber))
		status, err = g.do(ctx, "get_order", http.MethodGet, "/orders/"+req.OrderNumber, nil, &resp)
	}
	if err != nil {
		return nil, err
	}
	if resp.PaymentSessionID == "" {
		return nil, &Error{Provider: ProviderCashfree, Op: "create_order", StatusCode: status, Err: errors.New("response has no payment_session_id")}
	}

	return &Session{
		Provider:        ProviderCashfree,
		SessionID:       resp.PaymentSessionID,
		ProviderOrderID: rawString(resp.CfOrderID),
	}, nil
}

// do 发送请求，非 2xx 转换为 *Error
func (g *CashfreeGateway) do(ctx context.Context, op, method, path string, in, out interface{}) (int, error) {
	start := time.Now()
	var status int
	var err error
	defer func() { g.metrics.ObserveExternalCall(ProviderCashfree, op, start, err) }()

	var body io.Reader
	if in != nil {
		buf, mErr := json.Marshal(in)
		if mErr != nil {
			err = &Error{Provider: ProviderCashfree, Op: op, Err: mErr}
			return 0, err
		}
		body = bytes.NewReader(buf)
	}

	httpReq, rErr := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if rErr != nil {
		err = &Error{Provider: ProviderCashfree, Op: op, Err: rErr}
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-client-id", g.cfg.AppID)
	httpReq.Header.Set("x-client-secret", g.cfg.SecretKey)
	httpReq.Header.Set("x-api-version", g.cfg.APIVersion)

	resp, dErr := g.client.Do(httpReq)
	if dErr != nil {
		err = &Error{Provider: ProviderCashfree, Op: op, Retryable: isTemporary(dErr), Err: dErr}
		return 0, err
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	raw, rdErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if rdErr != nil {
		err = &Error{Provider: ProviderCashfree, Op: op, StatusCode: status, Retryable: true, Err: rdErr}
		return status, err
	}

	if status < 200 || status >= 300 {
		var apiErr cashfreeErrorResponse
		_ = json.Unmarshal(raw, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(status)
		}
		err = &Error{Provider: ProviderCashfree, Op: op, StatusCode: status, Retryable: retryableStatus(status), Err: errors.New(msg)}
		return status, err
	}

	if out != nil {
		if uErr := json.Unmarshal(raw, out); uErr != nil {
			err = &Error{Provider: ProviderCashfree, Op: op, StatusCode: status, Err: fmt.Errorf("decode response: %w", uErr)}
			return status, err
		}
	}
	return status, nil
}

type cashfreeWebhook struct {
	Type      string `json:"type"`
	EventTime string `json:"event_time"`
	Data      struct {
		Order struct {
			OrderID       string          `json:"order_id"`
			OrderAmount   decimal.Decimal `json:"order_amount"`
			OrderCurrency string          `json:"order_currency"`
		} `json:"order"`
		Payment struct {
			CfPaymentID    json.RawMessage  `json:"cf_payment_id"`
			PaymentStatus  string           `json:"payment_status"`
			PaymentAmount  *decimal.Decimal `json:"payment_amount"`
			PaymentMessage string           `json:"payment_message"`
		} `json:"payment"`
	} `json:"data"`
}

// ParseWebhook 校验 x-webhook-signature = base64(HMAC-SHA256(timestamp + rawBody, secret))
func (g *CashfreeGateway) ParseWebhook(ctx context.Context, header http.Header, body []byte) (*WebhookEvent, error) {
	if err := g.verifySignature(header, body); err != nil {
		return nil, err
	}

	var wh cashfreeWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if wh.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}

	ev := &WebhookEvent{
		Provider:    ProviderCashfree,
		Type:        wh.Type,
		OrderNumber: wh.Data.Order.OrderID,
		PaymentID:   rawString(wh.Data.Payment.CfPaymentID),
		Currency:    wh.Data.Order.OrderCurrency,
		Message:     wh.Data.Payment.PaymentMessage,
	}

	switch wh.Type {
	case cashfreePaymentSuccess:
		ev.Kind = EventPaymentSucceeded
	case cashfreePaymentFailed:
		ev.Kind = EventPaymentFailed
	case cashfreeUserDropped:
		ev.Kind = EventPaymentDropped
	default:
		ev.Kind = EventIgnored
		return ev, nil
	}

	if ev.OrderNumber == "" {
		return nil, fmt.Errorf("%w: missing order_id", ErrMalformedPayload)
	}
	// 以实际支付金额为准，缺失时退回订单金额
	if wh.Data.Payment.PaymentAmount != nil {
		ev.Amount = *wh.Data.Payment.PaymentAmount
		ev.HasAmount = true
	} else if !wh.Data.Order.OrderAmount.IsZero() {
		ev.Amount = wh.Data.Order.OrderAmount
		ev.HasAmount = true
	}
	return ev, nil
}

func (g *CashfreeGateway) verifySignature(header http.Header, body []byte) error {
	signature := header.Get(headerSignature)
	timestamp := header.Get(headerTimestamp)
	if signature == "" || timestamp == "" {
		return fmt.Errorf("%w: missing signature headers", ErrInvalidSignature)
	}

	sent, err := parseWebhookTimestamp(timestamp)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	if skew := g.now().Sub(sent); skew > g.tolerance || skew < -g.tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := SignCashfree(g.cfg.SecretKey, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignCashfree 计算回调签名
func SignCashfree(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// parseWebhookTimestamp Cashfree 使用毫秒时间戳，兼容秒
func parseWebhookTimestamp(ts string) (time.Time, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if n > 1e12 {
		return time.UnixMilli(n), nil
	}
	return time.Unix(n, 0), nil
}

// rawString cf_payment_id 可能是数字也可能是字符串
func rawString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		return unquoted
	}
	return s
}

// sanitizeCustomerID customer_id 只允许字母数字、下划线和连字符
func sanitizeCustomerID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "guest"
	}
	return b.String()
}

func retryableStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout
}

func isTemporary(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// 连接失败、超时等网络错误都可以重试
	return true
}
