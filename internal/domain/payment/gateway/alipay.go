package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"rakhi_store/internal/pkg/config"

	"github.com/shopspring/decimal"
	"github.com/smartwalle/alipay/v3"
)

const ProviderAlipay = "alipay"

// AlipayGateway 支付宝 App 支付
type AlipayGateway struct {
	client *alipay.Client
	config config.AlipayConfig
}

// NewAlipayGateway 创建支付宝网关
func NewAlipayGateway(cfg config.AlipayConfig) (*AlipayGateway, error) {
	if cfg.AppID == "" {
		return nil, errors.New("alipay config missing")
	}

	client, err := alipay.New(cfg.AppID, cfg.PrivateKey, cfg.IsProduction)
	if err != nil {
		return nil, err
	}

	// 加载支付宝公钥 (用于验证签名)
	if err = client.LoadAliPayPublicKey(cfg.PublicKey); err != nil {
		return nil, err
	}

	return &AlipayGateway{client: client, config: cfg}, nil
}

func (g *AlipayGateway) Name() string { return ProviderAlipay }

// Acknowledge 支付宝要求返回纯文本 success，否则会重复通知
func (g *AlipayGateway) Acknowledge() *Ack {
	return &Ack{ContentType: "text/plain; charset=utf-8", Body: []byte("success")}
}

// CreateSession 生成签名后的 App 支付参数串，订单号作为 out_trade_no
func (g *AlipayGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	p := alipay.TradeAppPay{}
	p.NotifyURL = firstNonEmpty(g.config.NotifyURL, req.NotifyURL)
	p.ReturnURL = firstNonEmpty(req.ReturnURL, g.config.ReturnURL)
	p.Subject = req.Description
	p.OutTradeNo = req.OrderNumber
	p.TotalAmount = req.Amount.StringFixed(2)
	p.ProductCode = "QUICK_MSECURITY_PAY" // App支付产品码

	result, err := g.client.TradeAppPay(p)
	if err != nil {
		return nil, &Error{Provider: ProviderAlipay, Op: "trade_app_pay", Err: err}
	}
	return &Session{Provider: ProviderAlipay, SessionID: result}, nil
}

// ParseWebhook 支付宝回调是 POST Form 格式
func (g *AlipayGateway) ParseWebhook(ctx context.Context, header http.Header, body []byte) (*WebhookEvent, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	// 1. 验证签名
	noti, err := g.client.DecodeNotification(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	ev := &WebhookEvent{
		Provider:    ProviderAlipay,
		Type:        string(noti.TradeStatus),
		OrderNumber: noti.OutTradeNo,
		PaymentID:   noti.TradeNo,
	}

	// 2. 检查交易状态
	switch noti.TradeStatus {
	case alipay.TradeStatusSuccess, alipay.TradeStatusFinished:
		ev.Kind = EventPaymentSucceeded
	case alipay.TradeStatusClosed:
		ev.Kind = EventPaymentDropped
	default:
		ev.Kind = EventIgnored
		return ev, nil
	}

	// 3. 解析金额
	if noti.TotalAmount != "" {
		amount, err := decimal.NewFromString(noti.TotalAmount)
		if err != nil {
			return nil, fmt.Errorf("%w: total_amount %q", ErrMalformedPayload, noti.TotalAmount)
		}
		ev.Amount = amount
		ev.HasAmount = true
	}
	return ev, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// 确保实现了接口
var _ Gateway = (*AlipayGateway)(nil)
