package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"rakhi_store/internal/pkg/config"

	"github.com/shopspring/decimal"
	"github.com/wechatpay-apiv3/wechatpay-go/core"
	"github.com/wechatpay-apiv3/wechatpay-go/core/auth/verifiers"
	"github.com/wechatpay-apiv3/wechatpay-go/core/downloader"
	"github.com/wechatpay-apiv3/wechatpay-go/core/notify"
	"github.com/wechatpay-apiv3/wechatpay-go/core/option"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments/app"
	"github.com/wechatpay-apiv3/wechatpay-go/utils"
)

const ProviderWechat = "wechat"

// WechatGateway 微信支付 APIv3 App 支付
type WechatGateway struct {
	client  *core.Client
	config  config.WechatPayConfig
	handler *notify.Handler
}

// NewWechatGateway 创建微信支付网关
func NewWechatGateway(ctx context.Context, cfg config.WechatPayConfig) (*WechatGateway, error) {
	if cfg.MchID == "" {
		return nil, errors.New("wechat pay config missing")
	}

	// 1. 加载商户私钥
	mchPrivateKey, err := utils.LoadPrivateKey(cfg.MchPrivateKey)
	if err != nil {
		return nil, err
	}

	// 2. 初始化 Client（自动下载平台证书）
	client, err := core.NewClient(ctx,
		option.WithWechatPayAutoAuthCipher(cfg.MchID, cfg.MchCertificateSerial, mchPrivateKey, cfg.APIv3Key),
	)
	if err != nil {
		return nil, err
	}

	// 3. 证书管理器用于回调验签
	certVisitor := downloader.MgrInstance().GetCertificateVisitor(cfg.MchID)
	handler := notify.NewNotifyHandler(cfg.APIv3Key, verifiers.NewSHA256WithRSAVerifier(certVisitor))

	return &WechatGateway{client: client, config: cfg, handler: handler}, nil
}

func (g *WechatGateway) Name() string { return ProviderWechat }

// Acknowledge 返回 2xx 且 code=SUCCESS 表示处理成功
func (g *WechatGateway) Acknowledge() *Ack {
	return &Ack{ContentType: "application/json", Body: []byte(`{"code":"SUCCESS","message":"成功"}`)}
}

// CreateSession 预下单，返回 prepay_id
func (g *WechatGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	// 转换为分
	amountFen := req.Amount.Shift(2).IntPart()

	prepay := app.PrepayRequest{
		Appid:       core.String(g.config.AppID),
		Mchid:       core.String(g.config.MchID),
		Description: core.String(req.Description),
		OutTradeNo:  core.String(req.OrderNumber),
		NotifyUrl:   core.String(firstNonEmpty(g.config.NotifyURL, req.NotifyURL)),
		Amount: &app.Amount{
			Total: core.Int64(amountFen),
		},
	}

	svc := app.AppApiService{Client: g.client}
	resp, result, err := svc.Prepay(ctx, prepay)
	if err != nil {
		status := 0
		if result != nil && result.Response != nil {
			status = result.Response.StatusCode
		}
		return nil, &Error{Provider: ProviderWechat, Op: "prepay", StatusCode: status, Retryable: status == 0 || retryableStatus(status), Err: err}
	}
	if resp.PrepayId == nil {
		return nil, &Error{Provider: ProviderWechat, Op: "prepay", Err: errors.New("empty prepay_id")}
	}
	return &Session{Provider: ProviderWechat, SessionID: *resp.PrepayId}, nil
}

// ParseWebhook 微信回调是 JSON 格式，签名信息在 Header 中
func (g *WechatGateway) ParseWebhook(ctx context.Context, header http.Header, body []byte) (*WebhookEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	req.Header = header.Clone()

	transaction := new(payments.Transaction)
	notifyReq, err := g.handler.ParseNotifyRequest(ctx, req, transaction)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if transaction.OutTradeNo == nil || transaction.TradeState == nil {
		return nil, fmt.Errorf("%w: missing out_trade_no or trade_state", ErrMalformedPayload)
	}

	ev := &WebhookEvent{
		Provider:    ProviderWechat,
		Type:        notifyReq.EventType + ":" + *transaction.TradeState,
		OrderNumber: *transaction.OutTradeNo,
	}
	if transaction.TransactionId != nil {
		ev.PaymentID = *transaction.TransactionId
	}

	switch *transaction.TradeState {
	case "SUCCESS":
		ev.Kind = EventPaymentSucceeded
	case "PAYERROR":
		ev.Kind = EventPaymentFailed
	case "CLOSED", "REVOKED":
		ev.Kind = EventPaymentDropped
	default:
		ev.Kind = EventIgnored
		return ev, nil
	}

	if transaction.Amount != nil && transaction.Amount.Total != nil {
		ev.Amount = decimal.New(*transaction.Amount.Total, -2)
		ev.HasAmount = true
		if transaction.Amount.Currency != nil {
			ev.Currency = *transaction.Amount.Currency
		}
	}
	return ev, nil
}

var _ Gateway = (*WechatGateway)(nil)
