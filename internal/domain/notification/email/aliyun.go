package email

import (
	"context"
	"errors"
	"time"

	"rakhi_store/internal/pkg/config"
	"rakhi_store/pkg/metrics"

	sdkerrors "github.com/aliyun/alibaba-cloud-sdk-go/sdk/errors"
	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"
	"github.com/aliyun/alibaba-cloud-sdk-go/services/dm"
)

// AliyunSender 阿里云邮件推送 SingleSendMail
type AliyunSender struct {
	client  *dm.Client
	timeout time.Duration
	metrics *metrics.MetricsCollector
}

func NewAliyunSender(cfg config.DirectMail, timeout time.Duration, m *metrics.MetricsCollector) (*AliyunSender, error) {
	if cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" {
		return nil, errors.New("aliyun directmail config missing")
	}
	region := cfg.RegionID
	if region == "" {
		region = "cn-hangzhou"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err := dm.NewClientWithAccessKey(region, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, err
	}
	return &AliyunSender{client: client, timeout: timeout, metrics: m}, nil
}

func (s *AliyunSender) Name() string { return ProviderAliyun }

func (s *AliyunSender) Send(ctx context.Context, msg Message) (messageID string, err error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", &Error{Provider: ProviderAliyun, Err: err}
	}

	start := time.Now()
	defer func() { s.metrics.ObserveExternalCall(ProviderAliyun, "send", start, err) }()

	request := dm.CreateSingleSendMailRequest()
	request.Scheme = "https"
	request.SetReadTimeout(s.timeout)
	request.AccountName = msg.From
	request.FromAlias = msg.FromName
	request.AddressType = requests.NewInteger(1) // 1: 发信地址
	request.ReplyToAddress = requests.NewBoolean(false)
	request.ToAddress = msg.To
	request.Subject = msg.Subject
	request.HtmlBody = msg.HTML
	request.TextBody = msg.Text

	resp, err := s.client.SingleSendMail(request)
	if err != nil {
		return "", aliyunError(err)
	}
	return resp.RequestId, nil
}

// aliyunError 服务端 5xx 和网络错误可重试
func aliyunError(err error) error {
	var serverErr *sdkerrors.ServerError
	if errors.As(err, &serverErr) {
		status := serverErr.HttpStatus()
		return &Error{
			Provider:   ProviderAliyun,
			StatusCode: status,
			Retryable:  status >= 500 || status == 429 || serverErr.ErrorCode() == "Throttling.User",
			Err:        errors.New(serverErr.Message()),
		}
	}
	var clientErr *sdkerrors.ClientError
	if errors.As(err, &clientErr) {
		return &Error{Provider: ProviderAliyun, Retryable: true, Err: err}
	}
	return &Error{Provider: ProviderAliyun, Err: err}
}
