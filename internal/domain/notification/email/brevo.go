package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"rakhi_store/internal/pkg/config"
	"rakhi_store/pkg/metrics"
)

const brevoBaseURL = "https://api.brevo.com"

// BrevoSender Brevo 事务邮件接口
type BrevoSender struct {
	apiKey  string
	baseURL string
	client  *http.Client
	metrics *metrics.MetricsCollector
}

func NewBrevoSender(cfg config.BrevoConfig, timeout time.Duration, m *metrics.MetricsCollector) (*BrevoSender, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("brevo api key missing")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = brevoBaseURL
	}
	return &BrevoSender{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		metrics: m,
	}, nil
}

func (s *BrevoSender) Name() string { return ProviderBrevo }

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoRequest struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent,omitempty"`
	TextContent string         `json:"textContent,omitempty"`
}

// Send POST /v3/smtp/email
func (s *BrevoSender) Send(ctx context.Context, msg Message) (messageID string, err error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	start := time.Now()
	defer func() { s.metrics.ObserveExternalCall(ProviderBrevo, "send", start, err) }()

	body, err := json.Marshal(brevoRequest{
		Sender:      brevoContact{Email: msg.From, Name: msg.FromName},
		To:          []brevoContact{{Email: msg.To, Name: msg.ToName}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
		TextContent: msg.Text,
	})
	if err != nil {
		return "", &Error{Provider: ProviderBrevo, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v3/smtp/email", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Provider: ProviderBrevo, Err: err}
	}
	req.Header.Set("api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &Error{Provider: ProviderBrevo, Retryable: !errors.Is(err, context.Canceled), Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", &Error{
			Provider:   ProviderBrevo,
			StatusCode: resp.StatusCode,
			Retryable:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			Err:        errors.New(msg),
		}
	}

	var out struct {
		MessageID string `json:"messageId"`
	}
	_ = json.Unmarshal(raw, &out)
	return out.MessageID, nil
}
