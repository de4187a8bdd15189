package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector 指标收集器
// 所有方法允许 nil 接收者，未启用指标时直接忽略
type MetricsCollector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 订单指标
	orderTransitions *prometheus.CounterVec
	ordersCreated    prometheus.Counter

	// 回调与外部调用
	webhookOutcomes      *prometheus.CounterVec
	notificationResults  *prometheus.CounterVec
	externalCallDuration *prometheus.HistogramVec
	issuesRaised         *prometheus.CounterVec
}

// NewMetricsCollector 创建指标收集器并注册到 reg
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	f := promauto.With(reg)
	return &MetricsCollector{
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		orderTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_transitions_total",
				Help: "Applied order status transitions",
			},
			[]string{"from", "to", "source"},
		),
		ordersCreated: f.NewCounter(
			prometheus.CounterOpts{
				Name: "orders_created_total",
				Help: "Orders created by checkout",
			},
		),
		webhookOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_webhooks_total",
				Help: "Payment webhook deliveries by outcome",
			},
			[]string{"provider", "outcome"},
		),
		notificationResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_total",
				Help: "Email notifications by template and result",
			},
			[]string{"template", "result"},
		),
		externalCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "external_call_duration_seconds",
				Help:    "Latency of calls to payment, courier and email providers",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"provider", "operation", "result"},
		),
		issuesRaised: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_issues_total",
				Help: "Issues raised to the operator queue",
			},
			[]string{"kind"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordTransition 记录订单状态变更
func (m *MetricsCollector) RecordTransition(from, to, source string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(from, to, source).Inc()
}

// RecordOrderCreated 记录新订单
func (m *MetricsCollector) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordWebhook 记录回调处理结果 accepted/duplicate/ignored/rejected/error
func (m *MetricsCollector) RecordWebhook(provider, outcome string) {
	if m == nil {
		return
	}
	m.webhookOutcomes.WithLabelValues(provider, outcome).Inc()
}

// RecordNotification 记录邮件发送结果
func (m *MetricsCollector) RecordNotification(template, result string) {
	if m == nil {
		return
	}
	m.notificationResults.WithLabelValues(template, result).Inc()
}

// ObserveExternalCall 记录外部接口耗时
func (m *MetricsCollector) ObserveExternalCall(provider, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.externalCallDuration.WithLabelValues(provider, operation, result).Observe(time.Since(start).Seconds())
}

// RecordIssue 记录运营工单
func (m *MetricsCollector) RecordIssue(kind string) {
	if m == nil {
		return
	}
	m.issuesRaised.WithLabelValues(kind).Inc()
}
