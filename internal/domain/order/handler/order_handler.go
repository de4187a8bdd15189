package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"rakhi_store/internal/domain/order/model"
	"rakhi_store/internal/domain/order/service"
	"rakhi_store/internal/pkg/middleware"
	"rakhi_store/pkg/response"
	"rakhi_store/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// 回调报文上限
const maxWebhookBody = 1 << 20

// SSE 心跳间隔
var heartbeatInterval = 25 * time.Second

type OrderHandler struct {
	checkout   service.CheckoutService
	reconciler *service.Reconciler
	query      service.QueryService
}

func NewOrderHandler(checkout service.CheckoutService, reconciler *service.Reconciler, query service.QueryService) *OrderHandler {
	return &OrderHandler{checkout: checkout, reconciler: reconciler, query: query}
}

type CheckoutItemInput struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1,max=50"`
}

type CustomerInput struct {
	Name     string `json:"name" binding:"required,max=120"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Phone    string `json:"phone" binding:"required,phone"`
	Password string `json:"password" binding:"omitempty,min=8,max=72"` // 游客下单时创建账号
}

type CheckoutInput struct {
	Items           []CheckoutItemInput   `json:"items" binding:"required,min=1,max=30,dive"`
	Customer        CustomerInput         `json:"customer" binding:"required"`
	ShippingAddress model.ShippingAddress `json:"shippingAddress" binding:"required"`
}

// CheckoutResponse 前端用 paymentSessionId 拉起收银台
type CheckoutResponse struct {
	OrderID          string          `json:"orderId"`
	OrderNumber      string          `json:"orderNumber"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	ShippingCharge   decimal.Decimal `json:"shippingCharge"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	Currency         string          `json:"currency"`
	Provider         string          `json:"provider,omitempty"`
	PaymentSessionID string          `json:"paymentSessionId,omitempty"`
}

func checkoutResponse(res *service.CheckoutResult) CheckoutResponse {
	o := res.Order
	out := CheckoutResponse{
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		Subtotal:       o.Subtotal,
		ShippingCharge: o.ShippingCharge,
		TotalAmount:    o.TotalAmount,
		Currency:       o.Currency,
	}
	if res.Session != nil {
		out.Provider = res.Session.Provider
		out.PaymentSessionID = res.Session.SessionID
	}
	return out
}

// Checkout 下单
// @Summary 下单并创建支付会话
// @Tags Checkout
// @Accept json
// @Produce json
// @Param input body CheckoutInput true "Cart and contact"
// @Success 201 {object} response.Response{data=CheckoutResponse}
// @Failure 409 {object} response.Response "Insufficient stock"
// @Failure 502 {object} response.Response{data=CheckoutResponse} "Order created, payment session failed"
// @Router /checkout [post]
func (h *OrderHandler) Checkout(c *gin.Context) {
	var input CheckoutInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	lines := make([]service.CartLine, 0, len(input.Items))
	for _, it := range input.Items {
		lines = append(lines, service.CartLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	res, err := h.checkout.Checkout(c.Request.Context(), service.CheckoutInput{
		UserID: middleware.CurrentUserID(c),
		Lines:  lines,
		Customer: service.Contact{
			Name:     input.Customer.Name,
			Email:    input.Customer.Email,
			Phone:    input.Customer.Phone,
			Password: input.Customer.Password,
		},
		Address: input.ShippingAddress,
	})
	h.writeCheckout(c, res, err, http.StatusCreated)
}

// RetrySession 重新申请支付会话
// @Summary 重新申请支付会话
// @Tags Checkout
// @Produce json
// @Param orderNumber path string true "Order number"
// @Success 200 {object} response.Response{data=CheckoutResponse}
// @Failure 409 {object} response.Response "Order not awaiting payment"
// @Router /checkout/{orderNumber}/session [post]
func (h *OrderHandler) RetrySession(c *gin.Context) {
	res, err := h.checkout.RetrySession(c.Request.Context(), c.Param("orderNumber"))
	h.writeCheckout(c, res, err, http.StatusOK)
}

func (h *OrderHandler) writeCheckout(c *gin.Context, res *service.CheckoutResult, err error, okStatus int) {
	if errors.Is(err, service.ErrPaymentSession) && res != nil && res.Order != nil {
		// 订单已创建，客户端凭订单号重试支付
		response.ErrorWithData(c, http.StatusBadGateway, response.ErrPaymentGateway, "payment session unavailable, please retry", checkoutResponse(res))
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	if okStatus == http.StatusCreated {
		response.Created(c, checkoutResponse(res))
		return
	}
	response.Success(c, checkoutResponse(res))
}

// Webhook 支付回调
// @Summary 支付网关回调
// @Tags Payment
// @Accept json
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 401 {object} response.Response "Invalid signature"
// @Router /payment/webhook [post]
func (h *OrderHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrMalformedPayload, "unreadable body")
		return
	}

	res, err := h.reconciler.HandleWebhook(c.Request.Context(), c.Request.Header, body, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Ack != nil {
		c.Data(http.StatusOK, res.Ack.ContentType, res.Ack.Body)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// OrderSummary 仅凭订单号可见的订单信息，不含联系方式与收货地址
type OrderSummary struct {
	OrderNumber       string              `json:"orderNumber"`
	Status            model.Status        `json:"status"`
	PaymentStatus     model.PaymentStatus `json:"paymentStatus"`
	Subtotal          decimal.Decimal     `json:"subtotal"`
	ShippingCharge    decimal.Decimal     `json:"shippingCharge"`
	TotalAmount       decimal.Decimal     `json:"totalAmount"`
	Currency          string              `json:"currency"`
	Items             []model.OrderItem   `json:"items"`
	TrackingNumber    *string             `json:"trackingNumber,omitempty"`
	DeliveryPartner   *string             `json:"deliveryPartner,omitempty"`
	EstimatedDelivery *time.Time          `json:"estimatedDelivery,omitempty"`
	ShippedAt         *time.Time          `json:"shippedAt,omitempty"`
	DeliveredAt       *time.Time          `json:"deliveredAt,omitempty"`
	CreatedAt         time.Time           `json:"createdAt"`
}

func summaryOf(o *model.Order) OrderSummary {
	return OrderSummary{
		OrderNumber:       o.OrderNumber,
		Status:            o.Status,
		PaymentStatus:     o.PaymentStatus,
		Subtotal:          o.Subtotal,
		ShippingCharge:    o.ShippingCharge,
		TotalAmount:       o.TotalAmount,
		Currency:          o.Currency,
		Items:             o.Items,
		TrackingNumber:    o.TrackingNumber,
		DeliveryPartner:   o.DeliveryPartner,
		EstimatedDelivery: o.EstimatedDelivery,
		ShippedAt:         o.ShippedAt,
		DeliveredAt:       o.DeliveredAt,
		CreatedAt:         o.CreatedAt,
	}
}

// ownsOrder 下单用户本人或管理员
func ownsOrder(c *gin.Context, o *model.Order) bool {
	if middleware.IsAdmin(c) {
		return true
	}
	uid := middleware.CurrentUserID(c)
	return uid != "" && o.UserID != nil && *o.UserID == uid
}

// GetOrder 按订单号查询，本人或管理员返回完整订单，其他请求只返回摘要
// @Summary 查询订单
// @Tags Order
// @Produce json
// @Param orderNumber path string true "Order number"
// @Success 200 {object} response.Response{data=OrderSummary}
// @Failure 404 {object} response.Response
// @Router /orders/{orderNumber} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.query.GetByNumber(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		writeError(c, err)
		return
	}
	if ownsOrder(c, order) {
		response.Success(c, order)
		return
	}
	response.Success(c, summaryOf(order))
}

// Tracking 物流信息
// @Summary 查询物流
// @Tags Order
// @Produce json
// @Param orderNumber path string true "Order number"
// @Success 200 {object} response.Response{data=service.TrackingView}
// @Router /orders/{orderNumber}/tracking [get]
func (h *OrderHandler) Tracking(c *gin.Context) {
	view, err := h.query.Tracking(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, view)
}

// ListMine 我的订单
// @Summary 我的订单
// @Tags Order
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Response{data=utils.PageResult}
// @Router /me/orders [get]
func (h *OrderHandler) ListMine(c *gin.Context) {
	var page utils.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.query.ListMine(c.Request.Context(), middleware.CurrentUserID(c), &page)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

// Events 订单状态变化推送 (SSE)
// @Summary 订阅订单状态
// @Tags Order
// @Produce text/event-stream
// @Param orderNumber path string true "Order number"
// @Router /orders/{orderNumber}/events [get]
func (h *OrderHandler) Events(c *gin.Context) {
	sub, err := h.query.Subscribe(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		writeError(c, err)
		return
	}
	stream(c, sub.Messages())
	_ = sub.Close()
}

// MyEvents 当前用户全部订单的状态变化 (SSE)
// @Summary 订阅我的订单状态
// @Tags Order
// @Produce text/event-stream
// @Security BearerAuth
// @Router /me/orders/events [get]
func (h *OrderHandler) MyEvents(c *gin.Context) {
	sub, err := h.query.SubscribeUser(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	stream(c, sub.Messages())
	_ = sub.Close()
}

// stream 转发消息直到客户端断开
func stream(c *gin.Context, messages <-chan []byte) {
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-messages:
			if !ok {
				return false
			}
			c.SSEvent("order", string(msg))
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", "")
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
