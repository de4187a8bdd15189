package handler

import (
	"errors"
	"net/http"
	"time"

	"rakhi_store/internal/domain/order/model"
	"rakhi_store/internal/domain/order/service"
	"rakhi_store/internal/domain/order/statemachine"
	"rakhi_store/pkg/response"
	"rakhi_store/pkg/utils"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	service service.AdminService
}

func NewAdminHandler(s service.AdminService) *AdminHandler {
	return &AdminHandler{service: s}
}

type UpdateStatusInput struct {
	Status model.Status `json:"status" binding:"required,oneof=pending confirmed processing shipped delivered cancelled"`
}

type ShipmentInput struct {
	TrackingNumber    string     `json:"trackingNumber" binding:"required_without=CreateWithCourier,max=64"`
	AWBNumber         string     `json:"awbNumber" binding:"max=64"`
	Partner           string     `json:"deliveryPartner" binding:"max=32"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery"`
	// 为 true 时向物流商下单，忽略 trackingNumber
	CreateWithCourier bool `json:"createWithCourier"`
}

type ResolveIssueInput struct {
	Note string `json:"note" binding:"max=1000"`
}

type ListIssuesQuery struct {
	utils.Pagination
	All bool `form:"all"` // 默认只列出未处理的工单
}

// StatusResponse 订单及后台可选的下一状态
type StatusResponse struct {
	Order *model.Order   `json:"order"`
	Next  []model.Status `json:"nextStatuses"`
}

func statusResponse(o *model.Order) StatusResponse {
	return StatusResponse{Order: o, Next: statemachine.NextStatuses(o.Status)}
}

// UpdateStatus 修改订单状态
// @Summary 修改订单状态
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Param input body UpdateStatusInput true "Target status"
// @Success 200 {object} response.Response{data=StatusResponse}
// @Failure 409 {object} response.Response "Transition not allowed"
// @Router /admin/orders/{id}/status [patch]
func (h *AdminHandler) UpdateStatus(c *gin.Context) {
	var input UpdateStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	order, err := h.service.SetStatus(c.Request.Context(), c.Param("id"), input.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, statusResponse(order))
}

// AttachShipment 录入运单
// @Summary 录入运单号或向物流商下单
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Param input body ShipmentInput true "Shipment"
// @Success 200 {object} response.Response{data=StatusResponse}
// @Failure 502 {object} response.Response "Courier error"
// @Router /admin/orders/{id}/shipment [post]
func (h *AdminHandler) AttachShipment(c *gin.Context) {
	var input ShipmentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	order, err := h.service.AttachShipment(c.Request.Context(), c.Param("id"), service.ShipmentInput{
		TrackingNumber:    input.TrackingNumber,
		AWBNumber:         input.AWBNumber,
		Partner:           input.Partner,
		EstimatedDelivery: input.EstimatedDelivery,
		CreateWithCourier: input.CreateWithCourier,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, statusResponse(order))
}

// SyncDelivery 同步物流状态
// @Summary 拉取物流轨迹，签收后订单改为已送达
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} response.Response{data=service.SyncResult}
// @Router /admin/orders/{id}/sync-delivery [post]
func (h *AdminHandler) SyncDelivery(c *gin.Context) {
	res, err := h.service.SyncDelivery(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}

// ResendNotification 补发邮件
// @Summary 补发订单邮件
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Param kind path string true "order_confirmation | order_shipped | order_delivered"
// @Success 200 {object} response.Response{data=notification.Result}
// @Failure 502 {object} response.Response "Email provider error"
// @Router /admin/orders/{id}/notifications/{kind} [post]
func (h *AdminHandler) ResendNotification(c *gin.Context) {
	res, err := h.service.ResendNotification(c.Request.Context(), c.Param("id"), c.Param("kind"))
	if err != nil {
		if res.Err != nil && errors.Is(err, res.Err) {
			response.Error(c, http.StatusBadGateway, response.ErrEmailDelivery, err.Error())
			return
		}
		writeError(c, err)
		return
	}
	response.Success(c, res)
}

// ListIssues 运营工单
// @Summary 运营工单列表
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param all query bool false "Include resolved"
// @Success 200 {object} response.Response{data=utils.PageResult}
// @Router /admin/issues [get]
func (h *AdminHandler) ListIssues(c *gin.Context) {
	var q ListIssuesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.service.ListIssues(c.Request.Context(), !q.All, &q.Pagination)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ResolveIssue 关闭工单
// @Summary 关闭运营工单
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Issue ID"
// @Param input body ResolveIssueInput false "Resolution note"
// @Success 200 {object} response.Response
// @Router /admin/issues/{id}/resolve [post]
func (h *AdminHandler) ResolveIssue(c *gin.Context) {
	var input ResolveIssueInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
			return
		}
	}

	if err := h.service.ResolveIssue(c.Request.Context(), c.Param("id"), input.Note); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}
