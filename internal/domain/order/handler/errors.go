package handler

import (
	"errors"
	"net/http"

	"rakhi_store/internal/domain/delivery/courier"
	"rakhi_store/internal/domain/notification/templates"
	"rakhi_store/internal/domain/order/repository"
	"rakhi_store/internal/domain/order/service"
	"rakhi_store/internal/domain/order/statemachine"
	"rakhi_store/internal/domain/payment/gateway"
	"rakhi_store/pkg/logger"
	"rakhi_store/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError 业务错误转换为 HTTP 状态码和业务码
func writeError(c *gin.Context, err error) {
	var stockErr *service.StockError
	var courierErr *courier.Error

	switch {
	case errors.As(err, &stockErr):
		response.ErrorWithData(c, http.StatusConflict, response.ErrInsufficientStock, err.Error(), gin.H{
			"productId": stockErr.ProductID,
			"available": stockErr.Available,
		})
	case errors.Is(err, service.ErrEmptyCart), errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, statemachine.ErrMissingTracking):
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
	case errors.Is(err, service.ErrProductNotFound):
		response.Error(c, http.StatusBadRequest, response.ErrProductNotFound, err.Error())
	case errors.Is(err, repository.ErrOrderNotFound):
		response.Error(c, http.StatusNotFound, response.ErrOrderNotFound, err.Error())
	case errors.Is(err, repository.ErrIssueNotFound):
		response.Error(c, http.StatusNotFound, response.ErrIssueNotFound, err.Error())
	case errors.Is(err, service.ErrOrderNotPayable):
		response.Error(c, http.StatusConflict, response.ErrOrderNotPayable, err.Error())
	case errors.Is(err, statemachine.ErrPaymentNotCompleted):
		response.Error(c, http.StatusConflict, response.ErrPaymentNotCompleted, err.Error())
	case errors.Is(err, statemachine.ErrInvalidTransition), errors.Is(err, service.ErrNoTracking):
		response.Error(c, http.StatusConflict, response.ErrInvalidTransition, err.Error())
	case errors.Is(err, service.ErrConcurrentUpdate):
		response.Error(c, http.StatusConflict, response.ErrConcurrentUpdate, err.Error())
	case errors.Is(err, service.ErrNotificationState):
		response.Error(c, http.StatusConflict, response.ErrNotificationState, err.Error())
	case errors.Is(err, templates.ErrUnknownKind):
		response.Error(c, http.StatusBadRequest, response.ErrUnknownTemplate, err.Error())
	case errors.Is(err, service.ErrShipmentUnsupported):
		response.Error(c, http.StatusBadRequest, response.ErrShipmentUnsupported, err.Error())
	case errors.As(err, &courierErr):
		response.Error(c, http.StatusBadGateway, response.ErrCourier, err.Error())
	case errors.Is(err, gateway.ErrInvalidSignature):
		response.Error(c, http.StatusUnauthorized, response.ErrInvalidSignature, "invalid signature")
	case errors.Is(err, gateway.ErrMalformedPayload):
		response.Error(c, http.StatusBadRequest, response.ErrMalformedPayload, err.Error())
	default:
		logger.Log.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, "internal server error")
	}
}
