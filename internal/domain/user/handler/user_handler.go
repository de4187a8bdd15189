package handler

import (
	"errors"
	"net/http"

	"rakhi_store/internal/domain/user/repository"
	"rakhi_store/internal/domain/user/service"
	"rakhi_store/internal/pkg/middleware"
	"rakhi_store/pkg/logger"
	"rakhi_store/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UserHandler struct {
	service service.AccountService
}

func NewUserHandler(s service.AccountService) *UserHandler {
	return &UserHandler{service: s}
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,max=72"`
}

// Login 登录
// @Summary 邮箱密码登录
// @Tags Auth
// @Accept json
// @Produce json
// @Param input body LoginInput true "Credentials"
// @Success 200 {object} response.Response{data=service.Session}
// @Failure 401 {object} response.Response
// @Router /auth/login [post]
func (h *UserHandler) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	session, err := h.service.Login(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Error(c, http.StatusUnauthorized, response.ErrAuthFailed, err.Error())
			return
		}
		logger.Log.Error("Login failed", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, "internal server error")
		return
	}
	response.Success(c, session)
}

// Me 当前用户
// @Summary 当前用户信息
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=model.User}
// @Router /me [get]
func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.service.GetUser(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, "internal server error")
		return
	}
	response.Success(c, user)
}
