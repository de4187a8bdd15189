package user

import (
	"rakhi_store/internal/domain/user/handler"
	"rakhi_store/internal/domain/user/repository"
	"rakhi_store/internal/domain/user/service"
	"rakhi_store/internal/pkg/middleware"
	"rakhi_store/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// UserModule 用户模块：登录和当前用户
type UserModule struct{}

func init() {
	registry.Register(&UserModule{})
}

func (m *UserModule) Name() string {
	return "user"
}

func (m *UserModule) Priority() int {
	return 1
}

func (m *UserModule) Init(ctx *registry.ModuleContext) error {
	userRepo := repository.NewUserRepository(ctx.DB)
	userHandler := handler.NewUserHandler(service.NewAccountService(userRepo))

	setupRoutes(ctx.Router, userHandler)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.UserHandler) {
	api := r.Group("/api")

	api.POST("/auth/login", h.Login)

	me := api.Group("/me")
	me.Use(middleware.AuthMiddleware())
	{
		me.GET("", h.Me)
	}
}
