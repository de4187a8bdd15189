package middleware

import (
	"net/http"
	"strings"

	"rakhi_store/internal/domain/user/model"
	"rakhi_store/pkg/response"
	"rakhi_store/pkg/utils"

	"github.com/gin-gonic/gin"
)

// 上下文中的用户信息键
const (
	ContextUserID = "userID"
	ContextRole   = "role"
)

// bearerToken 解析 "Bearer <token>"，ok 为 false 表示头部存在但格式错误
func bearerToken(c *gin.Context) (token string, present, ok bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false, false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", true, false
	}
	return parts[1], true, true
}

// AuthMiddleware JWT认证中间件
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, present, ok := bearerToken(c)
		if !present {
			response.Error(c, http.StatusUnauthorized, response.ErrAuthFailed, "Authorization header is required")
			c.Abort()
			return
		}
		if !ok {
			response.Error(c, http.StatusUnauthorized, response.ErrAuthFailed, "Invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "Invalid or expired token")
			c.Abort()
			return
		}

		// 将 userID 和 role 存入上下文
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// OptionalAuthMiddleware 有合法 token 时写入用户信息，没有 token 时按游客处理
func OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, present, ok := bearerToken(c)
		if !present {
			c.Next()
			return
		}
		claims, err := utils.ParseToken(tokenString)
		if !ok || err != nil {
			// 携带了错误的 token 不降级为游客，避免订单归属错误
			response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "Invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// AdminMiddleware 管理员权限中间件，需在 AuthMiddleware 之后使用
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ContextRole)
		if !exists {
			response.Error(c, http.StatusUnauthorized, response.ErrNoPermission, "Unauthorized")
			c.Abort()
			return
		}

		roleInt, ok := role.(int)
		if !ok || roleInt != model.RoleAdmin {
			response.Error(c, http.StatusForbidden, response.ErrNoPermission, "Admin permission required")
			c.Abort()
			return
		}

		c.Next()
	}
}

// CurrentUserID 当前登录用户，游客返回空串
func CurrentUserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// IsAdmin 当前用户是否为管理员
func IsAdmin(c *gin.Context) bool {
	role, ok := c.Get(ContextRole)
	if !ok {
		return false
	}
	r, ok := role.(int)
	return ok && r == model.RoleAdmin
}
