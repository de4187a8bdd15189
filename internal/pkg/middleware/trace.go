package middleware

import (
	"regexp"

	"rakhi_store/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ContextTraceID = "traceID"
	HeaderTraceID  = "X-Trace-ID"
)

// 上游传入的追踪ID会写进日志，只接受常见的 ID 字符
var traceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{8,64}$`)

// TraceMiddleware 为每个请求分配追踪ID
// 合法的 X-Trace-ID 沿用，否则重新生成；ID 同时写入 gin 上下文、请求 context 与响应头
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(HeaderTraceID)
		if !traceIDPattern.MatchString(traceID) {
			traceID = uuid.New().String()
		}

		c.Set(ContextTraceID, traceID)
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), traceID))
		c.Header(HeaderTraceID, traceID)

		c.Next()
	}
}
