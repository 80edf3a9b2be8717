package middleware

import (
	"net/http"
	"strconv"

	"PPRealtime/logger"
	"PPRealtime/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandlerFunc 业务 handler 返回 error，由 Handle 统一渲染
type HandlerFunc func(c *gin.Context) error

// Handle 错误 -> {code, msg, detail} + 对应 HTTP 状态码
func Handle(h HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h(c)
		if err == nil {
			return
		}
		_ = c.Error(err)
		ce := errs.AsCode(err)
		status := errs.HTTPStatus(ce.Code)
		if status == http.StatusInternalServerError {
			logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
			// 内部错误不把细节返回给客户端
			ce = errs.ErrInternal
		}
		c.AbortWithStatusJSON(status, ce)
	}
}

// Items 列表统一包一层
func Items[T any](c *gin.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// QueryInt 缺省或非法时返回 def
func QueryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
