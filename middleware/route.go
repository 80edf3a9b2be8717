package middleware

import (
	"github.com/gin-gonic/gin"
)

// 配置选项
type RouteOpt struct {
	IsAuth bool
}

// Routes 统一挂路由：IsAuth 的路由前面自动加鉴权中间件
type Routes struct {
	r    gin.IRoutes
	auth gin.HandlerFunc
}

func NewRoutes(r gin.IRoutes, auth gin.HandlerFunc) *Routes {
	return &Routes{r: r, auth: auth}
}

func (rt *Routes) handlers(h gin.HandlerFunc, opt RouteOpt) []gin.HandlerFunc {
	if opt.IsAuth && rt.auth != nil {
		return []gin.HandlerFunc{rt.auth, h}
	}
	return []gin.HandlerFunc{h}
}

func (rt *Routes) POST(path string, h gin.HandlerFunc, opt RouteOpt) {
	rt.r.POST(path, rt.handlers(h, opt)...)
}

func (rt *Routes) GET(path string, h gin.HandlerFunc, opt RouteOpt) {
	rt.r.GET(path, rt.handlers(h, opt)...)
}

func (rt *Routes) PUT(path string, h gin.HandlerFunc, opt RouteOpt) {
	rt.r.PUT(path, rt.handlers(h, opt)...)
}
