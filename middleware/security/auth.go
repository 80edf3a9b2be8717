package security

import (
	"net/http"
	"strings"

	"PPRealtime/tools/errs"

	"github.com/gin-gonic/gin"
)

// context key
const (
	PPCtxAuthKey      = "authorization" // 原始 token
	PPCtxPrincipalKey = "principal"     // 校验后的用户名
)

// TokenVerifier 由 tools/security.Verifier 实现
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type Options struct {
	HeaderToken               string // 默认 "authorization"
	EnableAuthorizationBearer bool   // 默认 true
	QueryToken                string // 为空则不读 query；ws 握手用 "access_token"
}

func DefaultOptions() *Options {
	return &Options{
		HeaderToken:               PPCtxAuthKey,
		EnableAuthorizationBearer: true,
	}
}

// BearerToken 从请求里取 token：Authorization: Bearer xxx，其次 query
func BearerToken(c *gin.Context, opts *Options) string {
	if opts == nil {
		opts = DefaultOptions()
	}
	if authz := strings.TrimSpace(c.GetHeader(opts.HeaderToken)); authz != "" {
		if opts.EnableAuthorizationBearer && len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			return strings.TrimSpace(authz[len("bearer "):])
		}
		if !strings.Contains(authz, " ") {
			return authz
		}
	}
	if opts.QueryToken != "" {
		return strings.TrimSpace(c.Query(opts.QueryToken))
	}
	return ""
}

// Middleware 校验 bearer token，把 principal 写入 gin.Context；失败 401
func Middleware(v TokenVerifier, opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		token := BearerToken(c, opts)
		if token == "" {
			abort(c, errs.ErrAuth.WithDetail("missing bearer token"))
			return
		}
		principal, err := v.Verify(token)
		if err != nil {
			abort(c, errs.AsCode(err))
			return
		}
		c.Set(PPCtxAuthKey, token)
		c.Set(PPCtxPrincipalKey, principal)
		c.Next()
	}
}

// Principal 当前请求的用户；未经过 Middleware 时为空
func Principal(c *gin.Context) string {
	return c.GetString(PPCtxPrincipalKey)
}

func abort(c *gin.Context, ce *errs.CodeError) {
	if ce.Code != errs.AuthError {
		ce = errs.ErrAuth
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, ce)
}
