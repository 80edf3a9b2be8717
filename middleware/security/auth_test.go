package security

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"PPRealtime/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier map[string]string

func (f fakeVerifier) Verify(token string) (string, error) {
	if u, ok := f[token]; ok {
		return u, nil
	}
	return "", errs.ErrAuth.WrapMsg("invalid credential")
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Middleware(fakeVerifier{"good": "alice"}, nil), func(c *gin.Context) {
		c.String(http.StatusOK, Principal(c))
	})
	return r
}

func TestMiddlewareBindsPrincipal(t *testing.T) {
	r := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())
}

func TestMiddlewareRejects(t *testing.T) {
	r := newRouter()
	for _, header := range []string{"", "Bearer bad", "Basic Zm9vOmJhcg=="} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusUnauthorized, w.Code, header)
		var body errs.CodeError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, errs.AuthError, body.Code)
	}
}

func TestBearerTokenFromQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/ws?access_token=abc", nil)

	assert.Empty(t, BearerToken(c, nil))
	assert.Equal(t, "abc", BearerToken(c, &Options{HeaderToken: PPCtxAuthKey, EnableAuthorizationBearer: true, QueryToken: "access_token"}))
}
