package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"PPRealtime/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutesAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	deny := func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) }
	rt := NewRoutes(r, deny)
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	rt.GET("/open", ok, RouteOpt{})
	rt.GET("/closed", ok, RouteOpt{IsAuth: true})

	for path, want := range map[string]int{"/open": 200, "/closed": 401} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, w.Code, path)
	}
}

func TestChainStopsOnAbort(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var ran []string
	chain := NewChain().
		Set("a", func(c *gin.Context) { ran = append(ran, "a") }).
		Set("b", func(c *gin.Context) { ran = append(ran, "b"); c.AbortWithStatus(http.StatusTeapot) }).
		Set("c", func(c *gin.Context) { ran = append(ran, "c") })

	r := gin.New()
	r.Use(chain.Handler())
	r.GET("/", func(c *gin.Context) { ran = append(ran, "handler") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, []string{"a", "b"}, ran)

	// 替换保持原位置，摘掉后请求直达 handler
	chain.Set("b", func(c *gin.Context) { ran = append(ran, "b2") })
	assert.Equal(t, []string{"a", "b", "c"}, chain.Names())
	assert.True(t, chain.Remove("c"))
	assert.False(t, chain.Remove("c"))

	ran = nil
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a", "b2", "handler"}, ran)
}

func TestOriginAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, OriginAllowed(req, []string{"chat.example.com"}), "no origin header")

	req.Header.Set("Origin", "https://chat.example.com")
	assert.True(t, OriginAllowed(req, nil))
	assert.True(t, OriginAllowed(req, []string{"chat.example.com"}))
	assert.True(t, OriginAllowed(req, []string{"https://chat.example.com"}))
	assert.False(t, OriginAllowed(req, []string{"evil.example.com"}))
}

func TestHandleRendersCodeError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/missing", Handle(func(c *gin.Context) error {
		return errs.ErrNotFound.WrapMsg("conversation", "id", "x")
	}))
	r.GET("/boom", Handle(func(c *gin.Context) error {
		return errors.New("db down")
	}))
	r.GET("/empty", Handle(func(c *gin.Context) error {
		Items[string](c, nil)
		return nil
	}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body errs.CodeError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errs.NotFound, body.Code)
	assert.Contains(t, body.Detail, "id=x")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/empty", nil))
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())
}
