package notification

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"PPRealtime/data/database/sqlite"
	"PPRealtime/middleware"
	midsec "PPRealtime/middleware/security"
	"PPRealtime/module/notification/model"
	"PPRealtime/module/notification/service"
	"PPRealtime/module/user"
	"PPRealtime/service/pubsub"
	"PPRealtime/service/storage"
	"PPRealtime/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokens map[string]string

func (t tokens) Verify(token string) (string, error) {
	if u, ok := t[token]; ok {
		return u, nil
	}
	return "", errs.ErrAuth.WrapMsg("invalid credential")
}

func newServer(t *testing.T) *gin.Engine {
	t.Helper()
	store, err := sqlite.OpenPath(filepath.Join(t.TempDir(), "notify.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fanout, err := service.NewFanout(store, storage.NewLocalPresence(), pubsub.NewLocalBus(pubsub.NewHub()),
		user.NewStoreProvider(store), 0)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(fanout).Register(middleware.NewRoutes(r, midsec.Middleware(tokens{"t1": "u1", "t2": "u2"}, nil)))
	return r
}

func do(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func unreadCount(t *testing.T, r *gin.Engine, token string) int {
	t.Helper()
	w := do(t, r, http.MethodGet, "/api/notifications/count", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Count
}

func TestNotificationFlow(t *testing.T) {
	r := newServer(t)

	w := do(t, r, http.MethodPost, "/api/notifications/events", "t1", gin.H{"type": "like", "recipient": "u2", "postId": 7})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = do(t, r, http.MethodPost, "/api/notifications/events", "t1", gin.H{"type": "COMMENT", "recipient": "u2", "postId": 7, "commentId": 42})
	require.Equal(t, http.StatusCreated, w.Code)

	// 自己给自己
	w = do(t, r, http.MethodPost, "/api/notifications/events", "t2", gin.H{"type": "LIKE", "recipient": "u2"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodPost, "/api/notifications/events", "t1", gin.H{"type": "SHARE", "recipient": "u2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, 2, unreadCount(t, r, "t2"))

	w = do(t, r, http.MethodGet, "/api/notifications", "t2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Items []model.View `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Items, 2)
	assert.Equal(t, "u1 commented on your post", list.Items[0].Message)

	id := strconv.FormatInt(list.Items[0].ID, 10)
	w = do(t, r, http.MethodPut, "/api/notifications/"+id+"/read", "t1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, r, http.MethodPut, "/api/notifications/"+id+"/read", "t2", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, r, http.MethodPut, "/api/notifications/abc/read", "t2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1, unreadCount(t, r, "t2"))

	w = do(t, r, http.MethodPut, "/api/notifications/read-all", "t2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":1}`, w.Body.String())
	assert.Zero(t, unreadCount(t, r, "t2"))
}
