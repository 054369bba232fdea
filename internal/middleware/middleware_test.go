package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/service"
	"github.com/wfunc/echechess/internal/utils"
)

func newEngine(t *testing.T) (*gin.Engine, *utils.TokenManager, *service.Registry) {
	gin.SetMode(gin.TestMode)
	tokens := utils.NewTokenManager("test-secret", time.Hour)
	players := service.NewRegistry()
	m := NewSessionMiddleware(tokens, players)

	engine := gin.New()
	engine.Use(RequestID(), Recovery(), RequestLogger())
	engine.GET("/me", m.RequireSession(), func(c *gin.Context) {
		p, ok := GetPlayer(c)
		require.True(t, ok)
		sid, _ := GetSessionID(c)
		c.JSON(http.StatusOK, gin.H{"session_id": p.SessionID, "sid": sid})
	})
	engine.GET("/maybe", m.OptionalSession(), func(c *gin.Context) {
		_, ok := GetPlayer(c)
		c.JSON(http.StatusOK, gin.H{"player": ok})
	})
	engine.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})
	return engine, tokens, players
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *errors.ErrorResponse {
	var resp errors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return &resp
}

func TestRequireSession(t *testing.T) {
	engine, tokens, players := newEngine(t)
	sessionID, token, _, err := tokens.Issue()
	require.NoError(t, err)

	t.Run("Bearer令牌", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), sessionID)
		assert.Equal(t, 1, players.Count())
	})

	t.Run("请求头和Cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(TokenHeader, token)
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)

		// 同一会话只有一个玩家
		assert.Equal(t, 1, players.Count())
	})

	t.Run("缺少令牌", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(RequestIDHeader, "req-1")
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		resp := decodeError(t, w)
		assert.False(t, resp.Success)
		assert.Equal(t, errors.ErrSessionRequired, resp.Error.Code)
		assert.Equal(t, "req-1", resp.RequestID)
	})

	t.Run("无效令牌", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me?token=garbage", nil)
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, errors.ErrTokenInvalid, decodeError(t, w).Error.Code)
	})
}

func TestOptionalSession(t *testing.T) {
	engine, tokens, _ := newEngine(t)
	_, token, _, err := tokens.Issue()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/maybe", nil))
	assert.JSONEq(t, `{"player":false}`, w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/maybe?token="+token, nil))
	assert.JSONEq(t, `{"player":true}`, w.Body.String())
}

func TestRecovery(t *testing.T) {
	engine, _, _ := newEngine(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, errors.ErrUnknown, decodeError(t, w).Error.Code)
}

func TestAbortKeepsCode(t *testing.T) {
	engine, _, _ := newEngine(t)
	engine.GET("/store", func(c *gin.Context) {
		Abort(c, errors.New(errors.ErrDatabaseConnect))
	})
	engine.GET("/plain", func(c *gin.Context) {
		Abort(c, assert.AnError)
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/store", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, errors.ErrDatabaseConnect, resp.Error.Code)
	assert.Equal(t, w.Header().Get(RequestIDHeader), resp.RequestID)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plain", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, errors.ErrUnknown, decodeError(t, w).Error.Code)
}
