package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/logger"
	"github.com/wfunc/echechess/internal/service"
	"github.com/wfunc/echechess/internal/utils"
	"go.uber.org/zap"
)

const (
	// TokenHeader 会话令牌请求头
	TokenHeader = "X-Session-Token"
	// TokenCookie 会话令牌Cookie
	TokenCookie = "session_token"

	sessionIDKey = "sessionID"
)

// SessionMiddleware 解析会话令牌并把玩家放进请求上下文
type SessionMiddleware struct {
	tokens  *utils.TokenManager
	players *service.Registry
}

// NewSessionMiddleware 创建会话中间件
func NewSessionMiddleware(tokens *utils.TokenManager, players *service.Registry) *SessionMiddleware {
	return &SessionMiddleware{tokens: tokens, players: players}
}

// RequireSession 没有有效令牌时返回401
func (m *SessionMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.tokens.Parse(ExtractToken(c))
		if err != nil {
			Abort(c, err)
			return
		}
		m.attach(c, claims.SessionID)
		c.Next()
	}
}

// OptionalSession 有有效令牌时才放入玩家
func (m *SessionMiddleware) OptionalSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := ExtractToken(c); token != "" {
			if claims, err := m.tokens.Parse(token); err == nil {
				m.attach(c, claims.SessionID)
			}
		}
		c.Next()
	}
}

func (m *SessionMiddleware) attach(c *gin.Context, sessionID string) {
	player := m.players.GetOrCreate(sessionID)
	c.Set(sessionIDKey, sessionID)
	c.Request = c.Request.WithContext(service.WithPlayer(c.Request.Context(), player))
}

// ExtractToken 依次从Authorization、X-Session-Token、Cookie和query取令牌
func ExtractToken(c *gin.Context) string {
	if bearer := c.GetHeader("Authorization"); bearer != "" {
		parts := strings.SplitN(bearer, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if token := c.GetHeader(TokenHeader); token != "" {
		return token
	}
	if token, err := c.Cookie(TokenCookie); err == nil && token != "" {
		return token
	}
	// 浏览器WebSocket无法自定义请求头
	return c.Query("token")
}

// GetPlayer 从上下文获取玩家
func GetPlayer(c *gin.Context) (*service.Player, bool) {
	return service.PlayerFrom(c.Request.Context())
}

// GetSessionID 从上下文获取会话ID
func GetSessionID(c *gin.Context) (string, bool) {
	if v, exists := c.Get(sessionIDKey); exists {
		if id, ok := v.(string); ok {
			return id, true
		}
	}
	return "", false
}

// Abort 以统一的错误响应结束请求
func Abort(c *gin.Context, err error) {
	appErr := errors.Wrap(err, errors.ErrUnknown)
	if errors.IsCritical(appErr) || appErr.HTTPStatus() >= http.StatusInternalServerError {
		logger.With(zap.String("request_id", GetRequestID(c))).Error("请求失败",
			zap.Int("code", int(appErr.Code)),
			zap.String("path", c.Request.URL.Path),
			zap.Error(appErr),
			zap.String("stack", appErr.GetStack()))
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus(), errors.NewErrorResponse(appErr, GetRequestID(c)))
}
