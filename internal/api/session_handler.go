package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/middleware"
	"github.com/wfunc/echechess/internal/service"
	"github.com/wfunc/echechess/internal/utils"
)

// SessionHandler HTTP会话
type SessionHandler struct {
	tokens  *utils.TokenManager
	players *service.Registry
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(tokens *utils.TokenManager, players *service.Registry) *SessionHandler {
	return &SessionHandler{tokens: tokens, players: players}
}

// SessionResponse 会话令牌
type SessionResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Create 建立HTTP会话
// @Summary 建立会话
// @Description 签发会话令牌，同一令牌对应同一玩家
// @Tags Session
// @Produce json
// @Success 201 {object} SessionResponse
// @Router /api/v1/session [post]
func (h *SessionHandler) Create(c *gin.Context) {
	sessionID, token, expiresAt, err := h.tokens.Issue()
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	h.players.GetOrCreate(sessionID)

	c.SetCookie(middleware.TokenCookie, token, int(h.tokens.TTL().Seconds()), "/", "", false, true)
	ok(c, http.StatusCreated, SessionResponse{SessionID: sessionID, Token: token, ExpiresAt: expiresAt})
}

// Player 当前玩家
// @Summary 当前玩家
// @Tags Session
// @Security Bearer
// @Produce json
// @Success 200 {object} service.PlayerView
// @Failure 401 {object} errors.ErrorResponse
// @Router /api/v1/player [get]
func (h *SessionHandler) Player(c *gin.Context) {
	player, found := middleware.GetPlayer(c)
	if !found {
		middleware.Abort(c, errors.New(errors.ErrSessionRequired))
		return
	}
	ok(c, http.StatusOK, player.View())
}
