package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/echechess/internal/config"
	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/game"
	"github.com/wfunc/echechess/internal/logger"
	"github.com/wfunc/echechess/internal/middleware"
	"github.com/wfunc/echechess/internal/service"
	ws "github.com/wfunc/echechess/internal/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler WebSocket订阅
type WebSocketHandler struct {
	hub      *ws.Hub
	games    *service.GameService
	sessions *service.UiSessionService
	upgrader websocket.Upgrader
	cfg      config.WebSocketConfig
	logger   *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(hub *ws.Hub, games *service.GameService, sessions *service.UiSessionService, cfg config.WebSocketConfig) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		games:    games,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		cfg:    cfg,
		logger: logger.WithModule(logger.ModuleWebSocket),
	}
}

// Subscribe 订阅对局和界面会话推送
// @Summary WebSocket订阅
// @Description 界面会话已失效时推送UI_SESSION_EXPIRED并关闭连接
// @Tags WebSocket
// @Param ui query string true "界面会话ID"
// @Param game query string false "对局ID"
// @Success 101
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /ws [get]
func (h *WebSocketHandler) Subscribe(c *gin.Context) {
	ctx := c.Request.Context()
	sub := ws.Subscription{
		UiSessionID: c.Query("ui"),
		GameID:      c.Query("game"),
	}
	if sub.UiSessionID == "" {
		middleware.Abort(c, errors.New(errors.ErrInvalidArgument, "缺少界面会话ID"))
		return
	}

	player, hasPlayer := middleware.GetPlayer(c)
	if hasPlayer {
		sub.SessionID = player.SessionID
	}
	if sub.GameID != "" {
		side := game.SideObserver
		view, err := h.games.Get(ctx, sub.GameID)
		if err != nil {
			middleware.Abort(c, err)
			return
		}
		if hasPlayer {
			side = view.SideOf(player.SessionID)
		}
		sub.Side = side
	}

	active, err := h.sessions.IsActive(ctx, sub.UiSessionID)
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败",
			zap.String("ui_session_id", sub.UiSessionID),
			zap.Error(err))
		return
	}

	if !active {
		h.logger.Info("界面会话已失效，拒绝订阅", zap.String("ui_session_id", sub.UiSessionID))
		ws.RejectExpired(conn, sub.UiSessionID, h.cfg.WriteTimeout)
		return
	}

	if hasPlayer {
		player.AddUiSession(sub.UiSessionID)
	}
	client := h.hub.Serve(conn, sub)

	h.logger.Info("WebSocket连接建立",
		zap.String("client_id", client.ID),
		zap.String("session_id", sub.SessionID),
		zap.String("ui_session_id", sub.UiSessionID),
		zap.String("game_id", sub.GameID),
		zap.String("side", string(sub.Side)))
}
