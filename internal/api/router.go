package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/echechess/internal/adapter"
	"github.com/wfunc/echechess/internal/config"
	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/logger"
	"github.com/wfunc/echechess/internal/middleware"
	"github.com/wfunc/echechess/internal/utils"
	"go.uber.org/zap"
)

// Router API路由器
type Router struct {
	engine    *gin.Engine
	runtime   *adapter.Runtime
	sessions  *middleware.SessionMiddleware
	session   *SessionHandler
	ui        *UiHandler
	games     *GameHandler
	websocket *WebSocketHandler
	log       *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(rt *adapter.Runtime, cfg *config.Config) *Router {
	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.Recovery(), middleware.RequestLogger())

	tokens := utils.NewTokenManager(cfg.Session.Secret, cfg.Session.TokenTTL)

	r := &Router{
		engine:    engine,
		runtime:   rt,
		sessions:  middleware.NewSessionMiddleware(tokens, rt.Players),
		session:   NewSessionHandler(tokens, rt.Players),
		ui:        NewUiHandler(rt.Sessions),
		games:     NewGameHandler(rt.Games),
		websocket: NewWebSocketHandler(rt.Hub, rt.Games, rt.Sessions, cfg.WebSocket),
		log:       logger.With(zap.String("component", "api")),
	}
	r.setupRoutes(cfg.WebSocket.Path)
	return r
}

// setupRoutes 设置路由
func (r *Router) setupRoutes(wsPath string) {
	r.engine.GET("/health", r.healthCheck)
	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	v1 := r.engine.Group("/api/v1")
	{
		v1.POST("/session", r.session.Create)

		ui := v1.Group("/ui")
		ui.Use(r.sessions.OptionalSession())
		{
			ui.POST("/session", r.ui.Open)
			ui.POST("/ping", r.ui.Ping)
		}

		authed := v1.Group("")
		authed.Use(r.sessions.RequireSession())
		{
			authed.GET("/player", r.session.Player)

			authed.POST("/game", r.games.Create)
			authed.GET("/game/:id", r.games.Get)
			authed.POST("/game/:id/move", r.games.Move)
			authed.POST("/game/:id/join", r.games.Join)
			authed.POST("/game/:id/side", r.games.SetSide)
			authed.POST("/game/:id/promote", r.games.Promote)
		}
	}

	if wsPath == "" {
		wsPath = "/ws"
	}
	r.engine.GET(wsPath, r.sessions.OptionalSession(), r.websocket.Subscribe)

	r.engine.NoRoute(func(c *gin.Context) {
		middleware.Abort(c, errors.New(errors.ErrNotFound, "接口不存在"))
	})
}

// healthCheck 健康检查
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} errors.ErrorResponse
// @Router /health [get]
func (r *Router) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := r.runtime.Health(ctx); err != nil {
		r.log.Warn("健康检查失败", zap.Error(err))
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Mode:    string(r.runtime.Mode),
		NodeID:  r.runtime.NodeID,
		Clients: r.runtime.Hub.OnlineCount(),
	})
}

// Handler HTTP处理入口
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Mode    string `json:"mode"`
	NodeID  string `json:"node_id"`
	Clients int    `json:"clients"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, SuccessResponse{Success: true, Data: data})
}

// bindJSON 绑定失败时按参数错误结束请求
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.Abort(c, errors.Wrap(err, errors.ErrInvalidArgument))
		return false
	}
	return true
}
