package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/game"
	"github.com/wfunc/echechess/internal/middleware"
	"github.com/wfunc/echechess/internal/service"
)

// GameHandler 对局接口
type GameHandler struct {
	games *service.GameService
}

// NewGameHandler 创建对局处理器
func NewGameHandler(games *service.GameService) *GameHandler {
	return &GameHandler{games: games}
}

// ActionBase 所有动作携带的界面会话
type ActionBase struct {
	UiSessionID string `json:"ui_session_id"`
}

// MoveRequest 走子
type MoveRequest struct {
	ActionBase
	From      string `json:"from" binding:"required"`
	To        string `json:"to" binding:"required"`
	Promotion string `json:"promotion,omitempty"`
}

// SideRequest 换边
type SideRequest struct {
	ActionBase
	Side game.Side `json:"side" binding:"required,oneof=WHITE BLACK"`
}

// PromoteRequest 升变
type PromoteRequest struct {
	ActionBase
	Piece string `json:"piece" binding:"required"`
}

// Create 创建对局
// @Summary 创建对局
// @Tags Game
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body game.CreateOptions true "对局选项"
// @Success 201 {object} service.GameView
// @Failure 400 {object} errors.ErrorResponse
// @Router /api/v1/game [post]
func (h *GameHandler) Create(c *gin.Context) {
	var opts game.CreateOptions
	if !bindJSON(c, &opts) {
		return
	}
	player, found := middleware.GetPlayer(c)
	if !found {
		middleware.Abort(c, errors.New(errors.ErrSessionRequired))
		return
	}

	view, err := h.games.Create(c.Request.Context(), player, opts)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	ok(c, http.StatusCreated, view)
}

// Get 查询对局
// @Summary 查询对局
// @Tags Game
// @Security Bearer
// @Produce json
// @Param id path string true "对局ID"
// @Success 200 {object} service.GameView
// @Failure 404 {object} errors.ErrorResponse
// @Router /api/v1/game/{id} [get]
func (h *GameHandler) Get(c *gin.Context) {
	view, err := h.games.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}

// Move 走子
// @Summary 走子
// @Tags Game
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path string true "对局ID"
// @Param request body MoveRequest true "走子"
// @Success 200 {object} service.Outcome
// @Success 202 {object} service.Outcome
// @Failure 422 {object} errors.ErrorResponse
// @Router /api/v1/game/{id}/move [post]
func (h *GameHandler) Move(c *gin.Context) {
	var req MoveRequest
	if !bindJSON(c, &req) {
		return
	}
	h.act(c, req.UiSessionID, game.ActionMove, game.MovePayload{From: req.From, To: req.To, Promotion: req.Promotion})
}

// Join 加入对局
// @Summary 加入对局
// @Description 有空位时入座，否则按对局设置观战或被拒绝
// @Tags Game
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path string true "对局ID"
// @Param request body ActionBase false "界面会话"
// @Success 200 {object} service.Outcome
// @Failure 422 {object} errors.ErrorResponse
// @Router /api/v1/game/{id}/join [post]
func (h *GameHandler) Join(c *gin.Context) {
	var req ActionBase
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	h.act(c, req.UiSessionID, game.ActionJoin, nil)
}

// SetSide 换边
// @Summary 换边
// @Tags Game
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path string true "对局ID"
// @Param request body SideRequest true "目标执棋方"
// @Success 200 {object} service.Outcome
// @Failure 422 {object} errors.ErrorResponse
// @Router /api/v1/game/{id}/side [post]
func (h *GameHandler) SetSide(c *gin.Context) {
	var req SideRequest
	if !bindJSON(c, &req) {
		return
	}
	h.act(c, req.UiSessionID, game.ActionSetSide, game.SetSidePayload{Side: req.Side})
}

// Promote 兵升变
// @Summary 兵升变
// @Tags Game
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path string true "对局ID"
// @Param request body PromoteRequest true "升变棋子"
// @Success 200 {object} service.Outcome
// @Failure 422 {object} errors.ErrorResponse
// @Router /api/v1/game/{id}/promote [post]
func (h *GameHandler) Promote(c *gin.Context) {
	var req PromoteRequest
	if !bindJSON(c, &req) {
		return
	}
	h.act(c, req.UiSessionID, game.ActionPromote, game.PromotePayload{Piece: req.Piece})
}

// act 分发动作；超时未得到结果时返回202
func (h *GameHandler) act(c *gin.Context, uiSessionID string, kind game.ActionKind, payload interface{}) {
	player, found := middleware.GetPlayer(c)
	if !found {
		middleware.Abort(c, errors.New(errors.ErrSessionRequired))
		return
	}

	out, err := h.games.Act(c.Request.Context(), player, service.ActionRequest{
		GameID:      c.Param("id"),
		UiSessionID: uiSessionID,
		Kind:        kind,
		Payload:     payload,
	})
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	status := http.StatusOK
	if out.Pending {
		status = http.StatusAccepted
	}
	ok(c, status, out)
}
