package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/echechess/internal/middleware"
	"github.com/wfunc/echechess/internal/service"
)

// UiHandler 界面会话
type UiHandler struct {
	sessions *service.UiSessionService
}

// NewUiHandler 创建界面会话处理器
func NewUiHandler(sessions *service.UiSessionService) *UiHandler {
	return &UiHandler{sessions: sessions}
}

// UiSessionRequest 已有的界面会话ID，可为空
type UiSessionRequest struct {
	UiSessionID string `json:"ui_session_id" binding:"omitempty,uuid"`
}

// UiSessionResponse 界面会话
type UiSessionResponse struct {
	UiSessionID string `json:"ui_session_id"`
	Existed     bool   `json:"existed"`
	TTLSeconds  int64  `json:"ttl_seconds"`
}

// PingRequest 心跳
type PingRequest struct {
	UiSessionID string `json:"ui_session_id" binding:"required"`
}

// PingResponse 心跳结果，active为false时客户端应重新创建会话
type PingResponse struct {
	UiSessionID string `json:"ui_session_id"`
	Active      bool   `json:"active"`
}

// Open 创建或恢复界面会话
// @Summary 创建界面会话
// @Description 带上已有且仍有效的ID时不重建，并推送UI_SESSION_ALREADY_INITIALIZED
// @Tags UiSession
// @Accept json
// @Produce json
// @Param request body UiSessionRequest false "已有会话ID"
// @Success 200 {object} UiSessionResponse
// @Success 201 {object} UiSessionResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /api/v1/ui/session [post]
func (h *UiHandler) Open(c *gin.Context) {
	var req UiSessionRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	id, existed, err := h.sessions.OpenSession(c.Request.Context(), req.UiSessionID)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	if player, found := middleware.GetPlayer(c); found {
		player.AddUiSession(id)
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	ok(c, status, UiSessionResponse{
		UiSessionID: id,
		Existed:     existed,
		TTLSeconds:  int64(h.sessions.TTL().Seconds()),
	})
}

// Ping 刷新界面会话
// @Summary 界面会话心跳
// @Description 未知或已过期的会话返回active=false，并推送UI_SESSION_EXPIRED
// @Tags UiSession
// @Accept json
// @Produce json
// @Param request body PingRequest true "会话ID"
// @Success 200 {object} PingResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /api/v1/ui/ping [post]
func (h *UiHandler) Ping(c *gin.Context) {
	var req PingRequest
	if !bindJSON(c, &req) {
		return
	}

	active, err := h.sessions.Refresh(c.Request.Context(), req.UiSessionID)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	ok(c, http.StatusOK, PingResponse{UiSessionID: req.UiSessionID, Active: active})
}
