package game

import (
	"time"
)

// Side 执棋方
type Side string

const (
	SideWhite    Side = "WHITE"
	SideBlack    Side = "BLACK"
	SideObserver Side = "OBSERVER"
)

// Opponent 对手方，观战者没有对手
func (s Side) Opponent() Side {
	switch s {
	case SideWhite:
		return SideBlack
	case SideBlack:
		return SideWhite
	default:
		return ""
	}
}

// IsPlayer 是否为对局双方之一
func (s Side) IsPlayer() bool {
	return s == SideWhite || s == SideBlack
}

// ActionKind 动作类型
type ActionKind string

const (
	ActionMove    ActionKind = "MOVE"
	ActionJoin    ActionKind = "JOIN"
	ActionSetSide ActionKind = "SET_SIDE"
	ActionPromote ActionKind = "PROMOTE"
)

// Scope 推送范围
type Scope string

const (
	ScopeGame Scope = "game" // 对局内所有连接
	ScopeSide Scope = "side" // 对局内某一方
	ScopeUi   Scope = "ui"   // 某个界面会话
)

// EventKind 推送事件类型
type EventKind string

const (
	EventMove                   EventKind = "MOVE"
	EventPlayerTurn             EventKind = "PLAYER_TURN"
	EventScoreUpdate            EventKind = "SCORE_UPDATE"
	EventKingCheck              EventKind = "KING_CHECK"
	EventKingCheckmate          EventKind = "KING_CHECKMATE"
	EventPawnPromotion          EventKind = "PAWN_PROMOTION"
	EventGameWon                EventKind = "GAME_WON"
	EventPlayerJoined           EventKind = "PLAYER_JOINED"
	EventTryJoinGame            EventKind = "TRY_JOIN_GAME"
	EventRefreshBoard           EventKind = "REFRESH_BOARD"
	EventActionRejected         EventKind = "ACTION_REJECTED"
	EventUiSessionExpired       EventKind = "UI_SESSION_EXPIRED"
	EventUiSessionAlreadyExists EventKind = "UI_SESSION_ALREADY_INITIALIZED"
)

// Notice 校验器产出的推送意图，由执行器交给推送层
type Notice struct {
	Scope       Scope       `json:"scope"`
	Side        Side        `json:"side,omitempty"`
	UiSessionID string      `json:"ui_session_id,omitempty"`
	Kind        EventKind   `json:"kind"`
	Payload     interface{} `json:"payload,omitempty"`
}

// GameNotice 对局范围推送
func GameNotice(kind EventKind, payload interface{}) Notice {
	return Notice{Scope: ScopeGame, Kind: kind, Payload: payload}
}

// SideNotice 某一方推送
func SideNotice(side Side, kind EventKind, payload interface{}) Notice {
	return Notice{Scope: ScopeSide, Side: side, Kind: kind, Payload: payload}
}

// UiNotice 界面会话推送
func UiNotice(uiSessionID string, kind EventKind, payload interface{}) Notice {
	return Notice{Scope: ScopeUi, UiSessionID: uiSessionID, Kind: kind, Payload: payload}
}

// CreateOptions 创建对局参数
type CreateOptions struct {
	Side           Side `json:"side" binding:"omitempty,oneof=WHITE BLACK"`
	AllowJoin      bool `json:"allow_join"`
	AllowObservers bool `json:"allow_observers"`
}

// MoveRecord 已应用的走子
type MoveRecord struct {
	Seq        int       `json:"seq"`
	Side       Side      `json:"side"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Promotion  string    `json:"promotion,omitempty"`
	ActionID   string    `json:"action_id"`
	// PromotedBy 升变动作ID
	PromotedBy string    `json:"promoted_by,omitempty"`
	At         time.Time `json:"at"`
}
