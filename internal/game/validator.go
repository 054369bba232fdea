package game

import (
	"time"
)

// Verdict 校验结果
type Verdict struct {
	Accepted  bool
	State     []byte // 接受后的新状态
	Unchanged bool   // 接受但无需写入，例如重复投递的同一动作
	Reason    string // 拒绝原因
	Notices   []Notice
}

// Accept 接受并给出新状态
func Accept(state []byte, notices ...Notice) Verdict {
	return Verdict{Accepted: true, State: state, Notices: notices}
}

// NoOp 接受但状态已反映该动作
func NoOp(notices ...Notice) Verdict {
	return Verdict{Accepted: true, Unchanged: true, Notices: notices}
}

// Reject 拒绝
func Reject(reason string, notices ...Notice) Verdict {
	return Verdict{Reason: reason, Notices: notices}
}

// Validator 走子校验器：对状态和动作的纯函数，不产生副作用
type Validator interface {
	Validate(state []byte, msg *ActionMessage) Verdict
}

// ValidatorFunc 函数适配器
type ValidatorFunc func(state []byte, msg *ActionMessage) Verdict

// Validate 实现Validator
func (f ValidatorFunc) Validate(state []byte, msg *ActionMessage) Verdict {
	return f(state, msg)
}

// SidePayload 带执棋方的推送内容
type SidePayload struct {
	GameID string `json:"game_id"`
	Side   Side   `json:"side"`
}

// RejectPayload 拒绝推送内容
type RejectPayload struct {
	GameID   string     `json:"game_id"`
	ActionID string     `json:"action_id"`
	Kind     ActionKind `json:"kind"`
	Reason   string     `json:"reason"`
}

// Bookkeeper 不含棋规的校验器：管理座位、轮次与走子历史。
// 合法性交给外部规则引擎时，用同一接口替换即可。
type Bookkeeper struct {
	now func() time.Time
}

// NewBookkeeper 创建簿记校验器
func NewBookkeeper() *Bookkeeper {
	return &Bookkeeper{now: time.Now}
}

// Validate 实现Validator
func (b *Bookkeeper) Validate(state []byte, msg *ActionMessage) Verdict {
	st, err := DecodeState(state)
	if err != nil {
		return Reject("对局状态损坏")
	}
	if st.Status == StatusEnded {
		return Reject("对局已结束")
	}

	switch msg.Kind {
	case ActionMove:
		return b.move(st, msg)
	case ActionJoin:
		return b.join(st, msg)
	case ActionSetSide:
		return b.setSide(st, msg)
	case ActionPromote:
		return b.promote(st, msg)
	default:
		return Reject("不支持的动作: " + string(msg.Kind))
	}
}

func (b *Bookkeeper) move(st *State, msg *ActionMessage) Verdict {
	var p MovePayload
	if err := msg.DecodePayload(&p); err != nil {
		return Reject("走子参数无效")
	}

	side := st.SideOf(msg.SessionID)
	if !side.IsPlayer() {
		return Reject("观战者不能走子")
	}
	if msg.ActingSide != "" && msg.ActingSide != side {
		return Reject("执棋方不匹配")
	}

	// 重复投递：状态已包含这步棋
	if done := st.MoveByAction(msg.ID); done != nil && done.ActionID == msg.ID {
		return NoOp(GameNotice(EventMove, *done))
	}
	if last := st.LastMove(); last != nil && last.Side == side && st.Turn != side && last.From == p.From && last.To == p.To {
		return NoOp(GameNotice(EventMove, *last))
	}

	if st.Status != StatusPlaying {
		return Reject("对局尚未开始")
	}
	if st.Turn != side {
		return Reject("还没轮到你")
	}

	now := b.now().UTC()
	rec := MoveRecord{
		Seq:       len(st.Moves) + 1,
		Side:      side,
		From:      p.From,
		To:        p.To,
		Promotion: p.Promotion,
		ActionID:  msg.ID,
		At:        now,
	}
	st.Moves = append(st.Moves, rec)
	st.Turn = side.Opponent()
	st.UpdatedAt = now

	notices := []Notice{
		GameNotice(EventMove, rec),
		SideNotice(st.Turn, EventPlayerTurn, SidePayload{GameID: st.ID, Side: st.Turn}),
	}
	if p.Promotion != "" {
		notices = append(notices, GameNotice(EventPawnPromotion, rec))
	}
	return b.accept(st, notices...)
}

func (b *Bookkeeper) join(st *State, msg *ActionMessage) Verdict {
	if side := st.SideOf(msg.SessionID); side != "" {
		return NoOp(joinedNotices(st, msg, side)...)
	}

	switch free := st.FreeSide(); {
	case free != "" && st.AllowJoin:
		st.seat(free, msg.SessionID)
		notices := joinedNotices(st, msg, free)
		if st.FreeSide() == "" {
			if err := st.transition(StatusPlaying); err != nil {
				return Reject(err.Error())
			}
			notices = append(notices, SideNotice(st.Turn, EventPlayerTurn, SidePayload{GameID: st.ID, Side: st.Turn}))
		}
		st.UpdatedAt = b.now().UTC()
		return b.accept(st, notices...)

	case st.AllowObservers:
		st.Observers = append(st.Observers, msg.SessionID)
		st.UpdatedAt = b.now().UTC()
		return b.accept(st, joinedNotices(st, msg, SideObserver)...)

	default:
		reason := "对局不允许加入"
		if msg.UiSessionID == "" {
			return Reject(reason)
		}
		return Reject(reason, UiNotice(msg.UiSessionID, EventTryJoinGame, RejectPayload{
			GameID:   st.ID,
			ActionID: msg.ID,
			Kind:     msg.Kind,
			Reason:   reason,
		}))
	}
}

func (b *Bookkeeper) setSide(st *State, msg *ActionMessage) Verdict {
	var p SetSidePayload
	if err := msg.DecodePayload(&p); err != nil {
		return Reject("换边参数无效")
	}

	side := st.SideOf(msg.SessionID)
	if !side.IsPlayer() {
		return Reject("尚未入座")
	}
	if p.Side == side {
		return NoOp()
	}
	if st.Status != StatusWaiting {
		return Reject("对局已开始，不能换边")
	}
	if st.SeatOf(p.Side) != "" {
		return Reject("该方已有玩家")
	}

	st.seat(side, "")
	st.seat(p.Side, msg.SessionID)
	st.UpdatedAt = b.now().UTC()
	return b.accept(st, GameNotice(EventRefreshBoard, SidePayload{GameID: st.ID, Side: p.Side}))
}

func (b *Bookkeeper) promote(st *State, msg *ActionMessage) Verdict {
	var p PromotePayload
	if err := msg.DecodePayload(&p); err != nil {
		return Reject("升变参数无效")
	}

	if done := st.MoveByAction(msg.ID); done != nil && done.PromotedBy == msg.ID {
		return NoOp(GameNotice(EventPawnPromotion, *done))
	}

	side := st.SideOf(msg.SessionID)
	last := st.LastMove()
	if !side.IsPlayer() || last == nil || last.Side != side {
		return Reject("没有可升变的兵")
	}
	if last.Promotion == p.Piece {
		return NoOp(GameNotice(EventPawnPromotion, *last))
	}
	if last.Promotion != "" {
		return Reject("已经升变")
	}
	if !onLastRank(last.To, side) {
		return Reject("兵未到达底线")
	}

	last.Promotion = p.Piece
	last.PromotedBy = msg.ID
	st.UpdatedAt = b.now().UTC()
	return b.accept(st, GameNotice(EventPawnPromotion, *last))
}

func (b *Bookkeeper) accept(st *State, notices ...Notice) Verdict {
	data, err := EncodeState(st)
	if err != nil {
		return Reject("对局状态无法保存")
	}
	return Accept(data, notices...)
}

// joinedNotices 入座/观战成功的推送：对局广播，加上加入者的界面会话
func joinedNotices(st *State, msg *ActionMessage, side Side) []Notice {
	payload := SidePayload{GameID: st.ID, Side: side}
	notices := []Notice{GameNotice(EventPlayerJoined, payload)}
	if msg.UiSessionID != "" {
		notices = append(notices, UiNotice(msg.UiSessionID, EventPlayerJoined, payload))
	}
	return notices
}

// onLastRank 白方到第8行，黑方到第1行
func onLastRank(square string, side Side) bool {
	if len(square) != 2 {
		return false
	}
	switch side {
	case SideWhite:
		return square[1] == '8'
	case SideBlack:
		return square[1] == '1'
	default:
		return false
	}
}
