package game

import (
	"time"

	"github.com/wfunc/echechess/internal/errors"
)

// Status 对局状态
type Status string

const (
	StatusWaiting Status = "waiting" // 等待对手
	StatusPlaying Status = "playing" // 对局中
	StatusEnded   Status = "ended"   // 已结束
)

// validTransitions 合法的状态转换
var validTransitions = map[Status][]Status{
	StatusWaiting: {StatusPlaying, StatusEnded},
	StatusPlaying: {StatusEnded},
}

// CanTransition 是否允许从from转换到to
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// State 不含棋规的对局簿记：座位、观战者、轮次与走子历史
type State struct {
	ID             string       `json:"id"`
	Status         Status       `json:"status"`
	Creator        string       `json:"creator"`
	White          string       `json:"white,omitempty"`
	Black          string       `json:"black,omitempty"`
	Observers      []string     `json:"observers,omitempty"`
	AllowJoin      bool         `json:"allow_join"`
	AllowObservers bool         `json:"allow_observers"`
	Turn           Side         `json:"turn"`
	Moves          []MoveRecord `json:"moves,omitempty"`
	Winner         Side         `json:"winner,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// NewState 创建对局，创建者坐在指定一方
func NewState(id, creator string, opts CreateOptions, now time.Time) *State {
	side := opts.Side
	if !side.IsPlayer() {
		side = SideWhite
	}

	st := &State{
		ID:             id,
		Status:         StatusWaiting,
		Creator:        creator,
		AllowJoin:      opts.AllowJoin,
		AllowObservers: opts.AllowObservers,
		Turn:           SideWhite,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	st.seat(side, creator)
	return st
}

// SideOf 会话所在的一方，未参与返回空
func (s *State) SideOf(sessionID string) Side {
	switch {
	case sessionID == "":
		return ""
	case s.White == sessionID:
		return SideWhite
	case s.Black == sessionID:
		return SideBlack
	}
	for _, o := range s.Observers {
		if o == sessionID {
			return SideObserver
		}
	}
	return ""
}

// SeatOf 某一方座位上的会话
func (s *State) SeatOf(side Side) string {
	switch side {
	case SideWhite:
		return s.White
	case SideBlack:
		return s.Black
	default:
		return ""
	}
}

// FreeSide 空着的一方，白方优先
func (s *State) FreeSide() Side {
	switch {
	case s.White == "":
		return SideWhite
	case s.Black == "":
		return SideBlack
	default:
		return ""
	}
}

// LastMove 最后一步
func (s *State) LastMove() *MoveRecord {
	if len(s.Moves) == 0 {
		return nil
	}
	return &s.Moves[len(s.Moves)-1]
}

// MoveByAction 按动作ID查找已记录的走子或升变
func (s *State) MoveByAction(actionID string) *MoveRecord {
	if actionID == "" {
		return nil
	}
	for i := range s.Moves {
		if s.Moves[i].ActionID == actionID || s.Moves[i].PromotedBy == actionID {
			return &s.Moves[i]
		}
	}
	return nil
}

// seat 让会话坐到某一方
func (s *State) seat(side Side, sessionID string) {
	switch side {
	case SideWhite:
		s.White = sessionID
	case SideBlack:
		s.Black = sessionID
	}
}

// transition 状态转换
func (s *State) transition(to Status) error {
	if s.Status == to {
		return nil
	}
	if !CanTransition(s.Status, to) {
		return errors.Newf(errors.ErrGameState, "无法从 %s 转换到 %s", s.Status, to)
	}
	s.Status = to
	return nil
}
