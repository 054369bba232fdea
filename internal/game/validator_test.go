package game

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

// BookkeeperTestSuite 簿记校验器测试
type BookkeeperTestSuite struct {
	suite.Suite
	v     *Bookkeeper
	state []byte
}

func (s *BookkeeperTestSuite) SetupTest() {
	s.v = NewBookkeeper()
	s.v.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }

	st := NewState("g1", "alice", CreateOptions{Side: SideWhite, AllowJoin: true, AllowObservers: true}, s.v.now())
	data, err := EncodeState(st)
	s.Require().NoError(err)
	s.state = data
}

func (s *BookkeeperTestSuite) action(session string, kind ActionKind, payload interface{}) *ActionMessage {
	msg := &ActionMessage{ID: uuid.NewString(), GameID: "g1", SessionID: session, UiSessionID: "ui-" + session, Kind: kind}
	if payload != nil {
		raw, err := json.Marshal(payload)
		s.Require().NoError(err)
		msg.Payload = raw
	}
	return msg
}

// apply 断言接受并推进状态
func (s *BookkeeperTestSuite) apply(msg *ActionMessage) Verdict {
	verdict := s.v.Validate(s.state, msg)
	s.Require().True(verdict.Accepted, verdict.Reason)
	if !verdict.Unchanged {
		s.state = verdict.State
	}
	return verdict
}

func (s *BookkeeperTestSuite) decode() *State {
	st, err := DecodeState(s.state)
	s.Require().NoError(err)
	return st
}

func kinds(notices []Notice) []EventKind {
	out := make([]EventKind, 0, len(notices))
	for _, n := range notices {
		out = append(out, n.Kind)
	}
	return out
}

func (s *BookkeeperTestSuite) TestJoinStartsGame() {
	verdict := s.apply(s.action("bob", ActionJoin, nil))

	st := s.decode()
	s.Equal(StatusPlaying, st.Status)
	s.Equal("bob", st.Black)
	s.Equal([]EventKind{EventPlayerJoined, EventPlayerJoined, EventPlayerTurn}, kinds(verdict.Notices))
	s.Equal(ScopeUi, verdict.Notices[1].Scope)
	s.Equal("ui-bob", verdict.Notices[1].UiSessionID)
	s.Equal(SideWhite, verdict.Notices[2].Side)
}

func (s *BookkeeperTestSuite) TestJoinTwiceIsNoOp() {
	s.apply(s.action("bob", ActionJoin, nil))
	verdict := s.apply(s.action("bob", ActionJoin, nil))
	s.True(verdict.Unchanged)
}

func (s *BookkeeperTestSuite) TestThirdSessionObserves() {
	s.apply(s.action("bob", ActionJoin, nil))
	s.apply(s.action("carol", ActionJoin, nil))
	s.Equal(SideObserver, s.decode().SideOf("carol"))
}

func (s *BookkeeperTestSuite) TestJoinRefusedSendsTryJoin() {
	st := NewState("g2", "alice", CreateOptions{}, time.Now())
	data, err := EncodeState(st)
	s.Require().NoError(err)

	verdict := s.v.Validate(data, s.action("bob", ActionJoin, nil))
	s.False(verdict.Accepted)
	s.Equal([]EventKind{EventTryJoinGame}, kinds(verdict.Notices))
}

func (s *BookkeeperTestSuite) TestMoveAlternatesTurns() {
	s.apply(s.action("bob", ActionJoin, nil))

	verdict := s.apply(s.action("alice", ActionMove, MovePayload{From: "e2", To: "e4"}))
	s.Equal([]EventKind{EventMove, EventPlayerTurn}, kinds(verdict.Notices))
	s.Equal(SideBlack, verdict.Notices[1].Side)

	// 白方不能连走
	rejected := s.v.Validate(s.state, s.action("alice", ActionMove, MovePayload{From: "d2", To: "d4"}))
	s.False(rejected.Accepted)

	s.apply(s.action("bob", ActionMove, MovePayload{From: "e7", To: "e5"}))
	st := s.decode()
	s.Len(st.Moves, 2)
	s.Equal(SideWhite, st.Turn)
}

func (s *BookkeeperTestSuite) TestMoveBeforeOpponentJoins() {
	verdict := s.v.Validate(s.state, s.action("alice", ActionMove, MovePayload{From: "e2", To: "e4"}))
	s.False(verdict.Accepted)
	s.Equal("对局尚未开始", verdict.Reason)
}

// 重复投递同一个动作不会走两次
func (s *BookkeeperTestSuite) TestRedeliveredMoveIsNoOp() {
	s.apply(s.action("bob", ActionJoin, nil))
	move := s.action("alice", ActionMove, MovePayload{From: "e2", To: "e4"})
	s.apply(move)

	again := s.apply(move)
	s.True(again.Unchanged)

	// 不同ID但内容相同的请求同样视为已应用
	same := s.apply(s.action("alice", ActionMove, MovePayload{From: "e2", To: "e4"}))
	s.True(same.Unchanged)
	s.Len(s.decode().Moves, 1)
}

// 对手应手之后再收到旧动作，仍然不会重复走子
func (s *BookkeeperTestSuite) TestStaleRedeliveryIsNoOp() {
	s.apply(s.action("bob", ActionJoin, nil))
	move := s.action("alice", ActionMove, MovePayload{From: "e2", To: "e4"})
	s.apply(move)
	s.apply(s.action("bob", ActionMove, MovePayload{From: "e7", To: "e5"}))

	again := s.apply(move)
	s.True(again.Unchanged)
	s.Equal([]EventKind{EventMove}, kinds(again.Notices))

	st := s.decode()
	s.Len(st.Moves, 2)
	s.Equal(SideWhite, st.Turn)
}

func (s *BookkeeperTestSuite) TestStalePromotionRedeliveryIsNoOp() {
	s.apply(s.action("bob", ActionJoin, nil))
	s.apply(s.action("alice", ActionMove, MovePayload{From: "a7", To: "a8"}))
	promote := s.action("alice", ActionPromote, PromotePayload{Piece: "QUEEN"})
	s.apply(promote)
	s.apply(s.action("bob", ActionMove, MovePayload{From: "e7", To: "e5"}))

	again := s.apply(promote)
	s.True(again.Unchanged)
	s.Equal([]EventKind{EventPawnPromotion}, kinds(again.Notices))
	s.Equal("QUEEN", s.decode().Moves[0].Promotion)
}

func (s *BookkeeperTestSuite) TestInvalidSquareRejected() {
	s.apply(s.action("bob", ActionJoin, nil))
	verdict := s.v.Validate(s.state, s.action("alice", ActionMove, MovePayload{From: "z9", To: "e4"}))
	s.False(verdict.Accepted)
}

func (s *BookkeeperTestSuite) TestObserverCannotMove() {
	s.apply(s.action("bob", ActionJoin, nil))
	s.apply(s.action("carol", ActionJoin, nil))
	verdict := s.v.Validate(s.state, s.action("carol", ActionMove, MovePayload{From: "e2", To: "e4"}))
	s.False(verdict.Accepted)
}

func (s *BookkeeperTestSuite) TestSetSideWhileWaiting() {
	verdict := s.apply(s.action("alice", ActionSetSide, SetSidePayload{Side: SideBlack}))
	s.Equal([]EventKind{EventRefreshBoard}, kinds(verdict.Notices))

	st := s.decode()
	s.Equal("alice", st.Black)
	s.Empty(st.White)

	// 开局后不能换边
	s.apply(s.action("bob", ActionJoin, nil))
	rejected := s.v.Validate(s.state, s.action("alice", ActionSetSide, SetSidePayload{Side: SideWhite}))
	s.False(rejected.Accepted)
}

func (s *BookkeeperTestSuite) TestPromotion() {
	s.apply(s.action("bob", ActionJoin, nil))
	s.apply(s.action("alice", ActionMove, MovePayload{From: "a7", To: "a8"}))

	verdict := s.apply(s.action("alice", ActionPromote, PromotePayload{Piece: "QUEEN"}))
	s.Equal([]EventKind{EventPawnPromotion}, kinds(verdict.Notices))
	s.Equal("QUEEN", s.decode().LastMove().Promotion)

	again := s.apply(s.action("alice", ActionPromote, PromotePayload{Piece: "QUEEN"}))
	s.True(again.Unchanged)

	other := s.v.Validate(s.state, s.action("alice", ActionPromote, PromotePayload{Piece: "ROOK"}))
	s.False(other.Accepted)
}

func (s *BookkeeperTestSuite) TestPromotionNeedsLastRank() {
	s.apply(s.action("bob", ActionJoin, nil))
	s.apply(s.action("alice", ActionMove, MovePayload{From: "e2", To: "e4"}))
	verdict := s.v.Validate(s.state, s.action("alice", ActionPromote, PromotePayload{Piece: "QUEEN"}))
	s.False(verdict.Accepted)
}

func (s *BookkeeperTestSuite) TestCorruptState() {
	verdict := s.v.Validate([]byte("{"), s.action("alice", ActionJoin, nil))
	s.False(verdict.Accepted)
}

func TestBookkeeperSuite(t *testing.T) {
	suite.Run(t, new(BookkeeperTestSuite))
}
