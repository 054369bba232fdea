package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/game"
	"github.com/wfunc/echechess/internal/repository"
	"github.com/wfunc/echechess/internal/websocket"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// UiSessionTestSuite 界面会话测试套件，内存和共享存储各跑一遍
type UiSessionTestSuite struct {
	suite.Suite
	newStore func(t *testing.T) repository.LivenessStore

	ctx   context.Context
	clock *fakeClock
	sink  *recordingSink
	svc   *UiSessionService
}

func (s *UiSessionTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = &fakeClock{now: time.Now().UTC()}
	s.sink = &recordingSink{}
	s.svc = NewUiSessionService(s.newStore(s.T()), 100*time.Second, s.sink)
	s.svc.SetClock(s.clock.Now)
}

func (s *UiSessionTestSuite) active(id string) bool {
	ok, err := s.svc.IsActive(s.ctx, id)
	s.Require().NoError(err)
	return ok
}

func (s *UiSessionTestSuite) TestLifecycle() {
	id, err := s.svc.CreateSession(s.ctx)
	s.Require().NoError(err)
	s.True(s.active(id))

	s.clock.Advance(60 * time.Second)
	refreshed, err := s.svc.Refresh(s.ctx, id)
	s.Require().NoError(err)
	s.True(refreshed)

	// 刷新后从新的时间点计算有效期
	s.clock.Advance(60 * time.Second)
	s.True(s.active(id))

	s.clock.Advance(41 * time.Second)
	s.False(s.active(id))
}

func (s *UiSessionTestSuite) TestRefreshUnknownNotError() {
	id := uuid.NewString()
	refreshed, err := s.svc.Refresh(s.ctx, id)
	s.NoError(err)
	s.False(refreshed)

	ev := s.sink.last()
	s.Require().NotNil(ev)
	s.Equal(game.EventUiSessionExpired, ev.Kind)
	s.Equal(id, ev.UiSessionID)
}

// 过期后刷新不会复活
func (s *UiSessionTestSuite) TestRefreshAfterExpiry() {
	id, err := s.svc.CreateSession(s.ctx)
	s.Require().NoError(err)

	s.clock.Advance(101 * time.Second)
	refreshed, err := s.svc.Refresh(s.ctx, id)
	s.NoError(err)
	s.False(refreshed)
	s.False(s.active(id))
}

func (s *UiSessionTestSuite) TestRefreshEmptyID() {
	_, err := s.svc.Refresh(s.ctx, "")
	s.True(errors.Is(err, errors.ErrInvalidArgument))
	s.False(s.active(""))
}

func (s *UiSessionTestSuite) TestOpenExisting() {
	id, err := s.svc.CreateSession(s.ctx)
	s.Require().NoError(err)

	got, existed, err := s.svc.OpenSession(s.ctx, id)
	s.Require().NoError(err)
	s.True(existed)
	s.Equal(id, got)
	s.Equal(game.EventUiSessionAlreadyExists, s.sink.last().Kind)

	// 过期的ID重新登记
	s.clock.Advance(101 * time.Second)
	got, existed, err = s.svc.OpenSession(s.ctx, id)
	s.Require().NoError(err)
	s.False(existed)
	s.True(s.active(got))

	_, _, err = s.svc.OpenSession(s.ctx, "not-a-uuid")
	s.True(errors.Is(err, errors.ErrInvalidArgument))
}

func (s *UiSessionTestSuite) TestSweep() {
	old, err := s.svc.CreateSession(s.ctx)
	s.Require().NoError(err)
	s.clock.Advance(80 * time.Second)
	fresh, err := s.svc.CreateSession(s.ctx)
	s.Require().NoError(err)

	s.clock.Advance(30 * time.Second)
	n, err := s.svc.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.False(s.active(old))
	s.True(s.active(fresh))
}

func (s *UiSessionTestSuite) TestGatedSink() {
	next := &recordingSink{}
	gated := NewGatedSink(next, s.svc)

	id, err := s.svc.CreateSession(s.ctx)
	s.Require().NoError(err)

	deliver := func(n game.Notice) {
		ev, err := websocket.NewEvent("g1", "a1", n)
		s.Require().NoError(err)
		s.Require().NoError(gated.Deliver(s.ctx, ev))
	}

	deliver(game.UiNotice(id, game.EventPlayerJoined, nil))
	s.Equal(game.EventPlayerJoined, next.last().Kind)

	// 对局范围不受界面会话限制
	deliver(game.GameNotice(game.EventMove, nil))
	s.Equal(game.EventMove, next.last().Kind)

	s.clock.Advance(101 * time.Second)
	deliver(game.UiNotice(id, game.EventTryJoinGame, nil))
	s.Equal(game.EventUiSessionExpired, next.last().Kind)
	s.Equal(id, next.last().UiSessionID)
	s.Len(next.kinds(), 3)
}

func TestUiSession_Memory(t *testing.T) {
	suite.Run(t, &UiSessionTestSuite{newStore: func(*testing.T) repository.LivenessStore {
		return repository.NewMemoryLivenessStore(100, time.Hour)
	}})
}

func TestUiSession_SQL(t *testing.T) {
	suite.Run(t, &UiSessionTestSuite{newStore: func(t *testing.T) repository.LivenessStore {
		return repository.NewSQLLivenessStore(repository.TestDB(t))
	}})
}
