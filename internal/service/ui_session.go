package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/game"
	"github.com/wfunc/echechess/internal/logger"
	"github.com/wfunc/echechess/internal/repository"
	"github.com/wfunc/echechess/internal/websocket"
	"go.uber.org/zap"
)

// UiSessionService 界面会话存活管理
//
// 会话在 now-lastSeen < ttl 时有效。检查时惰性淘汰，RunSweeper 定期清理。
type UiSessionService struct {
	store    repository.LivenessStore
	ttl      time.Duration
	notifier *websocket.Notifier
	now      func() time.Time
	log      *zap.Logger
}

// NewUiSessionService 创建界面会话服务，sink用于发送过期和重复初始化通知
func NewUiSessionService(store repository.LivenessStore, ttl time.Duration, sink websocket.Sink) *UiSessionService {
	s := &UiSessionService{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		log:   logger.WithModule(logger.ModuleSession),
	}
	if sink != nil {
		s.notifier = websocket.NewNotifier(sink)
	}
	return s
}

// SetClock 替换时钟
func (s *UiSessionService) SetClock(now func() time.Time) {
	s.now = now
}

// TTL 会话有效期
func (s *UiSessionService) TTL() time.Duration {
	return s.ttl
}

// CreateSession 创建新会话
func (s *UiSessionService) CreateSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if _, err := s.store.Create(ctx, id, s.now().UTC()); err != nil {
		return "", err
	}
	s.log.Debug("界面会话创建", zap.String("ui_session_id", id))
	return id, nil
}

// OpenSession 使用客户端已有的会话ID初始化。会话仍有效时不重建，
// 并向该会话推送已初始化通知
func (s *UiSessionService) OpenSession(ctx context.Context, id string) (string, bool, error) {
	if id == "" {
		id, err := s.CreateSession(ctx)
		return id, false, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", false, errors.New(errors.ErrInvalidArgument, "界面会话ID格式错误")
	}

	active, err := s.IsActive(ctx, id)
	if err != nil {
		return "", false, err
	}
	if active {
		s.notify(ctx, id, game.EventUiSessionAlreadyExists)
		return id, true, nil
	}

	if _, err := s.store.Create(ctx, id, s.now().UTC()); err != nil {
		return "", false, err
	}
	return id, false, nil
}

// Refresh 心跳刷新。未知或已过期的会话不算错误，改为推送过期通知
func (s *UiSessionService) Refresh(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.New(errors.ErrInvalidArgument, "界面会话ID不能为空")
	}

	active, err := s.IsActive(ctx, id)
	if err != nil {
		return false, err
	}
	if active {
		touched, err := s.store.Touch(ctx, id, s.now().UTC())
		if err != nil {
			return false, err
		}
		if touched {
			return true, nil
		}
	}

	s.log.Debug("刷新未知界面会话", zap.String("ui_session_id", id))
	s.notify(ctx, id, game.EventUiSessionExpired)
	return false, nil
}

// IsActive 会话存在且未超过有效期
func (s *UiSessionService) IsActive(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	lastSeen, ok, err := s.store.LastSeen(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	if s.now().Sub(lastSeen) < s.ttl {
		return true, nil
	}

	if err := s.store.Remove(ctx, id); err != nil {
		s.log.Warn("淘汰过期界面会话失败", zap.String("ui_session_id", id), zap.Error(err))
	}
	return false, nil
}

// Sweep 清理所有过期会话
func (s *UiSessionService) Sweep(ctx context.Context) (int, error) {
	return s.store.Sweep(ctx, s.now().UTC().Add(-s.ttl))
}

// RunSweeper 后台定期清理，ctx结束时退出
func (s *UiSessionService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.log.Warn("清理界面会话失败", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("清理过期界面会话", zap.Int("count", n))
			}
		}
	}
}

func (s *UiSessionService) notify(ctx context.Context, id string, kind game.EventKind) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyUi(ctx, id, kind, map[string]string{"ui_session_id": id}); err != nil {
		s.log.Warn("推送界面会话通知失败",
			zap.String("ui_session_id", id),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

// GatedSink 界面会话范围的事件只投递给仍有效的会话，失效时改发过期通知
type GatedSink struct {
	next     websocket.Sink
	sessions *UiSessionService
	log      *zap.Logger
}

// NewGatedSink 创建带存活检查的推送
func NewGatedSink(next websocket.Sink, sessions *UiSessionService) *GatedSink {
	return &GatedSink{
		next:     next,
		sessions: sessions,
		log:      logger.WithModule(logger.ModuleSession),
	}
}

// Deliver 实现websocket.Sink
func (g *GatedSink) Deliver(ctx context.Context, ev *websocket.Event) error {
	if ev.Scope != game.ScopeUi || ev.Kind == game.EventUiSessionExpired {
		return g.next.Deliver(ctx, ev)
	}

	active, err := g.sessions.IsActive(ctx, ev.UiSessionID)
	if err != nil {
		// 存活查询失败时照常投递
		g.log.Warn("查询界面会话失败", zap.String("ui_session_id", ev.UiSessionID), zap.Error(err))
		return g.next.Deliver(ctx, ev)
	}
	if active {
		return g.next.Deliver(ctx, ev)
	}

	g.log.Debug("界面会话已失效，事件改为过期通知",
		zap.String("ui_session_id", ev.UiSessionID),
		zap.String("kind", string(ev.Kind)))

	expired := *ev
	expired.ID = ev.ID + ":expired"
	expired.Kind = game.EventUiSessionExpired
	expired.Payload = nil
	return g.next.Deliver(ctx, &expired)
}
