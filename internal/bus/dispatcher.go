package bus

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/puzpuzpuz/xsync"
	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/game"
	"github.com/wfunc/echechess/internal/logger"
	"github.com/wfunc/echechess/internal/repository"
	"github.com/wfunc/echechess/internal/service"
	"go.uber.org/zap"
)

// pendingReadTimeout 调用方截止后读取仓储的时限
const pendingReadTimeout = 2 * time.Second

// ClusterDispatcher 把动作发布到总线，等待执行节点的回复
type ClusterDispatcher struct {
	transport Transport
	repo      repository.GameRepository
	timeout   time.Duration
	waiters   *xsync.MapOf[string, chan *Envelope]
	log       *zap.Logger
}

// NewClusterDispatcher 创建集群分发器
func NewClusterDispatcher(transport Transport, repo repository.GameRepository, timeout time.Duration) *ClusterDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ClusterDispatcher{
		transport: transport,
		repo:      repo,
		timeout:   timeout,
		waiters:   xsync.NewMapOf[chan *Envelope](),
		log:       logger.WithModule(logger.ModuleBus),
	}
}

// Dispatch 实现service.Dispatcher。等待超时后重新读取仓储，以当前版本报告为待定
func (d *ClusterDispatcher) Dispatch(ctx context.Context, msg *game.ActionMessage) (*service.Outcome, error) {
	body, err := msg.Encode()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrMessageFormat)
	}

	reply := make(chan *Envelope, 1)
	d.waiters.Store(msg.ID, reply)
	defer d.waiters.Delete(msg.ID)

	if err := d.transport.Publish(ctx, TopicActions, msg.GameID, body); err != nil {
		return nil, err
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case env := <-reply:
		return env.Outcome, env.Err()

	case <-timer.C:
		d.log.Warn("等待动作回复超时",
			zap.String("action_id", msg.ID),
			zap.String("game_id", msg.GameID))
		return d.pending(ctx, msg)

	case <-ctx.Done():
		if !stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrap(ctx.Err(), errors.ErrCanceled, "等待动作回复时取消")
		}
		d.log.Warn("调用方截止时间已到，动作仍在队列中",
			zap.String("action_id", msg.ID),
			zap.String("game_id", msg.GameID))
		// 调用方的上下文已过期，用独立的短超时读取仓储
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pendingReadTimeout)
		defer cancel()
		return d.pending(readCtx, msg)
	}
}

// pending 超时后不假定失败，报告仓储中的当前版本
func (d *ClusterDispatcher) pending(ctx context.Context, msg *game.ActionMessage) (*service.Outcome, error) {
	rec, err := d.repo.Get(ctx, msg.GameID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTimeout, "等待回复超时且无法读取对局")
	}
	return &service.Outcome{
		ActionID: msg.ID,
		GameID:   msg.GameID,
		Kind:     msg.Kind,
		Version:  rec.Version,
		Pending:  true,
	}, nil
}

// Resolve 把回复交给等待中的请求，本节点没有等待者时忽略
func (d *ClusterDispatcher) Resolve(env *Envelope) bool {
	if env.Outcome == nil {
		return false
	}
	reply, ok := d.waiters.Load(env.Outcome.ActionID)
	if !ok {
		return false
	}
	select {
	case reply <- env:
		return true
	default:
		// 重复投递的回复
		return false
	}
}

// Waiting 等待回复的请求数
func (d *ClusterDispatcher) Waiting() int {
	return d.waiters.Size()
}
