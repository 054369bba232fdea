package adapter

import (
	"context"
	"time"

	"github.com/wfunc/echechess/internal/config"
	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/game"
	"github.com/wfunc/echechess/internal/logger"
	"github.com/wfunc/echechess/internal/repository"
	"github.com/wfunc/echechess/internal/service"
	"github.com/wfunc/echechess/internal/websocket"
	"go.uber.org/zap"
)

// Runtime 一种部署模式下装配好的组件
//
// independent 模式：内存仓储、内存存活缓存、本地分发；
// dependent 模式：共享数据库、总线分发、节点监听器。
type Runtime struct {
	Mode     config.Mode
	NodeID   string
	Repo     repository.GameRepository
	Games    *service.GameService
	Sessions *service.UiSessionService
	Players  *service.Registry
	Hub      *websocket.Hub

	sweepInterval time.Duration
	starters      []func(ctx context.Context) error
	checks        []func(ctx context.Context) error
	closers       []func() error
	log           *zap.Logger
}

// New 按配置选择部署模式
func New(cfg *config.Config, validator game.Validator) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case config.ModeIndependent:
		return NewStandalone(cfg, validator), nil
	case config.ModeDependent:
		return NewCluster(cfg, validator)
	default:
		return nil, errors.Newf(errors.ErrStartupConfiguration, "未知的部署模式: %s", cfg.Mode)
	}
}

// newRuntime 两种模式共用的部分
func newRuntime(cfg *config.Config) *Runtime {
	return &Runtime{
		Mode:          cfg.Mode,
		NodeID:        cfg.Node.ID,
		Players:       service.NewRegistry(),
		Hub:           websocket.NewHub(cfg.WebSocket),
		sweepInterval: cfg.Session.SweepInterval,
		log:           logger.With(zap.String("node_id", cfg.Node.ID)),
	}
}

// wireHub 连接建立后的执棋方查询和心跳刷新
func (r *Runtime) wireHub() {
	r.Hub.SetSideResolver(r.Games)
	r.Hub.OnHeartbeat(func(ctx context.Context, uiSessionID string) {
		if _, err := r.Sessions.Refresh(ctx, uiSessionID); err != nil {
			r.log.Warn("心跳刷新失败", zap.String("ui_session_id", uiSessionID), zap.Error(err))
		}
	})
}

// Start 启动Hub、会话清理和总线监听
func (r *Runtime) Start(ctx context.Context) error {
	go r.Hub.Run(ctx)
	go r.Sessions.RunSweeper(ctx, r.sweepInterval)

	for _, start := range r.starters {
		if err := start(ctx); err != nil {
			return err
		}
	}
	r.log.Info("节点已启动", zap.String("mode", string(r.Mode)))
	return nil
}

// Health 检查共享存储等外部依赖
func (r *Runtime) Health(ctx context.Context) error {
	for _, check := range r.checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close 按创建的逆序释放资源
func (r *Runtime) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
