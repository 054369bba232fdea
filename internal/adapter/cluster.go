package adapter

import (
	"context"
	"time"

	"github.com/wfunc/echechess/internal/bus"
	"github.com/wfunc/echechess/internal/config"
	"github.com/wfunc/echechess/internal/database"
	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/game"
	"github.com/wfunc/echechess/internal/repository"
	"github.com/wfunc/echechess/internal/service"
	"gorm.io/gorm"
)

const migrateTimeout = 30 * time.Second

// NewCluster 集群模式：共享数据库保存对局和界面会话，动作与事件经总线传递。
// 启动时存储或总线连接失败直接返回错误
func NewCluster(cfg *config.Config, validator game.Validator) (*Runtime, error) {
	r := newRuntime(cfg)

	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	r.checks = append(r.checks, func(ctx context.Context) error {
		if !database.IsConnected(ctx, db) {
			return errors.New(errors.ErrRepositoryUnavailable, "共享存储不可达")
		}
		return nil
	})

	transport, err := openTransport(cfg)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.closers = append(r.closers, transport.Close)

	r.Repo = repository.NewSQLGameRepository(db)
	broadcaster := bus.NewBroadcaster(transport, cfg.Node.ID)
	r.Sessions = service.NewUiSessionService(repository.NewSQLLivenessStore(db), cfg.Session.UiTTL, broadcaster)

	executor := service.NewExecutor(r.Repo, validator, broadcaster)
	dispatcher := bus.NewClusterDispatcher(transport, r.Repo, cfg.Action.Timeout)
	r.Games = service.NewGameService(r.Repo, dispatcher)

	listener := bus.NewListener(transport, executor, cfg.Node.ID)
	events := bus.NewEventListener(transport, service.NewGatedSink(r.Hub, r.Sessions), dispatcher)
	r.starters = append(r.starters, events.Start, listener.Start)

	r.wireHub()
	return r, nil
}

// openStore 打开共享数据库并迁移
func openStore(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseConnect)
	}
	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
		defer cancel()
		if err := database.AutoMigrate(ctx, db); err != nil {
			return nil, errors.Wrap(err, errors.ErrDatabaseMigrate)
		}
	}
	return db, nil
}

// openTransport 连接总线，memory驱动只在本进程内传递
func openTransport(cfg *config.Config) (bus.Transport, error) {
	switch cfg.Bus.Driver {
	case config.BusDriverMemory:
		broker := bus.NewMemoryBroker(cfg.Bus.Partitions)
		return &brokerTransport{MemoryTransport: bus.NewMemoryTransport(broker), broker: broker}, nil
	default:
		return bus.DialAMQP(cfg.Bus, cfg.Node.ID)
	}
}

// brokerTransport 独占一个进程内代理，关闭时一并停止
type brokerTransport struct {
	*bus.MemoryTransport
	broker *bus.MemoryBroker
}

func (t *brokerTransport) Close() error {
	err := t.MemoryTransport.Close()
	t.broker.Close()
	return err
}
