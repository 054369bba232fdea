package adapter

import (
	"github.com/wfunc/echechess/internal/config"
	"github.com/wfunc/echechess/internal/game"
	"github.com/wfunc/echechess/internal/repository"
	"github.com/wfunc/echechess/internal/service"
)

// NewStandalone 单节点模式，所有状态在进程内
func NewStandalone(cfg *config.Config, validator game.Validator) *Runtime {
	r := newRuntime(cfg)

	capacity := cfg.Session.UiCapacity
	if capacity <= 0 {
		capacity = 1000
	}
	store := repository.NewMemoryLivenessStore(capacity, cfg.Session.UiTTL)

	r.Repo = repository.NewMemoryGameRepository()
	r.Sessions = service.NewUiSessionService(store, cfg.Session.UiTTL, r.Hub)
	executor := service.NewExecutor(r.Repo, validator, service.NewGatedSink(r.Hub, r.Sessions))
	r.Games = service.NewGameService(r.Repo, service.NewLocalDispatcher(executor))

	r.wireHub()
	return r
}
