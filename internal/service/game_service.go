package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/game"
	"github.com/wfunc/echechess/internal/logger"
	"github.com/wfunc/echechess/internal/repository"
	"go.uber.org/zap"
)

// GameView 对局查询结果
type GameView struct {
	*game.State
	Version int64 `json:"version"`
}

// ActionRequest 玩家发起的动作
type ActionRequest struct {
	GameID      string
	UiSessionID string
	Kind        game.ActionKind
	Payload     interface{}
}

// GameService 对局业务入口：创建、查询和动作分发
type GameService struct {
	repo       repository.GameRepository
	dispatcher Dispatcher
	now        func() time.Time
	log        *zap.Logger
}

// NewGameService 创建对局服务
func NewGameService(repo repository.GameRepository, dispatcher Dispatcher) *GameService {
	return &GameService{
		repo:       repo,
		dispatcher: dispatcher,
		now:        time.Now,
		log:        logger.WithModule(logger.ModuleExecutor),
	}
}

// Create 创建对局，创建者入座
func (s *GameService) Create(ctx context.Context, player *Player, opts game.CreateOptions) (*GameView, error) {
	if player == nil {
		return nil, errors.New(errors.ErrSessionRequired)
	}

	st := game.NewState(uuid.NewString(), player.SessionID, opts, s.now().UTC())
	data, err := game.EncodeState(st)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.Add(ctx, st.ID, data)
	if err != nil {
		return nil, err
	}
	player.AddCreatedGame(st.ID)

	s.log.Info("对局创建",
		zap.String("game_id", st.ID),
		zap.String("session_id", player.SessionID),
		zap.Int64("version", rec.Version))
	return &GameView{State: st, Version: rec.Version}, nil
}

// Get 查询对局
func (s *GameService) Get(ctx context.Context, gameID string) (*GameView, error) {
	rec, err := s.repo.Get(ctx, gameID)
	if err != nil {
		return nil, err
	}
	st, err := game.DecodeState(rec.State)
	if err != nil {
		return nil, err
	}
	return &GameView{State: st, Version: rec.Version}, nil
}

// SideOf 会话在对局中的执棋方
func (s *GameService) SideOf(ctx context.Context, gameID, sessionID string) (game.Side, error) {
	view, err := s.Get(ctx, gameID)
	if err != nil {
		return "", err
	}
	return view.SideOf(sessionID), nil
}

// Act 以玩家身份发起动作
func (s *GameService) Act(ctx context.Context, player *Player, req ActionRequest) (*Outcome, error) {
	if player == nil {
		return nil, errors.New(errors.ErrSessionRequired)
	}

	side, err := s.SideOf(ctx, req.GameID, player.SessionID)
	if err != nil {
		return nil, err
	}

	msg, err := game.NewActionMessage(req.GameID, player.SessionID, req.UiSessionID, side, req.Kind, req.Payload)
	if err != nil {
		return nil, err
	}

	out, err := s.dispatcher.Dispatch(ctx, msg)
	if err != nil {
		return out, err
	}
	if req.Kind == game.ActionJoin && out.Accepted {
		player.AddJoinedGame(req.GameID)
	}
	return out, nil
}
