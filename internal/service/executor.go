package service

import (
	"context"
	"fmt"
	"time"

	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/game"
	"github.com/wfunc/echechess/internal/logger"
	"github.com/wfunc/echechess/internal/repository"
	"github.com/wfunc/echechess/internal/websocket"
	"go.uber.org/zap"
)

// Outcome 动作执行结果，集群模式下作为回复在总线上传递
type Outcome struct {
	ActionID string          `json:"action_id"`
	GameID   string          `json:"game_id"`
	Kind     game.ActionKind `json:"kind"`
	Accepted bool            `json:"accepted"`
	Reason   string          `json:"reason,omitempty"`
	Version  int64           `json:"version"`
	Pending  bool            `json:"pending,omitempty"` // 等待回复超时，结果未知
}

// Executor 动作执行器，对局状态的唯一写入方。
// 调用方保证同一对局同一时刻只有一个Apply在执行。
type Executor struct {
	repo      repository.GameRepository
	validator game.Validator
	sink      websocket.Sink
	log       *zap.Logger
}

// NewExecutor 创建执行器，validator为nil时拒绝所有动作
func NewExecutor(repo repository.GameRepository, validator game.Validator, sink websocket.Sink) *Executor {
	return &Executor{
		repo:      repo,
		validator: validator,
		sink:      sink,
		log:       logger.WithModule(logger.ModuleExecutor),
	}
}

// Apply 读取、校验、写回并推送
func (e *Executor) Apply(ctx context.Context, msg *game.ActionMessage) (*Outcome, error) {
	if msg == nil || msg.GameID == "" {
		return nil, errors.New(errors.ErrInvalidArgument, "动作缺少对局ID")
	}
	start := time.Now()

	rec, err := e.repo.Get(ctx, msg.GameID)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		ActionID: msg.ID,
		GameID:   msg.GameID,
		Kind:     msg.Kind,
		Version:  rec.Version,
	}

	verdict := e.validate(rec.State, msg)
	if verdict.Accepted && !verdict.Unchanged {
		updated, err := e.repo.Update(ctx, msg.GameID, verdict.State, rec.Version)
		if err != nil {
			// 基础设施错误原样返回，不推送
			e.log.Warn("写入对局状态失败",
				zap.String("game_id", msg.GameID),
				zap.String("action_id", msg.ID),
				zap.Int64("version", rec.Version),
				zap.Error(err))
			return nil, err
		}
		out.Version = updated.Version
	}
	out.Accepted = verdict.Accepted
	out.Reason = verdict.Reason

	notices := verdict.Notices
	if !verdict.Accepted {
		notices = append(notices, rejectionNotice(msg, verdict.Reason))
	}
	e.publish(ctx, msg, notices)

	logger.LogAction(msg.ID, msg.GameID, string(msg.Kind), out.Accepted, out.Version, time.Since(start))

	if !out.Accepted {
		return out, errors.New(errors.ErrValidationRejected, verdict.Reason)
	}
	return out, nil
}

// validate 调用校验器，校验器缺失或panic时视为拒绝
func (e *Executor) validate(state []byte, msg *game.ActionMessage) (verdict game.Verdict) {
	if e.validator == nil {
		return game.Reject("未配置走子校验器")
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("走子校验器异常",
				zap.String("game_id", msg.GameID),
				zap.String("action_id", msg.ID),
				zap.Any("panic", r))
			verdict = game.Reject(fmt.Sprintf("校验器异常: %v", r))
		}
	}()

	verdict = e.validator.Validate(append([]byte(nil), state...), msg)
	if verdict.Accepted && !verdict.Unchanged && len(verdict.State) == 0 {
		return game.Reject("校验器未返回新状态")
	}
	return verdict
}

// rejectionNotice 拒绝通知发给执棋方，观战者或未入座时发给其界面会话
func rejectionNotice(msg *game.ActionMessage, reason string) game.Notice {
	payload := game.RejectPayload{
		GameID:   msg.GameID,
		ActionID: msg.ID,
		Kind:     msg.Kind,
		Reason:   reason,
	}
	if !msg.ActingSide.IsPlayer() && msg.UiSessionID != "" {
		return game.UiNotice(msg.UiSessionID, game.EventActionRejected, payload)
	}
	return game.SideNotice(msg.ActingSide, game.EventActionRejected, payload)
}

// publish 尽力推送，失败只记录
func (e *Executor) publish(ctx context.Context, msg *game.ActionMessage, notices []game.Notice) {
	if e.sink == nil {
		return
	}
	for _, n := range notices {
		ev, err := websocket.NewEvent(msg.GameID, msg.ID, n)
		if err != nil {
			e.log.Warn("生成推送事件失败", zap.String("action_id", msg.ID), zap.Error(err))
			continue
		}
		if err := e.sink.Deliver(ctx, ev); err != nil {
			e.log.Warn("推送事件失败",
				zap.String("game_id", msg.GameID),
				zap.String("kind", string(n.Kind)),
				zap.Error(err))
		}
	}
}
