package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/game"
)

// Event 推送事件，跨节点传递时原样序列化
type Event struct {
	ID          string          `json:"id"`
	Scope       game.Scope      `json:"scope"`
	GameID      string          `json:"game_id,omitempty"`
	Side        game.Side       `json:"side,omitempty"`
	UiSessionID string          `json:"ui_session_id,omitempty"`
	Kind        game.EventKind  `json:"kind"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ActionID    string          `json:"action_id,omitempty"`
	Timestamp   int64           `json:"timestamp"`
}

// NewEvent 由校验器的推送意图生成事件
func NewEvent(gameID, actionID string, n game.Notice) (*Event, error) {
	ev := &Event{
		ID:          uuid.NewString(),
		Scope:       n.Scope,
		GameID:      gameID,
		Side:        n.Side,
		UiSessionID: n.UiSessionID,
		Kind:        n.Kind,
		ActionID:    actionID,
		Timestamp:   time.Now().UnixMilli(),
	}
	if n.Payload != nil {
		raw, err := json.Marshal(n.Payload)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrMessageFormat, "序列化推送内容失败")
		}
		ev.Payload = raw
	}
	return ev, nil
}

// Encode 序列化
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent 反序列化
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, errors.Wrap(err, errors.ErrMessageFormat, "推送事件无法解析")
	}
	if ev.ID == "" || ev.Kind == "" {
		return nil, errors.New(errors.ErrMessageFormat, "推送事件缺少id或类型")
	}
	return &ev, nil
}

// Sink 事件的去处：本地Hub、总线广播或它们的包装
type Sink interface {
	Deliver(ctx context.Context, ev *Event) error
}

// SinkFunc 函数适配器
type SinkFunc func(ctx context.Context, ev *Event) error

// Deliver 实现Sink
func (f SinkFunc) Deliver(ctx context.Context, ev *Event) error {
	return f(ctx, ev)
}

// Notifier 按范围推送的便捷入口，尽力而为
type Notifier struct {
	sink Sink
}

// NewNotifier 创建推送入口
func NewNotifier(sink Sink) *Notifier {
	return &Notifier{sink: sink}
}

// NotifyGame 推送给对局内所有连接
func (n *Notifier) NotifyGame(ctx context.Context, gameID string, kind game.EventKind, payload interface{}) error {
	return n.notify(ctx, gameID, game.GameNotice(kind, payload))
}

// NotifySide 推送给对局中的某一方
func (n *Notifier) NotifySide(ctx context.Context, gameID string, side game.Side, kind game.EventKind, payload interface{}) error {
	return n.notify(ctx, gameID, game.SideNotice(side, kind, payload))
}

// NotifyUi 推送给某个界面会话
func (n *Notifier) NotifyUi(ctx context.Context, uiSessionID string, kind game.EventKind, payload interface{}) error {
	return n.notify(ctx, "", game.UiNotice(uiSessionID, kind, payload))
}

func (n *Notifier) notify(ctx context.Context, gameID string, notice game.Notice) error {
	ev, err := NewEvent(gameID, "", notice)
	if err != nil {
		return err
	}
	return n.sink.Deliver(ctx, ev)
}
