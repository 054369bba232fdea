package bus

import (
	"context"

	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/game"
	"github.com/wfunc/echechess/internal/logger"
	"github.com/wfunc/echechess/internal/service"
	"github.com/wfunc/echechess/internal/websocket"
	"go.uber.org/zap"
)

// Listener 节点的动作监听器：从分区队列取动作交给本地执行器，并发布回复
type Listener struct {
	transport Transport
	executor  *service.Executor
	nodeID    string
	locks     *service.KeyedMutex
	log       *zap.Logger
}

// NewListener 创建动作监听器
func NewListener(transport Transport, executor *service.Executor, nodeID string) *Listener {
	return &Listener{
		transport: transport,
		executor:  executor,
		nodeID:    nodeID,
		locks:     service.NewKeyedMutex(),
		log:       logger.WithModule(logger.ModuleBus),
	}
}

// Start 开始消费动作主题
func (l *Listener) Start(ctx context.Context) error {
	return l.transport.Subscribe(ctx, TopicActions, l.handle)
}

func (l *Listener) handle(ctx context.Context, body []byte) error {
	msg, err := game.DecodeActionMessage(body)
	if err != nil {
		// 无法解析的消息重投也无法处理
		l.log.Warn("丢弃无效动作", zap.Error(err))
		return nil
	}

	unlock := l.locks.Lock(msg.GameID)
	out, err := l.executor.Apply(ctx, msg)
	unlock()

	if shouldRequeue(err) {
		return err
	}

	env := &Envelope{Type: EnvelopeOutcome, NodeID: l.nodeID, Outcome: out}
	if env.Outcome == nil {
		env.Outcome = &service.Outcome{ActionID: msg.ID, GameID: msg.GameID, Kind: msg.Kind}
	}
	if err != nil {
		env.ErrorCode = errors.GetCode(err)
		env.Error = err.Error()
		if appErr, ok := err.(*errors.AppError); ok {
			env.Error = appErr.Details
		}
	}

	data, err := env.Encode()
	if err != nil {
		return err
	}
	if err := l.transport.Publish(ctx, TopicEvents, msg.GameID, data); err != nil {
		// 回复发不出去时重新入队，校验器会把已应用的动作识别为空操作
		l.log.Warn("发布动作回复失败", zap.String("action_id", msg.ID), zap.Error(err))
		return errors.Wrap(err, errors.ErrBusPublish)
	}
	return nil
}

// Broadcaster 把事件发布到事件主题，供执行器使用
type Broadcaster struct {
	transport Transport
	nodeID    string
}

// NewBroadcaster 创建事件广播
func NewBroadcaster(transport Transport, nodeID string) *Broadcaster {
	return &Broadcaster{transport: transport, nodeID: nodeID}
}

// Deliver 实现websocket.Sink
func (b *Broadcaster) Deliver(ctx context.Context, ev *websocket.Event) error {
	data, err := (&Envelope{Type: EnvelopeEvent, NodeID: b.nodeID, Event: ev}).Encode()
	if err != nil {
		return err
	}
	return b.transport.Publish(ctx, TopicEvents, ev.GameID, data)
}

// EventListener 节点的事件监听器：事件交给本地推送，回复交给分发器
type EventListener struct {
	transport  Transport
	sink       websocket.Sink
	dispatcher *ClusterDispatcher
	log        *zap.Logger
}

// NewEventListener 创建事件监听器
func NewEventListener(transport Transport, sink websocket.Sink, dispatcher *ClusterDispatcher) *EventListener {
	return &EventListener{
		transport:  transport,
		sink:       sink,
		dispatcher: dispatcher,
		log:        logger.WithModule(logger.ModuleBus),
	}
}

// Start 开始消费事件主题
func (e *EventListener) Start(ctx context.Context) error {
	return e.transport.Subscribe(ctx, TopicEvents, e.handle)
}

func (e *EventListener) handle(ctx context.Context, body []byte) error {
	env, err := DecodeEnvelope(body)
	if err != nil {
		e.log.Warn("丢弃无效事件", zap.Error(err))
		return nil
	}

	switch env.Type {
	case EnvelopeOutcome:
		if e.dispatcher != nil {
			e.dispatcher.Resolve(env)
		}
	case EnvelopeEvent:
		if err := e.sink.Deliver(ctx, env.Event); err != nil {
			e.log.Warn("本地推送失败",
				zap.String("event_id", env.Event.ID),
				zap.Error(err))
		}
	}
	return nil
}
