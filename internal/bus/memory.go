package bus

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/logger"
	"go.uber.org/zap"
)

// requeueDelay 重新入队后再次投递的间隔
const requeueDelay = 20 * time.Millisecond

// MemoryBroker 进程内的消息代理，多个节点共享一个实例即可模拟集群
type MemoryBroker struct {
	queues []*memoryQueue

	mu     sync.Mutex
	events map[int]*eventSub
	nextID int

	stop     chan struct{}
	stopOnce sync.Once
	log      *zap.Logger
}

// NewMemoryBroker 创建进程内代理
func NewMemoryBroker(partitions int) *MemoryBroker {
	if partitions <= 0 {
		partitions = 1
	}
	b := &MemoryBroker{
		queues: make([]*memoryQueue, partitions),
		events: make(map[int]*eventSub),
		stop:   make(chan struct{}),
		log:    logger.WithModule(logger.ModuleBus),
	}
	for i := range b.queues {
		q := &memoryQueue{signal: make(chan struct{}, 1)}
		b.queues[i] = q
		go b.runQueue(q)
	}
	return b
}

// Partitions 分区数
func (b *MemoryBroker) Partitions() int {
	return len(b.queues)
}

// Close 停止所有分区
func (b *MemoryBroker) Close() {
	b.stopOnce.Do(func() { close(b.stop) })
}

// memoryQueue 一个动作分区：先进先出，首个存活的消费者独占
type memoryQueue struct {
	mu        sync.Mutex
	pending   [][]byte
	consumers []*queueConsumer
	signal    chan struct{}
}

type queueConsumer struct {
	ctx     context.Context
	handler Handler
}

func (q *memoryQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// head 队首消息和当前活跃消费者
func (q *memoryQueue) head() ([]byte, *queueConsumer) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.consumers) > 0 && q.consumers[0].ctx.Err() != nil {
		q.consumers = q.consumers[1:]
	}
	if len(q.pending) == 0 || len(q.consumers) == 0 {
		return nil, nil
	}
	return q.pending[0], q.consumers[0]
}

func (q *memoryQueue) pop() {
	q.mu.Lock()
	q.pending = q.pending[1:]
	q.mu.Unlock()
}

func (b *MemoryBroker) runQueue(q *memoryQueue) {
	for {
		select {
		case <-b.stop:
			return
		case <-q.signal:
		}

		for {
			body, consumer := q.head()
			if consumer == nil {
				break
			}

			err := consumer.handler(consumer.ctx, body)
			if shouldRequeue(err) && consumer.ctx.Err() == nil {
				b.log.Debug("消息重新入队", zap.Error(err))
				select {
				case <-b.stop:
					return
				case <-time.After(requeueDelay):
				}
				continue
			}
			if consumer.ctx.Err() != nil && err != nil {
				// 消费者中途退出，消息留给下一个消费者
				continue
			}
			if err != nil {
				b.log.Warn("消息处理失败，已丢弃", zap.Error(err))
			}
			q.pop()
		}
	}
}

type eventSub struct {
	ctx     context.Context
	ch      chan []byte
	handler Handler
}

func (b *MemoryBroker) publish(ctx context.Context, topic Topic, key string, body []byte) error {
	select {
	case <-b.stop:
		return errors.New(errors.ErrBusUnavailable, "代理已关闭")
	default:
	}

	data := append([]byte(nil), body...)
	switch topic {
	case TopicActions:
		q := b.queues[Partition(key, len(b.queues))]
		q.mu.Lock()
		q.pending = append(q.pending, data)
		q.mu.Unlock()
		q.wake()
		return nil

	case TopicEvents:
		b.mu.Lock()
		subs := make([]*eventSub, 0, len(b.events))
		for _, s := range b.events {
			subs = append(subs, s)
		}
		b.mu.Unlock()

		for _, s := range subs {
			select {
			case s.ch <- data:
			case <-s.ctx.Done():
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), errors.ErrBusPublish)
			}
		}
		return nil

	default:
		return errors.Newf(errors.ErrInvalidArgument, "未知主题: %s", topic)
	}
}

func (b *MemoryBroker) subscribe(ctx context.Context, topic Topic, handler Handler) error {
	switch topic {
	case TopicActions:
		c := &queueConsumer{ctx: ctx, handler: handler}
		for _, q := range b.queues {
			q.mu.Lock()
			q.consumers = append(q.consumers, c)
			q.mu.Unlock()
			q.wake()
		}
		// 消费者退出后唤醒分区，让下一个消费者接手
		go func() {
			select {
			case <-ctx.Done():
			case <-b.stop:
				return
			}
			for _, q := range b.queues {
				q.wake()
			}
		}()
		return nil

	case TopicEvents:
		s := &eventSub{ctx: ctx, ch: make(chan []byte, 1024), handler: handler}
		b.mu.Lock()
		id := b.nextID
		b.nextID++
		b.events[id] = s
		b.mu.Unlock()

		go func() {
			defer func() {
				b.mu.Lock()
				delete(b.events, id)
				b.mu.Unlock()
			}()
			for {
				select {
				case <-ctx.Done():
					return
				case <-b.stop:
					return
				case body := <-s.ch:
					if err := handler(ctx, body); err != nil {
						b.log.Warn("事件处理失败", zap.Error(err))
					}
				}
			}
		}()
		return nil

	default:
		return errors.Newf(errors.ErrInvalidArgument, "未知主题: %s", topic)
	}
}

// MemoryTransport 一个节点对进程内代理的连接
type MemoryTransport struct {
	broker *MemoryBroker

	mu      sync.Mutex
	cancels []context.CancelFunc
	closed  bool
}

// NewMemoryTransport 连接到进程内代理
func NewMemoryTransport(broker *MemoryBroker) *MemoryTransport {
	return &MemoryTransport{broker: broker}
}

// Publish 实现Transport
func (t *MemoryTransport) Publish(ctx context.Context, topic Topic, key string, body []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return errors.New(errors.ErrBusUnavailable, "传输已关闭")
	}
	logger.LogBusMessage(string(topic), "publish", key, len(body))
	return t.broker.publish(ctx, topic, key, body)
}

// Subscribe 实现Transport
func (t *MemoryTransport) Subscribe(ctx context.Context, topic Topic, handler Handler) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New(errors.ErrBusUnavailable, "传输已关闭")
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancels = append(t.cancels, cancel)
	t.mu.Unlock()

	return t.broker.subscribe(ctx, topic, func(ctx context.Context, body []byte) error {
		logger.LogBusMessage(string(topic), "receive", "", len(body))
		return handler(ctx, body)
	})
}

// Close 停止本节点的所有订阅，代理本身不受影响
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for _, cancel := range t.cancels {
		cancel()
	}
	return nil
}
