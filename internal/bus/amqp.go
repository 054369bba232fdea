package bus

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wfunc/echechess/internal/config"
	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/logger"
	"go.uber.org/zap"
)

// AMQPTransport RabbitMQ传输
//
// 动作交换机为direct类型，每个分区一个持久队列，开启single-active-consumer；
// 事件交换机为fanout类型，每个节点一个独占队列。连接断开后自动重连并恢复订阅。
type AMQPTransport struct {
	cfg    config.BusConfig
	nodeID string

	mu   sync.RWMutex
	conn *amqp.Connection
	pub  *amqp.Channel
	subs []*amqpSub

	pubMu     sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
	log       *zap.Logger
}

type amqpSub struct {
	ctx     context.Context
	topic   Topic
	handler Handler
}

// DialAMQP 连接RabbitMQ并声明拓扑，启动时连接失败直接返回错误
func DialAMQP(cfg config.BusConfig, nodeID string) (*AMQPTransport, error) {
	if cfg.Partitions <= 0 {
		cfg.Partitions = 1
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 2 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}

	t := &AMQPTransport{
		cfg:    cfg,
		nodeID: nodeID,
		closed: make(chan struct{}),
		log:    logger.WithModule(logger.ModuleBus),
	}
	if err := t.connect(); err != nil {
		return nil, err
	}
	go t.watch()
	return t, nil
}

// connect 建立连接、发布通道并声明拓扑
func (t *AMQPTransport) connect() error {
	conn, err := amqp.DialConfig(t.cfg.URL(), amqp.Config{
		Heartbeat:  10 * time.Second,
		Properties: amqp.Table{"connection_name": "echechess-" + t.nodeID},
	})
	if err != nil {
		return errors.Wrapf(err, errors.ErrBusUnavailable, "连接总线 %s 失败", t.cfg.Endpoint().Addr())
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return errors.Wrap(err, errors.ErrBusUnavailable, "打开通道失败")
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return errors.Wrap(err, errors.ErrBusUnavailable, "开启发布确认失败")
	}
	if err := t.declare(ch); err != nil {
		conn.Close()
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.pub = ch
	t.mu.Unlock()

	t.log.Info("总线已连接",
		zap.String("endpoint", t.cfg.Endpoint().Addr()),
		zap.Int("partitions", t.cfg.Partitions))
	return nil
}

// declare 声明交换机和分区队列
func (t *AMQPTransport) declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(t.cfg.ActionExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return errors.Wrap(err, errors.ErrBusSubscribe, "声明动作交换机失败")
	}
	if err := ch.ExchangeDeclare(t.cfg.EventExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return errors.Wrap(err, errors.ErrBusSubscribe, "声明事件交换机失败")
	}

	for i := 0; i < t.cfg.Partitions; i++ {
		name := t.partitionQueue(i)
		_, err := ch.QueueDeclare(name, true, false, false, false, amqp.Table{
			"x-single-active-consumer": true,
		})
		if err != nil {
			return errors.Wrapf(err, errors.ErrBusSubscribe, "声明队列 %s 失败", name)
		}
		if err := ch.QueueBind(name, strconv.Itoa(i), t.cfg.ActionExchange, false, nil); err != nil {
			return errors.Wrapf(err, errors.ErrBusSubscribe, "绑定队列 %s 失败", name)
		}
	}
	return nil
}

func (t *AMQPTransport) partitionQueue(i int) string {
	return fmt.Sprintf("%s.actions.%d", t.cfg.QueuePrefix, i)
}

// watch 连接断开后按间隔重连并恢复订阅
func (t *AMQPTransport) watch() {
	for {
		t.mu.RLock()
		conn := t.conn
		t.mu.RUnlock()

		notify := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-t.closed:
			return
		case amqpErr := <-notify:
			t.log.Warn("总线连接断开", zap.Any("reason", amqpErr))
		}

		for {
			select {
			case <-t.closed:
				return
			case <-time.After(t.cfg.ReconnectInterval):
			}
			if err := t.connect(); err != nil {
				t.log.Warn("总线重连失败", zap.Error(err))
				continue
			}
			break
		}

		t.mu.RLock()
		subs := append([]*amqpSub(nil), t.subs...)
		t.mu.RUnlock()
		for _, sub := range subs {
			if sub.ctx.Err() != nil {
				continue
			}
			if err := t.start(sub); err != nil {
				t.log.Error("恢复订阅失败", zap.String("topic", string(sub.topic)), zap.Error(err))
			}
		}
	}
}

// Publish 实现Transport，等待服务端确认
func (t *AMQPTransport) Publish(ctx context.Context, topic Topic, key string, body []byte) error {
	exchange, routingKey := t.cfg.EventExchange, ""
	if topic == TopicActions {
		exchange, routingKey = t.cfg.ActionExchange, strconv.Itoa(Partition(key, t.cfg.Partitions))
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.PublishTimeout)
	defer cancel()

	t.mu.RLock()
	ch := t.pub
	t.mu.RUnlock()
	if ch == nil || ch.IsClosed() {
		return errors.New(errors.ErrBusUnavailable, "总线未连接")
	}

	t.pubMu.Lock()
	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		AppId:        t.nodeID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	t.pubMu.Unlock()
	if err != nil {
		return errors.Wrap(err, errors.ErrBusPublish, "发布消息失败")
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrBusPublish, "等待发布确认失败")
	}
	if !acked {
		return errors.New(errors.ErrBusPublish, "服务端拒绝了消息")
	}

	logger.LogBusMessage(string(topic), "publish", key, len(body))
	return nil
}

// Subscribe 实现Transport
func (t *AMQPTransport) Subscribe(ctx context.Context, topic Topic, handler Handler) error {
	sub := &amqpSub{ctx: ctx, topic: topic, handler: handler}
	if err := t.start(sub); err != nil {
		return err
	}
	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()
	return nil
}

// start 在当前连接上开始消费
func (t *AMQPTransport) start(sub *amqpSub) error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()

	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, errors.ErrBusSubscribe, "打开消费通道失败")
	}
	prefetch := t.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return errors.Wrap(err, errors.ErrBusSubscribe, "设置预取失败")
	}

	var queues []string
	switch sub.topic {
	case TopicActions:
		for i := 0; i < t.cfg.Partitions; i++ {
			queues = append(queues, t.partitionQueue(i))
		}
	case TopicEvents:
		q, err := ch.QueueDeclare("", false, true, true, false, nil)
		if err != nil {
			ch.Close()
			return errors.Wrap(err, errors.ErrBusSubscribe, "声明事件队列失败")
		}
		if err := ch.QueueBind(q.Name, "", t.cfg.EventExchange, false, nil); err != nil {
			ch.Close()
			return errors.Wrap(err, errors.ErrBusSubscribe, "绑定事件队列失败")
		}
		queues = append(queues, q.Name)
	default:
		ch.Close()
		return errors.Newf(errors.ErrInvalidArgument, "未知主题: %s", sub.topic)
	}

	for _, queue := range queues {
		tag := fmt.Sprintf("%s-%s", t.nodeID, uuid.NewString()[:8])
		deliveries, err := ch.Consume(queue, tag, false, false, false, false, nil)
		if err != nil {
			ch.Close()
			return errors.Wrapf(err, errors.ErrBusSubscribe, "订阅队列 %s 失败", queue)
		}
		go t.consume(sub, queue, deliveries)
	}

	go func() {
		select {
		case <-sub.ctx.Done():
		case <-t.closed:
		}
		ch.Close()
	}()
	return nil
}

// consume 逐条处理，处理完成后确认
func (t *AMQPTransport) consume(sub *amqpSub, queue string, deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		logger.LogBusMessage(string(sub.topic), "receive", queue, len(d.Body))

		err := sub.handler(sub.ctx, d.Body)
		switch {
		case err == nil:
			d.Ack(false)
		case shouldRequeue(err):
			t.log.Warn("处理失败，重新入队",
				zap.String("queue", queue),
				zap.Bool("redelivered", d.Redelivered),
				zap.Error(err))
			d.Nack(false, true)
		default:
			t.log.Warn("处理失败，已丢弃", zap.String("queue", queue), zap.Error(err))
			d.Ack(false)
		}
	}
}

// Close 关闭连接
func (t *AMQPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.conn != nil {
			err = t.conn.Close()
		}
	})
	return err
}
