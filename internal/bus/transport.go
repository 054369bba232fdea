package bus

import (
	"context"
	"hash/fnv"

	"github.com/wfunc/echechess/internal/errors"
)

// Topic 总线主题
type Topic string

const (
	// TopicActions 动作请求，按对局ID分区，每个分区同一时刻只有一个消费者
	TopicActions Topic = "actions"
	// TopicEvents 推送事件和执行回复，广播到每个节点
	TopicEvents Topic = "events"
)

// Handler 处理一条消息。返回可重试错误时消息重新入队，其他错误丢弃
type Handler func(ctx context.Context, body []byte) error

// Transport 至少一次投递的发布订阅传输
type Transport interface {
	// Publish 发布消息，key决定动作所在分区
	Publish(ctx context.Context, topic Topic, key string, body []byte) error
	// Subscribe 注册消费者后立即返回，ctx结束时停止消费
	Subscribe(ctx context.Context, topic Topic, handler Handler) error
	Close() error
}

// Partition FNV-1a 哈希取模
func Partition(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

// shouldRequeue 基础设施类错误重新入队
func shouldRequeue(err error) bool {
	return err != nil && errors.IsRetryable(err)
}
