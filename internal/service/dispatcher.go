package service

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync"
	"github.com/wfunc/echechess/internal/game"
)

// Dispatcher 把动作送到执行器：单节点直接调用，集群经总线
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *game.ActionMessage) (*Outcome, error)
}

// LocalDispatcher 单节点分发，同一对局的动作串行执行
type LocalDispatcher struct {
	executor *Executor
	locks    *KeyedMutex
}

// NewLocalDispatcher 创建单节点分发器
func NewLocalDispatcher(executor *Executor) *LocalDispatcher {
	return &LocalDispatcher{
		executor: executor,
		locks:    NewKeyedMutex(),
	}
}

// Dispatch 实现Dispatcher
func (d *LocalDispatcher) Dispatch(ctx context.Context, msg *game.ActionMessage) (*Outcome, error) {
	unlock := d.locks.Lock(msg.GameID)
	defer unlock()
	return d.executor.Apply(ctx, msg)
}

// KeyedMutex 按键加锁，无人持有的键自动回收
type KeyedMutex struct {
	locks *xsync.MapOf[string, *refLock]
}

type refLock struct {
	mu sync.Mutex

	// gate 保护refs和dead
	gate sync.Mutex
	refs int
	dead bool
}

// NewKeyedMutex 创建按键互斥锁
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: xsync.NewMapOf[*refLock]()}
}

// Lock 锁住key，返回解锁函数
func (k *KeyedMutex) Lock(key string) func() {
	for {
		l, _ := k.locks.LoadOrStore(key, &refLock{})
		l.gate.Lock()
		if l.dead {
			// 已被回收，重新取
			l.gate.Unlock()
			continue
		}
		l.refs++
		l.gate.Unlock()

		l.mu.Lock()
		return func() { k.release(key, l) }
	}
}

func (k *KeyedMutex) release(key string, l *refLock) {
	l.mu.Unlock()

	l.gate.Lock()
	defer l.gate.Unlock()
	l.refs--
	if l.refs == 0 {
		l.dead = true
		k.locks.Delete(key)
	}
}

// Len 当前持有或等待中的键数
func (k *KeyedMutex) Len() int {
	return k.locks.Size()
}
