package repository

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryGameRepository 进程内对局仓储，单节点模式使用，重启后丢失
type MemoryGameRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemoryGameRepository 创建内存对局仓储
func NewMemoryGameRepository() *MemoryGameRepository {
	return &MemoryGameRepository{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Add 覆盖写入
func (r *MemoryGameRepository) Add(ctx context.Context, id string, state []byte) (*Record, error) {
	if err := checkWrite(id, state); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var version int64 = 1
	if prev, ok := r.records[id]; ok {
		version = prev.Version + 1
	}
	rec := &Record{
		ID:        id,
		State:     append([]byte(nil), state...),
		Version:   version,
		UpdatedAt: r.now(),
	}
	r.records[id] = rec
	return rec.Clone(), nil
}

// Get 读取副本
func (r *MemoryGameRepository) Get(ctx context.Context, id string) (*Record, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, notFound(id)
	}
	return rec.Clone(), nil
}

// Update 比较版本后写入
func (r *MemoryGameRepository) Update(ctx context.Context, id string, state []byte, expectedVersion int64) (*Record, error) {
	if err := checkWrite(id, state); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.records[id]
	if !ok {
		return nil, notFound(id)
	}
	if prev.Version != expectedVersion {
		return nil, versionConflict(id, expectedVersion, prev.Version)
	}

	rec := &Record{
		ID:        id,
		State:     append([]byte(nil), state...),
		Version:   prev.Version + 1,
		UpdatedAt: r.now(),
	}
	r.records[id] = rec
	return rec.Clone(), nil
}

// Delete 删除记录，不存在时不报错
func (r *MemoryGameRepository) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.records, id)
	r.mu.Unlock()
	return nil
}

// GetAll 按ID排序返回全部副本
func (r *MemoryGameRepository) GetAll(ctx context.Context) ([]*Record, error) {
	r.mu.RLock()
	list := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		list = append(list, rec.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}
