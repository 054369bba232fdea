package repository

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/wfunc/echechess/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LivenessStore 界面会话最后活跃时间的存储
type LivenessStore interface {
	// Create 登记新会话，已存在时返回false
	Create(ctx context.Context, id string, at time.Time) (bool, error)
	// Touch 刷新已有会话，未知会话返回false
	Touch(ctx context.Context, id string, at time.Time) (bool, error)
	// LastSeen 查询最后活跃时间
	LastSeen(ctx context.Context, id string) (time.Time, bool, error)
	// Remove 删除会话
	Remove(ctx context.Context, id string) error
	// Sweep 删除最后活跃早于cutoff的会话，返回删除数量
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryLivenessStore 节点内存存活缓存，容量有限，按TTL自动淘汰
type MemoryLivenessStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, time.Time]
}

// NewMemoryLivenessStore 创建内存存活缓存
func NewMemoryLivenessStore(capacity int, ttl time.Duration) *MemoryLivenessStore {
	return &MemoryLivenessStore{
		cache: expirable.NewLRU[string, time.Time](capacity, nil, ttl),
	}
}

func (s *MemoryLivenessStore) Create(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Contains(id) {
		return false, nil
	}
	s.cache.Add(id, at)
	return true, nil
}

func (s *MemoryLivenessStore) Touch(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cache.Contains(id) {
		return false, nil
	}
	s.cache.Add(id, at)
	return true, nil
}

func (s *MemoryLivenessStore) LastSeen(ctx context.Context, id string) (time.Time, bool, error) {
	at, ok := s.cache.Peek(id)
	return at, ok, nil
}

func (s *MemoryLivenessStore) Remove(ctx context.Context, id string) error {
	s.cache.Remove(id)
	return nil
}

func (s *MemoryLivenessStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, id := range s.cache.Keys() {
		if at, ok := s.cache.Peek(id); ok && at.Before(cutoff) {
			s.cache.Remove(id)
			removed++
		}
	}
	return removed, nil
}

// SQLLivenessStore 共享存储中的存活表，集群内所有节点看到同一份心跳
type SQLLivenessStore struct {
	*BaseRepo
}

// NewSQLLivenessStore 创建共享存活表
func NewSQLLivenessStore(db *gorm.DB) *SQLLivenessStore {
	return &SQLLivenessStore{BaseRepo: NewBaseRepo(db)}
}

func (s *SQLLivenessStore) Create(ctx context.Context, id string, at time.Time) (bool, error) {
	row := models.UiSession{ID: id, LastSeenAt: at.UTC()}
	res := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, storeError(ctx, res.Error, "登记界面会话")
	}
	return res.RowsAffected == 1, nil
}

func (s *SQLLivenessStore) Touch(ctx context.Context, id string, at time.Time) (bool, error) {
	res := s.conn(ctx).
		Model(&models.UiSession{}).
		Where("id = ?", id).
		Update("last_seen_at", at.UTC())
	if res.Error != nil {
		return false, storeError(ctx, res.Error, "刷新界面会话")
	}
	return res.RowsAffected > 0, nil
}

func (s *SQLLivenessStore) LastSeen(ctx context.Context, id string) (time.Time, bool, error) {
	var row models.UiSession
	err := s.conn(ctx).Where("id = ?", id).Take(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, storeError(ctx, err, "查询界面会话")
	}
	return row.LastSeenAt, true, nil
}

func (s *SQLLivenessStore) Remove(ctx context.Context, id string) error {
	err := s.conn(ctx).Where("id = ?", id).Delete(&models.UiSession{}).Error
	return storeError(ctx, err, "删除界面会话")
}

func (s *SQLLivenessStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	res := s.conn(ctx).Where("last_seen_at < ?", cutoff.UTC()).Delete(&models.UiSession{})
	if res.Error != nil {
		return 0, storeError(ctx, res.Error, "清理界面会话")
	}
	return int(res.RowsAffected), nil
}
