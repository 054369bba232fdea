package repository

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/logger"
	"github.com/wfunc/echechess/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 覆盖写在并发插入/更新时的最大重试次数
const maxAddAttempts = 5

// SQLGameRepository 共享存储对局仓储，所有节点可见
type SQLGameRepository struct {
	*BaseRepo
	log *zap.Logger
}

// NewSQLGameRepository 创建共享存储对局仓储
func NewSQLGameRepository(db *gorm.DB) *SQLGameRepository {
	return &SQLGameRepository{
		BaseRepo: NewBaseRepo(db),
		log:      logger.WithModule(logger.ModuleRepository),
	}
}

// Add 覆盖写入：不存在则插入版本1，存在则在当前版本上加一
func (r *SQLGameRepository) Add(ctx context.Context, id string, state []byte) (*Record, error) {
	if err := checkWrite(id, state); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxAddAttempts; attempt++ {
		current, err := r.load(ctx, id)
		switch {
		case errors.Is(err, errors.ErrNotFound):
			row := models.GameHandler{ID: id, State: state, Version: 1}
			res := r.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if res.Error != nil {
				return nil, storeError(ctx, res.Error, "插入对局")
			}
			if res.RowsAffected == 1 {
				return toRecord(&row), nil
			}
		case err != nil:
			return nil, err
		default:
			rec, ok, err := r.compareAndSet(ctx, id, state, current.Version)
			if err != nil {
				return nil, err
			}
			if ok {
				return rec, nil
			}
		}

		r.log.Debug("覆盖写遇到并发写入，重试",
			zap.String("game_id", id),
			zap.Int("attempt", attempt))
	}

	return nil, errors.Newf(errors.ErrVersionConflict, "对局 %s 并发写入过多", id)
}

// Get 读取记录
func (r *SQLGameRepository) Get(ctx context.Context, id string) (*Record, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	row, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return toRecord(row), nil
}

// Update 条件更新：仅当存储版本等于期望版本时写入
func (r *SQLGameRepository) Update(ctx context.Context, id string, state []byte, expectedVersion int64) (*Record, error) {
	if err := checkWrite(id, state); err != nil {
		return nil, err
	}

	rec, ok, err := r.compareAndSet(ctx, id, state, expectedVersion)
	if err != nil {
		return nil, err
	}
	if ok {
		return rec, nil
	}

	// 未命中：区分不存在与版本冲突
	current, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, versionConflict(id, expectedVersion, current.Version)
}

// Delete 删除记录，不存在时不报错
func (r *SQLGameRepository) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	res := r.conn(ctx).Where("id = ?", id).Delete(&models.GameHandler{})
	return storeError(ctx, res.Error, "删除对局")
}

// GetAll 按ID排序返回全部记录
func (r *SQLGameRepository) GetAll(ctx context.Context) ([]*Record, error) {
	var rows []models.GameHandler
	if err := r.conn(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, storeError(ctx, err, "查询全部对局")
	}

	list := make([]*Record, 0, len(rows))
	for i := range rows {
		list = append(list, toRecord(&rows[i]))
	}
	return list, nil
}

// load 读取一行，不存在返回NotFound
func (r *SQLGameRepository) load(ctx context.Context, id string) (*models.GameHandler, error) {
	var row models.GameHandler
	err := r.conn(ctx).Where("id = ?", id).Take(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, storeError(ctx, err, "读取对局")
	}
	return &row, nil
}

// compareAndSet 版本匹配时写入并返回新记录，未命中时ok为false
func (r *SQLGameRepository) compareAndSet(ctx context.Context, id string, state []byte, expected int64) (*Record, bool, error) {
	now := time.Now().UTC()
	res := r.conn(ctx).
		Model(&models.GameHandler{}).
		Where("id = ? AND version = ?", id, expected).
		Updates(map[string]interface{}{
			"state":      state,
			"version":    expected + 1,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, false, storeError(ctx, res.Error, "更新对局")
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	return &Record{
		ID:        id,
		State:     append([]byte(nil), state...),
		Version:   expected + 1,
		UpdatedAt: now,
	}, true, nil
}

// toRecord 行转记录
func toRecord(row *models.GameHandler) *Record {
	return &Record{
		ID:        row.ID,
		State:     append([]byte(nil), row.State...),
		Version:   row.Version,
		UpdatedAt: row.UpdatedAt,
	}
}
