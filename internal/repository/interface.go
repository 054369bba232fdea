package repository

import (
	"context"
	stderrors "errors"

	"github.com/wfunc/echechess/internal/errors"
	"gorm.io/gorm"
)

// BaseRepo 基础仓储实现
type BaseRepo struct {
	db *gorm.DB
}

// NewBaseRepo 创建基础仓储
func NewBaseRepo(db *gorm.DB) *BaseRepo {
	return &BaseRepo{db: db}
}

// conn 绑定上下文的会话
func (r *BaseRepo) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// storeError 将存储层错误归类：上下文结束映射为超时/取消，其余为存储不可用
func storeError(ctx context.Context, err error, op string) error {
	if err == nil {
		return nil
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return errors.Wrap(err, errors.ErrTimeout, op)
	case stderrors.Is(err, context.Canceled) || stderrors.Is(ctx.Err(), context.Canceled):
		return errors.Wrap(err, errors.ErrCanceled, op)
	default:
		return errors.Wrap(err, errors.ErrRepositoryUnavailable, op)
	}
}
