package repository

import (
	"context"
	"time"

	"github.com/wfunc/echechess/internal/errors"
)

// Record 对局状态记录的副本，调用方修改它不会影响仓储
type Record struct {
	ID        string    `json:"id"`
	State     []byte    `json:"state"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone 深拷贝
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.State = append([]byte(nil), r.State...)
	return &c
}

// GameRepository 对局状态仓储
//
// Add 为最后写入者胜出的覆盖写；Update 带期望版本，只有执行器使用它。
// 每次成功写入版本号加一，新记录版本为1。
type GameRepository interface {
	Add(ctx context.Context, id string, state []byte) (*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, id string, state []byte, expectedVersion int64) (*Record, error)
	Delete(ctx context.Context, id string) error
	GetAll(ctx context.Context) ([]*Record, error)
}

// checkID 校验对局ID
func checkID(id string) error {
	if id == "" {
		return errors.New(errors.ErrInvalidArgument, "对局ID不能为空")
	}
	return nil
}

// checkWrite 校验写入参数
func checkWrite(id string, state []byte) error {
	if err := checkID(id); err != nil {
		return err
	}
	if len(state) == 0 {
		return errors.New(errors.ErrInvalidArgument, "对局状态不能为空")
	}
	return nil
}

// notFound 对局不存在
func notFound(id string) error {
	return errors.Newf(errors.ErrNotFound, "对局 %s 不存在", id)
}

// versionConflict 期望版本与存储版本不一致
func versionConflict(id string, expected, actual int64) error {
	return errors.Newf(errors.ErrVersionConflict, "对局 %s 期望版本 %d，当前版本 %d", id, expected, actual)
}
