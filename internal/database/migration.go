package database

import (
	"context"
	"fmt"

	"github.com/wfunc/echechess/internal/logger"
	"github.com/wfunc/echechess/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models 需要迁移的表
func Models() []interface{} {
	return []interface{}{
		&models.GameHandler{},
		&models.UiSession{},
	}
}

// AutoMigrate 自动迁移表结构
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("数据库未初始化")
	}

	// 同一个SQLite文件可能被多个本地进程共享
	if path := sqliteFile(db); path != "" {
		lock, err := acquireMigrationLock(ctx, path)
		if err != nil {
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lock)
	}

	if err := db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("迁移表结构失败: %w", err)
	}

	logger.WithModule(logger.ModuleDatabase).Info("数据库迁移完成",
		zap.String("dialect", db.Dialector.Name()),
		zap.Int("tables", len(Models())),
	)
	return nil
}
