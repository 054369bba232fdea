package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wfunc/echechess/internal/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	lockRetryInterval = 500 * time.Millisecond
	lockStaleAfter    = 5 * time.Minute
)

// acquireMigrationLock 以独占方式创建锁文件，直到成功或ctx结束
func acquireMigrationLock(ctx context.Context, dbPath string) (*os.File, error) {
	lockPath := dbPath + ".migration.lock"
	log := logger.WithModule(logger.ModuleDatabase)

	for attempt := 1; ; attempt++ {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
		if err == nil {
			log.Debug("获取迁移锁成功", zap.String("lock", lockPath))
			return lockFile, nil
		}

		// 持有者崩溃留下的锁
		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			log.Warn("迁移锁文件过期，删除后重试", zap.String("lock", lockPath))
			os.Remove(lockPath)
			continue
		}

		log.Debug("等待迁移锁", zap.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("等待迁移锁 %s: %w", lockPath, ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}
}

// releaseMigrationLock 释放迁移锁
func releaseMigrationLock(lockFile *os.File) {
	if lockFile == nil {
		return
	}
	lockPath := lockFile.Name()
	lockFile.Close()
	os.Remove(lockPath)
}

// sqliteFile 返回SQLite主库文件路径，内存库与其他方言返回空
func sqliteFile(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "sqlite", "sqlite3":
	default:
		return ""
	}

	sqlDB, err := db.DB()
	if err != nil {
		return ""
	}

	var (
		seq        int
		name, file string
	)
	if err := sqlDB.QueryRow("PRAGMA database_list").Scan(&seq, &name, &file); err != nil {
		return ""
	}
	return file
}
