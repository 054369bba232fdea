package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wfunc/echechess/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 创建迁移好的内存SQLite数据库
func TestDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)

	// 内存库按连接隔离，限制为单连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.GameHandler{}, &models.UiSession{}))

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}
