// Package repotest 提供基于内存 SQLite 的测试数据库。
package repotest

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/lucci-xyz/bounty-sub003/internal/repository"
	"gorm.io/gorm"
)

// NewDB 创建已迁移的内存数据库，测试结束自动关闭
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), repository.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	// 内存库每个连接独立，限制为单连接保证所有协程看到同一份数据
	sqlDB.SetMaxOpenConns(1)

	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() { sqlDB.Close() })
	return db
}
