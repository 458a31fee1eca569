// Package testutil 提供测试用的内存 SQLite 数据库与数据构造函数
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"coursepay/internal/infrastructure/database"
	"coursepay/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq int64

// NewDB 每个测试独立的内存库。
// 只保留一个连接，SQLite 写锁下并发事务依次执行。
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, atomic.AddInt64(&dbSeq, 1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, balance int64) *model.User {
	t.Helper()
	seq := atomic.AddInt64(&dbSeq, 1)
	u := &model.User{
		Name:    fmt.Sprintf("user-%d", seq),
		Email:   fmt.Sprintf("user-%d@example.com", seq),
		Role:    model.RoleUser,
		Balance: balance,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func CreateAdmin(t *testing.T, db *gorm.DB) *model.User {
	t.Helper()
	u := CreateUser(t, db, 0)
	require.NoError(t, db.Model(u).Update("role", model.RoleAdmin).Error)
	u.Role = model.RoleAdmin
	return u
}

func CreateCourse(t *testing.T, db *gorm.DB, price int64) *model.Course {
	t.Helper()
	c := &model.Course{
		Title: fmt.Sprintf("course-%d", atomic.AddInt64(&dbSeq, 1)),
		Price: price,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

func Reload[T any](t *testing.T, db *gorm.DB, id int64) *T {
	t.Helper()
	var v T
	require.NoError(t, db.First(&v, id).Error)
	return &v
}
