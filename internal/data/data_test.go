package data

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestData 构造基于 sqlmock + miniredis 的 Data（不连接真实依赖）
func newTestData(t *testing.T) (*Data, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return &Data{db: gormDB, rdb: rdb}, mock, mr
}

// requireKeyEquals 断言 miniredis 中某 key 的当前值
func requireKeyEquals(t *testing.T, mr *miniredis.Miniredis, key, want string) {
	t.Helper()
	got, err := mr.Get(key)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

var subscriberColumns = []string{
	"subscriber_id", "user_id", "email", "tier", "unlimited_access",
	"audiobook_chars_used", "translation_chars_used", "overage_cents",
	"monthly_reset_at", "created_at", "updated_at",
}
