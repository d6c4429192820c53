// Package repository 数据库无关的业务逻辑存储层
//
// 通过 dbutil.Dialect 接口屏蔽不同数据库的 SQL 差异，
// 固定 SQL 以 PostgreSQL 风格编写，运行时由 Dialect.Rebind() 转换；
// 动态条件查询使用 squirrel 构造，占位符由 Dialect.Placeholder() 决定。
package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"summary-engine/internal/shared/storage"
	"summary-engine/internal/shared/storage/dbutil"
	pgdriver "summary-engine/internal/shared/storage/driver/postgres"
	sqlitedriver "summary-engine/internal/shared/storage/driver/sqlite"

	sq "github.com/Masterminds/squirrel"
)

// Store 通用存储实现
// 实现了 storage.PersistentStore 接口
type Store struct {
	db      *sql.DB
	dialect dbutil.Dialect
	clock   func() time.Time
}

var _ storage.PersistentStore = (*Store)(nil)

// NewStore 创建通用存储
func NewStore(db *sql.DB, dialect dbutil.Dialect) *Store {
	return &Store{db: db, dialect: dialect, clock: func() time.Time { return time.Now().UTC() }}
}

// Open 根据驱动类型和 DSN 创建存储（含自动建表）
func Open(driver dbutil.DriverType, dsn string) (*Store, error) {
	var (
		db      *sql.DB
		dialect dbutil.Dialect
		err     error
	)
	switch driver {
	case dbutil.DriverPostgres:
		db, err = pgdriver.Open(dsn)
		dialect = pgdriver.NewDialect()
	case dbutil.DriverSQLite:
		db, err = sqlitedriver.Open(dsn)
		dialect = sqlitedriver.NewDialect()
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := dialect.AutoMigrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s auto-migrate failed: %w", driver, err)
	}
	return NewStore(db, dialect), nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	return s.db.Close()
}

// DB 返回底层数据库连接（仅用于测试）
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect 返回当前方言
func (s *Store) Dialect() dbutil.Dialect {
	return s.dialect
}

// rebind 快捷方法：将 PG 风格 SQL 转换为当前方言
func (s *Store) rebind(query string) string {
	return s.dialect.Rebind(query)
}

// builder 按方言设置占位符的 squirrel 构造器
func (s *Store) builder() sq.StatementBuilderType {
	return dbutil.Builder(s.dialect)
}

// now 当前时间（UTC）
func (s *Store) now() time.Time {
	return s.clock()
}

// notFound 将 sql.ErrNoRows 转换为 storage.ErrNotFound
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

// affected 返回条件更新是否命中
func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// NullableJSON 用于安全扫描可能为 NULL 的 JSON 字段
// database/sql 无法直接将 NULL scan 到 json.RawMessage，需要通过 *[]byte 中间变量
type NullableJSON struct {
	Data *[]byte
}

// Value 返回 json.RawMessage（如果非 NULL）
func (n *NullableJSON) Value() json.RawMessage {
	if n.Data != nil {
		return json.RawMessage(*n.Data)
	}
	return nil
}
