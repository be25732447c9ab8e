// Package sqlite 提供基于 mattn/go-sqlite3 的存储实现
package sqlite

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/LENAX/content-pipeline/pkg/storage/sqlstore"
)

// NewStore 基于已打开的SQLite连接创建Store（对外导出）
func NewStore(db *sqlx.DB) (*sqlstore.Store, error) {
	return sqlstore.New(db, NewSQLiteDialect())
}

// NewStoreFromDSN 通过DSN创建SQLite Store（对外导出）
// dsn 示例: ./data/pipeline.db 或 :memory:
func NewStoreFromDSN(dsn string) (*sqlstore.Store, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// SQLite只允许单写者；:memory: 下每个连接是独立的库
	db.SetMaxOpenConns(1)

	return sqlstore.OpenDB(db, NewSQLiteDialect())
}
