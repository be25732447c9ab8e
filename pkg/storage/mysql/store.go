// Package mysql 提供基于 go-sql-driver/mysql 的存储实现
package mysql

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/LENAX/content-pipeline/pkg/storage/sqlstore"
)

// NewStoreFromDSN 通过DSN创建MySQL Store（对外导出）
// dsn格式: user:password@tcp(host:port)/dbname?parseTime=true
func NewStoreFromDSN(dsn string) (*sqlstore.Store, error) {
	db, err := sqlx.Open("mysql", withParseTime(dsn))
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	return sqlstore.OpenDB(db, NewMySQLDialect())
}

// withParseTime 确保DSN包含parseTime=true
func withParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=true") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}
