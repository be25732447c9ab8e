package storage

// Dialect 数据库方言接口（对外导出）
// 屏蔽 SQLite / MySQL / PostgreSQL 之间的 DDL 与 UPSERT 差异
type Dialect interface {
	// Name 返回方言名称（如 "sqlite", "mysql", "postgres"）
	Name() string

	// Placeholder 返回指定位置的占位符
	// SQLite/MySQL: ? (忽略index)
	// PostgreSQL: $1, $2, ...
	Placeholder(index int) string

	// UpsertSQL 返回INSERT或UPDATE的SQL语句（使用 :name 命名参数）
	// tableName: 表名
	// columns: 列名列表
	// conflictColumn: 冲突判断列（通常是主键）
	// updateColumns: 需要更新的列（不含主键）
	UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string

	// CreateTableSQL 将通用DDL转换为本方言的DDL
	CreateTableSQL(schema string) string

	// ConfigureDB 配置数据库连接（如SQLite的PRAGMA）
	// 返回需要执行的SQL语句列表
	ConfigureDB() []string

	// TextType 返回大文本类型
	// SQLite/PostgreSQL: TEXT
	// MySQL: LONGTEXT
	TextType() string

	// TimestampType 返回时间戳类型
	// SQLite/MySQL: DATETIME
	// PostgreSQL: TIMESTAMP
	TimestampType() string

	// IsIgnorableSchemaError 建表/建索引时可忽略的错误（如MySQL重复索引）
	IsIgnorableSchemaError(err error) bool
}
