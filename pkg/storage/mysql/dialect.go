package mysql

import (
	"errors"
	"fmt"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/LENAX/content-pipeline/pkg/storage"
)

// errDupKeyName MySQL重复索引错误码
const errDupKeyName = 1061

// MySQLDialect MySQL方言实现（对外导出）
type MySQLDialect struct{}

// NewMySQLDialect 创建MySQL方言实例
func NewMySQLDialect() *MySQLDialect {
	return &MySQLDialect{}
}

// Name 返回方言名称
func (d *MySQLDialect) Name() string {
	return "mysql"
}

// Placeholder 返回占位符（MySQL使用?）
func (d *MySQLDialect) Placeholder(index int) string {
	return "?"
}

// UpsertSQL 返回MySQL的UPSERT语句（使用ON DUPLICATE KEY UPDATE）
func (d *MySQLDialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}

	updateParts := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updateParts[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		tableName,
		strings.Join(columns, ", "),
		strings.Join(namedPlaceholders, ", "),
		strings.Join(updateParts, ", "),
	)
}

// CreateTableSQL 转换DDL为MySQL兼容格式
// MySQL不支持 CREATE INDEX IF NOT EXISTS，重复索引由 IsIgnorableSchemaError 兜底
func (d *MySQLDialect) CreateTableSQL(schema string) string {
	result := strings.ReplaceAll(schema, "CREATE INDEX IF NOT EXISTS", "CREATE INDEX")
	if strings.Contains(result, "CREATE TABLE") {
		result = strings.TrimSpace(result) + " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"
	}
	return result
}

// ConfigureDB 返回MySQL配置SQL
// 时间统一以UTC写入DATETIME列，不依赖会话时区
func (d *MySQLDialect) ConfigureDB() []string {
	return nil
}

// TextType 返回MySQL大文本类型
func (d *MySQLDialect) TextType() string {
	return "LONGTEXT"
}

// TimestampType 返回MySQL时间戳类型（微秒精度，保证记录顺序）
func (d *MySQLDialect) TimestampType() string {
	return "DATETIME(6)"
}

// IsIgnorableSchemaError 重复索引可忽略
func (d *MySQLDialect) IsIgnorableSchemaError(err error) bool {
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == errDupKeyName
	}
	return false
}

// 确保实现接口
var _ storage.Dialect = (*MySQLDialect)(nil)
