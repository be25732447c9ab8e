package mysql

import (
	"errors"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestMySQLDialect_CreateTableSQL(t *testing.T) {
	d := NewMySQLDialect()

	table := d.CreateTableSQL("CREATE TABLE IF NOT EXISTS t (id VARCHAR(8) PRIMARY KEY)\n")
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS t (id VARCHAR(8) PRIMARY KEY) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4", table)

	index := d.CreateTableSQL("CREATE INDEX IF NOT EXISTS idx_t ON t(id)")
	assert.Equal(t, "CREATE INDEX idx_t ON t(id)", index)
}

func TestMySQLDialect_UpsertSQL(t *testing.T) {
	sql := NewMySQLDialect().UpsertSQL("t", []string{"id", "name", "version"}, "id", []string{"name", "version"})
	assert.Equal(t,
		"INSERT INTO t (id, name, version) VALUES (:id, :name, :version) ON DUPLICATE KEY UPDATE name = VALUES(name), version = VALUES(version)",
		sql)
}

func TestMySQLDialect_IgnorableSchemaError(t *testing.T) {
	d := NewMySQLDialect()
	assert.True(t, d.IsIgnorableSchemaError(&mysqldriver.MySQLError{Number: 1061, Message: "Duplicate key name"}))
	assert.False(t, d.IsIgnorableSchemaError(&mysqldriver.MySQLError{Number: 1050}))
	assert.False(t, d.IsIgnorableSchemaError(errors.New("boom")))
}

func TestWithParseTime(t *testing.T) {
	assert.Equal(t, "u:p@tcp(h:3306)/db?parseTime=true", withParseTime("u:p@tcp(h:3306)/db"))
	assert.Equal(t, "u:p@tcp(h:3306)/db?charset=utf8mb4&parseTime=true", withParseTime("u:p@tcp(h:3306)/db?charset=utf8mb4"))
	assert.Equal(t, "u:p@tcp(h:3306)/db?parseTime=true", withParseTime("u:p@tcp(h:3306)/db?parseTime=true"))
}
