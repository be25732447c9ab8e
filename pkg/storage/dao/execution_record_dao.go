package dao

import (
	"database/sql"
	"time"
)

// ExecutionRecordDAO execution_record表的数据访问对象（内部使用）
type ExecutionRecordDAO struct {
	ID           string         `db:"id"`
	WorkflowID   string         `db:"workflow_id"`
	Step         string         `db:"step"`
	Action       string         `db:"action"`
	Status       string         `db:"status"`
	InputJSON    sql.NullString `db:"input_json"`  // JSON格式存储
	OutputJSON   sql.NullString `db:"output_json"` // JSON格式存储
	ErrorMessage sql.NullString `db:"error_message"`
	DurationMs   int64          `db:"duration_ms"`
	CreatedAt    time.Time      `db:"created_at"`
}
