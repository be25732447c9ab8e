package dao

import (
	"database/sql"
	"time"
)

// SnapshotDAO workflow_snapshot表的数据访问对象（内部使用）
type SnapshotDAO struct {
	WorkflowID   string         `db:"workflow_id"`
	UserID       string         `db:"user_id"`
	Status       string         `db:"status"`
	Step         string         `db:"step"`
	Outcome      sql.NullString `db:"outcome"`
	State        string         `db:"state"` // JSON格式存储
	ErrorMessage sql.NullString `db:"error_message"`
	Version      int            `db:"version"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}
