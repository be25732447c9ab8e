// Package sqlstore 基于 sqlx 的通用关系型存储，通过 storage.Dialect 适配 SQLite / MySQL / PostgreSQL
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/LENAX/content-pipeline/pkg/core/suspension"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
	"github.com/LENAX/content-pipeline/pkg/storage"
	"github.com/LENAX/content-pipeline/pkg/storage/dao"
)

const (
	snapshotTable = "workflow_snapshot"
	recordTable   = "execution_record"
)

var snapshotColumns = []string{
	"workflow_id", "user_id", "status", "step", "outcome", "state",
	"error_message", "version", "created_at", "updated_at",
}

// Store 快照与执行记录的关系型存储实现（对外导出）
type Store struct {
	db      *sqlx.DB
	dialect storage.Dialect
}

// New 基于已打开的连接创建Store，并初始化表结构
func New(db *sqlx.DB, dialect storage.Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return s, nil
}

// Open 打开数据库连接、执行方言配置并创建Store
func Open(driverName, dsn string, dialect storage.Dialect) (*Store, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	return OpenDB(db, dialect)
}

// OpenDB 对已有连接执行方言配置并创建Store
func OpenDB(db *sqlx.DB, dialect storage.Dialect) (*Store, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}
	for _, stmt := range dialect.ConfigureDB() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("配置%s失败: %w", dialect.Name(), err)
		}
	}
	s, err := New(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// GetDB 获取底层数据库连接（对外导出）
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Dialect 返回当前方言
func (s *Store) Dialect() storage.Dialect {
	return s.dialect
}

// Close 关闭数据库连接（对外导出）
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// schemaStatements 返回建表语句，每条单独执行
func (s *Store) schemaStatements() []string {
	text := s.dialect.TextType()
	ts := s.dialect.TimestampType()

	createSnapshotSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS workflow_snapshot (
		workflow_id VARCHAR(128) PRIMARY KEY,
		user_id VARCHAR(128) NOT NULL,
		status VARCHAR(32) NOT NULL,
		step VARCHAR(64) NOT NULL,
		outcome VARCHAR(64),
		state %s NOT NULL,
		error_message %s,
		version INTEGER NOT NULL DEFAULT 0,
		created_at %s NOT NULL,
		updated_at %s NOT NULL
	)`, text, text, ts, ts)

	createRecordSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS execution_record (
		id VARCHAR(64) PRIMARY KEY,
		workflow_id VARCHAR(128) NOT NULL,
		step VARCHAR(64) NOT NULL,
		action VARCHAR(128) NOT NULL,
		status VARCHAR(32) NOT NULL,
		input_json %s,
		output_json %s,
		error_message %s,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		created_at %s NOT NULL
	)`, text, text, text, ts)

	return []string{
		createSnapshotSQL,
		"CREATE INDEX IF NOT EXISTS idx_workflow_snapshot_status ON workflow_snapshot(status)",
		"CREATE INDEX IF NOT EXISTS idx_workflow_snapshot_updated_at ON workflow_snapshot(updated_at)",
		createRecordSQL,
		"CREATE INDEX IF NOT EXISTS idx_execution_record_workflow_id ON execution_record(workflow_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_execution_record_created_at ON execution_record(created_at)",
	}
}

// initSchema 初始化数据库表结构
func (s *Store) initSchema() error {
	for _, stmt := range s.schemaStatements() {
		if _, err := s.db.Exec(s.dialect.CreateTableSQL(stmt)); err != nil {
			if s.dialect.IsIgnorableSchemaError(err) {
				continue
			}
			return fmt.Errorf("执行SQL失败: %w", err)
		}
	}
	return nil
}

// ========== 快照相关操作 ==========

// Save 按 workflow_id 幂等写入快照，版本号在事务内递增
func (s *Store) Save(ctx context.Context, snap *suspension.Snapshot) error {
	if snap == nil || snap.State == nil {
		return fmt.Errorf("快照或状态为空")
	}
	if snap.WorkflowID == "" {
		return fmt.Errorf("workflow_id不能为空")
	}

	stateJSON, err := snap.State.Marshal()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	var existing struct {
		Version   int       `db:"version"`
		CreatedAt time.Time `db:"created_at"`
	}
	now := time.Now().UTC()
	createdAt := now
	version := 1
	query := s.db.Rebind(`SELECT version, created_at FROM workflow_snapshot WHERE workflow_id = ?`)
	switch err := tx.GetContext(ctx, &existing, query, snap.WorkflowID); {
	case err == nil:
		version = existing.Version + 1
		createdAt = existing.CreatedAt
	case errors.Is(err, sql.ErrNoRows):
	default:
		return fmt.Errorf("查询快照版本失败: %w", err)
	}

	row := &dao.SnapshotDAO{
		WorkflowID:   snap.WorkflowID,
		UserID:       snap.UserID,
		Status:       string(snap.Status),
		Step:         string(snap.Step),
		Outcome:      nullString(string(snap.Outcome)),
		State:        stateJSON,
		ErrorMessage: nullString(snap.Error),
		Version:      version,
		CreatedAt:    createdAt,
		UpdatedAt:    now,
	}

	upsert := s.dialect.UpsertSQL(snapshotTable, snapshotColumns, "workflow_id", snapshotColumns[1:])
	if _, err := tx.NamedExecContext(ctx, upsert, row); err != nil {
		return fmt.Errorf("保存快照失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	snap.Version = version
	snap.CreatedAt = createdAt
	snap.UpdatedAt = now
	return nil
}

// Claim 条件更新 suspended -> resumed，只有一个调用方能成功
func (s *Store) Claim(ctx context.Context, workflowID string) (*suspension.Snapshot, error) {
	query := s.db.Rebind(`
	UPDATE workflow_snapshot SET status = ?, version = version + 1, updated_at = ?
	WHERE workflow_id = ? AND status = ?`)
	res, err := s.db.ExecContext(ctx, query,
		string(suspension.StatusResumed), time.Now().UTC(), workflowID, string(suspension.StatusSuspended))
	if err != nil {
		return nil, fmt.Errorf("领取快照失败: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("获取影响行数失败: %w", err)
	}

	snap, err := s.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("工作流 %s 当前状态为 %s: %w", workflowID, snap.Status, workflow.ErrConflict)
	}
	return snap, nil
}

// Get 查询快照
func (s *Store) Get(ctx context.Context, workflowID string) (*suspension.Snapshot, error) {
	var row dao.SnapshotDAO
	query := s.db.Rebind(`SELECT * FROM workflow_snapshot WHERE workflow_id = ?`)
	if err := s.db.GetContext(ctx, &row, query, workflowID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("工作流 %s: %w", workflowID, workflow.ErrNotFound)
		}
		return nil, fmt.Errorf("查询快照失败: %w", err)
	}
	return snapshotFromDAO(&row)
}

// List 按条件分页查询快照
func (s *Store) List(ctx context.Context, filter suspension.ListFilter) ([]*suspension.Snapshot, int, error) {
	var conds []string
	var args []interface{}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	where := whereClause(conds)

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind("SELECT COUNT(*) FROM workflow_snapshot"+where), args...); err != nil {
		return nil, 0, fmt.Errorf("统计快照失败: %w", err)
	}

	query := s.db.Rebind("SELECT * FROM workflow_snapshot" + where + " ORDER BY updated_at DESC LIMIT ? OFFSET ?")
	var rows []dao.SnapshotDAO
	if err := s.db.SelectContext(ctx, &rows, query, append(args, filter.DefaultLimit(), offset(filter.Offset))...); err != nil {
		return nil, 0, fmt.Errorf("查询快照列表失败: %w", err)
	}

	snaps := make([]*suspension.Snapshot, 0, len(rows))
	for i := range rows {
		snap, err := snapshotFromDAO(&rows[i])
		if err != nil {
			return nil, 0, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, total, nil
}

func snapshotFromDAO(row *dao.SnapshotDAO) (*suspension.Snapshot, error) {
	state, err := workflow.UnmarshalState(row.State)
	if err != nil {
		return nil, fmt.Errorf("反序列化快照 %s 失败: %w", row.WorkflowID, err)
	}
	return &suspension.Snapshot{
		WorkflowID: row.WorkflowID,
		UserID:     row.UserID,
		Status:     suspension.Status(row.Status),
		Step:       workflow.Step(row.Step),
		Outcome:    workflow.OutcomeStatus(row.Outcome.String),
		State:      state,
		Error:      row.ErrorMessage.String,
		Version:    row.Version,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

// ========== 执行记录相关操作 ==========

// Append 追加一条执行记录
func (s *Store) Append(ctx context.Context, record *workflow.ExecutionRecord) error {
	if record == nil {
		return fmt.Errorf("执行记录为空")
	}
	row, err := recordToDAO(record)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO execution_record
	(id, workflow_id, step, action, status, input_json, output_json, error_message, duration_ms, created_at)
	VALUES (:id, :workflow_id, :step, :action, :status, :input_json, :output_json, :error_message, :duration_ms, :created_at)`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("保存执行记录失败: %w", err)
	}
	return nil
}

// GetByID 根据ID查询执行记录
func (s *Store) GetByID(ctx context.Context, id string) (*workflow.ExecutionRecord, error) {
	var row dao.ExecutionRecordDAO
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT * FROM execution_record WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("执行记录 %s: %w", id, workflow.ErrNotFound)
		}
		return nil, fmt.Errorf("查询执行记录失败: %w", err)
	}
	return recordFromDAO(&row)
}

// ListByWorkflow 查询某个工作流的全部记录，按时间正序
func (s *Store) ListByWorkflow(ctx context.Context, workflowID string) ([]*workflow.ExecutionRecord, error) {
	var rows []dao.ExecutionRecordDAO
	query := s.db.Rebind(`SELECT * FROM execution_record WHERE workflow_id = ? ORDER BY created_at ASC`)
	if err := s.db.SelectContext(ctx, &rows, query, workflowID); err != nil {
		return nil, fmt.Errorf("查询执行记录失败: %w", err)
	}
	return recordsFromDAO(rows)
}

// ListRecords 分页查询执行记录，按时间倒序
func (s *Store) ListRecords(ctx context.Context, filter storage.RecordFilter) ([]*workflow.ExecutionRecord, int, error) {
	var conds []string
	var args []interface{}
	if filter.WorkflowID != "" {
		conds = append(conds, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Step != "" {
		conds = append(conds, "step = ?")
		args = append(args, filter.Step)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	where := whereClause(conds)

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind("SELECT COUNT(*) FROM execution_record"+where), args...); err != nil {
		return nil, 0, fmt.Errorf("统计执行记录失败: %w", err)
	}

	query := s.db.Rebind("SELECT * FROM execution_record" + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?")
	var rows []dao.ExecutionRecordDAO
	if err := s.db.SelectContext(ctx, &rows, query, append(args, filter.DefaultLimit(), offset(filter.Offset))...); err != nil {
		return nil, 0, fmt.Errorf("查询执行记录失败: %w", err)
	}
	records, err := recordsFromDAO(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func recordToDAO(r *workflow.ExecutionRecord) (*dao.ExecutionRecordDAO, error) {
	input, err := marshalMap(r.Input)
	if err != nil {
		return nil, fmt.Errorf("序列化输入失败: %w", err)
	}
	output, err := marshalMap(r.Output)
	if err != nil {
		return nil, fmt.Errorf("序列化输出失败: %w", err)
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &dao.ExecutionRecordDAO{
		ID:           r.ID,
		WorkflowID:   r.WorkflowID,
		Step:         string(r.Step),
		Action:       r.Action,
		Status:       string(r.Status),
		InputJSON:    input,
		OutputJSON:   output,
		ErrorMessage: nullString(r.Error),
		DurationMs:   r.DurationMs,
		CreatedAt:    createdAt.UTC(),
	}, nil
}

func recordFromDAO(row *dao.ExecutionRecordDAO) (*workflow.ExecutionRecord, error) {
	input, err := unmarshalMap(row.InputJSON)
	if err != nil {
		return nil, fmt.Errorf("反序列化输入失败: %w", err)
	}
	output, err := unmarshalMap(row.OutputJSON)
	if err != nil {
		return nil, fmt.Errorf("反序列化输出失败: %w", err)
	}
	return &workflow.ExecutionRecord{
		ID:         row.ID,
		WorkflowID: row.WorkflowID,
		Step:       workflow.Step(row.Step),
		Action:     row.Action,
		Status:     workflow.RecordStatus(row.Status),
		Input:      input,
		Output:     output,
		Error:      row.ErrorMessage.String,
		DurationMs: row.DurationMs,
		CreatedAt:  row.CreatedAt,
	}, nil
}

func recordsFromDAO(rows []dao.ExecutionRecordDAO) ([]*workflow.ExecutionRecord, error) {
	records := make([]*workflow.ExecutionRecord, 0, len(rows))
	for i := range rows {
		r, err := recordFromDAO(&rows[i])
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func marshalMap(m map[string]interface{}) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalMap(s sql.NullString) (map[string]interface{}, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func offset(o int) int {
	if o < 0 {
		return 0
	}
	return o
}

// 确保实现接口
var (
	_ storage.SnapshotRepository        = (*Store)(nil)
	_ storage.ExecutionRecordRepository = (*Store)(nil)
)
