package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/content-pipeline/pkg/core/suspension"
	"github.com/LENAX/content-pipeline/pkg/storage"
	"github.com/LENAX/content-pipeline/pkg/storage/sqlstore"
	"github.com/LENAX/content-pipeline/pkg/storage/storagetest"
)

// setupTestStore 创建临时文件数据库
func setupTestStore(t *testing.T) *sqlstore.Store {
	dsn := filepath.Join(t.TempDir(), "pipeline_test.db")
	store, err := NewStoreFromDSN(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_Snapshots(t *testing.T) {
	storagetest.RunSnapshotSuite(t, func(t *testing.T) suspension.Store {
		return setupTestStore(t)
	})
}

func TestSQLiteStore_Records(t *testing.T) {
	storagetest.RunRecordSuite(t, func(t *testing.T) storage.ExecutionRecordRepository {
		return setupTestStore(t)
	})
}

func TestSQLiteStore_InMemoryDSN(t *testing.T) {
	store, err := NewStoreFromDSN(":memory:")
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "sqlite", store.Dialect().Name())
}

// 重复初始化表结构不报错
func TestSQLiteStore_SchemaIsReentrant(t *testing.T) {
	store := setupTestStore(t)
	_, err := NewStore(store.GetDB())
	assert.NoError(t, err)
}

func TestSQLiteDialect_UpsertSQL(t *testing.T) {
	sql := NewSQLiteDialect().UpsertSQL("t", []string{"id", "name"}, "id", []string{"name"})
	assert.Equal(t, "INSERT OR REPLACE INTO t (id, name) VALUES (:id, :name)", sql)
}
