package storage

import (
	"fmt"

	"github.com/LENAX/content-pipeline/pkg/storage"
	"github.com/LENAX/content-pipeline/pkg/storage/memory"
	"github.com/LENAX/content-pipeline/pkg/storage/mysql"
	"github.com/LENAX/content-pipeline/pkg/storage/postgres"
	pkgsqlite "github.com/LENAX/content-pipeline/pkg/storage/sqlite"
	"github.com/LENAX/content-pipeline/pkg/storage/sqlstore"
)

// DatabaseFactory 数据库工厂接口（内部使用）
type DatabaseFactory interface {
	// Repositories 返回存储Repository集合
	Repositories() *Repositories
	// Close 关闭数据库连接
	Close() error
}

// Repositories 存储Repository集合（内部使用）
type Repositories struct {
	Snapshots storage.SnapshotRepository
	Records   storage.ExecutionRecordRepository
}

// NewDatabaseFactory 创建数据库工厂（内部方法）
// dbType: 数据库类型（sqlite/mysql/postgres/memory）
// dsn: 数据库连接字符串，memory 类型忽略
func NewDatabaseFactory(dbType, dsn string) (DatabaseFactory, error) {
	switch dbType {
	case "sqlite", "sqlite3":
		return newSQLFactory("sqlite", dsn, pkgsqlite.NewStoreFromDSN)
	case "mysql":
		return newSQLFactory("mysql", dsn, mysql.NewStoreFromDSN)
	case "postgres", "postgresql":
		return newSQLFactory("postgres", dsn, postgres.NewStoreFromDSN)
	case "memory", "":
		return newMemoryFactory(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// sqlFactory 关系型数据库工厂（内部实现）
// 同一个 Store 同时承担快照和执行记录
type sqlFactory struct {
	store *sqlstore.Store
}

func newSQLFactory(name, dsn string, open func(string) (*sqlstore.Store, error)) (*sqlFactory, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s dsn is required", name)
	}
	store, err := open(dsn)
	if err != nil {
		return nil, fmt.Errorf("create %s repository failed: %w", name, err)
	}
	return &sqlFactory{store: store}, nil
}

func (f *sqlFactory) Repositories() *Repositories {
	return &Repositories{Snapshots: f.store, Records: f.store}
}

func (f *sqlFactory) Close() error {
	return f.store.Close()
}

// memoryFactory 内存存储工厂（内部实现）
type memoryFactory struct {
	repos *Repositories
}

func newMemoryFactory() *memoryFactory {
	return &memoryFactory{repos: &Repositories{
		Snapshots: memory.NewSnapshotStore(),
		Records:   memory.NewExecutionLog(),
	}}
}

func (f *memoryFactory) Repositories() *Repositories {
	return f.repos
}

func (f *memoryFactory) Close() error {
	return nil
}
