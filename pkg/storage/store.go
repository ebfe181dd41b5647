package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Store 存储边界的入口（对外导出）
// 持有数据库连接；事务内操作通过Transact回调中的TxStore执行
type Store struct {
	session
	db *sqlx.DB
}

// TxStore 绑定在单个事务上的存储视图（对外导出）
// 仅在Transact回调内有效；带行级锁的读取只在事务内提供
type TxStore struct {
	session
	tx *sqlx.Tx
}

// session 持有执行上下文（db或tx），查询方法统一定义在session上
type session struct {
	ext      sqlx.ExtContext
	dialect  Dialect
	bindType int
}

// rebind 将?占位符转换为驱动要求的形式
func (s *session) rebind(query string) string {
	return sqlx.Rebind(s.bindType, query)
}

// New 基于已建立的连接创建Store并初始化表结构（对外导出）
func New(db *sqlx.DB, dialect Dialect) (*Store, error) {
	store := &Store{
		session: session{
			ext:      db,
			dialect:  dialect,
			bindType: sqlx.BindType(dialect.DriverName()),
		},
		db: db,
	}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

// Open 通过DSN建立连接并创建Store（对外导出）
func Open(dialect Dialect, dsn string) (*Store, error) {
	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect.Name(), err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect.Name(), err)
	}

	for _, stmt := range dialect.ConfigureDB() {
		if _, err := db.Exec(stmt); err != nil {
			// 连接配置失败不阻断启动
			continue
		}
	}

	return New(db, dialect)
}

// DB 返回底层数据库连接（对外导出）
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close 关闭数据库连接（对外导出）
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// initSchema 初始化表结构
func (s *Store) initSchema() error {
	for _, schema := range schemas {
		ddl := s.dialect.CreateTableSQL(schema)
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("exec ddl: %w", err)
		}
	}
	return nil
}

// Transact 在单个事务内执行fn，fn返回错误或panic时整体回滚（对外导出）
// clear/状态变更的"归档->改TI->改DagRun"序列必须放在同一个事务里
func (s *Store) Transact(ctx context.Context, fn func(txs *TxStore) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	txs := &TxStore{
		session: session{
			ext:      tx,
			dialect:  s.dialect,
			bindType: s.bindType,
		},
		tx: tx,
	}

	if err := fn(txs); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
