// Package storage 提供TaskInstance/TaskInstanceHistory/DagRun的事务性持久化边界
package storage

// Dialect SQL方言接口（对外导出）
// 封装sqlite/mysql/postgres之间的SQL语法差异
type Dialect interface {
	// Name 返回方言名称（"sqlite"、"mysql"、"postgres"）
	Name() string

	// DriverName 返回database/sql驱动名称
	DriverName() string

	// CreateTableSQL 将基准DDL（SQLite风格）转换为该方言兼容的DDL
	CreateTableSQL(schema string) string

	// ConfigureDB 返回建立连接后需要执行的配置语句（如SQLite的PRAGMA）
	ConfigureDB() []string

	// InsertIgnoreSQL 返回遇到唯一约束冲突时静默跳过的INSERT语句
	// 用于归档记录的幂等写入：同一try_number重复归档必须是no-op
	// 占位符使用?，由调用方按驱动rebind
	InsertIgnoreSQL(table string, columns []string, conflictColumns []string) string

	// ForUpdate 返回行级锁子句（"FOR UPDATE"），不支持时返回空串
	// SQLite使用库级写锁，无需也不支持FOR UPDATE
	ForUpdate() string
}
