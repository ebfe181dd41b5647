// Package sqlite SQLite方言实现
package sqlite

import (
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Dialect SQLite方言（对外导出）
type Dialect struct{}

// NewDialect 创建SQLite方言实例（对外导出）
func NewDialect() *Dialect {
	return &Dialect{}
}

// Name 返回方言名称
func (d *Dialect) Name() string {
	return "sqlite"
}

// DriverName 返回驱动名称
func (d *Dialect) DriverName() string {
	return "sqlite3"
}

// CreateTableSQL 基准DDL即SQLite风格，原样返回
func (d *Dialect) CreateTableSQL(schema string) string {
	return schema
}

// ConfigureDB 返回SQLite连接配置
// WAL模式允许读写并发，busy_timeout避免锁竞争直接报错
func (d *Dialect) ConfigureDB() []string {
	return []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
}

// InsertIgnoreSQL 返回INSERT OR IGNORE语句
func (d *Dialect) InsertIgnoreSQL(table string, columns []string, conflictColumns []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), placeholders)
}

// ForUpdate SQLite使用库级写锁，不支持也不需要行级锁子句
func (d *Dialect) ForUpdate() string {
	return ""
}
