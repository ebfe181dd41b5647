// Package postgres PostgreSQL方言实现
package postgres

import (
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

// Dialect PostgreSQL方言（对外导出）
type Dialect struct{}

// NewDialect 创建PostgreSQL方言实例（对外导出）
func NewDialect() *Dialect {
	return &Dialect{}
}

// Name 返回方言名称
func (d *Dialect) Name() string {
	return "postgres"
}

// DriverName 返回驱动名称
func (d *Dialect) DriverName() string {
	return "postgres"
}

// CreateTableSQL 转换基准DDL为PostgreSQL兼容格式
func (d *Dialect) CreateTableSQL(schema string) string {
	result := schema
	result = strings.ReplaceAll(result, "DATETIME", "TIMESTAMP")
	result = strings.ReplaceAll(result, "REAL", "DOUBLE PRECISION")
	return result
}

// ConfigureDB PostgreSQL无需额外连接配置
func (d *Dialect) ConfigureDB() []string {
	return nil
}

// InsertIgnoreSQL 返回ON CONFLICT DO NOTHING语句
func (d *Dialect) InsertIgnoreSQL(table string, columns []string, conflictColumns []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		table, strings.Join(columns, ", "), placeholders, strings.Join(conflictColumns, ", "))
}

// ForUpdate 返回行级锁子句
func (d *Dialect) ForUpdate() string {
	return "FOR UPDATE"
}
