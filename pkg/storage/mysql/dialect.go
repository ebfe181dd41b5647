// Package mysql MySQL方言实现
package mysql

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

// Dialect MySQL方言（对外导出）
type Dialect struct{}

// NewDialect 创建MySQL方言实例（对外导出）
func NewDialect() *Dialect {
	return &Dialect{}
}

// Name 返回方言名称
func (d *Dialect) Name() string {
	return "mysql"
}

// DriverName 返回驱动名称
func (d *Dialect) DriverName() string {
	return "mysql"
}

// CreateTableSQL 转换基准DDL为MySQL兼容格式
// MySQL的TEXT列不支持DEFAULT，改为可空
func (d *Dialect) CreateTableSQL(schema string) string {
	result := schema
	result = strings.ReplaceAll(result, "REAL", "DOUBLE")
	result = strings.ReplaceAll(result, "TEXT NOT NULL DEFAULT ''", "TEXT")
	// CREATE INDEX IF NOT EXISTS 在MySQL 8.0之前不可用，统一忽略重复索引错误
	return result
}

// ConfigureDB MySQL无需额外连接配置
func (d *Dialect) ConfigureDB() []string {
	return nil
}

// InsertIgnoreSQL 返回INSERT IGNORE语句
func (d *Dialect) InsertIgnoreSQL(table string, columns []string, conflictColumns []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), placeholders)
}

// ForUpdate 返回行级锁子句
func (d *Dialect) ForUpdate() string {
	return "FOR UPDATE"
}
