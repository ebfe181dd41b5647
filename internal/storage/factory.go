// Package storage 按数据库类型装配存储边界（内部使用）
package storage

import (
	"fmt"

	"github.com/LENAX/dagflow/pkg/storage"
	"github.com/LENAX/dagflow/pkg/storage/mysql"
	"github.com/LENAX/dagflow/pkg/storage/postgres"
	"github.com/LENAX/dagflow/pkg/storage/sqlite"
)

// Open 根据数据库类型创建Store（内部方法）
// dbType: sqlite/mysql/postgres
// dsn: 数据库连接字符串
func Open(dbType, dsn string) (*storage.Store, error) {
	switch dbType {
	case "sqlite", "sqlite3":
		return storage.Open(sqlite.NewDialect(), dsn)
	case "mysql":
		return storage.Open(mysql.NewDialect(), dsn)
	case "postgres", "postgresql":
		return storage.Open(postgres.NewDialect(), dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}
