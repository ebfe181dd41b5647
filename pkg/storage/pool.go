package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/LENAX/dagflow/pkg/core/instance"
)

// UpsertPool 创建或更新资源池（对外导出）
func (s *session) UpsertPool(ctx context.Context, pool *instance.Pool) error {
	result, err := s.ext.ExecContext(ctx,
		s.rebind(`UPDATE slot_pool SET slots = ? WHERE name = ?`), pool.Slots, pool.Name)
	if err != nil {
		return fmt.Errorf("update pool %s: %w", pool.Name, err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	if _, err := s.ext.ExecContext(ctx,
		s.rebind(`INSERT INTO slot_pool (name, slots) VALUES (?, ?)`), pool.Name, pool.Slots); err != nil {
		return fmt.Errorf("insert pool %s: %w", pool.Name, err)
	}
	return nil
}

// GetPool 按名称查询资源池（对外导出）
func (s *session) GetPool(ctx context.Context, name string) (*instance.Pool, error) {
	var pool instance.Pool
	err := sqlx.GetContext(ctx, s.ext, &pool,
		s.rebind(`SELECT name, slots FROM slot_pool WHERE name = ?`), name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: pool %s", instance.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get pool %s: %w", name, err)
	}
	return &pool, nil
}
