package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/LENAX/dagflow/pkg/core/instance"
	"github.com/LENAX/dagflow/pkg/core/state"
)

const dagRunColumns = `id, dag_id, run_id, state, logical_date, run_after,
	start_date, end_date, conf, dag_version_id`

// CreateDagRun 插入DagRun（对外导出）
func (s *session) CreateDagRun(ctx context.Context, run *instance.DagRun) error {
	query := `INSERT INTO dag_run (` + dagRunColumns + `) VALUES (
		:id, :dag_id, :run_id, :state, :logical_date, :run_after,
		:start_date, :end_date, :conf, :dag_version_id)`
	if _, err := sqlx.NamedExecContext(ctx, s.ext, query, run); err != nil {
		return fmt.Errorf("insert dag run %s.%s: %w", run.DagID, run.RunID, err)
	}
	return nil
}

// GetDagRun 按(dag_id, run_id)查询DagRun（对外导出）
func (s *session) GetDagRun(ctx context.Context, dagID, runID string) (*instance.DagRun, error) {
	return s.getDagRun(ctx, dagID, runID, false)
}

// GetDagRunForUpdate 带行级锁读取DagRun，仅事务内可用（对外导出）
func (s *TxStore) GetDagRunForUpdate(ctx context.Context, dagID, runID string) (*instance.DagRun, error) {
	return s.getDagRun(ctx, dagID, runID, true)
}

func (s *session) getDagRun(ctx context.Context, dagID, runID string, forUpdate bool) (*instance.DagRun, error) {
	query := `SELECT ` + dagRunColumns + ` FROM dag_run WHERE dag_id = ? AND run_id = ?`
	if forUpdate {
		if clause := s.dialect.ForUpdate(); clause != "" {
			query += " " + clause
		}
	}

	var run instance.DagRun
	err := sqlx.GetContext(ctx, s.ext, &run, s.rebind(query), dagID, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: dag run %s.%s", instance.ErrNotFound, dagID, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get dag run %s.%s: %w", dagID, runID, err)
	}
	return &run, nil
}

// UpdateDagRunState 更新DagRun状态（对外导出）
// 回到queued时清空end_date，run重新变为可调度
func (s *session) UpdateDagRunState(ctx context.Context, dagID, runID string, newState state.DagRunState) error {
	query := `UPDATE dag_run SET state = ?`
	args := []interface{}{string(newState)}
	if newState == state.RunStateQueued {
		query += `, end_date = NULL`
	}
	query += ` WHERE dag_id = ? AND run_id = ?`
	args = append(args, dagID, runID)

	result, err := s.ext.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("update dag run %s.%s state: %w", dagID, runID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: dag run %s.%s", instance.ErrNotFound, dagID, runID)
	}
	return nil
}

// ListDagRunsByDateRange 列出logical_date落在[start, end]内的DagRun（对外导出）
// nil边界表示开放区间
func (s *session) ListDagRunsByDateRange(ctx context.Context, dagID string, start, end *time.Time) ([]*instance.DagRun, error) {
	query := `SELECT ` + dagRunColumns + ` FROM dag_run WHERE dag_id = ?`
	args := []interface{}{dagID}

	if start != nil {
		query += ` AND logical_date >= ?`
		args = append(args, *start)
	}
	if end != nil {
		query += ` AND logical_date <= ?`
		args = append(args, *end)
	}
	query += ` ORDER BY logical_date`

	var runs []*instance.DagRun
	if err := sqlx.SelectContext(ctx, s.ext, &runs, s.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list dag runs for %s: %w", dagID, err)
	}
	return runs, nil
}

// DeleteDagRun 删除DagRun及其全部TaskInstance（对外导出）
// TI的生命周期归属于run，删除必须级联；归档历史保留
func (s *TxStore) DeleteDagRun(ctx context.Context, dagID, runID string) error {
	if _, err := s.ext.ExecContext(ctx,
		s.rebind(`DELETE FROM task_instance WHERE dag_id = ? AND run_id = ?`), dagID, runID); err != nil {
		return fmt.Errorf("delete task instances of run %s.%s: %w", dagID, runID, err)
	}

	result, err := s.ext.ExecContext(ctx,
		s.rebind(`DELETE FROM dag_run WHERE dag_id = ? AND run_id = ?`), dagID, runID)
	if err != nil {
		return fmt.Errorf("delete dag run %s.%s: %w", dagID, runID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: dag run %s.%s", instance.ErrNotFound, dagID, runID)
	}
	return nil
}
