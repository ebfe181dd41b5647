package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/LENAX/dagflow/pkg/core/instance"
)

var historyColumns = []string{
	"id", "dag_id", "run_id", "task_id", "map_index", "try_number", "state",
	"start_date", "end_date", "duration", "pool", "queue", "executor",
	"rendered_fields", "dag_version_id", "recorded_at",
}

const historySelectColumns = `id, dag_id, run_id, task_id, map_index, try_number, state,
	start_date, end_date, duration, pool, queue, executor,
	rendered_fields, dag_version_id, recorded_at`

// InsertHistory 幂等写入一条归档记录（对外导出）
// 同一(dag_id, run_id, task_id, map_index, try_number)已存在时静默跳过，
// 调用方重试归档步骤不会产生重复行
func (s *session) InsertHistory(ctx context.Context, h *instance.TaskInstanceHistory) error {
	query := s.dialect.InsertIgnoreSQL("task_instance_history", historyColumns,
		[]string{"dag_id", "run_id", "task_id", "map_index", "try_number"})

	_, err := s.ext.ExecContext(ctx, s.rebind(query),
		h.ID, h.DagID, h.RunID, h.TaskID, h.MapIndex, h.TryNumber, h.State,
		h.StartDate, h.EndDate, h.Duration, h.Pool, h.Queue, h.Executor,
		h.RenderedFields, h.DagVersionID, h.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert history for %s.%s.%s[%d] try %d: %w",
			h.DagID, h.RunID, h.TaskID, h.MapIndex, h.TryNumber, err)
	}
	return nil
}

// ListHistory 按复合主键列出全部归档try，按try_number升序（对外导出）
func (s *session) ListHistory(ctx context.Context, key instance.Key) ([]*instance.TaskInstanceHistory, error) {
	query := s.rebind(`SELECT ` + historySelectColumns + ` FROM task_instance_history
		WHERE dag_id = ? AND run_id = ? AND task_id = ? AND map_index = ?
		ORDER BY try_number`)

	var records []*instance.TaskInstanceHistory
	err := sqlx.SelectContext(ctx, s.ext, &records, query, key.DagID, key.RunID, key.TaskID, key.MapIndex)
	if err != nil {
		return nil, fmt.Errorf("list history for %s: %w", key, err)
	}
	return records, nil
}

// GetHistoryTry 查询指定try_number的归档记录（对外导出）
func (s *session) GetHistoryTry(ctx context.Context, key instance.Key, tryNumber int) (*instance.TaskInstanceHistory, error) {
	query := s.rebind(`SELECT ` + historySelectColumns + ` FROM task_instance_history
		WHERE dag_id = ? AND run_id = ? AND task_id = ? AND map_index = ? AND try_number = ?`)

	var h instance.TaskInstanceHistory
	err := sqlx.GetContext(ctx, s.ext, &h, query, key.DagID, key.RunID, key.TaskID, key.MapIndex, tryNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: history %s try %d", instance.ErrNotFound, key, tryNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("get history %s try %d: %w", key, tryNumber, err)
	}
	return &h, nil
}
