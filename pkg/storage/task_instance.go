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

// activeStates 占用资源槽位的状态集合，用于并发度/池容量统计
var activeStates = []string{
	string(state.StateQueued),
	string(state.StateRunning),
	string(state.StateRestarting),
}

const taskInstanceColumns = `id, dag_id, run_id, task_id, map_index, state, try_number,
	start_date, end_date, duration, pool, queue, executor, note,
	rendered_fields, dag_version_id, updated_at`

// CreateTaskInstance 插入活跃TaskInstance（对外导出）
// 复合主键冲突由唯一约束兜底：同一(dag_id, run_id, task_id, map_index)至多一行
func (s *session) CreateTaskInstance(ctx context.Context, ti *instance.TaskInstance) error {
	ti.UpdatedAt = time.Now()
	query := `INSERT INTO task_instance (` + taskInstanceColumns + `) VALUES (
		:id, :dag_id, :run_id, :task_id, :map_index, :state, :try_number,
		:start_date, :end_date, :duration, :pool, :queue, :executor, :note,
		:rendered_fields, :dag_version_id, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, s.ext, query, ti); err != nil {
		return fmt.Errorf("insert task instance %s: %w", ti.Key(), err)
	}
	return nil
}

// GetTaskInstance 按复合主键查询活跃TaskInstance（对外导出）
func (s *session) GetTaskInstance(ctx context.Context, key instance.Key) (*instance.TaskInstance, error) {
	return s.getTaskInstance(ctx, key, false)
}

func (s *session) getTaskInstance(ctx context.Context, key instance.Key, forUpdate bool) (*instance.TaskInstance, error) {
	query := `SELECT ` + taskInstanceColumns + ` FROM task_instance
		WHERE dag_id = ? AND run_id = ? AND task_id = ? AND map_index = ?`
	if forUpdate {
		if clause := s.dialect.ForUpdate(); clause != "" {
			query += " " + clause
		}
	}

	var ti instance.TaskInstance
	err := sqlx.GetContext(ctx, s.ext, &ti, s.rebind(query), key.DagID, key.RunID, key.TaskID, key.MapIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: task instance %s", instance.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get task instance %s: %w", key, err)
	}
	return &ti, nil
}

// GetTaskInstanceForUpdate 带行级锁读取TaskInstance（对外导出）
// 仅在事务内可用：变更前必须先锁行，锁随事务提交/回滚释放
func (s *TxStore) GetTaskInstanceForUpdate(ctx context.Context, key instance.Key) (*instance.TaskInstance, error) {
	return s.getTaskInstance(ctx, key, true)
}

// UpdateTaskInstance 按id整行更新活跃TaskInstance（对外导出）
func (s *session) UpdateTaskInstance(ctx context.Context, ti *instance.TaskInstance) error {
	ti.UpdatedAt = time.Now()
	query := `UPDATE task_instance SET
		state = :state, try_number = :try_number, start_date = :start_date,
		end_date = :end_date, duration = :duration, pool = :pool, queue = :queue,
		executor = :executor, note = :note, rendered_fields = :rendered_fields,
		dag_version_id = :dag_version_id, updated_at = :updated_at
		WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, s.ext, query, ti)
	if err != nil {
		return fmt.Errorf("update task instance %s: %w", ti.Key(), err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: task instance %s", instance.ErrNotFound, ti.Key())
	}
	return nil
}

// DeleteTaskInstance 删除活跃TaskInstance（对外导出）
// 历史归档记录不受影响
func (s *session) DeleteTaskInstance(ctx context.Context, key instance.Key) error {
	query := s.rebind(`DELETE FROM task_instance
		WHERE dag_id = ? AND run_id = ? AND task_id = ? AND map_index = ?`)
	result, err := s.ext.ExecContext(ctx, query, key.DagID, key.RunID, key.TaskID, key.MapIndex)
	if err != nil {
		return fmt.Errorf("delete task instance %s: %w", key, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: task instance %s", instance.ErrNotFound, key)
	}
	return nil
}

// ListFilter TaskInstance列表查询的可选过滤条件（对外导出）
type ListFilter struct {
	TaskIDs []string
	States  []state.TaskInstanceState
}

// ListTaskInstancesByRun 列出某个DagRun下的TaskInstance（对外导出）
func (s *session) ListTaskInstancesByRun(ctx context.Context, dagID, runID string, filter ListFilter) ([]*instance.TaskInstance, error) {
	query := `SELECT ` + taskInstanceColumns + ` FROM task_instance
		WHERE dag_id = ? AND run_id = ?`
	args := []interface{}{dagID, runID}

	query, args = appendFilter(query, args, filter)
	query += ` ORDER BY task_id, map_index`

	return s.selectTaskInstances(ctx, query, args)
}

// ListTaskInstancesByDateRange 列出logical_date落在[start, end]内所有run的TaskInstance（对外导出）
// start/end为nil表示对应方向开放（include_past/include_future语义）
func (s *session) ListTaskInstancesByDateRange(ctx context.Context, dagID string, start, end *time.Time, filter ListFilter) ([]*instance.TaskInstance, error) {
	query := `SELECT ti.id, ti.dag_id, ti.run_id, ti.task_id, ti.map_index, ti.state,
		ti.try_number, ti.start_date, ti.end_date, ti.duration, ti.pool, ti.queue,
		ti.executor, ti.note, ti.rendered_fields, ti.dag_version_id, ti.updated_at
		FROM task_instance ti
		JOIN dag_run dr ON ti.dag_id = dr.dag_id AND ti.run_id = dr.run_id
		WHERE ti.dag_id = ?`
	args := []interface{}{dagID}

	if start != nil {
		query += ` AND dr.logical_date >= ?`
		args = append(args, *start)
	}
	if end != nil {
		query += ` AND dr.logical_date <= ?`
		args = append(args, *end)
	}

	if len(filter.TaskIDs) > 0 {
		query += ` AND ti.task_id IN (?)`
		args = append(args, filter.TaskIDs)
	}
	if len(filter.States) > 0 {
		query += ` AND ti.state IN (?)`
		args = append(args, stateStrings(filter.States))
	}
	query += ` ORDER BY dr.logical_date, ti.task_id, ti.map_index`

	return s.selectTaskInstances(ctx, query, args)
}

// ListMappedInstances 列出Task的全部动态展开实例（map_index >= 0）（对外导出）
// 返回零行不代表Task不存在，由调用方结合DAG定义判断
func (s *session) ListMappedInstances(ctx context.Context, dagID, runID, taskID string) ([]*instance.TaskInstance, error) {
	query := `SELECT ` + taskInstanceColumns + ` FROM task_instance
		WHERE dag_id = ? AND run_id = ? AND task_id = ? AND map_index >= 0
		ORDER BY map_index`
	return s.selectTaskInstances(ctx, query, []interface{}{dagID, runID, taskID})
}

// GetTaskStatesInRun 返回run内指定Task全部实例的状态（对外导出）
// mapped实例的每个map_index各算一条；TriggerRule按实例统计上游完成度
func (s *session) GetTaskStatesInRun(ctx context.Context, dagID, runID string, taskIDs []string) ([]state.TaskInstanceState, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT state FROM task_instance
		WHERE dag_id = ? AND run_id = ? AND task_id IN (?)`, dagID, runID, taskIDs)
	if err != nil {
		return nil, fmt.Errorf("expand state query: %w", err)
	}
	var states []state.TaskInstanceState
	if err := sqlx.SelectContext(ctx, s.ext, &states, s.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select task states: %w", err)
	}
	return states, nil
}

// CountPoolOccupied 统计池中被占用的槽位数（对外导出）
func (s *session) CountPoolOccupied(ctx context.Context, pool string) (int, error) {
	return s.countWhere(ctx, `pool = ? AND state IN (?)`, pool, activeStates)
}

// CountActiveInRun 统计DagRun内活跃的TaskInstance数（对外导出）
func (s *session) CountActiveInRun(ctx context.Context, dagID, runID string) (int, error) {
	return s.countWhere(ctx, `dag_id = ? AND run_id = ? AND state IN (?)`, dagID, runID, activeStates)
}

// CountActiveForTask 统计某个Task跨run的活跃实例数（对外导出）
func (s *session) CountActiveForTask(ctx context.Context, dagID, taskID string) (int, error) {
	return s.countWhere(ctx, `dag_id = ? AND task_id = ? AND state IN (?)`, dagID, taskID, activeStates)
}

func (s *session) countWhere(ctx context.Context, where string, args ...interface{}) (int, error) {
	query, inArgs, err := sqlx.In(`SELECT COUNT(*) FROM task_instance WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("expand count query: %w", err)
	}
	var count int
	if err := sqlx.GetContext(ctx, s.ext, &count, s.rebind(query), inArgs...); err != nil {
		return 0, fmt.Errorf("count task instances: %w", err)
	}
	return count, nil
}

func (s *session) selectTaskInstances(ctx context.Context, query string, args []interface{}) ([]*instance.TaskInstance, error) {
	expanded, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("expand query: %w", err)
	}
	var tis []*instance.TaskInstance
	if err := sqlx.SelectContext(ctx, s.ext, &tis, s.rebind(expanded), inArgs...); err != nil {
		return nil, fmt.Errorf("select task instances: %w", err)
	}
	return tis, nil
}

func appendFilter(query string, args []interface{}, filter ListFilter) (string, []interface{}) {
	if len(filter.TaskIDs) > 0 {
		query += ` AND task_id IN (?)`
		args = append(args, filter.TaskIDs)
	}
	if len(filter.States) > 0 {
		query += ` AND state IN (?)`
		args = append(args, stateStrings(filter.States))
	}
	return query, args
}

func stateStrings(states []state.TaskInstanceState) []string {
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = string(st)
	}
	return out
}
