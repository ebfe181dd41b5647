// Package instance 定义TaskInstance、TaskInstanceHistory和DagRun领域模型
package instance

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LENAX/dagflow/pkg/core/state"
)

// UnmappedIndex 未展开Task的map_index约定值（对外导出）
const UnmappedIndex = -1

// Key TaskInstance复合主键（对外导出）
// (dag_id, run_id, task_id, map_index)唯一确定一个活跃的TaskInstance
type Key struct {
	DagID    string `json:"dag_id"`
	RunID    string `json:"run_id"`
	TaskID   string `json:"task_id"`
	MapIndex int    `json:"map_index"`
}

// String 返回主键的可读表示
func (k Key) String() string {
	return fmt.Sprintf("%s.%s.%s[%d]", k.DagID, k.RunID, k.TaskID, k.MapIndex)
}

// Less 按(dag_id, run_id, task_id, map_index)字典序比较，用于确定性排序（对外导出）
func (k Key) Less(other Key) bool {
	if k.DagID != other.DagID {
		return k.DagID < other.DagID
	}
	if k.RunID != other.RunID {
		return k.RunID < other.RunID
	}
	if k.TaskID != other.TaskID {
		return k.TaskID < other.TaskID
	}
	return k.MapIndex < other.MapIndex
}

// TaskInstance 一个Task在特定DagRun中的调度/执行实例（对外导出）
// 同一复合主键至多存在一行活跃记录；历史try归档到TaskInstanceHistory后不再修改
type TaskInstance struct {
	ID             string                  `db:"id" json:"id"`
	DagID          string                  `db:"dag_id" json:"dag_id"`
	RunID          string                  `db:"run_id" json:"run_id"`
	TaskID         string                  `db:"task_id" json:"task_id"`
	MapIndex       int                     `db:"map_index" json:"map_index"`
	State          state.TaskInstanceState `db:"state" json:"state"`
	TryNumber      int                     `db:"try_number" json:"try_number"`
	StartDate      sql.NullTime            `db:"start_date" json:"start_date"`
	EndDate        sql.NullTime            `db:"end_date" json:"end_date"`
	Duration       sql.NullFloat64         `db:"duration" json:"duration"`
	Pool           string                  `db:"pool" json:"pool"`
	Queue          string                  `db:"queue" json:"queue"`
	Executor       string                  `db:"executor" json:"executor"`
	Note           string                  `db:"note" json:"note"`
	RenderedFields string                  `db:"rendered_fields" json:"rendered_fields"`
	DagVersionID   string                  `db:"dag_version_id" json:"dag_version_id"`
	UpdatedAt      time.Time               `db:"updated_at" json:"updated_at"`
}

// NewTaskInstance 创建TaskInstance（对外导出）
// 初始状态为none，try_number为0
func NewTaskInstance(dagID, runID, taskID string, mapIndex int) *TaskInstance {
	return &TaskInstance{
		ID:        uuid.NewString(),
		DagID:     dagID,
		RunID:     runID,
		TaskID:    taskID,
		MapIndex:  mapIndex,
		State:     state.StateNone,
		TryNumber: 0,
		Pool:      "default_pool",
		UpdatedAt: time.Now(),
	}
}

// Key 返回复合主键（对外导出）
func (ti *TaskInstance) Key() Key {
	return Key{DagID: ti.DagID, RunID: ti.RunID, TaskID: ti.TaskID, MapIndex: ti.MapIndex}
}

// IsMapped 判断是否为动态展开的实例（对外导出）
func (ti *TaskInstance) IsMapped() bool {
	return ti.MapIndex >= 0
}

// TaskInstanceHistory 一次已完成try的不可变归档记录（对外导出）
// 以(dag_id, run_id, task_id, map_index, try_number)唯一，正常操作永不更新或删除
type TaskInstanceHistory struct {
	ID             string                  `db:"id" json:"id"`
	DagID          string                  `db:"dag_id" json:"dag_id"`
	RunID          string                  `db:"run_id" json:"run_id"`
	TaskID         string                  `db:"task_id" json:"task_id"`
	MapIndex       int                     `db:"map_index" json:"map_index"`
	TryNumber      int                     `db:"try_number" json:"try_number"`
	State          state.TaskInstanceState `db:"state" json:"state"`
	StartDate      sql.NullTime            `db:"start_date" json:"start_date"`
	EndDate        sql.NullTime            `db:"end_date" json:"end_date"`
	Duration       sql.NullFloat64         `db:"duration" json:"duration"`
	Pool           string                  `db:"pool" json:"pool"`
	Queue          string                  `db:"queue" json:"queue"`
	Executor       string                  `db:"executor" json:"executor"`
	RenderedFields string                  `db:"rendered_fields" json:"rendered_fields"`
	DagVersionID   string                  `db:"dag_version_id" json:"dag_version_id"`
	RecordedAt     time.Time               `db:"recorded_at" json:"recorded_at"`
}

// SnapshotOf 从活跃TaskInstance拷贝try级字段生成归档记录（对外导出）
func SnapshotOf(ti *TaskInstance) *TaskInstanceHistory {
	return &TaskInstanceHistory{
		ID:             uuid.NewString(),
		DagID:          ti.DagID,
		RunID:          ti.RunID,
		TaskID:         ti.TaskID,
		MapIndex:       ti.MapIndex,
		TryNumber:      ti.TryNumber,
		State:          ti.State,
		StartDate:      ti.StartDate,
		EndDate:        ti.EndDate,
		Duration:       ti.Duration,
		Pool:           ti.Pool,
		Queue:          ti.Queue,
		Executor:       ti.Executor,
		RenderedFields: ti.RenderedFields,
		DagVersionID:   ti.DagVersionID,
		RecordedAt:     time.Now(),
	}
}

// DagRun 一次完整DAG的执行实例（对外导出）
// logical_date作为按日期范围clear的锚点
type DagRun struct {
	ID           string            `db:"id" json:"id"`
	DagID        string            `db:"dag_id" json:"dag_id"`
	RunID        string            `db:"run_id" json:"run_id"`
	State        state.DagRunState `db:"state" json:"state"`
	LogicalDate  time.Time         `db:"logical_date" json:"logical_date"`
	RunAfter     time.Time         `db:"run_after" json:"run_after"`
	StartDate    sql.NullTime      `db:"start_date" json:"start_date"`
	EndDate      sql.NullTime      `db:"end_date" json:"end_date"`
	Conf         string            `db:"conf" json:"conf"`
	DagVersionID string            `db:"dag_version_id" json:"dag_version_id"`
}

// NewDagRun 创建queued状态的DagRun（对外导出）
func NewDagRun(dagID, runID string, logicalDate time.Time) *DagRun {
	return &DagRun{
		ID:          uuid.NewString(),
		DagID:       dagID,
		RunID:       runID,
		State:       RunStateDefault,
		LogicalDate: logicalDate,
		RunAfter:    logicalDate,
	}
}

// RunStateDefault 新建DagRun的默认状态
const RunStateDefault = state.RunStateQueued

// Pool 资源池，限制同时占用的槽位数（对外导出）
type Pool struct {
	Name  string `db:"name" json:"name"`
	Slots int    `db:"slots" json:"slots"`
}
