package dto

import (
	"time"

	"github.com/LENAX/dagflow/pkg/core/deps"
	"github.com/LENAX/dagflow/pkg/core/instance"
)

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// TaskInstanceView TaskInstance详情
type TaskInstanceView struct {
	DagID        string     `json:"dag_id"`
	RunID        string     `json:"run_id"`
	TaskID       string     `json:"task_id"`
	MapIndex     int        `json:"map_index"`
	State        string     `json:"state"`
	TryNumber    int        `json:"try_number"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	Duration     *float64   `json:"duration,omitempty"`
	Pool         string     `json:"pool"`
	Queue        string     `json:"queue,omitempty"`
	Executor     string     `json:"executor,omitempty"`
	Note         string     `json:"note,omitempty"`
	DagVersionID string     `json:"dag_version_id,omitempty"`
}

// NewTaskInstanceView 从领域模型构建视图
func NewTaskInstanceView(ti *instance.TaskInstance) TaskInstanceView {
	view := TaskInstanceView{
		DagID:        ti.DagID,
		RunID:        ti.RunID,
		TaskID:       ti.TaskID,
		MapIndex:     ti.MapIndex,
		State:        string(ti.State),
		TryNumber:    ti.TryNumber,
		Pool:         ti.Pool,
		Queue:        ti.Queue,
		Executor:     ti.Executor,
		Note:         ti.Note,
		DagVersionID: ti.DagVersionID,
	}
	if ti.StartDate.Valid {
		view.StartDate = &ti.StartDate.Time
	}
	if ti.EndDate.Valid {
		view.EndDate = &ti.EndDate.Time
	}
	if ti.Duration.Valid {
		view.Duration = &ti.Duration.Float64
	}
	return view
}

// TryView 一条try记录
type TryView struct {
	TryNumber int        `json:"try_number"`
	State     string     `json:"state"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Duration  *float64   `json:"duration,omitempty"`
	Pool      string     `json:"pool"`
	Queue     string     `json:"queue,omitempty"`
	Executor  string     `json:"executor,omitempty"`
}

// NewTryView 从归档记录构建视图
func NewTryView(h *instance.TaskInstanceHistory) TryView {
	view := TryView{
		TryNumber: h.TryNumber,
		State:     string(h.State),
		Pool:      h.Pool,
		Queue:     h.Queue,
		Executor:  h.Executor,
	}
	if h.StartDate.Valid {
		view.StartDate = &h.StartDate.Time
	}
	if h.EndDate.Valid {
		view.EndDate = &h.EndDate.Time
	}
	if h.Duration.Valid {
		view.Duration = &h.Duration.Float64
	}
	return view
}

// DependencyStatusView 一条未满足的调度前置条件
type DependencyStatusView struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// NewDependencyStatusViews 从评估结果构建视图列表
func NewDependencyStatusViews(statuses []deps.Status) []DependencyStatusView {
	views := make([]DependencyStatusView, 0, len(statuses))
	for _, s := range statuses {
		views = append(views, DependencyStatusView{Name: s.Name, Reason: s.Reason})
	}
	return views
}

// ClearResponse clear操作响应
type ClearResponse struct {
	DryRun   bool           `json:"dry_run"`
	Total    int            `json:"total"`
	Affected []instance.Key `json:"affected"`
}

// SetStateResponse 状态设置响应
type SetStateResponse struct {
	Total   int            `json:"total"`
	Updated []instance.Key `json:"updated"`
}

// DagRunView DagRun详情
type DagRunView struct {
	DagID        string     `json:"dag_id"`
	RunID        string     `json:"run_id"`
	State        string     `json:"state"`
	LogicalDate  time.Time  `json:"logical_date"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	Conf         string     `json:"conf,omitempty"`
	DagVersionID string     `json:"dag_version_id,omitempty"`
}

// NewDagRunView 从领域模型构建视图
func NewDagRunView(run *instance.DagRun) DagRunView {
	view := DagRunView{
		DagID:        run.DagID,
		RunID:        run.RunID,
		State:        string(run.State),
		LogicalDate:  run.LogicalDate,
		Conf:         run.Conf,
		DagVersionID: run.DagVersionID,
	}
	if run.StartDate.Valid {
		view.StartDate = &run.StartDate.Time
	}
	if run.EndDate.Valid {
		view.EndDate = &run.EndDate.Time
	}
	return view
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}
