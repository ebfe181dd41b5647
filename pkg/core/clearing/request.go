// Package clearing 将TaskInstance（以及可选的所属DagRun）重置回可再次运行的状态
package clearing

import (
	"fmt"
	"time"

	"github.com/LENAX/dagflow/pkg/core/instance"
	"github.com/LENAX/dagflow/pkg/core/state"
)

// Request 一次clear操作的范围描述（对外导出）
// 临时值对象，只在单次clear期间存在，从不持久化。
// 两种互斥的圈定方式：指定RunID（run范围），或指定日期区间（跨run范围）
type Request struct {
	DagID string `json:"dag_id"`

	// run范围模式：单个run没有相对自身的"过去/未来"，
	// 与IncludePast/IncludeFuture组合是调用方错误
	RunID string `json:"dag_run_id"`

	// 日期区间模式：按DagRun的logical_date圈定
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	// IncludePast清除下界（向过去开放），IncludeFuture清除上界（向未来开放）
	IncludePast   bool `json:"include_past"`
	IncludeFuture bool `json:"include_future"`

	// Task子集：为空表示全部Task；展开标志沿DAG图做上游/下游闭包
	TaskIDs           []string `json:"task_ids"`
	IncludeUpstream   bool     `json:"include_upstream"`
	IncludeDownstream bool     `json:"include_downstream"`

	// 状态过滤：两者互斥
	OnlyFailed  bool `json:"only_failed"`
	OnlyRunning bool `json:"only_running"`

	// DryRun只计算受影响集合，不做任何变更
	DryRun bool `json:"dry_run"`
	// ResetDagRuns将受影响TI所属的DagRun强制回到queued
	ResetDagRuns bool `json:"reset_dag_runs"`
	// RunOnLatestVersion重绑定到最新DAG版本；false保留原版本绑定。
	// 这个选择必须由调用方显式给出，引擎从不隐式决定
	RunOnLatestVersion bool `json:"run_on_latest_version"`
}

// Validate 校验请求参数，冲突时返回ErrInvalidRequest（对外导出）
// 在读取任何数据行之前执行
func (r *Request) Validate() error {
	if r.DagID == "" {
		return fmt.Errorf("%w: dag_id is required", instance.ErrInvalidRequest)
	}
	if r.RunID != "" && (r.IncludePast || r.IncludeFuture) {
		return fmt.Errorf("%w: cannot use include_past or include_future when dag_run_id is provided because logical_date is not applicable", instance.ErrInvalidRequest)
	}
	if r.RunID != "" && (r.StartDate != nil || r.EndDate != nil) {
		return fmt.Errorf("%w: dag_run_id and date range are mutually exclusive", instance.ErrInvalidRequest)
	}
	if r.OnlyFailed && r.OnlyRunning {
		return fmt.Errorf("%w: only_failed and only_running are mutually exclusive", instance.ErrInvalidRequest)
	}
	return nil
}

// stateFilter 返回状态过滤集合，nil表示不过滤
// failed一侧包含重试等价状态up_for_retry与upstream_failed，
// running一侧包含restarting
func (r *Request) stateFilter() []state.TaskInstanceState {
	switch {
	case r.OnlyFailed:
		return []state.TaskInstanceState{state.StateFailed, state.StateUpstreamFailed, state.StateUpForRetry}
	case r.OnlyRunning:
		return []state.TaskInstanceState{state.StateRunning, state.StateRestarting}
	}
	return nil
}

// dateBounds 返回生效的日期区间，开放方向为nil
func (r *Request) dateBounds() (start, end *time.Time) {
	start, end = r.StartDate, r.EndDate
	if r.IncludePast {
		start = nil
	}
	if r.IncludeFuture {
		end = nil
	}
	return start, end
}
