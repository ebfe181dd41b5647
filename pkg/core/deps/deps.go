// Package deps 评估TaskInstance进入可运行状态前必须满足的依赖策略
package deps

import (
	"context"
	"sort"

	"github.com/LENAX/dagflow/pkg/core/dag"
	"github.com/LENAX/dagflow/pkg/core/instance"
	"github.com/LENAX/dagflow/pkg/core/state"
)

// Status 一条未满足的依赖（对外导出）
// 临时值对象，不持久化；通过的策略不产生Status
type Status struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Counter 依赖评估所需的存储只读视图（对外导出）
// 所有读取都应在同一事务快照内进行，评估本身不加排他锁
type Counter interface {
	CountPoolOccupied(ctx context.Context, pool string) (int, error)
	CountActiveInRun(ctx context.Context, dagID, runID string) (int, error)
	CountActiveForTask(ctx context.Context, dagID, taskID string) (int, error)
	GetPool(ctx context.Context, name string) (*instance.Pool, error)
	GetTaskStatesInRun(ctx context.Context, dagID, runID string, taskIDs []string) ([]state.TaskInstanceState, error)
}

// Context 一次依赖评估的上下文（对外导出）
type Context struct {
	DAG      *dag.DAG
	Task     *dag.TaskDefinition
	Run      *instance.DagRun
	Counter  Counter
	// 合法的executor/queue名单，来自配置；空名单表示不校验
	KnownExecutors []string
	KnownQueues    []string
}

// Dependency 单条依赖策略（对外导出）
// 评估是只读的，绝不改变TaskInstance状态；返回nil表示通过
type Dependency interface {
	Name() string
	Evaluate(ctx context.Context, ti *instance.TaskInstance, dctx *Context) (*Status, error)
}

// SchedulerQueuedDeps 调度入队阶段的默认策略集（对外导出）
func SchedulerQueuedDeps() []Dependency {
	return []Dependency{
		&TriggerRuleDep{},
		&PoolSlotsDep{},
		&DagNotPausedDep{},
		&MaxActiveTasksDep{},
		&TaskConcurrencyDep{},
		&ExecutorQueueDep{},
	}
}

// Evaluate 评估全部策略并返回未满足的依赖，按名称排序（对外导出）
// 状态不在none/scheduled中的TaskInstance直接返回空集：已前进的实例被认为
// 此前已通过检查，这是刻意的优化而非重新校验
func Evaluate(ctx context.Context, ti *instance.TaskInstance, policies []Dependency, dctx *Context) ([]Status, error) {
	if ti.State != state.StateNone && ti.State != state.StateScheduled {
		return []Status{}, nil
	}

	var failed []Status
	for _, dep := range policies {
		status, err := dep.Evaluate(ctx, ti, dctx)
		if err != nil {
			return nil, err
		}
		if status != nil {
			failed = append(failed, *status)
		}
	}

	sort.Slice(failed, func(i, j int) bool { return failed[i].Name < failed[j].Name })
	if failed == nil {
		failed = []Status{}
	}
	return failed, nil
}
