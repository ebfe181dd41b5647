package deps

import (
	"context"
	"errors"
	"fmt"

	"github.com/LENAX/dagflow/pkg/core/instance"
)

// PoolSlotsDep 校验资源池是否还有空闲槽位（对外导出）
type PoolSlotsDep struct{}

// Name 返回依赖名称
func (d *PoolSlotsDep) Name() string {
	return "Pool Slots Available"
}

// Evaluate 实现Dependency接口
func (d *PoolSlotsDep) Evaluate(ctx context.Context, ti *instance.TaskInstance, dctx *Context) (*Status, error) {
	pool, err := dctx.Counter.GetPool(ctx, ti.Pool)
	if errors.Is(err, instance.ErrNotFound) {
		return &Status{
			Name:   d.Name(),
			Reason: fmt.Sprintf("Task's pool '%s' does not exist.", ti.Pool),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	occupied, err := dctx.Counter.CountPoolOccupied(ctx, ti.Pool)
	if err != nil {
		return nil, err
	}
	if occupied >= pool.Slots {
		return &Status{
			Name:   d.Name(),
			Reason: fmt.Sprintf("Pool '%s' has %d slot(s), all occupied.", ti.Pool, pool.Slots),
		}, nil
	}
	return nil, nil
}

// MaxActiveTasksDep 校验DAG级活跃Task并发上限（对外导出）
type MaxActiveTasksDep struct{}

// Name 返回依赖名称
func (d *MaxActiveTasksDep) Name() string {
	return "DAG Max Active Tasks"
}

// Evaluate 实现Dependency接口
func (d *MaxActiveTasksDep) Evaluate(ctx context.Context, ti *instance.TaskInstance, dctx *Context) (*Status, error) {
	limit := dctx.DAG.MaxActiveTasks
	if limit <= 0 {
		return nil, nil
	}

	active, err := dctx.Counter.CountActiveInRun(ctx, ti.DagID, ti.RunID)
	if err != nil {
		return nil, err
	}
	if active >= limit {
		return &Status{
			Name:   d.Name(),
			Reason: fmt.Sprintf("The maximum number of active tasks for DAG '%s' is reached: %d of %d.", ti.DagID, active, limit),
		}, nil
	}
	return nil, nil
}

// TaskConcurrencyDep 校验单个Task跨run的实例并发上限（对外导出）
type TaskConcurrencyDep struct{}

// Name 返回依赖名称
func (d *TaskConcurrencyDep) Name() string {
	return "Task Concurrency"
}

// Evaluate 实现Dependency接口
func (d *TaskConcurrencyDep) Evaluate(ctx context.Context, ti *instance.TaskInstance, dctx *Context) (*Status, error) {
	limit := dctx.Task.MaxActiveTIs
	if limit <= 0 {
		return nil, nil
	}

	active, err := dctx.Counter.CountActiveForTask(ctx, ti.DagID, ti.TaskID)
	if err != nil {
		return nil, err
	}
	if active >= limit {
		return &Status{
			Name:   d.Name(),
			Reason: fmt.Sprintf("Task '%s' already has %d active instance(s), limit is %d.", ti.TaskID, active, limit),
		}, nil
	}
	return nil, nil
}
