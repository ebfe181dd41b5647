package deps

import (
	"context"
	"fmt"

	"github.com/LENAX/dagflow/pkg/core/instance"
)

// DagNotPausedDep 校验DAG未被暂停（对外导出）
type DagNotPausedDep struct{}

// Name 返回依赖名称
func (d *DagNotPausedDep) Name() string {
	return "DAG Not Paused"
}

// Evaluate 实现Dependency接口
func (d *DagNotPausedDep) Evaluate(_ context.Context, ti *instance.TaskInstance, dctx *Context) (*Status, error) {
	if dctx.DAG.Paused {
		return &Status{
			Name:   d.Name(),
			Reason: fmt.Sprintf("Task's DAG '%s' is paused.", ti.DagID),
		}, nil
	}
	return nil, nil
}

// ExecutorQueueDep 校验executor与queue在配置名单内（对外导出）
// 名单为空表示不校验；空值走默认executor/queue，同样放行
type ExecutorQueueDep struct{}

// Name 返回依赖名称
func (d *ExecutorQueueDep) Name() string {
	return "Valid Executor And Queue"
}

// Evaluate 实现Dependency接口
func (d *ExecutorQueueDep) Evaluate(_ context.Context, ti *instance.TaskInstance, dctx *Context) (*Status, error) {
	if ti.Executor != "" && len(dctx.KnownExecutors) > 0 && !contains(dctx.KnownExecutors, ti.Executor) {
		return &Status{
			Name:   d.Name(),
			Reason: fmt.Sprintf("Executor '%s' is not configured.", ti.Executor),
		}, nil
	}
	if ti.Queue != "" && len(dctx.KnownQueues) > 0 && !contains(dctx.KnownQueues, ti.Queue) {
		return &Status{
			Name:   d.Name(),
			Reason: fmt.Sprintf("Queue '%s' is not configured.", ti.Queue),
		}, nil
	}
	return nil, nil
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
