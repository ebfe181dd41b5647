package deps

import (
	"context"
	"fmt"

	"github.com/LENAX/dagflow/pkg/core/dag"
	"github.com/LENAX/dagflow/pkg/core/instance"
	"github.com/LENAX/dagflow/pkg/core/state"
)

// TriggerRuleDep 按TriggerRule判断上游Task是否满足完成条件（对外导出）
type TriggerRuleDep struct{}

// Name 返回依赖名称
func (d *TriggerRuleDep) Name() string {
	return "Trigger Rule"
}

// upstreamCounts 上游实例的状态统计
type upstreamCounts struct {
	total   int
	success int
	failed  int // failed + upstream_failed
	skipped int
	done    int // 所有终态
}

// Evaluate 实现Dependency接口
func (d *TriggerRuleDep) Evaluate(ctx context.Context, ti *instance.TaskInstance, dctx *Context) (*Status, error) {
	rule := dctx.Task.EffectiveTriggerRule()
	if rule == dag.TriggerAlways {
		return nil, nil
	}

	upstreamIDs := dctx.DAG.UpstreamTaskIDs(ti.TaskID)
	if len(upstreamIDs) == 0 {
		return nil, nil
	}

	states, err := dctx.Counter.GetTaskStatesInRun(ctx, ti.DagID, ti.RunID, upstreamIDs)
	if err != nil {
		return nil, fmt.Errorf("load upstream states for %s: %w", ti.Key(), err)
	}

	counts := upstreamCounts{total: len(states)}
	for _, s := range states {
		switch s {
		case state.StateSuccess:
			counts.success++
		case state.StateFailed, state.StateUpstreamFailed:
			counts.failed++
		case state.StateSkipped:
			counts.skipped++
		}
		if s.IsTerminal() {
			counts.done++
		}
	}

	if reason := evalRule(rule, counts); reason != "" {
		return &Status{Name: d.Name(), Reason: reason}, nil
	}
	return nil, nil
}

// evalRule 返回未满足原因，满足时返回空串
func evalRule(rule dag.TriggerRule, c upstreamCounts) string {
	switch rule {
	case dag.TriggerAllSuccess:
		if c.success < c.total {
			return fmt.Sprintf("Task's trigger rule 'all_success' requires all upstream tasks to have succeeded, but found %d of %d upstream task(s) not in success state.", c.total-c.success, c.total)
		}
	case dag.TriggerAllFailed:
		if c.failed < c.total {
			return fmt.Sprintf("Task's trigger rule 'all_failed' requires all upstream tasks to have failed, but found %d of %d upstream task(s) not in failed state.", c.total-c.failed, c.total)
		}
	case dag.TriggerAllDone:
		if c.done < c.total {
			return fmt.Sprintf("Task's trigger rule 'all_done' requires all upstream tasks to have completed, but found %d of %d upstream task(s) still running.", c.total-c.done, c.total)
		}
	case dag.TriggerOneSuccess:
		if c.success == 0 {
			return "Task's trigger rule 'one_success' requires at least one upstream task success, but none succeeded yet."
		}
	case dag.TriggerOneFailed:
		if c.failed == 0 {
			return "Task's trigger rule 'one_failed' requires at least one upstream task failure, but none failed yet."
		}
	case dag.TriggerNoneFailed:
		if c.failed > 0 {
			return fmt.Sprintf("Task's trigger rule 'none_failed' requires no upstream failures, but found %d failed upstream task(s).", c.failed)
		}
		if c.done < c.total {
			return fmt.Sprintf("Task's trigger rule 'none_failed' requires all upstream tasks to have completed, but %d of %d are still pending.", c.total-c.done, c.total)
		}
	case dag.TriggerNoneSkipped:
		if c.skipped > 0 {
			return fmt.Sprintf("Task's trigger rule 'none_skipped' requires no upstream skips, but found %d skipped upstream task(s).", c.skipped)
		}
		if c.done < c.total {
			return fmt.Sprintf("Task's trigger rule 'none_skipped' requires all upstream tasks to have completed, but %d of %d are still pending.", c.total-c.done, c.total)
		}
	}
	return ""
}
