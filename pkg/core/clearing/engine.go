package clearing

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"

	"github.com/LENAX/dagflow/pkg/core/dag"
	"github.com/LENAX/dagflow/pkg/core/history"
	"github.com/LENAX/dagflow/pkg/core/instance"
	"github.com/LENAX/dagflow/pkg/core/state"
	"github.com/LENAX/dagflow/pkg/storage"
)

// Engine clear引擎（对外导出）
type Engine struct {
	store    *storage.Store
	provider dag.Provider
	archiver *history.Archiver
	// maxAffected 受影响行数上限，0表示不限制
	maxAffected int
}

// NewEngine 创建clear引擎（对外导出）
func NewEngine(store *storage.Store, provider dag.Provider, archiver *history.Archiver, maxAffected int) *Engine {
	return &Engine{
		store:       store,
		provider:    provider,
		archiver:    archiver,
		maxAffected: maxAffected,
	}
}

// Preview 计算受影响的TaskInstance集合但不做任何变更（对外导出）
// HTTP端默认走此路径，第二次确认调用才真正变更
func (e *Engine) Preview(ctx context.Context, req *Request) ([]instance.Key, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	tis, err := e.affected(ctx, req)
	if err != nil {
		return nil, err
	}
	return sortedKeys(tis), nil
}

// Clear 执行clear（对外导出）
// req.DryRun为true时等价于Preview。变更阶段逐TI提交事务：
// 整个受影响集合不强求单事务，但每个TI的归档+重置+DagRun状态变更必须同生共死
func (e *Engine) Clear(ctx context.Context, req *Request) ([]instance.Key, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tis, err := e.affected(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.DryRun {
		return sortedKeys(tis), nil
	}

	var latestVersionID string
	if req.RunOnLatestVersion {
		d, err := e.provider.GetDAG(req.DagID)
		if err != nil {
			return nil, err
		}
		latestVersionID = d.VersionID
	}

	filter := req.stateFilter()
	cleared := make([]instance.Key, 0, len(tis))
	for _, ti := range tis {
		key := ti.Key()
		affected, err := e.clearOne(ctx, key, filter, req.ResetDagRuns, req.RunOnLatestVersion, latestVersionID)
		if err != nil {
			return nil, fmt.Errorf("clear %s: %w", key, err)
		}
		if affected {
			cleared = append(cleared, key)
		}
	}

	sort.Slice(cleared, func(i, j int) bool { return cleared[i].Less(cleared[j]) })
	return cleared, nil
}

// affected 只读计算受影响的TaskInstance集合
func (e *Engine) affected(ctx context.Context, req *Request) ([]*instance.TaskInstance, error) {
	d, err := e.provider.GetDAG(req.DagID)
	if err != nil {
		return nil, err
	}

	var taskIDs []string
	if len(req.TaskIDs) > 0 {
		taskIDs, err = d.PartialSubset(req.TaskIDs, req.IncludeUpstream, req.IncludeDownstream)
		if err != nil {
			return nil, err
		}
	}

	filter := storage.ListFilter{TaskIDs: taskIDs, States: req.stateFilter()}

	var tis []*instance.TaskInstance
	if req.RunID != "" {
		// run范围：run必须存在
		if _, err := e.store.GetDagRun(ctx, req.DagID, req.RunID); err != nil {
			return nil, err
		}
		tis, err = e.store.ListTaskInstancesByRun(ctx, req.DagID, req.RunID, filter)
	} else {
		start, end := req.dateBounds()
		tis, err = e.store.ListTaskInstancesByDateRange(ctx, req.DagID, start, end, filter)
	}
	if err != nil {
		return nil, err
	}

	if e.maxAffected > 0 && len(tis) > e.maxAffected {
		return nil, fmt.Errorf("%w: %d task instances in scope, limit is %d",
			instance.ErrTooManyAffectedRows, len(tis), e.maxAffected)
	}
	return tis, nil
}

// clearOne 在单个事务内重置一个TaskInstance
// 顺序固定：锁行 -> 归档 -> 重置TI -> （可选）DagRun回queued，任一步失败整体回滚。
// 返回是否实际发生了重置：并发场景下行可能在加锁前已被他人清过，
// 此时状态不再命中过滤条件，本次操作影响零行
func (e *Engine) clearOne(ctx context.Context, key instance.Key, filter []state.TaskInstanceState, resetRun, rebindVersion bool, latestVersionID string) (bool, error) {
	affected := false
	err := e.store.Transact(ctx, func(txs *storage.TxStore) error {
		ti, err := txs.GetTaskInstanceForUpdate(ctx, key)
		if err != nil {
			return err
		}

		if len(filter) > 0 && !stateIn(ti.State, filter) {
			log.Printf("clearing: %s no longer matches state filter (now %s), skipping", key, ti.State)
			return nil
		}
		if ti.State == state.StateNone {
			// 已经是重置后的状态，重复clear是no-op
			return nil
		}

		if _, err := e.archiver.Archive(ctx, txs, ti); err != nil {
			return err
		}

		ti.State = state.StateNone
		ti.StartDate = sql.NullTime{}
		ti.EndDate = sql.NullTime{}
		ti.Duration = sql.NullFloat64{}
		ti.RenderedFields = ""
		if rebindVersion {
			ti.DagVersionID = latestVersionID
		}
		if err := txs.UpdateTaskInstance(ctx, ti); err != nil {
			return err
		}

		if resetRun {
			run, err := txs.GetDagRunForUpdate(ctx, key.DagID, key.RunID)
			if err != nil {
				return err
			}
			if run.State != state.RunStateQueued {
				if err := txs.UpdateDagRunState(ctx, key.DagID, key.RunID, state.RunStateQueued); err != nil {
					return err
				}
			}
		}

		affected = true
		return nil
	})
	return affected, err
}

func stateIn(s state.TaskInstanceState, list []state.TaskInstanceState) bool {
	for _, st := range list {
		if st == s {
			return true
		}
	}
	return false
}

func sortedKeys(tis []*instance.TaskInstance) []instance.Key {
	keys := make([]instance.Key, 0, len(tis))
	for _, ti := range tis {
		keys = append(keys, ti.Key())
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
