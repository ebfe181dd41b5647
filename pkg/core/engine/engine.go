// Package engine 聚合状态机、依赖评估、归档与clear，对外提供统一操作入口
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/LENAX/dagflow/pkg/core/clearing"
	"github.com/LENAX/dagflow/pkg/core/dag"
	"github.com/LENAX/dagflow/pkg/core/deps"
	"github.com/LENAX/dagflow/pkg/core/events"
	"github.com/LENAX/dagflow/pkg/core/history"
	"github.com/LENAX/dagflow/pkg/core/instance"
	"github.com/LENAX/dagflow/pkg/core/mapped"
	"github.com/LENAX/dagflow/pkg/core/state"
	"github.com/LENAX/dagflow/pkg/storage"
)

// Options 引擎可调参数（对外导出）
type Options struct {
	// MaxAffectedRows clear范围保护上限，0表示不限制
	MaxAffectedRows int
	// SkipArchiveStates 跳过归档的状态集合，为空时使用history.DefaultSkipStates
	SkipArchiveStates []state.TaskInstanceState
	// KnownExecutors / KnownQueues 依赖评估用的合法名单，为空时不校验
	KnownExecutors []string
	KnownQueues    []string
}

// Engine 核心操作入口（对外导出）
type Engine struct {
	store    *storage.Store
	provider dag.Provider
	archiver *history.Archiver
	clearer  *clearing.Engine
	bus      *events.Bus
	policies []deps.Dependency
	opts     Options
}

// New 创建引擎（对外导出）
// bus可以为nil，此时不发布事件
func New(store *storage.Store, provider dag.Provider, bus *events.Bus, opts Options) *Engine {
	archiver := history.NewArchiver(opts.SkipArchiveStates...)
	return &Engine{
		store:    store,
		provider: provider,
		archiver: archiver,
		clearer:  clearing.NewEngine(store, provider, archiver, opts.MaxAffectedRows),
		bus:      bus,
		policies: deps.SchedulerQueuedDeps(),
		opts:     opts,
	}
}

// GetTaskInstance 按复合主键查询活跃TaskInstance（对外导出）
func (e *Engine) GetTaskInstance(ctx context.Context, key instance.Key) (*instance.TaskInstance, error) {
	return e.store.GetTaskInstance(ctx, key)
}

// DeleteTaskInstance 删除活跃TaskInstance，归档历史保留（对外导出）
func (e *Engine) DeleteTaskInstance(ctx context.Context, key instance.Key) error {
	return e.store.DeleteTaskInstance(ctx, key)
}

// GetDependencies 评估TaskInstance的全部调度前置条件（对外导出）
// 只读操作；返回未满足项按名称排序，空切片表示全部满足
func (e *Engine) GetDependencies(ctx context.Context, key instance.Key) ([]deps.Status, error) {
	ti, err := e.store.GetTaskInstance(ctx, key)
	if err != nil {
		return nil, err
	}
	d, err := e.provider.GetDAG(key.DagID)
	if err != nil {
		return nil, err
	}
	td, err := d.GetTask(key.TaskID)
	if err != nil {
		return nil, err
	}
	run, err := e.store.GetDagRun(ctx, key.DagID, key.RunID)
	if err != nil {
		return nil, err
	}

	dctx := &deps.Context{
		DAG:            d,
		Task:           td,
		Run:            run,
		Counter:        e.store,
		KnownExecutors: e.opts.KnownExecutors,
		KnownQueues:    e.opts.KnownQueues,
	}
	return deps.Evaluate(ctx, ti, e.policies, dctx)
}

// PreviewClear 计算clear受影响集合但不变更（对外导出）
func (e *Engine) PreviewClear(ctx context.Context, req *clearing.Request) ([]instance.Key, error) {
	return e.clearer.Preview(ctx, req)
}

// Clear 执行clear并在完成后发布事件（对外导出）
func (e *Engine) Clear(ctx context.Context, req *clearing.Request) ([]instance.Key, error) {
	keys, err := e.clearer.Clear(ctx, req)
	if err != nil {
		return nil, err
	}
	if !req.DryRun && len(keys) > 0 {
		e.emit(events.EventRunCleared, &events.RunClearedPayload{
			DagID:        req.DagID,
			Keys:         keys,
			ResetDagRuns: req.ResetDagRuns,
		})
	}
	return keys, nil
}

// CascadeFlags 状态设置的级联范围（对外导出）
// Upstream/Downstream沿DAG图展开Task集合；Past/Future按logical_date展开run集合
type CascadeFlags struct {
	Upstream   bool `json:"upstream"`
	Downstream bool `json:"downstream"`
	Past       bool `json:"past"`
	Future     bool `json:"future"`
}

func (f CascadeFlags) any() bool {
	return f.Upstream || f.Downstream || f.Past || f.Future
}

// SetState 外部强制设置TaskInstance状态（对外导出）
// 只接受可强制状态（success/failed/skipped/none）；被取代的已完成try先归档。
// 级联范围内的每个TI独立成一个事务，返回实际发生变更的主键，确定性排序
func (e *Engine) SetState(ctx context.Context, key instance.Key, newState state.TaskInstanceState, cascade CascadeFlags) ([]instance.Key, error) {
	if !newState.IsValid() {
		return nil, fmt.Errorf("%w: unknown state %q", instance.ErrInvalidRequest, newState)
	}
	if !state.IsForceable(newState) {
		return nil, fmt.Errorf("%w: state %s cannot be set externally", instance.ErrInvalidRequest, newState)
	}

	targets, err := e.cascadeTargets(ctx, key, cascade)
	if err != nil {
		return nil, err
	}

	updated := make([]instance.Key, 0, len(targets))
	for _, target := range targets {
		changed, old, err := e.setOne(ctx, target, newState)
		if err != nil {
			return nil, fmt.Errorf("set state of %s: %w", target, err)
		}
		if changed {
			updated = append(updated, target)
			e.emitTIStateChanged(ctx, target, old, newState)
		}
	}

	sort.Slice(updated, func(i, j int) bool { return updated[i].Less(updated[j]) })
	return updated, nil
}

// PreviewSetState 返回SetState将要触及的主键集合，不做任何变更（对外导出）
// 与SetState做同样的状态校验和级联展开
func (e *Engine) PreviewSetState(ctx context.Context, key instance.Key, newState state.TaskInstanceState, cascade CascadeFlags) ([]instance.Key, error) {
	if !newState.IsValid() {
		return nil, fmt.Errorf("%w: unknown state %q", instance.ErrInvalidRequest, newState)
	}
	if !state.IsForceable(newState) {
		return nil, fmt.Errorf("%w: state %s cannot be set externally", instance.ErrInvalidRequest, newState)
	}

	targets, err := e.cascadeTargets(ctx, key, cascade)
	if err != nil {
		return nil, err
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Less(targets[j]) })
	return targets, nil
}

// cascadeTargets 展开级联范围内的TaskInstance主键集合
func (e *Engine) cascadeTargets(ctx context.Context, key instance.Key, cascade CascadeFlags) ([]instance.Key, error) {
	if !cascade.any() {
		// 无级联时只操作指定的那一个实例，锚点必须存在
		if _, err := e.store.GetTaskInstance(ctx, key); err != nil {
			return nil, err
		}
		return []instance.Key{key}, nil
	}

	d, err := e.provider.GetDAG(key.DagID)
	if err != nil {
		return nil, err
	}
	taskIDs, err := d.PartialSubset([]string{key.TaskID}, cascade.Upstream, cascade.Downstream)
	if err != nil {
		return nil, err
	}

	runs, err := e.cascadeRuns(ctx, key, cascade)
	if err != nil {
		return nil, err
	}

	var targets []instance.Key
	for _, runID := range runs {
		tis, err := e.store.ListTaskInstancesByRun(ctx, key.DagID, runID, storage.ListFilter{TaskIDs: taskIDs})
		if err != nil {
			return nil, err
		}
		for _, ti := range tis {
			targets = append(targets, ti.Key())
		}
	}
	return targets, nil
}

// cascadeRuns 按Past/Future标志以锚点run的logical_date为界展开run集合
func (e *Engine) cascadeRuns(ctx context.Context, key instance.Key, cascade CascadeFlags) ([]string, error) {
	anchor, err := e.store.GetDagRun(ctx, key.DagID, key.RunID)
	if err != nil {
		return nil, err
	}
	if !cascade.Past && !cascade.Future {
		return []string{key.RunID}, nil
	}

	start, end := &anchor.LogicalDate, &anchor.LogicalDate
	if cascade.Past {
		start = nil
	}
	if cascade.Future {
		end = nil
	}

	runs, err := e.store.ListDagRunsByDateRange(ctx, key.DagID, start, end)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(runs))
	for _, run := range runs {
		ids = append(ids, run.RunID)
	}
	return ids, nil
}

// setOne 在单个事务内强制设置一个TaskInstance的状态
// 返回是否实际变更以及变更前的状态
func (e *Engine) setOne(ctx context.Context, key instance.Key, newState state.TaskInstanceState) (bool, state.TaskInstanceState, error) {
	changed := false
	var old state.TaskInstanceState

	err := e.store.Transact(ctx, func(txs *storage.TxStore) error {
		ti, err := txs.GetTaskInstanceForUpdate(ctx, key)
		if err != nil {
			return err
		}
		old = ti.State
		if ti.State == newState {
			return nil
		}

		// 被强制取代的已完成try先归档，之后这条try的记录只存在于历史表
		if ti.State.IsTerminal() {
			if _, err := e.archiver.Archive(ctx, txs, ti); err != nil {
				return err
			}
		}

		ti.State = newState
		if newState == state.StateNone {
			ti.StartDate = sql.NullTime{}
			ti.EndDate = sql.NullTime{}
			ti.Duration = sql.NullFloat64{}
			ti.RenderedFields = ""
		}
		if err := txs.UpdateTaskInstance(ctx, ti); err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, old, err
}

// ListTries 返回TaskInstance的全部try记录，按try_number升序（对外导出）
// 归档历史加上活跃行的快照；活跃行处于up_for_retry或none时不算一条try
func (e *Engine) ListTries(ctx context.Context, key instance.Key) ([]*instance.TaskInstanceHistory, error) {
	ti, err := e.store.GetTaskInstance(ctx, key)
	if err != nil {
		return nil, err
	}

	tries, err := e.store.ListHistory(ctx, key)
	if err != nil {
		return nil, err
	}

	if ti.State != state.StateUpForRetry && ti.State != state.StateNone {
		archived := make(map[int]bool, len(tries))
		for _, h := range tries {
			archived[h.TryNumber] = true
		}
		if !archived[ti.TryNumber] {
			tries = append(tries, instance.SnapshotOf(ti))
		}
	}

	sort.Slice(tries, func(i, j int) bool { return tries[i].TryNumber < tries[j].TryNumber })
	return tries, nil
}

// GetTry 返回指定try_number的记录（对外导出）
// 活跃行命中且可计入时直接用快照，否则查归档历史
func (e *Engine) GetTry(ctx context.Context, key instance.Key, tryNumber int) (*instance.TaskInstanceHistory, error) {
	ti, err := e.store.GetTaskInstance(ctx, key)
	if err != nil {
		return nil, err
	}
	if ti.TryNumber == tryNumber && ti.State != state.StateUpForRetry && ti.State != state.StateNone {
		return instance.SnapshotOf(ti), nil
	}
	return e.store.GetHistoryTry(ctx, key, tryNumber)
}

// GetMappedInstances 返回Task的全部动态展开实例（对外导出）
// 零行时回到DAG定义消歧：Task不存在返回ErrTaskNotFound，
// 存在但未声明展开返回ErrNotMappedTask，展开为空集返回空列表
func (e *Engine) GetMappedInstances(ctx context.Context, dagID, runID, taskID string) ([]*instance.TaskInstance, error) {
	d, err := e.provider.GetDAG(dagID)
	if err != nil {
		return nil, err
	}
	if err := mapped.CheckMapped(d, taskID); err != nil {
		return nil, err
	}
	return e.store.ListMappedInstances(ctx, dagID, runID, taskID)
}

// CreateRun 创建DagRun并按DAG定义展开全部TaskInstance（对外导出）
// mapped Task在创建时解析展开数量；run与全部TI在同一个事务内落库
func (e *Engine) CreateRun(ctx context.Context, dagID, runID string, logicalDate time.Time, conf string) (*instance.DagRun, error) {
	d, err := e.provider.GetDAG(dagID)
	if err != nil {
		return nil, err
	}

	run := instance.NewDagRun(dagID, runID, logicalDate)
	run.Conf = conf
	run.DagVersionID = d.VersionID

	err = e.store.Transact(ctx, func(txs *storage.TxStore) error {
		if err := txs.CreateDagRun(ctx, run); err != nil {
			return err
		}
		for _, td := range d.Tasks() {
			indexes := []int{instance.UnmappedIndex}
			if td.NeedsExpansion() {
				indexes, err = mapped.Resolve(td, run)
				if err != nil {
					return err
				}
			}
			for _, idx := range indexes {
				ti := instance.NewTaskInstance(dagID, runID, td.ID, idx)
				ti.DagVersionID = d.VersionID
				if td.Pool != "" {
					ti.Pool = td.Pool
				}
				ti.Queue = td.Queue
				ti.Executor = td.Executor
				if err := txs.CreateTaskInstance(ctx, ti); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create run %s.%s: %w", dagID, runID, err)
	}

	e.emit(events.EventDagRunStateChanged, &events.DagRunStateChangedPayload{
		DagID:    dagID,
		RunID:    runID,
		NewState: run.State,
	})
	return run, nil
}

// GetDagRun 查询DagRun（对外导出）
func (e *Engine) GetDagRun(ctx context.Context, dagID, runID string) (*instance.DagRun, error) {
	return e.store.GetDagRun(ctx, dagID, runID)
}

// emitTIStateChanged 查询try_number后发布状态变更事件
func (e *Engine) emitTIStateChanged(ctx context.Context, key instance.Key, oldState, newState state.TaskInstanceState) {
	tryNumber := 0
	if ti, err := e.store.GetTaskInstance(ctx, key); err == nil {
		tryNumber = ti.TryNumber
	}
	e.emit(events.EventTIStateChanged, &events.TIStateChangedPayload{
		Key:       key,
		OldState:  oldState,
		NewState:  newState,
		TryNumber: tryNumber,
	})
}

func (e *Engine) emit(eventType events.EventType, payload interface{}) {
	if e.bus == nil {
		return
	}
	e.bus.Emit(eventType, payload)
}
