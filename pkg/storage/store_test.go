package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dagflow/pkg/core/instance"
	"github.com/LENAX/dagflow/pkg/core/state"
	"github.com/LENAX/dagflow/pkg/storage/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(sqlite.NewDialect(), filepath.Join(t.TempDir(), "store_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedTestRun(t *testing.T, store *Store, runID string, logicalDate time.Time) {
	t.Helper()
	require.NoError(t, store.CreateDagRun(context.Background(),
		instance.NewDagRun("etl", runID, logicalDate)))
}

func TestTaskInstanceCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedTestRun(t, store, "r1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	ti := instance.NewTaskInstance("etl", "r1", "extract", instance.UnmappedIndex)
	require.NoError(t, store.CreateTaskInstance(ctx, ti))

	got, err := store.GetTaskInstance(ctx, ti.Key())
	require.NoError(t, err)
	assert.Equal(t, state.StateNone, got.State)
	assert.Equal(t, 0, got.TryNumber)
	assert.Equal(t, "default_pool", got.Pool)

	got.State = state.StateRunning
	got.TryNumber = 1
	got.StartDate = sql.NullTime{Time: time.Now(), Valid: true}
	require.NoError(t, store.UpdateTaskInstance(ctx, got))

	got, err = store.GetTaskInstance(ctx, ti.Key())
	require.NoError(t, err)
	assert.Equal(t, state.StateRunning, got.State)
	assert.True(t, got.StartDate.Valid)

	require.NoError(t, store.DeleteTaskInstance(ctx, ti.Key()))
	_, err = store.GetTaskInstance(ctx, ti.Key())
	assert.ErrorIs(t, err, instance.ErrNotFound)

	// 不存在的行：更新和删除都报ErrNotFound
	assert.ErrorIs(t, store.UpdateTaskInstance(ctx, got), instance.ErrNotFound)
	assert.ErrorIs(t, store.DeleteTaskInstance(ctx, ti.Key()), instance.ErrNotFound)
}

func TestTaskInstanceUniqueKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedTestRun(t, store, "r1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	first := instance.NewTaskInstance("etl", "r1", "extract", instance.UnmappedIndex)
	require.NoError(t, store.CreateTaskInstance(ctx, first))

	// 同一复合主键的第二行被唯一约束拒绝
	dup := instance.NewTaskInstance("etl", "r1", "extract", instance.UnmappedIndex)
	assert.Error(t, store.CreateTaskInstance(ctx, dup))

	// map_index不同则是另一个实例
	mapped := instance.NewTaskInstance("etl", "r1", "extract", 0)
	assert.NoError(t, store.CreateTaskInstance(ctx, mapped))
}

func TestInsertHistoryIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ti := instance.NewTaskInstance("etl", "r1", "extract", instance.UnmappedIndex)
	ti.State = state.StateFailed
	ti.TryNumber = 1

	require.NoError(t, store.InsertHistory(ctx, instance.SnapshotOf(ti)))
	// 同一try重复归档静默跳过
	require.NoError(t, store.InsertHistory(ctx, instance.SnapshotOf(ti)))

	records, err := store.ListHistory(ctx, ti.Key())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, state.StateFailed, records[0].State)

	// 下一个try是新行
	ti.TryNumber = 2
	ti.State = state.StateSuccess
	require.NoError(t, store.InsertHistory(ctx, instance.SnapshotOf(ti)))

	records, err = store.ListHistory(ctx, ti.Key())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].TryNumber)
	assert.Equal(t, 2, records[1].TryNumber)

	got, err := store.GetHistoryTry(ctx, ti.Key(), 2)
	require.NoError(t, err)
	assert.Equal(t, state.StateSuccess, got.State)

	_, err = store.GetHistoryTry(ctx, ti.Key(), 9)
	assert.ErrorIs(t, err, instance.ErrNotFound)
}

func TestListByRunWithFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedTestRun(t, store, "r1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	for taskID, st := range map[string]state.TaskInstanceState{
		"extract":   state.StateSuccess,
		"transform": state.StateFailed,
		"load":      state.StateUpstreamFailed,
	} {
		ti := instance.NewTaskInstance("etl", "r1", taskID, instance.UnmappedIndex)
		ti.State = st
		require.NoError(t, store.CreateTaskInstance(ctx, ti))
	}

	all, err := store.ListTaskInstancesByRun(ctx, "etl", "r1", ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// task_id排序
	assert.Equal(t, "extract", all[0].TaskID)
	assert.Equal(t, "load", all[1].TaskID)

	failed, err := store.ListTaskInstancesByRun(ctx, "etl", "r1", ListFilter{
		States: []state.TaskInstanceState{state.StateFailed, state.StateUpstreamFailed},
	})
	require.NoError(t, err)
	require.Len(t, failed, 2)

	subset, err := store.ListTaskInstancesByRun(ctx, "etl", "r1", ListFilter{
		TaskIDs: []string{"extract"},
		States:  []state.TaskInstanceState{state.StateSuccess},
	})
	require.NoError(t, err)
	require.Len(t, subset, 1)
	assert.Equal(t, "extract", subset[0].TaskID)
}

func TestListByDateRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, runID := range []string{"r0", "r1", "r2"} {
		seedTestRun(t, store, runID, base.AddDate(0, 0, i))
		ti := instance.NewTaskInstance("etl", runID, "extract", instance.UnmappedIndex)
		require.NoError(t, store.CreateTaskInstance(ctx, ti))
	}

	mid := base.AddDate(0, 0, 1)
	tis, err := store.ListTaskInstancesByDateRange(ctx, "etl", &mid, nil, ListFilter{})
	require.NoError(t, err)
	require.Len(t, tis, 2)
	// logical_date排序
	assert.Equal(t, "r1", tis[0].RunID)
	assert.Equal(t, "r2", tis[1].RunID)

	tis, err = store.ListTaskInstancesByDateRange(ctx, "etl", nil, &mid, ListFilter{})
	require.NoError(t, err)
	require.Len(t, tis, 2)
	assert.Equal(t, "r0", tis[0].RunID)

	runs, err := store.ListDagRunsByDateRange(ctx, "etl", &mid, &mid)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].RunID)
}

func TestDagRunStateTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := instance.NewDagRun("etl", "r1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	run.State = state.RunStateFailed
	run.EndDate = sql.NullTime{Time: time.Now(), Valid: true}
	require.NoError(t, store.CreateDagRun(ctx, run))

	// 回到queued时清空end_date
	require.NoError(t, store.UpdateDagRunState(ctx, "etl", "r1", state.RunStateQueued))
	got, err := store.GetDagRun(ctx, "etl", "r1")
	require.NoError(t, err)
	assert.Equal(t, state.RunStateQueued, got.State)
	assert.False(t, got.EndDate.Valid)

	assert.ErrorIs(t, store.UpdateDagRunState(ctx, "etl", "ghost", state.RunStateQueued), instance.ErrNotFound)
	_, err = store.GetDagRun(ctx, "etl", "ghost")
	assert.ErrorIs(t, err, instance.ErrNotFound)
}

func TestDeleteDagRunCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedTestRun(t, store, "r1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	ti := instance.NewTaskInstance("etl", "r1", "extract", instance.UnmappedIndex)
	require.NoError(t, store.CreateTaskInstance(ctx, ti))
	ti.State = state.StateFailed
	ti.TryNumber = 1
	require.NoError(t, store.InsertHistory(ctx, instance.SnapshotOf(ti)))

	require.NoError(t, store.Transact(ctx, func(txs *TxStore) error {
		return txs.DeleteDagRun(ctx, "etl", "r1")
	}))

	_, err := store.GetDagRun(ctx, "etl", "r1")
	assert.ErrorIs(t, err, instance.ErrNotFound)
	_, err = store.GetTaskInstance(ctx, ti.Key())
	assert.ErrorIs(t, err, instance.ErrNotFound)

	// 归档历史不随run删除
	records, err := store.ListHistory(ctx, ti.Key())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedTestRun(t, store, "r1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	seedTestRun(t, store, "r2", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))

	mk := func(runID, taskID string, st state.TaskInstanceState) {
		ti := instance.NewTaskInstance("etl", runID, taskID, instance.UnmappedIndex)
		ti.State = st
		require.NoError(t, store.CreateTaskInstance(ctx, ti))
	}
	mk("r1", "extract", state.StateRunning)
	mk("r1", "transform", state.StateQueued)
	mk("r1", "load", state.StateSuccess)
	mk("r2", "extract", state.StateRestarting)

	occupied, err := store.CountPoolOccupied(ctx, "default_pool")
	require.NoError(t, err)
	assert.Equal(t, 3, occupied)

	active, err := store.CountActiveInRun(ctx, "etl", "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, active)

	perTask, err := store.CountActiveForTask(ctx, "etl", "extract")
	require.NoError(t, err)
	assert.Equal(t, 2, perTask)
}

func TestGetTaskStatesInRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedTestRun(t, store, "r1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	// mapped实例每个下标各算一条
	for i := 0; i < 3; i++ {
		ti := instance.NewTaskInstance("etl", "r1", "transform", i)
		ti.State = state.StateSuccess
		require.NoError(t, store.CreateTaskInstance(ctx, ti))
	}

	states, err := store.GetTaskStatesInRun(ctx, "etl", "r1", []string{"transform"})
	require.NoError(t, err)
	assert.Len(t, states, 3)

	states, err = store.GetTaskStatesInRun(ctx, "etl", "r1", nil)
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestPoolUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertPool(ctx, &instance.Pool{Name: "default_pool", Slots: 128}))
	require.NoError(t, store.UpsertPool(ctx, &instance.Pool{Name: "default_pool", Slots: 64}))

	pool, err := store.GetPool(ctx, "default_pool")
	require.NoError(t, err)
	assert.Equal(t, 64, pool.Slots)

	_, err = store.GetPool(ctx, "ghost_pool")
	assert.ErrorIs(t, err, instance.ErrNotFound)
}

func TestTransactRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedTestRun(t, store, "r1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	sentinel := errors.New("boom")
	err := store.Transact(ctx, func(txs *TxStore) error {
		ti := instance.NewTaskInstance("etl", "r1", "extract", instance.UnmappedIndex)
		if err := txs.CreateTaskInstance(ctx, ti); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	key := instance.Key{DagID: "etl", RunID: "r1", TaskID: "extract", MapIndex: instance.UnmappedIndex}
	_, err = store.GetTaskInstance(ctx, key)
	assert.ErrorIs(t, err, instance.ErrNotFound)
}

func TestTransactLockedReadSeesUncommittedWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedTestRun(t, store, "r1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	ti := instance.NewTaskInstance("etl", "r1", "extract", instance.UnmappedIndex)
	require.NoError(t, store.CreateTaskInstance(ctx, ti))

	require.NoError(t, store.Transact(ctx, func(txs *TxStore) error {
		locked, err := txs.GetTaskInstanceForUpdate(ctx, ti.Key())
		if err != nil {
			return err
		}
		locked.State = state.StateQueued
		if err := txs.UpdateTaskInstance(ctx, locked); err != nil {
			return err
		}

		// 同事务内可见
		again, err := txs.GetTaskInstanceForUpdate(ctx, ti.Key())
		if err != nil {
			return err
		}
		assert.Equal(t, state.StateQueued, again.State)
		return nil
	}))

	got, err := store.GetTaskInstance(ctx, ti.Key())
	require.NoError(t, err)
	assert.Equal(t, state.StateQueued, got.State)
}
