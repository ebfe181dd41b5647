package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dagflow/pkg/core/dag"
	"github.com/LENAX/dagflow/pkg/storage"
)

func buildScheduledDAG(t *testing.T, id, schedule string, paused bool) *dag.DAG {
	t.Helper()
	d, err := dag.Build(id, "v1", []*dag.TaskDefinition{{ID: "only_task"}}, nil)
	require.NoError(t, err)
	d.Schedule = schedule
	d.Paused = paused
	return d
}

func TestScheduler_RegisterDAG(t *testing.T) {
	eng, _, registry := newTestEngine(t)
	sched := NewScheduler(eng)
	defer sched.Stop()

	// 无schedule与已暂停的DAG直接跳过
	require.NoError(t, sched.RegisterDAG(buildScheduledDAG(t, "manual_only", "", false)))
	require.NoError(t, sched.RegisterDAG(buildScheduledDAG(t, "paused", "@hourly", true)))
	assert.Empty(t, sched.entries)

	d := buildScheduledDAG(t, "nightly", "0 2 * * *", false)
	require.NoError(t, registry.Register(d))
	require.NoError(t, sched.RegisterDAG(d))
	assert.Len(t, sched.entries, 1)

	// 重复注册报错
	assert.Error(t, sched.RegisterDAG(d))

	// 非法cron表达式
	assert.Error(t, sched.RegisterDAG(buildScheduledDAG(t, "broken", "not a cron expr", false)))

	sched.UnregisterDAG("nightly")
	assert.Empty(t, sched.entries)
}

func TestScheduler_TriggerCreatesRun(t *testing.T) {
	eng, store, registry := newTestEngine(t)
	d := buildScheduledDAG(t, "nightly", "@daily", false)
	require.NoError(t, registry.Register(d))

	sched := NewScheduler(eng)
	defer sched.Stop()

	sched.trigger("nightly")

	runs, err := store.ListDagRunsByDateRange(context.Background(), "nightly", nil, nil)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, strings.HasPrefix(runs[0].RunID, scheduledRunPrefix))

	tis, err := store.ListTaskInstancesByRun(context.Background(), "nightly", runs[0].RunID, storage.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, tis, 1)

	// 触发时已暂停的DAG不再产生run
	d.Paused = true
	sched.trigger("nightly")
	runs, err = store.ListDagRunsByDateRange(context.Background(), "nightly", nil, nil)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
