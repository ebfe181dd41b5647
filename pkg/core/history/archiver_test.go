package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dagflow/pkg/core/instance"
	"github.com/LENAX/dagflow/pkg/core/state"
)

// fakeWriter 模拟幂等的归档写入端
type fakeWriter struct {
	records map[string]*instance.TaskInstanceHistory
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{records: make(map[string]*instance.TaskInstanceHistory)}
}

func (w *fakeWriter) InsertHistory(_ context.Context, h *instance.TaskInstanceHistory) error {
	key := instance.Key{DagID: h.DagID, RunID: h.RunID, TaskID: h.TaskID, MapIndex: h.MapIndex}
	id := key.String() + string(rune(h.TryNumber))
	if _, exists := w.records[id]; exists {
		return nil // 唯一约束冲突静默跳过
	}
	w.records[id] = h
	return nil
}

func failedTI(tryNumber int) *instance.TaskInstance {
	ti := instance.NewTaskInstance("d", "r1", "t", instance.UnmappedIndex)
	ti.State = state.StateFailed
	ti.TryNumber = tryNumber
	return ti
}

func TestArchive_CopiesTryFields(t *testing.T) {
	w := newFakeWriter()
	a := NewArchiver()

	ti := failedTI(1)
	ti.Pool = "etl_pool"
	ti.Queue = "default"

	archived, err := a.Archive(context.Background(), w, ti)
	require.NoError(t, err)
	assert.True(t, archived)
	require.Len(t, w.records, 1)

	for _, h := range w.records {
		assert.Equal(t, "d", h.DagID)
		assert.Equal(t, 1, h.TryNumber)
		assert.Equal(t, state.StateFailed, h.State)
		assert.Equal(t, "etl_pool", h.Pool)
		assert.NotEmpty(t, h.ID)
	}
}

func TestArchive_Idempotent(t *testing.T) {
	w := newFakeWriter()
	a := NewArchiver()

	ti := failedTI(2)
	_, err := a.Archive(context.Background(), w, ti)
	require.NoError(t, err)
	_, err = a.Archive(context.Background(), w, ti)
	require.NoError(t, err)

	assert.Len(t, w.records, 1, "archiving the same try twice must keep exactly one record")
}

func TestArchive_SkipsDefaultStates(t *testing.T) {
	w := newFakeWriter()
	a := NewArchiver()

	for _, s := range []state.TaskInstanceState{state.StateUpForRetry, state.StateNone} {
		ti := failedTI(1)
		ti.State = s
		archived, err := a.Archive(context.Background(), w, ti)
		require.NoError(t, err)
		assert.False(t, archived, "state %s must skip archiving", s)
	}
	assert.Empty(t, w.records)
}

func TestArchive_DeferredBoundaryIsConfigurable(t *testing.T) {
	// deferred是否跳过归档未有定论：默认归档，但可以配置成跳过
	ti := failedTI(1)
	ti.State = state.StateDeferred

	w := newFakeWriter()
	archived, err := NewArchiver().Archive(context.Background(), w, ti)
	require.NoError(t, err)
	assert.True(t, archived, "default policy archives deferred tries")

	w = newFakeWriter()
	custom := NewArchiver(state.StateUpForRetry, state.StateNone, state.StateDeferred)
	archived, err = custom.Archive(context.Background(), w, ti)
	require.NoError(t, err)
	assert.False(t, archived, "custom policy may skip deferred tries")
}
