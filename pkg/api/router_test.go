package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dagflow/pkg/core/dag"
	"github.com/LENAX/dagflow/pkg/core/engine"
	"github.com/LENAX/dagflow/pkg/core/instance"
	"github.com/LENAX/dagflow/pkg/core/state"
	"github.com/LENAX/dagflow/pkg/storage"
	"github.com/LENAX/dagflow/pkg/storage/sqlite"
)

func setupTestRouter(t *testing.T) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(sqlite.NewDialect(), filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tasks := []*dag.TaskDefinition{
		{ID: "extract"},
		{ID: "transform", Expansion: &dag.ExpansionSpec{InputKey: "shards"}},
		{ID: "load"},
	}
	d, err := dag.Build("etl", "v1", tasks, map[string][]string{
		"transform": {"extract"},
		"load":      {"transform"},
	})
	require.NoError(t, err)

	registry := dag.NewRegistry()
	require.NoError(t, registry.Register(d))

	eng := engine.New(store, registry, nil, engine.Options{})
	_, err = eng.CreateRun(context.Background(), "etl", "r1",
		time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), `{"shards": [1, 2]}`)
	require.NoError(t, err)

	return SetupRouter(eng, nil, "test"), store
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var envelope struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func TestGetTaskInstance(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doRequest(t, router, http.MethodGet, "/api/v1/dags/etl/runs/r1/tasks/extract", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var view struct {
		TaskID   string `json:"task_id"`
		MapIndex int    `json:"map_index"`
		State    string `json:"state"`
	}
	decodeData(t, w, &view)
	assert.Equal(t, "extract", view.TaskID)
	assert.Equal(t, -1, view.MapIndex)
	assert.Equal(t, "none", view.State)

	w = doRequest(t, router, http.MethodGet, "/api/v1/dags/etl/runs/r1/tasks/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListMapped(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doRequest(t, router, http.MethodGet, "/api/v1/dags/etl/runs/r1/tasks/transform/mapped", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var views []struct {
		MapIndex int `json:"map_index"`
	}
	decodeData(t, w, &views)
	require.Len(t, views, 2)
	assert.Equal(t, 0, views[0].MapIndex)
	assert.Equal(t, 1, views[1].MapIndex)

	// 未声明展开的Task与不存在的Task都返回404，但消息不同
	w = doRequest(t, router, http.MethodGet, "/api/v1/dags/etl/runs/r1/tasks/extract/mapped", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not mapped")

	w = doRequest(t, router, http.MethodGet, "/api/v1/dags/etl/runs/r1/tasks/ghost/mapped", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "task not found")
}

func TestClear_DryRunDefault(t *testing.T) {
	router, store := setupTestRouter(t)
	ctx := context.Background()

	key := instance.Key{DagID: "etl", RunID: "r1", TaskID: "extract", MapIndex: instance.UnmappedIndex}
	ti, err := store.GetTaskInstance(ctx, key)
	require.NoError(t, err)
	ti.State = state.StateFailed
	ti.TryNumber = 1
	require.NoError(t, store.UpdateTaskInstance(ctx, ti))

	// 省略dry_run：只预览
	w := doRequest(t, router, http.MethodPost, "/api/v1/dags/etl/clear",
		map[string]interface{}{"dag_run_id": "r1", "only_failed": true})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		DryRun bool `json:"dry_run"`
		Total  int  `json:"total"`
	}
	decodeData(t, w, &resp)
	assert.True(t, resp.DryRun)
	assert.Equal(t, 1, resp.Total)

	ti, err = store.GetTaskInstance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, state.StateFailed, ti.State, "dry run must not mutate")

	// 显式dry_run=false才变更
	w = doRequest(t, router, http.MethodPost, "/api/v1/dags/etl/clear",
		map[string]interface{}{"dag_run_id": "r1", "only_failed": true, "dry_run": false})
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &resp)
	assert.False(t, resp.DryRun)
	assert.Equal(t, 1, resp.Total)

	ti, err = store.GetTaskInstance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, state.StateNone, ti.State)
}

func TestClear_InvalidRequest(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/api/v1/dags/etl/clear",
		map[string]interface{}{"dag_run_id": "r1", "include_past": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetState(t *testing.T) {
	router, store := setupTestRouter(t)

	w := doRequest(t, router, http.MethodPatch, "/api/v1/dags/etl/runs/r1/tasks/extract/state",
		map[string]interface{}{"new_state": "success"})
	require.Equal(t, http.StatusOK, w.Code)

	ti, err := store.GetTaskInstance(context.Background(),
		instance.Key{DagID: "etl", RunID: "r1", TaskID: "extract", MapIndex: instance.UnmappedIndex})
	require.NoError(t, err)
	assert.Equal(t, state.StateSuccess, ti.State)

	// 不可强制的状态被拒绝
	w = doRequest(t, router, http.MethodPatch, "/api/v1/dags/etl/runs/r1/tasks/extract/state",
		map[string]interface{}{"new_state": "running"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetState_DryRun(t *testing.T) {
	router, store := setupTestRouter(t)

	w := doRequest(t, router, http.MethodPatch, "/api/v1/dags/etl/runs/r1/tasks/extract/state",
		map[string]interface{}{"new_state": "skipped", "downstream": true, "dry_run": true})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Total int `json:"total"`
	}
	decodeData(t, w, &resp)
	// extract + transform[0..1] + load
	assert.Equal(t, 4, resp.Total)

	ti, err := store.GetTaskInstance(context.Background(),
		instance.Key{DagID: "etl", RunID: "r1", TaskID: "extract", MapIndex: instance.UnmappedIndex})
	require.NoError(t, err)
	assert.Equal(t, state.StateNone, ti.State, "dry run must not mutate")
}

func TestTriggerRun(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/api/v1/dags/etl/runs",
		map[string]interface{}{"dag_run_id": "manual_1", "conf": `{"shards": [1]}`})
	require.Equal(t, http.StatusCreated, w.Code)

	var view struct {
		RunID string `json:"run_id"`
		State string `json:"state"`
	}
	decodeData(t, w, &view)
	assert.Equal(t, "manual_1", view.RunID)
	assert.Equal(t, "queued", view.State)

	w = doRequest(t, router, http.MethodGet, "/api/v1/dags/etl/runs/manual_1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth(t *testing.T) {
	router, _ := setupTestRouter(t)
	w := doRequest(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
