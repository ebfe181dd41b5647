package dagflow

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestGetTaskInstance_MapIndexParam(t *testing.T) {
	var gotPath, gotQuery string
	client := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"code":    0,
			"message": "success",
			"data": map[string]interface{}{
				"dag_id": "etl", "run_id": "r1", "task_id": "transform",
				"map_index": 2, "state": "success",
			},
		})
	})

	ti, err := client.GetTaskInstance("etl", "r1", "transform", 2)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/dags/etl/runs/r1/tasks/transform", gotPath)
	assert.Equal(t, "map_index=2", gotQuery)
	assert.Equal(t, "transform", ti.TaskID)
	assert.Equal(t, 2, ti.MapIndex)
}

func TestErrorMessagePassedVerbatim(t *testing.T) {
	// 服务端错误消息可能含有%号，必须原样透传，不能被当作格式串解析
	msg := "task not found: 100% of pool %s slots busy"
	client := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"code":    404,
			"message": msg,
		})
	})

	_, err := client.GetTaskInstance("etl", "r1", "extract", -1)
	require.Error(t, err)
	assert.Equal(t, msg, err.Error())

	_, err = client.ListMapped("etl", "r1", "transform")
	require.Error(t, err)
	assert.Equal(t, msg, err.Error())

	err = client.DeleteTaskInstance("etl", "r1", "extract", -1)
	require.Error(t, err)
	assert.Equal(t, msg, err.Error())
}
