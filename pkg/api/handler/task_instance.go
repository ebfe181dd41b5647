// Package handler 实现HTTP API处理器
package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/dagflow/pkg/api/dto"
	"github.com/LENAX/dagflow/pkg/core/engine"
	"github.com/LENAX/dagflow/pkg/core/instance"
	"github.com/LENAX/dagflow/pkg/core/state"
)

// TaskInstanceHandler TaskInstance API处理器
type TaskInstanceHandler struct {
	engine *engine.Engine
}

// NewTaskInstanceHandler 创建TaskInstanceHandler
func NewTaskInstanceHandler(eng *engine.Engine) *TaskInstanceHandler {
	return &TaskInstanceHandler{engine: eng}
}

// keyFromPath 从路径参数构造复合主键，map_index来自可选query参数
func keyFromPath(c *gin.Context) (instance.Key, error) {
	key := instance.Key{
		DagID:    c.Param("dag_id"),
		RunID:    c.Param("run_id"),
		TaskID:   c.Param("task_id"),
		MapIndex: instance.UnmappedIndex,
	}
	if raw := c.Query("map_index"); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil {
			return key, fmt.Errorf("%w: invalid map_index %q", instance.ErrInvalidRequest, raw)
		}
		key.MapIndex = idx
	}
	return key, nil
}

// Get 获取TaskInstance详情
// GET /api/v1/dags/:dag_id/runs/:run_id/tasks/:task_id
func (h *TaskInstanceHandler) Get(c *gin.Context) {
	key, err := keyFromPath(c)
	if err != nil {
		writeError(c, err)
		return
	}

	ti, err := h.engine.GetTaskInstance(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewTaskInstanceView(ti)))
}

// GetMapped 获取指定map_index的动态展开实例
// GET /api/v1/dags/:dag_id/runs/:run_id/tasks/:task_id/mapped/:map_index
func (h *TaskInstanceHandler) GetMapped(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("map_index"))
	if err != nil || idx < 0 {
		writeError(c, fmt.Errorf("%w: invalid map_index %q", instance.ErrInvalidRequest, c.Param("map_index")))
		return
	}

	key := instance.Key{
		DagID:    c.Param("dag_id"),
		RunID:    c.Param("run_id"),
		TaskID:   c.Param("task_id"),
		MapIndex: idx,
	}
	ti, err := h.engine.GetTaskInstance(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewTaskInstanceView(ti)))
}

// ListMapped 列出Task的全部动态展开实例
// GET /api/v1/dags/:dag_id/runs/:run_id/tasks/:task_id/mapped
func (h *TaskInstanceHandler) ListMapped(c *gin.Context) {
	tis, err := h.engine.GetMappedInstances(c.Request.Context(),
		c.Param("dag_id"), c.Param("run_id"), c.Param("task_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	views := make([]dto.TaskInstanceView, 0, len(tis))
	for _, ti := range tis {
		views = append(views, dto.NewTaskInstanceView(ti))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(views))
}

// GetDependencies 评估TaskInstance的调度前置条件
// GET /api/v1/dags/:dag_id/runs/:run_id/tasks/:task_id/dependencies
func (h *TaskInstanceHandler) GetDependencies(c *gin.Context) {
	key, err := keyFromPath(c)
	if err != nil {
		writeError(c, err)
		return
	}

	statuses, err := h.engine.GetDependencies(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewDependencyStatusViews(statuses)))
}

// ListTries 列出TaskInstance的全部try记录
// GET /api/v1/dags/:dag_id/runs/:run_id/tasks/:task_id/tries
func (h *TaskInstanceHandler) ListTries(c *gin.Context) {
	key, err := keyFromPath(c)
	if err != nil {
		writeError(c, err)
		return
	}

	tries, err := h.engine.ListTries(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}

	views := make([]dto.TryView, 0, len(tries))
	for _, record := range tries {
		views = append(views, dto.NewTryView(record))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(views))
}

// GetTry 获取指定try_number的记录
// GET /api/v1/dags/:dag_id/runs/:run_id/tasks/:task_id/tries/:try_number
func (h *TaskInstanceHandler) GetTry(c *gin.Context) {
	key, err := keyFromPath(c)
	if err != nil {
		writeError(c, err)
		return
	}
	tryNumber, err := strconv.Atoi(c.Param("try_number"))
	if err != nil {
		writeError(c, fmt.Errorf("%w: invalid try_number %q", instance.ErrInvalidRequest, c.Param("try_number")))
		return
	}

	record, err := h.engine.GetTry(c.Request.Context(), key, tryNumber)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewTryView(record)))
}

// SetState 外部强制设置TaskInstance状态
// PATCH /api/v1/dags/:dag_id/runs/:run_id/tasks/:task_id/state
func (h *TaskInstanceHandler) SetState(c *gin.Context) {
	key, err := keyFromPath(c)
	if err != nil {
		writeError(c, err)
		return
	}

	var req dto.SetStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("invalid request body: %v", err)))
		return
	}

	newState := state.TaskInstanceState(req.NewState)
	cascade := engine.CascadeFlags{
		Upstream:   req.Upstream,
		Downstream: req.Downstream,
		Past:       req.Past,
		Future:     req.Future,
	}

	var updated []instance.Key
	if req.DryRun {
		updated, err = h.engine.PreviewSetState(c.Request.Context(), key, newState, cascade)
	} else {
		updated, err = h.engine.SetState(c.Request.Context(), key, newState, cascade)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.SetStateResponse{
		Total:   len(updated),
		Updated: updated,
	}))
}

// Delete 删除TaskInstance，归档历史保留
// DELETE /api/v1/dags/:dag_id/runs/:run_id/tasks/:task_id
func (h *TaskInstanceHandler) Delete(c *gin.Context) {
	key, err := keyFromPath(c)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := h.engine.DeleteTaskInstance(c.Request.Context(), key); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"message": "task instance deleted",
	}))
}
