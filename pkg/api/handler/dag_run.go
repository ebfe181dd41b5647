package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/dagflow/pkg/api/dto"
	"github.com/LENAX/dagflow/pkg/core/engine"
)

// DagRunHandler DagRun与clear的API处理器
type DagRunHandler struct {
	engine *engine.Engine
}

// NewDagRunHandler 创建DagRunHandler
func NewDagRunHandler(eng *engine.Engine) *DagRunHandler {
	return &DagRunHandler{engine: eng}
}

// Trigger 手动触发一个DagRun
// POST /api/v1/dags/:dag_id/runs
func (h *DagRunHandler) Trigger(c *gin.Context) {
	var req dto.TriggerRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("invalid request body: %v", err)))
		return
	}

	logicalDate := time.Now().UTC()
	if req.LogicalDate != nil {
		logicalDate = *req.LogicalDate
	}

	run, err := h.engine.CreateRun(c.Request.Context(), c.Param("dag_id"), req.RunID, logicalDate, req.Conf)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(dto.NewDagRunView(run)))
}

// Get 获取DagRun详情
// GET /api/v1/dags/:dag_id/runs/:run_id
func (h *DagRunHandler) Get(c *gin.Context) {
	run, err := h.engine.GetDagRun(c.Request.Context(), c.Param("dag_id"), c.Param("run_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewDagRunView(run)))
}

// Clear 按范围重置TaskInstance
// POST /api/v1/dags/:dag_id/clear
// dry_run默认true：省略该字段只得到预览，真正变更需要显式dry_run=false
func (h *DagRunHandler) Clear(c *gin.Context) {
	var req dto.ClearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("invalid request body: %v", err)))
		return
	}

	clearReq := req.ToRequest(c.Param("dag_id"))
	affected, err := h.engine.Clear(c.Request.Context(), clearReq)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ClearResponse{
		DryRun:   clearReq.DryRun,
		Total:    len(affected),
		Affected: affected,
	}))
}
