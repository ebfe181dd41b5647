package dto

import (
	"time"

	"github.com/LENAX/dagflow/pkg/core/clearing"
)

// ClearRequest clear请求体
// DryRun默认为true：HTTP端先预览，第二次带dry_run=false的调用才真正变更
type ClearRequest struct {
	RunID              string     `json:"dag_run_id" binding:"omitempty"`
	StartDate          *time.Time `json:"start_date" binding:"omitempty"`
	EndDate            *time.Time `json:"end_date" binding:"omitempty"`
	IncludePast        bool       `json:"include_past"`
	IncludeFuture      bool       `json:"include_future"`
	TaskIDs            []string   `json:"task_ids" binding:"omitempty"`
	IncludeUpstream    bool       `json:"include_upstream"`
	IncludeDownstream  bool       `json:"include_downstream"`
	OnlyFailed         bool       `json:"only_failed"`
	OnlyRunning        bool       `json:"only_running"`
	DryRun             *bool      `json:"dry_run"`
	ResetDagRuns       bool       `json:"reset_dag_runs"`
	RunOnLatestVersion bool       `json:"run_on_latest_version"`
}

// ToRequest 转换为clearing请求，dag_id取自URL路径
func (r *ClearRequest) ToRequest(dagID string) *clearing.Request {
	dryRun := true
	if r.DryRun != nil {
		dryRun = *r.DryRun
	}
	return &clearing.Request{
		DagID:              dagID,
		RunID:              r.RunID,
		StartDate:          r.StartDate,
		EndDate:            r.EndDate,
		IncludePast:        r.IncludePast,
		IncludeFuture:      r.IncludeFuture,
		TaskIDs:            r.TaskIDs,
		IncludeUpstream:    r.IncludeUpstream,
		IncludeDownstream:  r.IncludeDownstream,
		OnlyFailed:         r.OnlyFailed,
		OnlyRunning:        r.OnlyRunning,
		DryRun:             dryRun,
		ResetDagRuns:       r.ResetDagRuns,
		RunOnLatestVersion: r.RunOnLatestVersion,
	}
}

// SetStateRequest 状态设置请求体
// DryRun为true时只返回将被触及的主键集合，不变更
type SetStateRequest struct {
	NewState   string `json:"new_state" binding:"required"`
	Upstream   bool   `json:"upstream"`
	Downstream bool   `json:"downstream"`
	Past       bool   `json:"past"`
	Future     bool   `json:"future"`
	DryRun     bool   `json:"dry_run"`
}

// TriggerRunRequest 手动触发DagRun请求体
type TriggerRunRequest struct {
	RunID       string     `json:"dag_run_id" binding:"required"`
	LogicalDate *time.Time `json:"logical_date" binding:"omitempty"`
	Conf        string     `json:"conf" binding:"omitempty"`
}
