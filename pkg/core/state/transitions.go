package state

import "fmt"

// ErrInvalidStateTransition 非法状态转换错误（对外导出）
// 调用方用errors.Is判断，不应重试
var ErrInvalidStateTransition = fmt.Errorf("invalid state transition")

// transitions 状态转换表：from -> 允许进入的to集合
// 转换规则不是自由的：Executor驱动的正常流转必须遵守此表
// 约束：只有none/scheduled/up_for_retry可以进入scheduled/queued
var transitions = map[TaskInstanceState][]TaskInstanceState{
	StateNone:            {StateScheduled, StateQueued, StateSkipped, StateUpstreamFailed, StateRemoved},
	StateScheduled:       {StateScheduled, StateQueued, StateNone, StateSkipped, StateUpstreamFailed, StateRemoved},
	StateQueued:          {StateRunning, StateNone, StateFailed, StateRestarting, StateRemoved},
	StateRunning:         {StateSuccess, StateFailed, StateUpForRetry, StateUpForReschedule, StateDeferred, StateRestarting},
	StateRestarting:      {StateNone, StateFailed, StateUpForRetry},
	StateUpForRetry:      {StateScheduled, StateQueued, StateFailed},
	StateUpForReschedule: {StateNone, StateFailed, StateUpForRetry},
	StateDeferred:        {StateRunning, StateNone, StateFailed, StateUpForRetry},
	// 终态只能通过clear（回到none）或外部强制设置离开
	StateSuccess:        {},
	StateFailed:         {},
	StateSkipped:        {},
	StateRemoved:        {},
	StateUpstreamFailed: {},
}

// forceable 外部请求（如手动mark success/failed/skipped）允许强制进入的状态
var forceable = map[TaskInstanceState]bool{
	StateSuccess: true,
	StateFailed:  true,
	StateSkipped: true,
	StateNone:    true,
}

// CanTransition 判断from状态是否允许转换到to状态（对外导出）
func CanTransition(from, to TaskInstanceState) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition 校验状态转换，非法时返回ErrInvalidStateTransition（对外导出）
func CheckTransition(from, to TaskInstanceState) error {
	if !to.IsValid() {
		return fmt.Errorf("%w: unknown target state %q", ErrInvalidStateTransition, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
	}
	return nil
}

// IsForceable 判断状态是否允许被外部请求强制设置（对外导出）
// 强制设置绕过Executor驱动的正常流转，但被取代的已完成try仍须先归档
func IsForceable(to TaskInstanceState) bool {
	return forceable[to]
}
