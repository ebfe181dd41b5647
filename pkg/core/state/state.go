// Package state 定义TaskInstance和DagRun的状态机
package state

// TaskInstanceState TaskInstance状态（对外导出）
type TaskInstanceState string

const (
	// StateNone 未调度（初始状态，清除后也会回到此状态）
	StateNone TaskInstanceState = "none"
	// StateScheduled 已调度，等待进入队列
	StateScheduled TaskInstanceState = "scheduled"
	// StateQueued 已入队，等待Executor领取
	StateQueued TaskInstanceState = "queued"
	// StateRunning 正在执行
	StateRunning TaskInstanceState = "running"
	// StateSuccess 执行成功（本次try的终态）
	StateSuccess TaskInstanceState = "success"
	// StateFailed 执行失败（本次try的终态）
	StateFailed TaskInstanceState = "failed"
	// StateUpForRetry 等待重试
	StateUpForRetry TaskInstanceState = "up_for_retry"
	// StateUpForReschedule 等待重新调度（Sensor场景）
	StateUpForReschedule TaskInstanceState = "up_for_reschedule"
	// StateUpstreamFailed 上游失败导致无法执行（终态）
	StateUpstreamFailed TaskInstanceState = "upstream_failed"
	// StateSkipped 已跳过（终态）
	StateSkipped TaskInstanceState = "skipped"
	// StateRemoved Task已从DAG定义中移除（终态）
	StateRemoved TaskInstanceState = "removed"
	// StateRestarting 正在重启
	StateRestarting TaskInstanceState = "restarting"
	// StateDeferred 已挂起，等待外部Trigger唤醒
	StateDeferred TaskInstanceState = "deferred"
)

// DagRunState DagRun状态（对外导出）
type DagRunState string

const (
	RunStateQueued  DagRunState = "queued"
	RunStateRunning DagRunState = "running"
	RunStateSuccess DagRunState = "success"
	RunStateFailed  DagRunState = "failed"
)

// AllStates 所有合法的TaskInstance状态（对外导出）
var AllStates = []TaskInstanceState{
	StateNone, StateScheduled, StateQueued, StateRunning,
	StateSuccess, StateFailed, StateUpForRetry, StateUpForReschedule,
	StateUpstreamFailed, StateSkipped, StateRemoved, StateRestarting,
	StateDeferred,
}

// terminalStates 本次try的终态集合
var terminalStates = map[TaskInstanceState]bool{
	StateSuccess:        true,
	StateFailed:         true,
	StateSkipped:        true,
	StateRemoved:        true,
	StateUpstreamFailed: true,
}

// IsValid 判断状态是否合法（对外导出）
func (s TaskInstanceState) IsValid() bool {
	for _, st := range AllStates {
		if st == s {
			return true
		}
	}
	return false
}

// IsTerminal 判断是否为本次try的终态（对外导出）
func (s TaskInstanceState) IsTerminal() bool {
	return terminalStates[s]
}

// String 实现Stringer接口
func (s TaskInstanceState) String() string {
	return string(s)
}

// String 实现Stringer接口
func (s DagRunState) String() string {
	return string(s)
}

// IsValid 判断DagRun状态是否合法（对外导出）
func (s DagRunState) IsValid() bool {
	switch s {
	case RunStateQueued, RunStateRunning, RunStateSuccess, RunStateFailed:
		return true
	}
	return false
}
