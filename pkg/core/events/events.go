// Package events 提供状态变更的事件总线
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/LENAX/dagflow/pkg/core/instance"
	"github.com/LENAX/dagflow/pkg/core/state"
)

// EventType 事件类型
type EventType string

const (
	// EventTIStateChanged TaskInstance状态变更
	EventTIStateChanged EventType = "task_instance.state_changed"
	// EventDagRunStateChanged DagRun状态变更
	EventDagRunStateChanged EventType = "dag_run.state_changed"
	// EventRunCleared 一次clear操作完成
	EventRunCleared EventType = "run.cleared"
)

// AllEventTypes 全部事件类型（对外导出）
var AllEventTypes = []EventType{
	EventTIStateChanged,
	EventDagRunStateChanged,
	EventRunCleared,
}

// Event 事件基础结构（对外导出）
// 事件在变更事务提交之后发布，消费端看到的一定是已落库的事实
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEvent 创建事件，payload序列化失败时返回错误（对外导出）
func NewEvent(eventType EventType, payload interface{}) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   raw,
	}, nil
}

// TIStateChangedPayload TaskInstance状态变更事件负载
type TIStateChangedPayload struct {
	Key       instance.Key            `json:"key"`
	OldState  state.TaskInstanceState `json:"old_state"`
	NewState  state.TaskInstanceState `json:"new_state"`
	TryNumber int                     `json:"try_number"`
}

// DagRunStateChangedPayload DagRun状态变更事件负载
type DagRunStateChangedPayload struct {
	DagID    string            `json:"dag_id"`
	RunID    string            `json:"run_id"`
	OldState state.DagRunState `json:"old_state"`
	NewState state.DagRunState `json:"new_state"`
}

// RunClearedPayload clear完成事件负载
type RunClearedPayload struct {
	DagID        string         `json:"dag_id"`
	Keys         []instance.Key `json:"keys"`
	ResetDagRuns bool           `json:"reset_dag_runs"`
}
