// Package history 在TaskInstance重试前将上一次try归档为不可变历史记录
package history

import (
	"context"
	"fmt"

	"github.com/LENAX/dagflow/pkg/core/instance"
	"github.com/LENAX/dagflow/pkg/core/state"
)

// Writer 归档记录的写入端（对外导出）
// 由存储边界实现；写入必须幂等：同一try_number重复写入是no-op
type Writer interface {
	InsertHistory(ctx context.Context, h *instance.TaskInstanceHistory) error
}

// DefaultSkipStates 默认跳过归档的状态（对外导出）
// up_for_retry的try已在进入该状态时被隐式取代，none的try从未真正开始，
// 两者都没有到达可记录的终点。deferred是否也该跳过尚无定论，因此
// 跳过集合做成可配置而不是写死
var DefaultSkipStates = []state.TaskInstanceState{
	state.StateUpForRetry,
	state.StateNone,
}

// Archiver 历史归档器（对外导出）
type Archiver struct {
	skip map[state.TaskInstanceState]bool
}

// NewArchiver 创建归档器，skipStates为空时使用DefaultSkipStates（对外导出）
func NewArchiver(skipStates ...state.TaskInstanceState) *Archiver {
	if len(skipStates) == 0 {
		skipStates = DefaultSkipStates
	}
	skip := make(map[state.TaskInstanceState]bool, len(skipStates))
	for _, s := range skipStates {
		skip[s] = true
	}
	return &Archiver{skip: skip}
}

// ShouldSkip 判断该状态的try是否跳过归档（对外导出）
func (a *Archiver) ShouldSkip(s state.TaskInstanceState) bool {
	return a.skip[s]
}

// Archive 在活跃TaskInstance的try级字段被覆盖前写入一条归档记录（对外导出）
// 必须与随后的TI变更在同一个事务内执行：要么归档和变更都生效，要么都不生效。
// 返回是否实际写入了归档
func (a *Archiver) Archive(ctx context.Context, w Writer, ti *instance.TaskInstance) (bool, error) {
	if a.ShouldSkip(ti.State) {
		return false, nil
	}
	if err := w.InsertHistory(ctx, instance.SnapshotOf(ti)); err != nil {
		return false, fmt.Errorf("archive try %d of %s: %w", ti.TryNumber, ti.Key(), err)
	}
	return true, nil
}
