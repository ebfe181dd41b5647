package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskInstanceState_IsValid(t *testing.T) {
	for _, s := range AllStates {
		assert.True(t, s.IsValid(), "state %s should be valid", s)
	}
	assert.False(t, TaskInstanceState("paused").IsValid())
	assert.False(t, TaskInstanceState("").IsValid())
}

func TestTaskInstanceState_IsTerminal(t *testing.T) {
	terminal := []TaskInstanceState{StateSuccess, StateFailed, StateSkipped, StateRemoved, StateUpstreamFailed}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "state %s should be terminal", s)
	}

	nonTerminal := []TaskInstanceState{StateNone, StateScheduled, StateQueued, StateRunning, StateUpForRetry, StateUpForReschedule, StateRestarting, StateDeferred}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "state %s should not be terminal", s)
	}
}

func TestCheckTransition_QueuedOnlyFromSchedulableStates(t *testing.T) {
	// 只有none/scheduled/up_for_retry可以进入queued
	allowed := map[TaskInstanceState]bool{
		StateNone:       true,
		StateScheduled:  true,
		StateUpForRetry: true,
	}

	for _, from := range AllStates {
		err := CheckTransition(from, StateQueued)
		if allowed[from] {
			assert.NoError(t, err, "%s -> queued should be allowed", from)
		} else {
			require.Error(t, err, "%s -> queued should be rejected", from)
			assert.ErrorIs(t, err, ErrInvalidStateTransition)
		}
	}
}

func TestCheckTransition_ScheduledOnlyFromSchedulableStates(t *testing.T) {
	allowed := map[TaskInstanceState]bool{
		StateNone:       true,
		StateScheduled:  true,
		StateUpForRetry: true,
	}

	for _, from := range AllStates {
		err := CheckTransition(from, StateScheduled)
		if allowed[from] {
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, ErrInvalidStateTransition)
		}
	}
}

func TestCheckTransition_TerminalStatesAreFinal(t *testing.T) {
	terminal := []TaskInstanceState{StateSuccess, StateFailed, StateSkipped, StateRemoved, StateUpstreamFailed}
	for _, from := range terminal {
		for _, to := range AllStates {
			assert.ErrorIs(t, CheckTransition(from, to), ErrInvalidStateTransition,
				"%s -> %s should be rejected", from, to)
		}
	}
}

func TestCheckTransition_RunningFlow(t *testing.T) {
	tests := []struct {
		name    string
		from    TaskInstanceState
		to      TaskInstanceState
		wantErr bool
	}{
		{"queued to running", StateQueued, StateRunning, false},
		{"running to success", StateRunning, StateSuccess, false},
		{"running to failed", StateRunning, StateFailed, false},
		{"running to retry", StateRunning, StateUpForRetry, false},
		{"running to deferred", StateRunning, StateDeferred, false},
		{"deferred to running", StateDeferred, StateRunning, false},
		{"none to running", StateNone, StateRunning, true},
		{"scheduled to running", StateScheduled, StateRunning, true},
		{"running to unknown", StateRunning, TaskInstanceState("bogus"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTransition(tt.from, tt.to)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidStateTransition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsForceable(t *testing.T) {
	assert.True(t, IsForceable(StateSuccess))
	assert.True(t, IsForceable(StateFailed))
	assert.True(t, IsForceable(StateSkipped))
	assert.True(t, IsForceable(StateNone))
	assert.False(t, IsForceable(StateRunning))
	assert.False(t, IsForceable(StateQueued))
	assert.False(t, IsForceable(StateDeferred))
}

func TestDagRunState_IsValid(t *testing.T) {
	assert.True(t, RunStateQueued.IsValid())
	assert.True(t, RunStateRunning.IsValid())
	assert.True(t, RunStateSuccess.IsValid())
	assert.True(t, RunStateFailed.IsValid())
	assert.False(t, DagRunState("paused").IsValid())
}
