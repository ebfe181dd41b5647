package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dagflow/pkg/core/instance"
	"github.com/LENAX/dagflow/pkg/core/state"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(false)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, EventTIStateChanged)
	require.NoError(t, err)

	key := instance.Key{DagID: "etl", RunID: "r1", TaskID: "extract", MapIndex: instance.UnmappedIndex}
	bus.Emit(EventTIStateChanged, &TIStateChangedPayload{
		Key:       key,
		OldState:  state.StateFailed,
		NewState:  state.StateNone,
		TryNumber: 1,
	})

	select {
	case event := <-ch:
		assert.Equal(t, EventTIStateChanged, event.Type)
		assert.NotEmpty(t, event.ID)

		var payload TIStateChangedPayload
		require.NoError(t, json.Unmarshal(event.Payload, &payload))
		assert.Equal(t, key, payload.Key)
		assert.Equal(t, state.StateNone, payload.NewState)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_SubscribeAllTypes(t *testing.T) {
	bus := NewBus(false)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	bus.Emit(EventDagRunStateChanged, &DagRunStateChangedPayload{
		DagID: "etl", RunID: "r1",
		OldState: state.RunStateFailed, NewState: state.RunStateQueued,
	})
	bus.Emit(EventRunCleared, &RunClearedPayload{DagID: "etl", ResetDagRuns: true})

	received := map[EventType]bool{}
	timeout := time.After(2 * time.Second)
	for len(received) < 2 {
		select {
		case event := <-ch:
			received[event.Type] = true
		case <-timeout:
			t.Fatalf("only received %v", received)
		}
	}
	assert.True(t, received[EventDagRunStateChanged])
	assert.True(t, received[EventRunCleared])
}

func TestBus_SubscriberIsolation(t *testing.T) {
	// 订阅了不同类型的消费者互不干扰
	bus := NewBus(false)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleared, err := bus.Subscribe(ctx, EventRunCleared)
	require.NoError(t, err)

	bus.Emit(EventTIStateChanged, &TIStateChangedPayload{})
	bus.Emit(EventRunCleared, &RunClearedPayload{DagID: "etl"})

	select {
	case event := <-cleared:
		assert.Equal(t, EventRunCleared, event.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case event := <-cleared:
		t.Fatalf("unexpected extra event %s", event.Type)
	case <-time.After(100 * time.Millisecond):
	}
}
