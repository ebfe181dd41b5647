package plugin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dagflow/pkg/core/events"
	"github.com/LENAX/dagflow/pkg/core/instance"
	"github.com/LENAX/dagflow/pkg/core/state"
)

// recordingPlugin 记录收到的事件，用于测试
type recordingPlugin struct {
	name string
	mu   sync.Mutex
	seen []events.EventType
}

func (p *recordingPlugin) Name() string                        { return p.name }
func (p *recordingPlugin) Init(params map[string]string) error { return nil }

func (p *recordingPlugin) Notify(event *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, event.Type)
	return nil
}

func (p *recordingPlugin) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.EventType(nil), p.seen...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestManagerDispatchesBoundEvents(t *testing.T) {
	bus := events.NewBus(false)
	defer bus.Close()

	manager := NewManager(bus)
	rec := &recordingPlugin{name: "recorder"}
	require.NoError(t, manager.Register(rec))
	require.NoError(t, manager.Bind(Binding{
		PluginName: "recorder",
		Events:     []events.EventType{events.EventTIStateChanged},
	}))

	require.NoError(t, manager.Start(context.Background()))
	defer manager.Stop()

	key := instance.Key{DagID: "etl", RunID: "r1", TaskID: "extract", MapIndex: instance.UnmappedIndex}
	bus.Emit(events.EventTIStateChanged, events.TIStateChangedPayload{
		Key: key, OldState: state.StateRunning, NewState: state.StateFailed, TryNumber: 1,
	})
	// 未绑定的事件类型不分发
	bus.Emit(events.EventRunCleared, events.RunClearedPayload{DagID: "etl"})

	waitFor(t, func() bool { return len(rec.types()) >= 1 })
	time.Sleep(50 * time.Millisecond)

	seen := rec.types()
	require.Len(t, seen, 1)
	assert.Equal(t, events.EventTIStateChanged, seen[0])
}

func TestManagerEmptyBindingReceivesAll(t *testing.T) {
	bus := events.NewBus(false)
	defer bus.Close()

	manager := NewManager(bus)
	rec := &recordingPlugin{name: "recorder"}
	require.NoError(t, manager.Register(rec))
	require.NoError(t, manager.Bind(Binding{PluginName: "recorder"}))

	require.NoError(t, manager.Start(context.Background()))
	defer manager.Stop()

	bus.Emit(events.EventRunCleared, events.RunClearedPayload{DagID: "etl"})
	bus.Emit(events.EventDagRunStateChanged, events.DagRunStateChangedPayload{DagID: "etl", RunID: "r1"})

	waitFor(t, func() bool { return len(rec.types()) >= 2 })
}

func TestManagerRegistration(t *testing.T) {
	manager := NewManager(events.NewBus(false))

	rec := &recordingPlugin{name: "recorder"}
	require.NoError(t, manager.Register(rec))
	assert.Error(t, manager.Register(rec), "重复注册被拒绝")
	assert.Error(t, manager.Bind(Binding{PluginName: "ghost"}), "未注册的插件不能绑定")

	got, ok := manager.GetPlugin("recorder")
	require.True(t, ok)
	assert.Equal(t, rec, got)
	assert.Equal(t, []string{"recorder"}, manager.ListPlugins())

	require.NoError(t, manager.Bind(Binding{PluginName: "recorder"}))
	require.NoError(t, manager.Unregister("recorder"))
	assert.Empty(t, manager.ListPlugins())
	assert.Error(t, manager.Unregister("recorder"))
}

func TestEmailPluginInitValidation(t *testing.T) {
	plugin := NewEmailPlugin()

	assert.Error(t, plugin.Init(map[string]string{}), "缺少smtp_host")
	assert.Error(t, plugin.Init(map[string]string{
		"smtp_host": "smtp.example.com", "from": "a@example.com",
	}), "缺少to")

	require.NoError(t, plugin.Init(map[string]string{
		"smtp_host": "smtp.example.com",
		"smtp_port": "587",
		"from":      "dagflow@example.com",
		"to":        "oncall@example.com, team@example.com",
	}))
}
