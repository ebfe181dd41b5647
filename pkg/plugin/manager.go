// Package plugin 提供事件驱动的通知插件
package plugin

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/LENAX/dagflow/pkg/core/events"
)

// Plugin 通知插件接口（对外导出）
type Plugin interface {
	// Name 插件名称
	Name() string
	// Init 初始化插件
	Init(params map[string]string) error
	// Notify 处理一条事件
	Notify(event *events.Event) error
}

// Binding 插件绑定规则（对外导出）
// Events为空表示订阅全部事件
type Binding struct {
	PluginName string
	Events     []events.EventType
}

// Manager 插件管理器（对外导出）
// 从事件总线消费事件并分发给绑定的插件；通知失败只记录日志，不影响主流程
type Manager struct {
	bus      *events.Bus
	plugins  map[string]Plugin
	bindings []Binding
	mu       sync.RWMutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager 创建插件管理器（对外导出）
func NewManager(bus *events.Bus) *Manager {
	return &Manager{
		bus:     bus,
		plugins: make(map[string]Plugin),
	}
}

// Register 注册插件（对外导出）
func (m *Manager) Register(plugin Plugin) error {
	if plugin == nil {
		return fmt.Errorf("插件不能为空")
	}
	name := plugin.Name()
	if name == "" {
		return fmt.Errorf("插件名称不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.plugins[name]; exists {
		return fmt.Errorf("插件 %s 已注册", name)
	}
	m.plugins[name] = plugin
	return nil
}

// RegisterWithInit 注册并初始化插件（对外导出）
func (m *Manager) RegisterWithInit(plugin Plugin, params map[string]string) error {
	if err := m.Register(plugin); err != nil {
		return err
	}
	if err := plugin.Init(params); err != nil {
		m.mu.Lock()
		delete(m.plugins, plugin.Name())
		m.mu.Unlock()
		return fmt.Errorf("插件 %s 初始化失败: %w", plugin.Name(), err)
	}
	return nil
}

// Bind 绑定插件到事件（对外导出）
func (m *Manager) Bind(binding Binding) error {
	if binding.PluginName == "" {
		return fmt.Errorf("插件名称不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.plugins[binding.PluginName]; !exists {
		return fmt.Errorf("插件 %s 未注册", binding.PluginName)
	}
	m.bindings = append(m.bindings, binding)
	return nil
}

// Start 订阅事件总线并启动分发循环（对外导出）
func (m *Manager) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)

	ch, err := m.bus.Subscribe(ctx)
	if err != nil {
		m.cancel()
		return fmt.Errorf("subscribe events: %w", err)
	}

	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		for event := range ch {
			m.dispatch(event)
		}
	}()
	return nil
}

// Stop 停止分发循环（对外导出）
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

// dispatch 将事件分发给所有匹配的绑定
func (m *Manager) dispatch(event *events.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, binding := range m.bindings {
		if !binding.matches(event.Type) {
			continue
		}
		plugin, exists := m.plugins[binding.PluginName]
		if !exists {
			continue
		}
		if err := plugin.Notify(event); err != nil {
			log.Printf("plugin %s: notify %s: %v", binding.PluginName, event.Type, err)
		}
	}
}

func (b Binding) matches(eventType events.EventType) bool {
	if len(b.Events) == 0 {
		return true
	}
	for _, et := range b.Events {
		if et == eventType {
			return true
		}
	}
	return false
}

// GetPlugin 获取已注册的插件（对外导出）
func (m *Manager) GetPlugin(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plugin, exists := m.plugins[name]
	return plugin, exists
}

// ListPlugins 列出所有已注册的插件（对外导出）
func (m *Manager) ListPlugins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.plugins))
	for name := range m.plugins {
		names = append(names, name)
	}
	return names
}

// Unregister 取消注册插件并移除其绑定（对外导出）
func (m *Manager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.plugins[name]; !exists {
		return fmt.Errorf("插件 %s 未注册", name)
	}
	delete(m.plugins, name)

	filtered := m.bindings[:0]
	for _, binding := range m.bindings {
		if binding.PluginName != name {
			filtered = append(filtered, binding)
		}
	}
	m.bindings = filtered
	return nil
}
