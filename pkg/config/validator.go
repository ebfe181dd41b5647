package config

import (
	"fmt"

	"github.com/LENAX/dagflow/pkg/core/events"
	"github.com/LENAX/dagflow/pkg/core/state"
)

// validDrivers 支持的数据库驱动
var validDrivers = map[string]bool{
	"sqlite":   true,
	"mysql":    true,
	"postgres": true,
}

// validModes 支持的运行模式
var validModes = map[string]bool{
	"dev":  true,
	"test": true,
	"prod": true,
}

// Validate 校验引擎配置合法性（对外导出）
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if !validModes[cfg.Mode] {
		return fmt.Errorf("mode must be one of dev/test/prod, got %q", cfg.Mode)
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return fmt.Errorf("http_port %d out of range", cfg.HTTPPort)
	}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be one of sqlite/mysql/postgres, got %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if cfg.Database.MaxIdleConns > cfg.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns cannot exceed max_open_conns")
	}
	for _, name := range cfg.History.SkipArchiveStates {
		if !state.TaskInstanceState(name).IsValid() {
			return fmt.Errorf("history.skip_archive_states: unknown state %q", name)
		}
	}
	if cfg.DefaultPool.Slots <= 0 {
		return fmt.Errorf("default_pool.slots must be positive")
	}
	for _, binding := range cfg.Notifications {
		if binding.Plugin == "" {
			return fmt.Errorf("notifications: plugin name is required")
		}
		for _, name := range binding.Events {
			if !validEventType(name) {
				return fmt.Errorf("notifications: unknown event type %q", name)
			}
		}
	}
	return nil
}

func validEventType(name string) bool {
	for _, et := range events.AllEventTypes {
		if string(et) == name {
			return true
		}
	}
	return false
}

// SkipArchiveStates 返回配置的跳过归档状态集合（对外导出）
func (c *Config) SkipArchiveStates() []state.TaskInstanceState {
	states := make([]state.TaskInstanceState, 0, len(c.History.SkipArchiveStates))
	for _, name := range c.History.SkipArchiveStates {
		states = append(states, state.TaskInstanceState(name))
	}
	return states
}
