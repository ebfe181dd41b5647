// Package config 加载与校验引擎配置和DAG定义文件
package config

import "time"

// Config 引擎核心配置（对外导出）
type Config struct {
	Mode     string `yaml:"mode"`
	HTTPPort int    `yaml:"http_port"`
	Database struct {
		Driver          string        `yaml:"driver"`
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	} `yaml:"database"`
	Clearing struct {
		// MaxAffectedRows clear范围保护上限，0表示不限制
		MaxAffectedRows int `yaml:"max_affected_rows"`
	} `yaml:"clearing"`
	History struct {
		// SkipArchiveStates 跳过归档的状态名，为空时使用内置默认集合
		SkipArchiveStates []string `yaml:"skip_archive_states"`
	} `yaml:"history"`
	Scheduler struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"scheduler"`
	// Executors / Queues 依赖评估用的合法名单，为空时不校验
	Executors []string `yaml:"executors"`
	Queues    []string `yaml:"queues"`
	DefaultPool struct {
		Name  string `yaml:"name"`
		Slots int    `yaml:"slots"`
	} `yaml:"default_pool"`
	// DAGDir 存放DAG定义yaml的目录
	DAGDir string `yaml:"dag_dir"`
	// Notifications 事件通知插件绑定
	Notifications []NotificationBinding `yaml:"notifications"`
}

// NotificationBinding 通知插件绑定配置（对外导出）
// Events为空表示订阅全部事件
type NotificationBinding struct {
	Plugin string            `yaml:"plugin"`
	Events []string          `yaml:"events"`
	Params map[string]string `yaml:"params"`
}

// ApplyDefaults 应用默认值
func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = "dev"
	}
	if c.HTTPPort <= 0 {
		c.HTTPPort = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "./dagflow.db"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = 2 * time.Hour
	}
	if c.Clearing.MaxAffectedRows <= 0 {
		c.Clearing.MaxAffectedRows = 10000
	}
	if c.DefaultPool.Name == "" {
		c.DefaultPool.Name = "default_pool"
	}
	if c.DefaultPool.Slots <= 0 {
		c.DefaultPool.Slots = 128
	}
	if c.DAGDir == "" {
		c.DAGDir = "./dags"
	}
}
