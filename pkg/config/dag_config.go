package config

import (
	"fmt"

	"github.com/LENAX/dagflow/pkg/core/dag"
)

// DAGConfig 一个DAG定义文件的内容（对外导出）
type DAGConfig struct {
	DAG struct {
		ID             string `yaml:"id"`
		Version        string `yaml:"version"`
		Schedule       string `yaml:"schedule"`
		Paused         bool   `yaml:"paused"`
		MaxActiveTasks int    `yaml:"max_active_tasks"`

		Tasks []*dag.TaskDefinition `yaml:"tasks"`
		// Dependencies 后置Task ID -> 前置Task ID列表
		Dependencies map[string][]string `yaml:"dependencies"`
	} `yaml:"dag"`
}

// Validate 校验DAG定义文件合法性
// 图结构层面的检查（成环、未知Task引用）由Build完成，这里只查文件级错误
func (c *DAGConfig) Validate() error {
	if c.DAG.ID == "" {
		return fmt.Errorf("dag.id is required")
	}
	if len(c.DAG.Tasks) == 0 {
		return fmt.Errorf("dag %s has no tasks", c.DAG.ID)
	}
	seen := make(map[string]bool, len(c.DAG.Tasks))
	for i, td := range c.DAG.Tasks {
		if td.ID == "" {
			return fmt.Errorf("dag %s: tasks[%d] missing id", c.DAG.ID, i)
		}
		if seen[td.ID] {
			return fmt.Errorf("dag %s: duplicate task id %s", c.DAG.ID, td.ID)
		}
		seen[td.ID] = true
		if td.Expansion != nil && td.Expansion.InputKey == "" && len(td.Expansion.Literal) == 0 {
			return fmt.Errorf("dag %s: task %s expansion needs input_key or literal", c.DAG.ID, td.ID)
		}
	}
	return nil
}

// Build 将DAG定义文件构建为DAG（对外导出）
func (c *DAGConfig) Build() (*dag.DAG, error) {
	version := c.DAG.Version
	if version == "" {
		version = "v1"
	}

	d, err := dag.Build(c.DAG.ID, version, c.DAG.Tasks, c.DAG.Dependencies)
	if err != nil {
		return nil, err
	}
	d.Schedule = c.DAG.Schedule
	d.Paused = c.DAG.Paused
	if c.DAG.MaxActiveTasks > 0 {
		d.MaxActiveTasks = c.DAG.MaxActiveTasks
	}
	return d, nil
}
