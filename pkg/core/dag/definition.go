// Package dag 定义DAG与Task定义模型，并提供DAG定义的查询能力
package dag

import (
	"fmt"

	godag "github.com/begmaroman/go-dag"

	"github.com/LENAX/dagflow/pkg/core/instance"
)

// TriggerRule 上游完成条件（对外导出）
type TriggerRule string

const (
	TriggerAllSuccess  TriggerRule = "all_success"
	TriggerAllFailed   TriggerRule = "all_failed"
	TriggerAllDone     TriggerRule = "all_done"
	TriggerOneSuccess  TriggerRule = "one_success"
	TriggerOneFailed   TriggerRule = "one_failed"
	TriggerNoneFailed  TriggerRule = "none_failed"
	TriggerNoneSkipped TriggerRule = "none_skipped"
	TriggerAlways      TriggerRule = "always"
)

// ExpansionSpec 动态展开声明（对外导出）
// InputKey非空时从DagRun conf中取同名数组计算展开数量；
// Literal非空时直接按字面列表展开。两者互斥，InputKey优先
type ExpansionSpec struct {
	InputKey string   `yaml:"input_key" json:"input_key"`
	Literal  []string `yaml:"literal" json:"literal"`
}

// TaskDefinition Task定义（对外导出）
type TaskDefinition struct {
	ID           string         `yaml:"id" json:"id"`
	Name         string         `yaml:"name" json:"name"`
	Pool         string         `yaml:"pool" json:"pool"`
	Queue        string         `yaml:"queue" json:"queue"`
	Executor     string         `yaml:"executor" json:"executor"`
	TriggerRule  TriggerRule    `yaml:"trigger_rule" json:"trigger_rule"`
	Retries      int            `yaml:"retries" json:"retries"`
	MaxActiveTIs int            `yaml:"max_active_tis" json:"max_active_tis"`
	Expansion    *ExpansionSpec `yaml:"expansion" json:"expansion"`
}

// NeedsExpansion 判断Task是否声明了动态展开（对外导出）
// 注意：展开结果为空集时此方法仍返回true，用于区分"展开为空"与"未声明展开"
func (td *TaskDefinition) NeedsExpansion() bool {
	return td.Expansion != nil
}

// EffectiveTriggerRule 返回生效的TriggerRule，未设置时默认all_success（对外导出）
func (td *TaskDefinition) EffectiveTriggerRule() TriggerRule {
	if td.TriggerRule == "" {
		return TriggerAllSuccess
	}
	return td.TriggerRule
}

// DAG 一个工作流的DAG定义（对外导出）
// 图结构由go-dag库维护，上游/下游闭包查询直接复用库的祖先/后代遍历
type DAG struct {
	ID             string
	VersionID      string
	Schedule       string // cron表达式，空串表示仅手动触发
	Paused         bool
	MaxActiveTasks int

	tasks    map[string]*TaskDefinition
	upstream map[string][]string // taskID -> 直接上游taskID列表
	graph    *godag.DAG[*TaskDefinition]
}

// Build 从Task定义与依赖关系构建DAG（对外导出）
// dependencies: 后置Task ID -> 前置Task ID列表
func Build(id, versionID string, tasks []*TaskDefinition, dependencies map[string][]string) (*DAG, error) {
	d := &DAG{
		ID:             id,
		VersionID:      versionID,
		MaxActiveTasks: 16,
		tasks:          make(map[string]*TaskDefinition, len(tasks)),
		upstream:       make(map[string][]string, len(dependencies)),
		graph:          godag.NewDAG[*TaskDefinition](),
	}

	for _, td := range tasks {
		if td.ID == "" {
			return nil, fmt.Errorf("task definition missing id in dag %s", id)
		}
		if _, dup := d.tasks[td.ID]; dup {
			return nil, fmt.Errorf("duplicate task id %s in dag %s", td.ID, id)
		}
		d.tasks[td.ID] = td
		if err := d.graph.AddVertexByID(td.ID, td); err != nil {
			return nil, fmt.Errorf("add vertex %s: %w", td.ID, err)
		}
	}

	// 边方向：前置Task -> 后置Task；go-dag在AddEdge时自动拒绝成环
	for taskID, upstreamIDs := range dependencies {
		if _, ok := d.tasks[taskID]; !ok {
			return nil, fmt.Errorf("dependency references unknown task %s in dag %s", taskID, id)
		}
		for _, upID := range upstreamIDs {
			if _, ok := d.tasks[upID]; !ok {
				return nil, fmt.Errorf("task %s depends on unknown task %s in dag %s", taskID, upID, id)
			}
			if err := d.graph.AddEdge(upID, taskID); err != nil {
				return nil, fmt.Errorf("add edge %s -> %s: %w", upID, taskID, err)
			}
			d.upstream[taskID] = append(d.upstream[taskID], upID)
		}
	}

	return d, nil
}

// GetTask 按ID查询Task定义，不存在时返回ErrTaskNotFound（对外导出）
func (d *DAG) GetTask(taskID string) (*TaskDefinition, error) {
	td, ok := d.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s in dag %s", instance.ErrTaskNotFound, taskID, d.ID)
	}
	return td, nil
}

// HasTask 判断Task是否存在（对外导出）
func (d *DAG) HasTask(taskID string) bool {
	_, ok := d.tasks[taskID]
	return ok
}

// TaskIDs 返回所有Task ID（对外导出）
func (d *DAG) TaskIDs() []string {
	ids := make([]string, 0, len(d.tasks))
	for id := range d.tasks {
		ids = append(ids, id)
	}
	return ids
}

// Tasks 返回Task ID到定义的映射（对外导出）
func (d *DAG) Tasks() map[string]*TaskDefinition {
	return d.tasks
}

// UpstreamTaskIDs 返回直接上游Task ID列表（对外导出）
func (d *DAG) UpstreamTaskIDs(taskID string) []string {
	return d.upstream[taskID]
}

// Ancestors 返回taskID的全部上游闭包（对外导出）
func (d *DAG) Ancestors(taskID string) ([]string, error) {
	vertices, err := d.graph.GetAncestors(taskID)
	if err != nil {
		return nil, fmt.Errorf("get ancestors of %s: %w", taskID, err)
	}
	ids := make([]string, 0, len(vertices))
	for id := range vertices {
		ids = append(ids, id)
	}
	return ids, nil
}

// Descendants 返回taskID的全部下游闭包（对外导出）
func (d *DAG) Descendants(taskID string) ([]string, error) {
	vertices, err := d.graph.GetDescendants(taskID)
	if err != nil {
		return nil, fmt.Errorf("get descendants of %s: %w", taskID, err)
	}
	ids := make([]string, 0, len(vertices))
	for id := range vertices {
		ids = append(ids, id)
	}
	return ids, nil
}
