// Package mapped 解析动态展开Task的map_index集合
package mapped

import (
	"encoding/json"
	"fmt"

	"github.com/LENAX/dagflow/pkg/core/dag"
	"github.com/LENAX/dagflow/pkg/core/instance"
)

// Resolve 计算Task在指定DagRun中应存在的map_index集合[0, N)（对外导出）
// N由展开输入在运行时的长度决定；N为0是合法结果（展开了空集合），不是错误。
// Task未声明展开时返回ErrNotMappedTask
func Resolve(td *dag.TaskDefinition, run *instance.DagRun) ([]int, error) {
	if td == nil {
		return nil, fmt.Errorf("%w: nil task definition", instance.ErrTaskNotFound)
	}
	if !td.NeedsExpansion() {
		return nil, fmt.Errorf("%w: %s", instance.ErrNotMappedTask, td.ID)
	}

	n, err := expansionLength(td.Expansion, run)
	if err != nil {
		return nil, err
	}

	indexes := make([]int, 0, n)
	for i := 0; i < n; i++ {
		indexes = append(indexes, i)
	}
	return indexes, nil
}

// expansionLength 计算展开数量
// InputKey优先：从DagRun conf的JSON中取同名数组的长度；key缺失视为空展开
func expansionLength(spec *dag.ExpansionSpec, run *instance.DagRun) (int, error) {
	if spec.InputKey == "" {
		return len(spec.Literal), nil
	}

	if run == nil || run.Conf == "" {
		return 0, nil
	}

	var conf map[string]json.RawMessage
	if err := json.Unmarshal([]byte(run.Conf), &conf); err != nil {
		return 0, fmt.Errorf("parse run conf for %s.%s: %w", run.DagID, run.RunID, err)
	}

	raw, ok := conf[spec.InputKey]
	if !ok {
		return 0, nil
	}

	var values []json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil {
		return 0, fmt.Errorf("expansion input %q is not a list in run %s.%s: %w",
			spec.InputKey, run.DagID, run.RunID, err)
	}
	return len(values), nil
}

// CheckMapped 区分"Task不存在"与"Task存在但未声明展开"（对外导出）
// mapped实例查询返回零行时不能直接当作404，必须回到DAG定义本身判断：
// Task不存在 -> ErrTaskNotFound；存在但未展开 -> ErrNotMappedTask；已声明展开 -> nil
func CheckMapped(d *dag.DAG, taskID string) error {
	td, err := d.GetTask(taskID)
	if err != nil {
		return err
	}
	if !td.NeedsExpansion() {
		return fmt.Errorf("%w: %s", instance.ErrNotMappedTask, taskID)
	}
	return nil
}
