package dag

import (
	"fmt"
	"sort"

	"github.com/LENAX/dagflow/pkg/core/instance"
)

// PartialSubset 计算Task子集按上游/下游闭包展开后的Task ID集合（对外导出）
// 返回结果去重并按字典序排序，保证调用方拿到确定性的集合
func (d *DAG) PartialSubset(taskIDs []string, includeUpstream, includeDownstream bool) ([]string, error) {
	selected := make(map[string]bool, len(taskIDs))

	for _, taskID := range taskIDs {
		if !d.HasTask(taskID) {
			return nil, fmt.Errorf("%w: %s in dag %s", instance.ErrTaskNotFound, taskID, d.ID)
		}
		selected[taskID] = true

		if includeUpstream {
			ancestors, err := d.Ancestors(taskID)
			if err != nil {
				return nil, err
			}
			for _, id := range ancestors {
				selected[id] = true
			}
		}
		if includeDownstream {
			descendants, err := d.Descendants(taskID)
			if err != nil {
				return nil, err
			}
			for _, id := range descendants {
				selected[id] = true
			}
		}
	}

	result := make([]string, 0, len(selected))
	for id := range selected {
		result = append(result, id)
	}
	sort.Strings(result)
	return result, nil
}
