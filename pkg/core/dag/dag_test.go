package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dagflow/pkg/core/instance"
)

// buildDiamond 构建菱形DAG: extract -> {transform_a, transform_b} -> load
func buildDiamond(t *testing.T) *DAG {
	t.Helper()
	tasks := []*TaskDefinition{
		{ID: "extract"},
		{ID: "transform_a"},
		{ID: "transform_b"},
		{ID: "load"},
	}
	deps := map[string][]string{
		"transform_a": {"extract"},
		"transform_b": {"extract"},
		"load":        {"transform_a", "transform_b"},
	}
	d, err := Build("etl", "v1", tasks, deps)
	require.NoError(t, err)
	return d
}

func TestBuild_RejectsCycle(t *testing.T) {
	tasks := []*TaskDefinition{{ID: "a"}, {ID: "b"}}
	deps := map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}
	_, err := Build("cyclic", "v1", tasks, deps)
	assert.Error(t, err)
}

func TestBuild_RejectsUnknownDependency(t *testing.T) {
	tasks := []*TaskDefinition{{ID: "a"}}
	deps := map[string][]string{"a": {"ghost"}}
	_, err := Build("bad", "v1", tasks, deps)
	assert.Error(t, err)
}

func TestGetTask(t *testing.T) {
	d := buildDiamond(t)

	td, err := d.GetTask("extract")
	require.NoError(t, err)
	assert.Equal(t, "extract", td.ID)

	_, err = d.GetTask("missing")
	assert.ErrorIs(t, err, instance.ErrTaskNotFound)
}

func TestUpstreamTaskIDs(t *testing.T) {
	d := buildDiamond(t)
	assert.ElementsMatch(t, []string{"transform_a", "transform_b"}, d.UpstreamTaskIDs("load"))
	assert.Empty(t, d.UpstreamTaskIDs("extract"))
}

func TestPartialSubset(t *testing.T) {
	d := buildDiamond(t)

	tests := []struct {
		name       string
		taskIDs    []string
		upstream   bool
		downstream bool
		want       []string
	}{
		{"no expansion", []string{"transform_a"}, false, false, []string{"transform_a"}},
		{"upstream only", []string{"transform_a"}, true, false, []string{"extract", "transform_a"}},
		{"downstream only", []string{"transform_a"}, false, true, []string{"load", "transform_a"}},
		{"both directions", []string{"transform_a"}, true, true, []string{"extract", "load", "transform_a"}},
		{"root downstream covers all", []string{"extract"}, false, true, []string{"extract", "load", "transform_a", "transform_b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.PartialSubset(tt.taskIDs, tt.upstream, tt.downstream)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got) // 结果已排序
		})
	}
}

func TestPartialSubset_UnknownTask(t *testing.T) {
	d := buildDiamond(t)
	_, err := d.PartialSubset([]string{"missing"}, true, true)
	assert.ErrorIs(t, err, instance.ErrTaskNotFound)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	d := buildDiamond(t)
	require.NoError(t, r.Register(d))

	got, err := r.GetDAG("etl")
	require.NoError(t, err)
	assert.Equal(t, d, got)

	_, err = r.GetDAG("unknown")
	assert.ErrorIs(t, err, instance.ErrNotFound)

	assert.Len(t, r.ListDAGs(), 1)
}

func TestTaskDefinition_NeedsExpansion(t *testing.T) {
	plain := &TaskDefinition{ID: "t"}
	assert.False(t, plain.NeedsExpansion())

	// 展开声明存在但结果可能为空集，NeedsExpansion仍为true
	mapped := &TaskDefinition{ID: "t", Expansion: &ExpansionSpec{InputKey: "files"}}
	assert.True(t, mapped.NeedsExpansion())
}

func TestTaskDefinition_EffectiveTriggerRule(t *testing.T) {
	td := &TaskDefinition{ID: "t"}
	assert.Equal(t, TriggerAllSuccess, td.EffectiveTriggerRule())

	td.TriggerRule = TriggerOneFailed
	assert.Equal(t, TriggerOneFailed, td.EffectiveTriggerRule())
}
