package dag

import (
	"fmt"
	"sync"

	"github.com/LENAX/dagflow/pkg/core/instance"
)

// Provider DAG定义提供方接口（对外导出）
// 核心操作不依赖任何进程级全局缓存，DAG定义一律通过此接口显式注入
type Provider interface {
	// GetDAG 返回dagID当前加载的最新定义
	GetDAG(dagID string) (*DAG, error)
	// ListDAGs 返回已加载的全部DAG定义
	ListDAGs() []*DAG
}

// Registry 内存DAG注册表，Provider的默认实现（对外导出）
type Registry struct {
	mu   sync.RWMutex
	dags map[string]*DAG
}

// NewRegistry 创建空的DAG注册表（对外导出）
func NewRegistry() *Registry {
	return &Registry{dags: make(map[string]*DAG)}
}

// Register 注册或覆盖DAG定义（对外导出）
func (r *Registry) Register(d *DAG) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("cannot register dag without id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dags[d.ID] = d
	return nil
}

// GetDAG 实现Provider接口
func (r *Registry) GetDAG(dagID string) (*DAG, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dags[dagID]
	if !ok {
		return nil, fmt.Errorf("%w: dag %s", instance.ErrNotFound, dagID)
	}
	return d, nil
}

// ListDAGs 实现Provider接口
func (r *Registry) ListDAGs() []*DAG {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*DAG, 0, len(r.dags))
	for _, d := range r.dags {
		result = append(result, d)
	}
	return result
}
