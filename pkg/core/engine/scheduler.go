package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/LENAX/dagflow/pkg/core/dag"
)

// scheduledRunPrefix 定时触发的run_id前缀，与手动触发区分
const scheduledRunPrefix = "scheduled__"

// Scheduler 定时调度器（对外导出）
// 为声明了cron表达式的DAG定义按计划创建DagRun
type Scheduler struct {
	cron    *cron.Cron
	engine  *Engine
	entries map[string]cron.EntryID // dagID -> cron.EntryID映射
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler 创建定时调度器（对外导出）
func NewScheduler(eng *Engine) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(),
		engine:  eng,
		entries: make(map[string]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// RegisterDAG 注册DAG到定时调度器（对外导出）
// 未声明cron表达式或已暂停的DAG直接跳过，不算错误
func (s *Scheduler) RegisterDAG(d *dag.DAG) error {
	if d.Schedule == "" || d.Paused {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[d.ID]; exists {
		return fmt.Errorf("dag %s already registered", d.ID)
	}

	dagID := d.ID
	entryID, err := s.cron.AddFunc(d.Schedule, func() {
		s.trigger(dagID)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for dag %s: %w", d.Schedule, d.ID, err)
	}

	s.entries[d.ID] = entryID
	log.Printf("scheduler: registered dag %s with schedule %q", d.ID, d.Schedule)
	return nil
}

// UnregisterDAG 从定时调度器移除DAG（对外导出）
func (s *Scheduler) UnregisterDAG(dagID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[dagID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, dagID)
		log.Printf("scheduler: unregistered dag %s", dagID)
	}
}

// Start 注册provider中的全部DAG并启动调度（对外导出）
func (s *Scheduler) Start() error {
	for _, d := range s.engine.provider.ListDAGs() {
		if err := s.RegisterDAG(d); err != nil {
			return err
		}
	}
	s.cron.Start()
	log.Printf("scheduler: started with %d scheduled dags", len(s.entries))
	return nil
}

// Stop 停止调度，等待进行中的触发结束（对外导出）
func (s *Scheduler) Stop() {
	s.cancel()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	log.Printf("scheduler: stopped")
}

// trigger 为DAG创建一个定时run
// 暂停检查在触发时再做一次，注册后被暂停的DAG不再产生新run
func (s *Scheduler) trigger(dagID string) {
	d, err := s.engine.provider.GetDAG(dagID)
	if err != nil {
		log.Printf("scheduler: dag %s disappeared, skipping trigger: %v", dagID, err)
		return
	}
	if d.Paused {
		log.Printf("scheduler: dag %s is paused, skipping trigger", dagID)
		return
	}

	logicalDate := time.Now().UTC().Truncate(time.Second)
	runID := scheduledRunPrefix + logicalDate.Format(time.RFC3339)

	if _, err := s.engine.CreateRun(s.ctx, dagID, runID, logicalDate, ""); err != nil {
		log.Printf("scheduler: create run %s for dag %s: %v", runID, dagID, err)
		return
	}
	log.Printf("scheduler: created run %s for dag %s", runID, dagID)
}
