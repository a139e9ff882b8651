package learning

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/machine-machine/orgbench/orgmemory"
	"github.com/machine-machine/orgbench/topology"
	"github.com/machine-machine/orgbench/types"
)

// ExecutorFactory 按拓扑名称创建执行器
type ExecutorFactory func(name string) (topology.Executor, error)

// Suite 跨任务跨拓扑的基准套件运行器。
// 记忆按任务隔离；TransferMemory 打开时同一任务的后续拓扑
// 继承前序拓扑积累的课程。
type Suite struct {
	controller *Controller
	factory    ExecutorFactory
	memConfig  orgmemory.Config
	store      orgmemory.Store
	config     Config
	logger     *zap.Logger
}

// SuiteResult 套件运行的全部结果
type SuiteResult struct {
	// Results 按执行顺序排列的闭环结果
	Results []*Result `json:"results"`
	// MemorySnapshots 每个任务结束时的记忆快照
	MemorySnapshots map[string]map[string][]string `json:"memory_snapshots"`
}

// NewSuite 创建套件运行器。store 可为 nil，此时记忆不持久化。
func NewSuite(controller *Controller, factory ExecutorFactory, memConfig orgmemory.Config, store orgmemory.Store, config Config, logger *zap.Logger) *Suite {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suite{
		controller: controller,
		factory:    factory,
		memConfig:  memConfig,
		store:      store,
		config:     config,
		logger:     logger.With(zap.String("component", "suite")),
	}
}

// Run 对每个任务依次执行每个拓扑的学习闭环
func (s *Suite) Run(ctx context.Context, tasks []types.Task, topologyNames []string) (*SuiteResult, error) {
	suiteResult := &SuiteResult{
		MemorySnapshots: make(map[string]map[string][]string, len(tasks)),
	}

	for _, task := range tasks {
		mem, err := s.loadMemory(ctx, task)
		if err != nil {
			return nil, err
		}

		for _, name := range topologyNames {
			if !s.config.TransferMemory {
				mem = s.newMemory()
			}

			executor, err := s.factory(name)
			if err != nil {
				return nil, fmt.Errorf("creating topology %s: %w", name, err)
			}

			s.logger.Info("suite entry start",
				zap.String("task_id", task.ID),
				zap.String("topology", name),
				zap.Int("memory_lessons", mem.Len()))

			result, err := s.controller.RunLoop(ctx, task, executor, mem)
			if err != nil {
				return nil, fmt.Errorf("loop for %s on task %s: %w", name, task.ID, err)
			}
			suiteResult.Results = append(suiteResult.Results, result)
		}

		suiteResult.MemorySnapshots[task.ID] = mem.Snapshot()
		if err := s.saveMemory(ctx, task, mem); err != nil {
			return nil, err
		}
	}

	return suiteResult, nil
}

// newMemory 按配置创建空记忆或带出厂预置课程的记忆
func (s *Suite) newMemory() *orgmemory.Memory {
	if s.config.SeedMemory {
		return orgmemory.DefaultMemory(s.memConfig, s.logger)
	}
	return orgmemory.NewMemory(s.memConfig, s.logger)
}

// loadMemory 任务开始时恢复持久化记忆，没有则新建
func (s *Suite) loadMemory(ctx context.Context, task types.Task) (*orgmemory.Memory, error) {
	mem := s.newMemory()
	if s.store == nil {
		return mem, nil
	}

	snapshot, err := s.store.Load(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("loading memory for task %s: %w", task.ID, err)
	}
	if len(snapshot) > 0 {
		mem.Restore(snapshot)
		s.logger.Info("memory restored from store",
			zap.String("task_id", task.ID),
			zap.Int("lessons", mem.Len()))
	}
	return mem, nil
}

func (s *Suite) saveMemory(ctx context.Context, task types.Task, mem *orgmemory.Memory) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(ctx, task.ID, mem.Snapshot()); err != nil {
		return fmt.Errorf("saving memory for task %s: %w", task.ID, err)
	}
	return nil
}
