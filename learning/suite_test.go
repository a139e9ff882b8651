package learning

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/machine-machine/orgbench/orgmemory"
	"github.com/machine-machine/orgbench/topology"
	"github.com/machine-machine/orgbench/types"
)

// fakeStore 内存版持久化，记录读写
type fakeStore struct {
	data  map[string]map[string][]string
	saves int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]map[string][]string{}}
}

func (s *fakeStore) Load(_ context.Context, key string) (map[string][]string, error) {
	return s.data[key], nil
}

func (s *fakeStore) Save(_ context.Context, key string, snapshot map[string][]string) error {
	s.data[key] = snapshot
	s.saves++
	return nil
}

func newWorldSuite(t *testing.T, world *scriptedWorld, store orgmemory.Store, config Config) *Suite {
	t.Helper()
	controller, _ := newWorldController(t, world, config)

	// factory 和 controller 共享同一个脚本世界
	factory := func(name string) (topology.Executor, error) {
		_, org := newWorldController(t, world, config)
		if name != topology.TopologyStar {
			return topology.New(name, nil, topology.DefaultConfig(), zap.NewNop())
		}
		return org, nil
	}
	return NewSuite(controller, factory, orgmemory.DefaultMemoryConfig(), store, config, zap.NewNop())
}

func TestSuiteRunsEveryTaskAndTopology(t *testing.T) {
	world := &scriptedWorld{deltas: []float64{20}}
	suite := newWorldSuite(t, world, nil, Config{MaxIterations: 2, ConvergenceThreshold: 10, TransferMemory: true})

	tasks := []types.Task{loopTask()}
	result, err := suite.Run(context.Background(), tasks, []string{topology.TopologyStar, topology.TopologyStar})
	require.NoError(t, err)

	assert.Len(t, result.Results, 2)
	for _, r := range result.Results {
		assert.True(t, r.Converged)
		assert.Equal(t, "relay-design", r.TaskID)
	}
	assert.Contains(t, result.MemorySnapshots, "relay-design")
}

func TestSuiteTransfersMemoryAcrossTopologies(t *testing.T) {
	// 前两轮不收敛，积累课程；记忆携带到第二个拓扑
	world := &scriptedWorld{deltas: []float64{-5, 20}}
	suite := newWorldSuite(t, world, nil, Config{MaxIterations: 2, ConvergenceThreshold: 10, TransferMemory: true})

	result, err := suite.Run(context.Background(), []types.Task{loopTask()},
		[]string{topology.TopologyStar, topology.TopologyStar})
	require.NoError(t, err)

	snapshot := result.MemorySnapshots["relay-design"]
	lessons := snapshot["synthesis_protocol"]
	iterLessons := 0
	for _, l := range lessons {
		if strings.HasPrefix(l, "[Iter ") {
			iterLessons++
		}
	}
	// 两个拓扑各在第 1 轮失利后写入一课
	assert.Equal(t, 2, iterLessons)
}

func TestSuiteFreshMemoryWhenTransferDisabled(t *testing.T) {
	world := &scriptedWorld{deltas: []float64{-5, 20}}
	suite := newWorldSuite(t, world, nil, Config{MaxIterations: 2, ConvergenceThreshold: 10, TransferMemory: false})

	result, err := suite.Run(context.Background(), []types.Task{loopTask()},
		[]string{topology.TopologyStar, topology.TopologyStar})
	require.NoError(t, err)

	// 每个拓扑从出厂记忆重新开始，快照只含最后一个拓扑的一课
	snapshot := result.MemorySnapshots["relay-design"]
	iterLessons := 0
	for _, l := range snapshot["synthesis_protocol"] {
		if strings.HasPrefix(l, "[Iter ") {
			iterLessons++
		}
	}
	assert.Equal(t, 1, iterLessons)
}

func TestSuitePersistsAndRestoresMemory(t *testing.T) {
	store := newFakeStore()
	store.data["relay-design"] = map[string][]string{
		"protocol": {"seeded lesson from a previous campaign"},
	}

	world := &scriptedWorld{deltas: []float64{20}}
	suite := newWorldSuite(t, world, store, Config{MaxIterations: 2, ConvergenceThreshold: 10, TransferMemory: true})

	result, err := suite.Run(context.Background(), []types.Task{loopTask()}, []string{topology.TopologyStar})
	require.NoError(t, err)

	// 恢复的课程出现在最终快照里，运行结束后写回
	assert.Contains(t, result.MemorySnapshots["relay-design"]["protocol"], "seeded lesson from a previous campaign")
	assert.Equal(t, 1, store.saves)
	assert.Contains(t, store.data["relay-design"]["protocol"], "seeded lesson from a previous campaign")
}
