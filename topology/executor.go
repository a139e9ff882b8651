// Package topology 实现组织拓扑执行器：star、pipeline、peer_review、
// hrm、self_decompose，以及单代理基线。
//
// 公共协议：
//   - 参与者失败降级为缺席记录，绝不中止整次执行
//   - 合成调用吃下完整、未截断的参与者输出集；越界通过提高预算或
//     升级后端解决，绝不拆分
//   - 组织记忆以文本拼接注入提示词
package topology

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/machine-machine/orgbench/internal/metrics"
	"github.com/machine-machine/orgbench/llm"
	"github.com/machine-machine/orgbench/orgmemory"
	"github.com/machine-machine/orgbench/types"
)

// Executor 拓扑执行器接口
type Executor interface {
	// Name 返回拓扑名称
	Name() string

	// Run 对任务执行一次完整的组织运行
	Run(ctx context.Context, task types.Task, mem *orgmemory.Memory) (*Result, error)
}

// Config 拓扑执行配置（各预算单位均为输出 token）
type Config struct {
	// Backend 后端名称，空则使用客户端默认后端
	Backend string
	// SpecialistBudget 专家调用预算
	SpecialistBudget int
	// PipelineBudget 流水线阶段预算
	PipelineBudget int
	// DraftBudget 同行评审初稿预算
	DraftBudget int
	// CritiqueBudget 同行评审批注预算
	CritiqueBudget int
	// SynthesisBudget 合成调用预算
	SynthesisBudget int
	// CoordinatorBudget 协调者调用预算（小于专家预算）
	CoordinatorBudget int
	// DecomposeBudget 自分解调用预算
	DecomposeBudget int
	// BaselineBudget 单代理基线预算
	BaselineBudget int
	// MaxLoops HRM 最大循环数
	MaxLoops int
	// MaxDynamicRoles 自分解动态角色上限
	MaxDynamicRoles int
	// Temperature 采样温度
	Temperature float64
}

// DefaultConfig 返回默认拓扑配置
func DefaultConfig() Config {
	return Config{
		SpecialistBudget:  2500,
		PipelineBudget:    3000,
		DraftBudget:       2000,
		CritiqueBudget:    500,
		SynthesisBudget:   4000,
		CoordinatorBudget: 1000,
		DecomposeBudget:   800,
		BaselineBudget:    3000,
		MaxLoops:          3,
		MaxDynamicRoles:   5,
		Temperature:       0.7,
	}
}

// 拓扑名称
const (
	TopologyStar          = "star"
	TopologyPipeline      = "pipeline"
	TopologyPeerReview    = "peer_review"
	TopologyHRM           = "hrm"
	TopologySelfDecompose = "self_decompose"
	TopologyBaseline      = "baseline"
)

// New 按名称创建拓扑执行器
func New(name string, client *llm.Client, config Config, logger *zap.Logger) (Executor, error) {
	switch name {
	case TopologyStar:
		return NewStar(client, config, logger), nil
	case TopologyPipeline:
		return NewPipeline(client, config, logger), nil
	case TopologyPeerReview:
		return NewPeerReview(client, config, logger), nil
	case TopologyHRM:
		return NewHRM(client, config, logger), nil
	case TopologySelfDecompose:
		return NewSelfDecompose(client, config, logger), nil
	case TopologyBaseline:
		return NewBaseline(client, config, logger), nil
	default:
		return nil, types.NewError(types.ErrUnknownTopology, fmt.Sprintf("unknown topology: %s", name))
	}
}

// Names 返回所有组织拓扑名称（不含基线）
func Names() []string {
	return []string{TopologyStar, TopologyPipeline, TopologyPeerReview, TopologyHRM, TopologySelfDecompose}
}

// WithMetrics 给执行器附加指标收集器（就地修改底层 runner）
func WithMetrics(e Executor, m *metrics.Collector) Executor {
	if h, ok := e.(interface{ setMetrics(*metrics.Collector) }); ok {
		h.setMetrics(m)
	}
	return e
}
