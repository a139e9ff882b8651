package topology

import (
	"time"

	"github.com/machine-machine/orgbench/types"
)

// 参与者类型
const (
	KindSpecialist    = "specialist"
	KindCritique      = "critique"
	KindCoordinator   = "coordinator"
	KindDecomposition = "decomposition"
)

// ParticipantOutput 单个参与者调用的结果记录。
// 失败的调用保留在结果里（Failed=true），缺席必须可见。
type ParticipantOutput struct {
	Role        string           `json:"role"`
	Kind        string           `json:"kind"`
	Round       int              `json:"round,omitempty"`
	Instruction string           `json:"instruction,omitempty"`
	Content     string           `json:"content"`
	Usage       types.TokenUsage `json:"usage"`
	Duration    time.Duration    `json:"duration"`
	Failed      bool             `json:"failed,omitempty"`
	Err         string           `json:"error,omitempty"`
}

// Result 一次拓扑执行的完整结果
type Result struct {
	// Topology 拓扑名称
	Topology string `json:"topology"`
	// RunID 本次执行的唯一标识
	RunID string `json:"run_id"`
	// FinalOutput 交付评估的最终产出（通常来自合成调用）
	FinalOutput string `json:"final_output"`
	// Participants 所有参与者调用记录，含失败者
	Participants []ParticipantOutput `json:"participants"`
	// Usage 本次执行的累计 token 用量与成本
	Usage types.TokenUsage `json:"usage"`
	// TotalTime 所有调用耗时之和
	TotalTime time.Duration `json:"total_time"`
	// CriticalPath 并行调度下的最短可能耗时
	CriticalPath time.Duration `json:"critical_path"`
	// Metadata 拓扑特有的附加信息（如 HRM 循环历史）
	Metadata map[string]any `json:"metadata,omitempty"`
}

// FailedCount 返回降级的参与者数量
func (r *Result) FailedCount() int {
	n := 0
	for _, p := range r.Participants {
		if p.Failed {
			n++
		}
	}
	return n
}
