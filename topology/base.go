package topology

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/machine-machine/orgbench/internal/metrics"
	"github.com/machine-machine/orgbench/llm"
	"github.com/machine-machine/orgbench/types"
)

// runner 各拓扑执行器共享的底座
type runner struct {
	name    string
	client  *llm.Client
	config  Config
	logger  *zap.Logger
	metrics *metrics.Collector
}

func newRunner(client *llm.Client, config Config, logger *zap.Logger, name string) runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return runner{
		name:   name,
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "topology."+name)),
	}
}

func (r *runner) setMetrics(m *metrics.Collector) {
	r.metrics = m
}

// participantCall 一次待执行的参与者调用
type participantCall struct {
	Role        string
	Kind        string
	Round       int
	Instruction string
	Prompt      string
	Budget      int
	CallSite    string
}

// invoke 执行单个参与者调用，失败时降级为缺席记录
func (r *runner) invoke(ctx context.Context, runID string, call participantCall) ParticipantOutput {
	out := ParticipantOutput{
		Role:        call.Role,
		Kind:        call.Kind,
		Round:       call.Round,
		Instruction: call.Instruction,
	}

	comp, err := r.client.Invoke(ctx, call.Prompt, llm.InvokeOptions{
		CallSite:    call.CallSite,
		TokenBudget: call.Budget,
		Backend:     r.config.Backend,
		Temperature: r.config.Temperature,
		TraceID:     runID,
	})
	if err != nil {
		out.Failed = true
		out.Err = err.Error()
		r.logger.Warn("participant call failed, degrading to absence",
			zap.String("run_id", runID),
			zap.String("role", call.Role),
			zap.String("call_site", call.CallSite),
			zap.Error(err))
		if r.metrics != nil {
			r.metrics.RecordParticipantFailure(r.name, call.Role)
		}
		return out
	}

	out.Content = comp.Text
	out.Usage = comp.Usage
	out.Duration = comp.Duration
	return out
}

// runConcurrent 并发执行一批参与者调用。
// 单个失败不取消兄弟调用，结果按输入顺序返回。
func (r *runner) runConcurrent(ctx context.Context, runID string, calls []participantCall) []ParticipantOutput {
	outputs := make([]ParticipantOutput, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			outputs[i] = r.invoke(gctx, runID, call)
			return nil
		})
	}
	_ = g.Wait()

	return outputs
}

// synthesize 执行合成调用。合成是关键路径，允许升级到备用后端。
func (r *runner) synthesize(ctx context.Context, runID, callSite, prompt string) (*llm.Completion, error) {
	return r.client.Invoke(ctx, prompt, llm.InvokeOptions{
		CallSite:        callSite,
		TokenBudget:     r.config.SynthesisBudget,
		Backend:         r.config.Backend,
		Temperature:     r.config.Temperature,
		TraceID:         runID,
		AllowEscalation: true,
	})
}

// allFailed 判断一批参与者是否全军覆没
func allFailed(outputs []ParticipantOutput) bool {
	for _, o := range outputs {
		if !o.Failed {
			return false
		}
	}
	return len(outputs) > 0
}

// accumulate 把一批参与者的用量和耗时累计进结果
func accumulate(result *Result, outputs []ParticipantOutput) {
	var longest time.Duration
	for _, o := range outputs {
		result.Usage.Add(o.Usage)
		result.TotalTime += o.Duration
		if o.Duration > longest {
			longest = o.Duration
		}
	}
	result.CriticalPath += longest
}

// accumulateSerial 把串行阶段的用量累计进结果（关键路径即总耗时）
func accumulateSerial(result *Result, outputs ...ParticipantOutput) {
	for _, o := range outputs {
		result.Usage.Add(o.Usage)
		result.TotalTime += o.Duration
		result.CriticalPath += o.Duration
	}
}

// newResult 创建带新 RunID 的结果壳
func newResult(topology string) *Result {
	return &Result{
		Topology: topology,
		RunID:    uuid.NewString(),
		Metadata: map[string]any{},
	}
}

// finish 记录指标并收尾
func (r *runner) finish(result *Result, start time.Time, err error) {
	elapsed := time.Since(start)
	if r.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		r.metrics.RecordTopologyExecution(result.Topology, status, elapsed)
	}
	r.logger.Info("topology run complete",
		zap.String("run_id", result.RunID),
		zap.String("topology", result.Topology),
		zap.Int("participants", len(result.Participants)),
		zap.Int("failed", result.FailedCount()),
		zap.Float64("cost_usd", result.Usage.Cost),
		zap.Duration("elapsed", elapsed))
}

// errAllFailed 所有参与者失败时的统一错误
func errAllFailed(topology string) error {
	return types.NewError(types.ErrAllParticipantsFailed,
		"all participants failed in topology "+topology)
}
