package topology

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/machine-machine/orgbench/llm"
	"github.com/machine-machine/orgbench/orgmemory"
	"github.com/machine-machine/orgbench/types"
)

// PeerReview 同行评审拓扑：专家并发出初稿，每位轮转评审后两位的
// 初稿，合成代理综合初稿与批注。
type PeerReview struct {
	runner
}

// NewPeerReview 创建同行评审拓扑执行器
func NewPeerReview(client *llm.Client, config Config, logger *zap.Logger) *PeerReview {
	return &PeerReview{runner: newRunner(client, config, logger, "peer_review")}
}

// Name 返回拓扑名称
func (p *PeerReview) Name() string { return TopologyPeerReview }

// Run 执行一次同行评审运行
func (p *PeerReview) Run(ctx context.Context, task types.Task, mem *orgmemory.Memory) (*Result, error) {
	start := time.Now()
	result := newResult(TopologyPeerReview)

	draftCalls := make([]participantCall, len(task.Roles))
	for i, role := range task.Roles {
		draftCalls[i] = participantCall{
			Role:     role.Name,
			Kind:     KindSpecialist,
			Round:    1,
			Prompt:   specialistPrompt(role, task, mem, ""),
			Budget:   p.config.DraftBudget,
			CallSite: "peer_review.draft",
		}
	}

	drafts := p.runConcurrent(ctx, result.RunID, draftCalls)
	result.Participants = append(result.Participants, drafts...)
	accumulate(result, drafts)

	if allFailed(drafts) {
		err := errAllFailed(TopologyPeerReview)
		p.finish(result, start, err)
		return nil, err
	}

	// 每位专家轮转评审后两位的初稿
	n := len(task.Roles)
	var critiqueCalls []participantCall
	for i, role := range task.Roles {
		if drafts[i].Failed {
			continue
		}
		targets := []ParticipantOutput{drafts[(i+1)%n], drafts[(i+2)%n]}
		critiqueCalls = append(critiqueCalls, participantCall{
			Role:     role.Name + " (reviewer)",
			Kind:     KindCritique,
			Round:    2,
			Prompt:   critiquePrompt(role.Name, task, targets),
			Budget:   p.config.CritiqueBudget,
			CallSite: "peer_review.critique",
		})
	}

	critiques := p.runConcurrent(ctx, result.RunID, critiqueCalls)
	result.Participants = append(result.Participants, critiques...)
	accumulate(result, critiques)

	synth, err := p.synthesize(ctx, result.RunID, "peer_review.synthesis",
		reviewSynthesisPrompt(task, drafts, critiques, mem))
	if err != nil {
		p.finish(result, start, err)
		return nil, err
	}

	result.FinalOutput = synth.Text
	result.Usage.Add(synth.Usage)
	result.TotalTime += synth.Duration
	result.CriticalPath += synth.Duration

	p.finish(result, start, nil)
	return result, nil
}
