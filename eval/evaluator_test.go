package eval_test

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/machine-machine/orgbench/eval"
	"github.com/machine-machine/orgbench/llm"
	"github.com/machine-machine/orgbench/testutil/mocks"
	"github.com/machine-machine/orgbench/types"
)

func newTestClient(provider llm.Provider) *llm.Client {
	backend := &llm.Backend{
		Name:     "mock",
		Provider: provider,
		Model:    "mock-model",
	}
	config := llm.ClientConfig{
		DefaultBackend: "mock",
		MaxRetries:     1,
		InitialDelay:   time.Millisecond,
		MaxDelay:       2 * time.Millisecond,
		Multiplier:     2.0,
		CallTimeout:    5 * time.Second,
	}
	return llm.NewClient([]*llm.Backend{backend}, config, zap.NewNop())
}

func evalTask() types.Task {
	return types.Task{
		ID:     "relay-design",
		Prompt: "Design a fault-tolerant message relay network.",
		Rubric: []types.RubricDimension{
			{Name: "coverage", Description: "covers all required areas", MaxPoints: 20},
			{Name: "depth", Description: "concrete specifics", MaxPoints: 20},
		},
	}
}

// markerJudge 按标记物给分：含 favored 标记的一侧拿高分。
// 评审只认内容，不认标签，洗牌方向因此不影响去匿名结果。
func markerJudge(favoredMarker string) func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return func(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		prompt := req.Messages[0].Content
		aStart := strings.Index(prompt, "=== RESPONSE A ===")
		bStart := strings.Index(prompt, "=== RESPONSE B ===")
		aBody := prompt[aStart:bStart]

		aCov, aDep, bCov, bDep := 9, 8, 18, 16
		if strings.Contains(aBody, favoredMarker) {
			aCov, aDep, bCov, bDep = 18, 16, 9, 8
		}
		content := fmt.Sprintf("A_coverage: %d\nA_depth: %d\nB_coverage: %d\nB_depth: %d\n",
			aCov, aDep, bCov, bDep)
		return &llm.ChatResponse{
			Content: content,
			Usage:   llm.ChatUsage{PromptTokens: 50, CompletionTokens: 20},
		}, nil
	}
}

func TestEvaluateDeanonymizesShuffledScores(t *testing.T) {
	provider := mocks.NewMockProvider().WithCompletionFunc(markerJudge("MULTI-OUTPUT"))
	evaluator := eval.NewBlindEvaluator(newTestClient(provider), eval.DefaultConfig(),
		rand.New(rand.NewSource(7)), zap.NewNop())

	result, err := evaluator.Evaluate(context.Background(), evalTask(),
		"SINGLE-OUTPUT from one expert", "MULTI-OUTPUT from the org")
	require.NoError(t, err)

	assert.Len(t, result.Runs, 3)
	assert.Equal(t, 0, result.SkippedRuns)
	assert.Equal(t, 40, result.MaxScore)

	// 评审总偏向多代理内容，洗牌不得改变去匿名后的归属
	assert.InDelta(t, 34.0, result.MultiMean, 1e-9)
	assert.InDelta(t, 17.0, result.SingleMean, 1e-9)
	assert.InDelta(t, 17.0, result.DeltaMean, 1e-9)
	assert.Equal(t, eval.WinnerMultiAgent, result.Winner)
	for _, run := range result.Runs {
		assert.Equal(t, 18, run.MultiScores["coverage"])
		assert.Equal(t, 9, run.SingleScores["coverage"])
	}
}

func TestEvaluateWinnerIsLabelIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Int64().Draw(t, "seed")
		provider := mocks.NewMockProvider().WithCompletionFunc(markerJudge("MULTI-OUTPUT"))
		evaluator := eval.NewBlindEvaluator(newTestClient(provider), eval.DefaultConfig(),
			rand.New(rand.NewSource(seed)), zap.NewNop())

		result, err := evaluator.Evaluate(context.Background(), evalTask(),
			"SINGLE-OUTPUT text", "MULTI-OUTPUT text")
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if result.Winner != eval.WinnerMultiAgent {
			t.Fatalf("winner depends on shuffle: seed %d got %s", seed, result.Winner)
		}
		if result.DeltaMean != 17.0 {
			t.Fatalf("delta depends on shuffle: seed %d got %f", seed, result.DeltaMean)
		}
	})
}

func TestEvaluateTieAndSingleWinner(t *testing.T) {
	// 评审给两侧同分：平局
	provider := mocks.NewSuccessProvider("A_coverage: 10\nA_depth: 10\nB_coverage: 10\nB_depth: 10\n")
	evaluator := eval.NewBlindEvaluator(newTestClient(provider), eval.DefaultConfig(),
		rand.New(rand.NewSource(1)), zap.NewNop())

	result, err := evaluator.Evaluate(context.Background(), evalTask(), "s", "m")
	require.NoError(t, err)
	assert.Equal(t, eval.WinnerTie, result.Winner)
	assert.Equal(t, 0.0, result.DeltaMean)

	// 评审偏向单代理内容：单代理胜
	provider = mocks.NewMockProvider().WithCompletionFunc(markerJudge("SINGLE-OUTPUT"))
	evaluator = eval.NewBlindEvaluator(newTestClient(provider), eval.DefaultConfig(),
		rand.New(rand.NewSource(1)), zap.NewNop())

	result, err = evaluator.Evaluate(context.Background(), evalTask(),
		"SINGLE-OUTPUT text", "MULTI-OUTPUT text")
	require.NoError(t, err)
	assert.Equal(t, eval.WinnerSingleAgent, result.Winner)
	assert.InDelta(t, -17.0, result.DeltaMean, 1e-9)
}

func TestEvaluateSkipsFailedRuns(t *testing.T) {
	judgeErr := types.NewError(types.ErrInvalidRequest, "judge unavailable")
	provider := mocks.NewMockProvider().
		WithScript(mocks.ScriptStep{Err: judgeErr}).
		WithCompletionFunc(markerJudge("MULTI-OUTPUT"))
	evaluator := eval.NewBlindEvaluator(newTestClient(provider), eval.DefaultConfig(),
		rand.New(rand.NewSource(3)), zap.NewNop())

	result, err := evaluator.Evaluate(context.Background(), evalTask(),
		"SINGLE-OUTPUT text", "MULTI-OUTPUT text")
	require.NoError(t, err)

	assert.Equal(t, 1, result.SkippedRuns)
	assert.Len(t, result.Runs, 2)
	assert.Equal(t, eval.WinnerMultiAgent, result.Winner)
}

func TestEvaluateAllRunsFailed(t *testing.T) {
	provider := mocks.NewErrorProvider(types.NewError(types.ErrInvalidRequest, "judge down"))
	evaluator := eval.NewBlindEvaluator(newTestClient(provider), eval.DefaultConfig(),
		rand.New(rand.NewSource(3)), zap.NewNop())

	_, err := evaluator.Evaluate(context.Background(), evalTask(), "s", "m")
	require.Error(t, err)
	assert.Equal(t, types.ErrEvalInconclusive, types.GetErrorCode(err))
}

func TestEvaluateGarbageJudgeOutputSkipsRun(t *testing.T) {
	provider := mocks.NewMockProvider().
		WithScript(mocks.ScriptStep{Content: "I cannot score these responses."}).
		WithCompletionFunc(markerJudge("MULTI-OUTPUT"))
	evaluator := eval.NewBlindEvaluator(newTestClient(provider), eval.DefaultConfig(),
		rand.New(rand.NewSource(3)), zap.NewNop())

	result, err := evaluator.Evaluate(context.Background(), evalTask(),
		"SINGLE-OUTPUT text", "MULTI-OUTPUT text")
	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedRuns)
	assert.Len(t, result.Runs, 2)
}
