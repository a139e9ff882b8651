// Package eval 实现盲评：单代理与多代理的产出以随机顺序匿名呈给
// 评审模型，按任务评分标准打分，再去匿名聚合统计。
//
// 评审模型永远看不到 "single agent" 或 "multi agent" 字样，
// 标签只有 A 和 B，每次评审重新洗牌。
package eval

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/machine-machine/orgbench/llm"
	"github.com/machine-machine/orgbench/types"
)

// 胜负判定
const (
	WinnerMultiAgent  = "multi_agent"
	WinnerSingleAgent = "single_agent"
	WinnerTie         = "tie"
)

// Config 盲评配置
type Config struct {
	// Runs 评审次数，每次独立洗牌
	Runs int
	// JudgeBudget 评审调用的输出 token 预算
	JudgeBudget int
	// TieMargin 平局边界：|delta| 不超过该值判平
	TieMargin float64
	// Backend 评审后端名称，空则使用默认后端
	Backend string
}

// DefaultConfig 返回默认盲评配置
func DefaultConfig() Config {
	return Config{
		Runs:        3,
		JudgeBudget: 2000,
		TieMargin:   3.0,
	}
}

// RunScore 单次评审的去匿名结果
type RunScore struct {
	// Run 评审序号，从 1 开始
	Run int `json:"run"`
	// SingleWasA 本次洗牌中单代理是否为 A
	SingleWasA bool `json:"single_was_a"`
	// SingleScores 单代理各维度得分
	SingleScores map[string]int `json:"single_scores"`
	// MultiScores 多代理各维度得分
	MultiScores map[string]int `json:"multi_scores"`
	// SingleTotal 单代理总分
	SingleTotal float64 `json:"single_total"`
	// MultiTotal 多代理总分
	MultiTotal float64 `json:"multi_total"`
	// Delta MultiTotal - SingleTotal
	Delta float64 `json:"delta"`
}

// Result 一组评审的聚合统计
type Result struct {
	TaskID      string     `json:"task_id"`
	Topology    string     `json:"topology"`
	Runs        []RunScore `json:"runs"`
	SkippedRuns int        `json:"skipped_runs"`
	MaxScore    int        `json:"max_score"`

	SingleMean float64 `json:"single_mean"`
	SingleStd  float64 `json:"single_std"`
	MultiMean  float64 `json:"multi_mean"`
	MultiStd   float64 `json:"multi_std"`

	// DeltaMean 多代理相对单代理的平均分差
	DeltaMean float64 `json:"delta_mean"`
	// DeltaStd 逐次分差的样本标准差
	DeltaStd float64 `json:"delta_std"`
	// CohenD 合并标准差效应量
	CohenD float64 `json:"cohen_d"`
	// Winner multi_agent / single_agent / tie
	Winner string `json:"winner"`
}

// BlindEvaluator 盲评执行器
type BlindEvaluator struct {
	client *llm.Client
	config Config
	rng    *rand.Rand
	logger *zap.Logger
}

// NewBlindEvaluator 创建盲评执行器。
// rng 决定每次评审的洗牌方向，传 nil 使用不定种子。
func NewBlindEvaluator(client *llm.Client, config Config, rng *rand.Rand, logger *zap.Logger) *BlindEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if config.Runs <= 0 {
		config.Runs = 3
	}
	if config.JudgeBudget <= 0 {
		config.JudgeBudget = 2000
	}
	return &BlindEvaluator{
		client: client,
		config: config,
		rng:    rng,
		logger: logger.With(zap.String("component", "blind_evaluator")),
	}
}

// Evaluate 对一对产出执行配置次数的盲评并聚合。
// 单次评审失败跳过不计，全部失败返回 EVAL_INCONCLUSIVE。
func (e *BlindEvaluator) Evaluate(ctx context.Context, task types.Task, singleOutput, multiOutput string) (*Result, error) {
	result := &Result{
		TaskID:   task.ID,
		MaxScore: task.MaxScore(),
	}

	for run := 1; run <= e.config.Runs; run++ {
		score, err := e.evaluateOnce(ctx, task, singleOutput, multiOutput, run)
		if err != nil {
			result.SkippedRuns++
			e.logger.Warn("judge run skipped",
				zap.String("task_id", task.ID),
				zap.Int("run", run),
				zap.Error(err))
			continue
		}
		result.Runs = append(result.Runs, *score)
	}

	if len(result.Runs) == 0 {
		return nil, types.NewError(types.ErrEvalInconclusive,
			fmt.Sprintf("all %d judge runs failed for task %s", e.config.Runs, task.ID))
	}

	e.aggregate(result)

	e.logger.Info("blind evaluation complete",
		zap.String("task_id", task.ID),
		zap.Int("runs", len(result.Runs)),
		zap.Int("skipped", result.SkippedRuns),
		zap.Float64("delta_mean", result.DeltaMean),
		zap.Float64("cohen_d", result.CohenD),
		zap.String("winner", result.Winner))
	return result, nil
}

// evaluateOnce 执行单次洗牌评审
func (e *BlindEvaluator) evaluateOnce(ctx context.Context, task types.Task, singleOutput, multiOutput string, run int) (*RunScore, error) {
	singleWasA := e.rng.Float64() > 0.5

	a, b := multiOutput, singleOutput
	if singleWasA {
		a, b = singleOutput, multiOutput
	}

	comp, err := e.client.Invoke(ctx, judgePrompt(task, a, b), llm.InvokeOptions{
		CallSite:    "eval.judge",
		TokenBudget: e.config.JudgeBudget,
		Backend:     e.config.Backend,
		Temperature: 0.0,
	})
	if err != nil {
		return nil, err
	}

	aScores, err := parseScores(comp.Text, "A", task.Rubric)
	if err != nil {
		return nil, err
	}
	bScores, err := parseScores(comp.Text, "B", task.Rubric)
	if err != nil {
		return nil, err
	}

	score := &RunScore{Run: run, SingleWasA: singleWasA}
	if singleWasA {
		score.SingleScores, score.MultiScores = aScores, bScores
	} else {
		score.SingleScores, score.MultiScores = bScores, aScores
	}
	score.SingleTotal = total(score.SingleScores)
	score.MultiTotal = total(score.MultiScores)
	score.Delta = score.MultiTotal - score.SingleTotal
	return score, nil
}

// aggregate 填充聚合统计字段
func (e *BlindEvaluator) aggregate(result *Result) {
	singles := make([]float64, len(result.Runs))
	multis := make([]float64, len(result.Runs))
	deltas := make([]float64, len(result.Runs))
	for i, run := range result.Runs {
		singles[i] = run.SingleTotal
		multis[i] = run.MultiTotal
		deltas[i] = run.Delta
	}

	result.SingleMean = mean(singles)
	result.SingleStd = sampleStd(singles)
	result.MultiMean = mean(multis)
	result.MultiStd = sampleStd(multis)
	result.DeltaMean = mean(deltas)
	result.DeltaStd = sampleStd(deltas)
	result.CohenD = cohensD(result.DeltaMean, result.SingleStd, result.MultiStd)

	switch {
	case result.DeltaMean > e.config.TieMargin:
		result.Winner = WinnerMultiAgent
	case result.DeltaMean < -e.config.TieMargin:
		result.Winner = WinnerSingleAgent
	default:
		result.Winner = WinnerTie
	}
}

// judgePrompt 评审提示词。标签只有 A/B，不泄露来源。
func judgePrompt(task types.Task, a, b string) string {
	var rubric strings.Builder
	var format strings.Builder
	for _, dim := range task.Rubric {
		rubric.WriteString(fmt.Sprintf("- %s (0-%d): %s\n", dim.Name, dim.MaxPoints, dim.Description))
		format.WriteString(fmt.Sprintf("A_%s: [0-%d]\n", scoreKey(dim.Name), dim.MaxPoints))
	}
	for _, dim := range task.Rubric {
		format.WriteString(fmt.Sprintf("B_%s: [0-%d]\n", scoreKey(dim.Name), dim.MaxPoints))
	}

	return fmt.Sprintf(
		"You are an expert technical evaluator. Two different systems produced "+
			"responses to this task:\n\n"+
			"TASK:\n%s\n\n"+
			"SCORING DIMENSIONS:\n%s\n"+
			"=== RESPONSE A ===\n%s\n\n"+
			"=== RESPONSE B ===\n%s\n\n"+
			"Score BOTH responses on EVERY dimension. Be strict: reward concrete "+
			"technical specifics, penalize vague or generic content. A response "+
			"that names exact values, protocols, and formulas beats one that "+
			"gestures at them.\n\n"+
			"Output your scores in EXACTLY this format, integers only, one per line:\n%s",
		task.Prompt, rubric.String(), a, b, format.String(),
	)
}

// scoreRe 为前缀/维度构造分数行匹配器
func scoreRe(prefix, key string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^\s*` + regexp.QuoteMeta(prefix+"_"+key) + `\s*:\s*\[?\s*(\d+)`)
}

// parseScores 从评审回复中提取一侧的全部维度得分。
// 同一维度出现多次取最后一次，得分夹取到维度上限。
func parseScores(text, prefix string, rubric []types.RubricDimension) (map[string]int, error) {
	scores := make(map[string]int, len(rubric))
	for _, dim := range rubric {
		key := scoreKey(dim.Name)
		matches := scoreRe(prefix, key).FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			return nil, fmt.Errorf("judge output missing score line %s_%s", prefix, key)
		}
		var value int
		if _, err := fmt.Sscanf(matches[len(matches)-1][1], "%d", &value); err != nil {
			return nil, fmt.Errorf("unparseable score for %s_%s: %w", prefix, key, err)
		}
		if value > dim.MaxPoints {
			value = dim.MaxPoints
		}
		scores[dim.Name] = value
	}
	return scores, nil
}

// scoreKey 维度名转分数行键：小写、空格转下划线
func scoreKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func total(scores map[string]int) float64 {
	sum := 0
	for _, v := range scores {
		sum += v
	}
	return float64(sum)
}
