// Package retrospective 实现失败归因：对一次组织运行及其盲评结果
// 做诊断，产出封闭分类下的失败模式和可写入组织记忆的课程。
//
// 分析器只产出 Finding，写入记忆是学习控制器的职责。
package retrospective

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/machine-machine/orgbench/eval"
	"github.com/machine-machine/orgbench/llm"
	"github.com/machine-machine/orgbench/topology"
	"github.com/machine-machine/orgbench/types"
)

// 失败模式封闭分类。每次诊断恰好归入其中一类。
const (
	CategoryAbstractionFailure = "abstraction-failure"
	CategorySynthesisLoss      = "synthesis-loss"
	CategoryDomainDrift        = "domain-drift"
	CategorySpecialistOverlap  = "specialist-overlap"
	CategoryTokenTruncation    = "token-truncation"
)

// Categories 返回全部失败模式类别
func Categories() []string {
	return []string{
		CategoryAbstractionFailure,
		CategorySynthesisLoss,
		CategoryDomainDrift,
		CategorySpecialistOverlap,
		CategoryTokenTruncation,
	}
}

var categoryDefinitions = map[string]string{
	CategoryAbstractionFailure: "concrete technical specs were replaced with abstract metaphors or generic language",
	CategorySynthesisLoss:      "specialist detail existed but the synthesis step dropped or diluted it",
	CategoryDomainDrift:        "outputs drifted away from the task's actual domain into generic territory",
	CategorySpecialistOverlap:  "specialists duplicated each other instead of covering distinct ground",
	CategoryTokenTruncation:    "outputs were cut off or compressed by token limits before completion",
}

// Finding 一次失败归因的结构化结论
type Finding struct {
	// Category 封闭分类中的失败模式，恰好一个
	Category string `json:"category"`
	// Diagnosis 根因诊断
	Diagnosis string `json:"diagnosis"`
	// ProtocolFix 对组织协议的修正建议
	ProtocolFix string `json:"protocol_fix"`
	// DomainGrounding 领域锚定提示
	DomainGrounding string `json:"domain_grounding"`
	// Lessons 待写入组织记忆的课程，键为记忆类别
	Lessons map[string]string `json:"lessons"`
}

// Config 归因分析配置
type Config struct {
	// Budget 分析调用的输出 token 预算
	Budget int
	// Backend 后端名称，空则使用默认后端
	Backend string
}

// DefaultConfig 返回默认归因配置
func DefaultConfig() Config {
	return Config{Budget: 1500}
}

// Analyzer 失败归因分析器
type Analyzer struct {
	client *llm.Client
	config Config
	logger *zap.Logger
}

// NewAnalyzer 创建归因分析器
func NewAnalyzer(client *llm.Client, config Config, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Budget <= 0 {
		config.Budget = 1500
	}
	return &Analyzer{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "retrospective")),
	}
}

// Analyze 对一次组织运行做失败归因
func (a *Analyzer) Analyze(ctx context.Context, task types.Task, orgResult *topology.Result, evalResult *eval.Result) (*Finding, error) {
	comp, err := a.client.Invoke(ctx, analysisPrompt(task, orgResult, evalResult), llm.InvokeOptions{
		CallSite:    "retrospective.analyze",
		TokenBudget: a.config.Budget,
		Backend:     a.config.Backend,
		Temperature: 0.3,
	})
	if err != nil {
		return nil, err
	}

	finding := parseFinding(comp.Text)
	a.logger.Info("retrospective complete",
		zap.String("task_id", task.ID),
		zap.String("topology", orgResult.Topology),
		zap.String("category", finding.Category),
		zap.Int("lessons", len(finding.Lessons)))
	return finding, nil
}

// analysisPrompt 归因提示词。产出节选有界，评分完整入场。
func analysisPrompt(task types.Task, orgResult *topology.Result, evalResult *eval.Result) string {
	var categories strings.Builder
	for _, c := range Categories() {
		categories.WriteString(fmt.Sprintf("- %s: %s\n", c, categoryDefinitions[c]))
	}

	var failures strings.Builder
	for _, p := range orgResult.Participants {
		if p.Failed {
			failures.WriteString(fmt.Sprintf("- %s failed: %s\n", p.Role, p.Err))
		}
	}
	failureSection := ""
	if failures.Len() > 0 {
		failureSection = "\nPARTICIPANT FAILURES:\n" + failures.String()
	}

	return fmt.Sprintf(
		"You are an organizational failure analyst for multi-agent AI systems.\n\n"+
			"A %d-participant organization using the %q topology scored %.1f on this task "+
			"while a single expert scored %.1f (delta %.1f, max %d).\n\n"+
			"TASK:\n%s\n\n"+
			"ORGANIZATION'S FINAL OUTPUT (excerpt):\n%s\n%s\n"+
			"Diagnose WHY the organization underperformed or failed to beat the single expert. "+
			"Classify the failure into EXACTLY ONE of these modes:\n%s\n"+
			"Respond in EXACTLY this format:\n"+
			"FAILURE_MODE: <one category name from the list>\n"+
			"ROOT_CAUSE: <one or two sentences naming the mechanism>\n"+
			"PROTOCOL_FIX: <one concrete change to how the organization should work>\n"+
			"DOMAIN_GROUNDING: <one hint that would anchor outputs in this task's domain>\n"+
			"MEMORY_LESSONS:\n"+
			"- <memory_category>: <one transferable lesson for future runs>\n"+
			"- <memory_category>: <another lesson if warranted>",
		len(orgResult.Participants), orgResult.Topology,
		evalResult.MultiMean, evalResult.SingleMean, evalResult.DeltaMean, evalResult.MaxScore,
		task.Prompt, boundedExcerpt(orgResult.FinalOutput, 3000), failureSection, categories.String(),
	)
}

func boundedExcerpt(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "\n[...truncated...]"
}

var fieldLabels = []string{"FAILURE_MODE", "ROOT_CAUSE", "PROTOCOL_FIX", "DOMAIN_GROUNDING", "MEMORY_LESSONS"}

// parseFinding 解析分析回复。字段缺失或类别不合法时走关键词回退，
// 结果永远落在封闭分类之内。
func parseFinding(raw string) *Finding {
	fields := parseFields(raw)

	finding := &Finding{
		Category:        normalizeCategory(fields["FAILURE_MODE"], raw),
		Diagnosis:       fields["ROOT_CAUSE"],
		ProtocolFix:     fields["PROTOCOL_FIX"],
		DomainGrounding: fields["DOMAIN_GROUNDING"],
		Lessons:         parseLessons(fields["MEMORY_LESSONS"]),
	}

	if finding.Diagnosis == "" {
		finding.Diagnosis = strings.TrimSpace(boundedExcerpt(raw, 300))
	}
	if len(finding.Lessons) == 0 {
		lesson := finding.ProtocolFix
		if lesson == "" {
			lesson = finding.Diagnosis
		}
		if lesson != "" {
			finding.Lessons = map[string]string{defaultMemoryKey(finding.Category): lesson}
		}
	}
	return finding
}

// parseFields 按字段标签切分回复文本
func parseFields(raw string) map[string]string {
	fields := map[string]string{}
	current := ""
	var buf strings.Builder

	flush := func() {
		if current != "" {
			fields[current] = strings.TrimSpace(buf.String())
		}
		buf.Reset()
	}

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		matched := false
		for _, label := range fieldLabels {
			if strings.HasPrefix(trimmed, label+":") || trimmed == label {
				flush()
				current = label
				buf.WriteString(strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(trimmed, label), ":")))
				matched = true
				break
			}
		}
		if !matched && current != "" {
			buf.WriteString("\n")
			buf.WriteString(line)
		}
	}
	flush()
	return fields
}

// parseLessons 解析 "- category: lesson" 行
func parseLessons(section string) map[string]string {
	lessons := map[string]string{}
	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		key, lesson, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		key = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "_")
		lesson = strings.TrimSpace(lesson)
		if key == "" || lesson == "" || strings.HasPrefix(key, "<") {
			continue
		}
		lessons[key] = lesson
	}
	return lessons
}

// normalizeCategory 把声明的失败模式映射进封闭分类，
// 不合法时对全文做关键词分类
func normalizeCategory(declared, fullText string) string {
	cleaned := strings.ToLower(strings.TrimSpace(declared))
	cleaned = strings.Trim(cleaned, "<>*`\"'.")
	for _, c := range Categories() {
		if cleaned == c || strings.Contains(cleaned, c) {
			return c
		}
	}
	return classifyByKeywords(fullText)
}

var keywordHints = map[string][]string{
	CategoryTokenTruncation:    {"truncat", "cut off", "token limit", "ran out of"},
	CategorySpecialistOverlap:  {"overlap", "duplicat", "redundan", "same ground"},
	CategoryDomainDrift:        {"drift", "off-topic", "wrong domain", "generic advice"},
	CategoryAbstractionFailure: {"abstract", "metaphor", "vague", "hand-wav"},
	CategorySynthesisLoss:      {"synthes", "integrat", "dropped", "diluted"},
}

// classifyByKeywords 计数各类别的关键词命中，取最高者。
// 无命中时归入 synthesis-loss，最常见的失败模式。
func classifyByKeywords(text string) string {
	lower := strings.ToLower(text)
	best := CategorySynthesisLoss
	bestHits := 0
	cats := Categories()
	sort.Strings(cats)
	for _, c := range cats {
		hits := 0
		for _, kw := range keywordHints[c] {
			hits += strings.Count(lower, kw)
		}
		if hits > bestHits {
			best = c
			bestHits = hits
		}
	}
	return best
}

// defaultMemoryKey 失败模式对应的默认记忆类别
func defaultMemoryKey(category string) string {
	switch category {
	case CategoryTokenTruncation:
		return "synthesis_truncation"
	case CategoryDomainDrift:
		return "domain_grounding"
	case CategorySpecialistOverlap:
		return "role_design"
	case CategoryAbstractionFailure:
		return "output_structure"
	default:
		return "synthesis_protocol"
	}
}
