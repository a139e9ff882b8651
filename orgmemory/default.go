package orgmemory

import "go.uber.org/zap"

// 出厂预置课程：新任务从第一轮起就带着这些教训运行，
// 避免重复已经踩过的坑。
var defaultLessons = []struct {
	category string
	lesson   string
}{
	{
		"synthesis_protocol",
		"CRITICAL: Specialists must output structured, specific content. " +
			"Synthesis must preserve ALL concrete values verbatim. Never replace " +
			"specific numbers, schemas, or protocol names with abstract metaphors. " +
			"If a specialist says 'timeout_ms: 500', synthesis must keep '500', not 'standard timeout'.",
	},
	{
		"synthesis_truncation",
		"NEVER truncate specialist input for synthesis. A single synthesis call " +
			"with full specialist input is better than split calls with truncated input. " +
			"If the model hits token limits, retry with higher max_tokens.",
	},
	{
		"domain_grounding",
		"All specialist prompts must include explicit domain grounding. " +
			"LLMs pattern-match to their training data distribution. If the task " +
			"mentions 'incident response', specialists will drift to cybersecurity. " +
			"Always specify the actual domain context explicitly.",
	},
	{
		"output_structure",
		"Multi-agent output must follow a consistent phase structure matching " +
			"the task's required areas. Each required area must have a dedicated section. " +
			"Specialists should output JSON with clearly labeled sections.",
	},
}

// DefaultMemory 返回带出厂预置课程的组织记忆
func DefaultMemory(config Config, logger *zap.Logger) *Memory {
	m := NewMemory(config, logger)
	for _, dl := range defaultLessons {
		_ = m.Append(dl.category, dl.lesson)
	}
	return m
}
