// Package tokenizer 提供上下文越界检查所需的 token 计数能力。
// 优先使用 tiktoken 精确计数，编码不可用时退回字符估算。
package tokenizer

// Counter 统一的 token 计数接口
type Counter interface {
	// Count 返回给定文本的 token 数
	Count(text string) int

	// Name 返回计数器的名称
	Name() string
}

// ForModel returns the counter for a model name. The tiktoken counter
// carries its own estimator fallback, so this never returns nil.
func ForModel(model string) Counter {
	return NewTiktokenCounter(model)
}
