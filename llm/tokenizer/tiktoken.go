package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenCounter 基于 tiktoken 的精确计数器
type TiktokenCounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
	fallback Counter
}

// 模型名称到 tiktoken 编码的映射，支持前缀匹配
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// encodingForModel 按模型名称选择编码。
// 未知模型统一使用 cl100k_base；不同 BPE 词表之间的偏差对
// 越界预检来说可以接受，估算器兜底。
func encodingForModel(model string) string {
	if enc, ok := modelEncodings[model]; ok {
		return enc
	}
	// 最长前缀优先，gpt-4o-mini 命中 gpt-4o 而不是 gpt-4
	best := ""
	for prefix := range modelEncodings {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best != "" {
		return modelEncodings[best]
	}
	return "cl100k_base"
}

// NewTiktokenCounter 为给定模型创建 tiktoken 计数器
func NewTiktokenCounter(model string) *TiktokenCounter {
	return &TiktokenCounter{
		encoding: encodingForModel(model),
		fallback: NewEstimatorCounter(),
	}
}

// init lazily 初始化 tiktoken 编码(可以在第一次使用时下载数据).
func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// Count 返回文本的 token 数，编码不可用时使用估算兜底
func (t *TiktokenCounter) Count(text string) int {
	if err := t.init(); err != nil {
		return t.fallback.Count(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Name 返回计数器的名称
func (t *TiktokenCounter) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
