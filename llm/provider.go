package llm

import "context"

// Role 消息角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 单条对话消息
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 一次补全请求
type ChatRequest struct {
	// TraceID 贯穿日志与指标的请求标识
	TraceID string `json:"trace_id,omitempty"`
	// Model 模型名称
	Model string `json:"model"`
	// Messages 对话消息
	Messages []Message `json:"messages"`
	// MaxTokens 输出 token 预算
	MaxTokens int `json:"max_tokens"`
	// Temperature 采样温度
	Temperature float64 `json:"temperature"`
}

// ChatUsage 上游返回的 token 用量
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse 一次补全响应
type ChatResponse struct {
	Content      string    `json:"content"`
	Model        string    `json:"model"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Usage        ChatUsage `json:"usage"`
}

// Provider 模型后端接口
type Provider interface {
	// Name 返回提供商名称
	Name() string

	// Completion 执行一次补全调用
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// HealthCheck 探测后端可用性
	HealthCheck(ctx context.Context) error
}
