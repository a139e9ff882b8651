package llm

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/machine-machine/orgbench/internal/metrics"
	"github.com/machine-machine/orgbench/llm/retry"
	"github.com/machine-machine/orgbench/llm/tokenizer"
	"github.com/machine-machine/orgbench/types"
)

// Backend 一个已注册的模型后端及其计费/容量参数
type Backend struct {
	// Name 注册名
	Name string
	// Provider 底层提供商实现
	Provider Provider
	// Model 模型名称
	Model string
	// ContextLimit 硬性上下文上限（token）
	ContextLimit int
	// PromptPricePerMTok 输入价格（美元 / 百万 token）
	PromptPricePerMTok float64
	// CompletionPricePerMTok 输出价格（美元 / 百万 token）
	CompletionPricePerMTok float64
	// Counter token 计数器，nil 时按模型自动选择
	Counter tokenizer.Counter
}

// ClientConfig 客户端配置
type ClientConfig struct {
	// DefaultBackend 默认后端名称
	DefaultBackend string
	// AlternateBackend 升级后端名称（重试耗尽后的最后一搏）
	AlternateBackend string
	// MaxRetries 瞬时错误最大重试次数
	MaxRetries int
	// InitialDelay 初始退避间隔
	InitialDelay time.Duration
	// MaxDelay 最大退避间隔
	MaxDelay time.Duration
	// Multiplier 退避倍数
	Multiplier float64
	// EmptyContentIncrement 空响应重试时的预算增量
	EmptyContentIncrement int
	// CallTimeout 单次上游调用超时
	CallTimeout time.Duration
}

// DefaultClientConfig 返回默认客户端配置
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxRetries:            3,
		InitialDelay:          1 * time.Second,
		MaxDelay:              30 * time.Second,
		Multiplier:            2.0,
		EmptyContentIncrement: 2000,
		CallTimeout:           90 * time.Second,
	}
}

// InvokeOptions 单次调用选项
type InvokeOptions struct {
	// CallSite 成本归属的调用点标识（如 "star/specialist" "synthesis"）
	CallSite string
	// TokenBudget 输出 token 预算，必须为正
	TokenBudget int
	// Backend 后端名称，空则使用默认后端
	Backend string
	// System 可选的系统提示词
	System string
	// Temperature 采样温度
	Temperature float64
	// AllowEscalation 重试耗尽后允许对升级后端做最后一次尝试
	AllowEscalation bool
	// TraceID 请求追踪标识
	TraceID string
}

// Completion 一次成功调用的结果
type Completion struct {
	Text     string
	Usage    types.TokenUsage
	Backend  string
	Model    string
	Duration time.Duration
}

// Client 统一的模型调用入口
type Client struct {
	config   ClientConfig
	backends map[string]*Backend
	retryer  retry.Retryer
	tracker  *CostTracker
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewClient 创建客户端
func NewClient(backends []*Backend, config ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "llm_client"))

	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 1 * time.Second
	}
	if config.Multiplier < 1.0 {
		config.Multiplier = 2.0
	}
	if config.EmptyContentIncrement <= 0 {
		config.EmptyContentIncrement = 2000
	}

	m := make(map[string]*Backend, len(backends))
	for _, b := range backends {
		if b.Counter == nil {
			b.Counter = tokenizer.ForModel(b.Model)
		}
		m[b.Name] = b
	}

	policy := &retry.RetryPolicy{
		MaxRetries:   config.MaxRetries,
		InitialDelay: config.InitialDelay,
		MaxDelay:     config.MaxDelay,
		Multiplier:   config.Multiplier,
		Jitter:       true,
	}

	return &Client{
		config:   config,
		backends: m,
		retryer:  retry.NewBackoffRetryer(policy, logger),
		tracker:  NewCostTracker(logger),
		logger:   logger,
	}
}

// WithMetrics 附加指标收集器
func (c *Client) WithMetrics(m *metrics.Collector) *Client {
	c.metrics = m
	return c
}

// Costs 返回进程级成本追踪器
func (c *Client) Costs() *CostTracker {
	return c.tracker
}

// Backend 按名称返回已注册后端
func (c *Client) Backend(name string) (*Backend, bool) {
	b, ok := c.backends[name]
	return b, ok
}

// Invoke 执行一次模型调用。
// 调用协议：瞬时错误退避重试；空响应以更高预算重试一次；
// 重试耗尽后（如允许）对升级后端做最后一次尝试。
// 提示超出上下文上限立即返回 CONTEXT_OVERFLOW，绝不截断。
func (c *Client) Invoke(ctx context.Context, prompt string, opts InvokeOptions) (*Completion, error) {
	if opts.TokenBudget <= 0 {
		return nil, types.NewError(types.ErrInvalidTokenBudget, "token budget must be positive").
			WithCallSite(opts.CallSite)
	}

	name := opts.Backend
	if name == "" {
		name = c.config.DefaultBackend
	}
	backend, ok := c.backends[name]
	if !ok {
		return nil, types.NewError(types.ErrBackendNotFound, "backend not registered: "+name).
			WithCallSite(opts.CallSite)
	}

	budget := opts.TokenBudget

	if err := c.checkOverflow(backend, prompt, opts.System, budget, opts.CallSite); err != nil {
		return nil, err
	}

	comp, err := c.invokeWithRetry(ctx, backend, prompt, opts, budget)
	if err == nil {
		return comp, nil
	}

	// 空响应：预算加量后重试一次
	if hasCode(err, types.ErrEmptyContent) {
		escalated := budget + c.config.EmptyContentIncrement
		c.logger.Warn("empty completion, retrying with larger budget",
			zap.String("backend", backend.Name),
			zap.String("call_site", opts.CallSite),
			zap.Int("budget", budget),
			zap.Int("escalated_budget", escalated),
		)
		if overflowErr := c.checkOverflow(backend, prompt, opts.System, escalated, opts.CallSite); overflowErr != nil {
			return nil, overflowErr
		}
		budget = escalated
		comp, err = c.invokeWithRetry(ctx, backend, prompt, opts, budget)
		if err == nil {
			return comp, nil
		}
	}

	// 致命配置错误不升级
	if hasCode(err, types.ErrContextOverflow) || hasCode(err, types.ErrInvalidTokenBudget) {
		return nil, err
	}

	// 最后一搏：升级后端
	if opts.AllowEscalation && c.config.AlternateBackend != "" && c.config.AlternateBackend != backend.Name {
		alt, ok := c.backends[c.config.AlternateBackend]
		if ok {
			c.logger.Warn("escalating to alternate backend",
				zap.String("from", backend.Name),
				zap.String("to", alt.Name),
				zap.String("call_site", opts.CallSite),
				zap.Error(err),
			)
			if overflowErr := c.checkOverflow(alt, prompt, opts.System, budget, opts.CallSite); overflowErr != nil {
				return nil, overflowErr
			}
			comp, altErr := c.invokeOnce(ctx, alt, prompt, opts, budget)
			if altErr == nil {
				return comp, nil
			}
			c.logger.Error("alternate backend also failed",
				zap.String("backend", alt.Name),
				zap.Error(altErr),
			)
		}
	}

	return nil, err
}

// invokeWithRetry 在退避重试器内执行调用。
// 空响应被标记为不可重试错误，逃出重试器后由 Invoke 单独处理。
func (c *Client) invokeWithRetry(ctx context.Context, backend *Backend, prompt string, opts InvokeOptions, budget int) (*Completion, error) {
	result, err := c.retryer.DoWithResult(ctx, func() (any, error) {
		return c.invokeOnce(ctx, backend, prompt, opts, budget)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Completion), nil
}

// invokeOnce 执行单次上游调用并记录成本
func (c *Client) invokeOnce(ctx context.Context, backend *Backend, prompt string, opts InvokeOptions, budget int) (*Completion, error) {
	if c.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CallTimeout)
		defer cancel()
	}

	messages := make([]Message, 0, 2)
	if opts.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: opts.System})
	}
	messages = append(messages, Message{Role: RoleUser, Content: prompt})

	req := &ChatRequest{
		TraceID:     opts.TraceID,
		Model:       backend.Model,
		Messages:    messages,
		MaxTokens:   budget,
		Temperature: opts.Temperature,
	}

	start := time.Now()
	resp, err := backend.Provider.Completion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordLLMRequest(backend.Name, backend.Model, "error", duration, 0, 0, 0)
		}
		return nil, err
	}

	if strings.TrimSpace(resp.Content) == "" {
		if c.metrics != nil {
			c.metrics.RecordLLMRequest(backend.Name, backend.Model, "empty", duration, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, 0)
		}
		return nil, types.NewError(types.ErrEmptyContent, "completion returned empty content").
			WithBackend(backend.Name).
			WithCallSite(opts.CallSite)
	}

	usage := types.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	usage.Cost = float64(usage.PromptTokens)*backend.PromptPricePerMTok/1e6 +
		float64(usage.CompletionTokens)*backend.CompletionPricePerMTok/1e6

	c.tracker.Record(opts.CallSite, backend.Name, usage)
	if c.metrics != nil {
		c.metrics.RecordLLMRequest(backend.Name, backend.Model, "success", duration, usage.PromptTokens, usage.CompletionTokens, usage.Cost)
	}

	return &Completion{
		Text:     resp.Content,
		Usage:    usage,
		Backend:  backend.Name,
		Model:    backend.Model,
		Duration: duration,
	}, nil
}

// checkOverflow 上下文越界预检。
// 提示 token 数加输出预算必须落在后端的硬性上限之内。
func (c *Client) checkOverflow(backend *Backend, prompt, system string, budget int, callSite string) error {
	if backend.ContextLimit <= 0 {
		return nil
	}
	promptTokens := backend.Counter.Count(prompt)
	if system != "" {
		promptTokens += backend.Counter.Count(system)
	}
	if promptTokens+budget > backend.ContextLimit {
		c.logger.Error("prompt exceeds backend context limit",
			zap.String("backend", backend.Name),
			zap.String("call_site", callSite),
			zap.Int("prompt_tokens", promptTokens),
			zap.Int("budget", budget),
			zap.Int("context_limit", backend.ContextLimit),
		)
		return types.NewError(types.ErrContextOverflow, "prompt plus budget exceeds backend context limit").
			WithBackend(backend.Name).
			WithCallSite(callSite)
	}
	return nil
}

// hasCode 检查错误链中是否出现指定错误码
func hasCode(err error, code types.ErrorCode) bool {
	for err != nil {
		if types.GetErrorCode(err) == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
