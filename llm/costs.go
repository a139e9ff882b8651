package llm

import (
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/machine-machine/orgbench/types"
)

// SiteUsage 单个调用点的累计用量
type SiteUsage struct {
	Site             string  `json:"site"`
	Calls            int64   `json:"calls"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// CostSnapshot 进程级成本快照
type CostSnapshot struct {
	TotalCalls            int64       `json:"total_calls"`
	TotalPromptTokens     int64       `json:"total_prompt_tokens"`
	TotalCompletionTokens int64       `json:"total_completion_tokens"`
	TotalCostUSD          float64     `json:"total_cost_usd"`
	Sites                 []SiteUsage `json:"sites"`
}

// CostTracker 按调用点累计 token 与美元成本.
// 全局计数用原子操作，按调用点的明细表走互斥锁。
type CostTracker struct {
	logger *zap.Logger

	// 用于线程安全更新的原子计数器
	totalCalls            int64
	totalPromptTokens     int64
	totalCompletionTokens int64
	totalCostMicroUSD     int64 // stored as cost * 1000000 for atomic ops

	mu    sync.Mutex
	sites map[string]*siteCounters
}

type siteCounters struct {
	calls            int64
	promptTokens     int64
	completionTokens int64
	costMicroUSD     int64
}

// NewCostTracker 创建成本追踪器
func NewCostTracker(logger *zap.Logger) *CostTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CostTracker{
		logger: logger.With(zap.String("component", "cost_tracker")),
		sites:  make(map[string]*siteCounters),
	}
}

// Record 记录一次调用的用量与成本
func (t *CostTracker) Record(site, backend string, usage types.TokenUsage) {
	microUSD := int64(usage.Cost * 1e6)

	atomic.AddInt64(&t.totalCalls, 1)
	atomic.AddInt64(&t.totalPromptTokens, int64(usage.PromptTokens))
	atomic.AddInt64(&t.totalCompletionTokens, int64(usage.CompletionTokens))
	atomic.AddInt64(&t.totalCostMicroUSD, microUSD)

	t.mu.Lock()
	sc, ok := t.sites[site]
	if !ok {
		sc = &siteCounters{}
		t.sites[site] = sc
	}
	sc.calls++
	sc.promptTokens += int64(usage.PromptTokens)
	sc.completionTokens += int64(usage.CompletionTokens)
	sc.costMicroUSD += microUSD
	t.mu.Unlock()

	t.logger.Debug("usage recorded",
		zap.String("site", site),
		zap.String("backend", backend),
		zap.Int("prompt_tokens", usage.PromptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens),
		zap.Float64("cost_usd", usage.Cost),
	)
}

// TotalCostUSD 返回累计美元成本
func (t *CostTracker) TotalCostUSD() float64 {
	return float64(atomic.LoadInt64(&t.totalCostMicroUSD)) / 1e6
}

// TotalTokens 返回累计 token 数（输入 + 输出）
func (t *CostTracker) TotalTokens() int64 {
	return atomic.LoadInt64(&t.totalPromptTokens) + atomic.LoadInt64(&t.totalCompletionTokens)
}

// Snapshot 返回当前成本快照，按调用点名称排序
func (t *CostTracker) Snapshot() CostSnapshot {
	snap := CostSnapshot{
		TotalCalls:            atomic.LoadInt64(&t.totalCalls),
		TotalPromptTokens:     atomic.LoadInt64(&t.totalPromptTokens),
		TotalCompletionTokens: atomic.LoadInt64(&t.totalCompletionTokens),
		TotalCostUSD:          t.TotalCostUSD(),
	}

	t.mu.Lock()
	for site, sc := range t.sites {
		snap.Sites = append(snap.Sites, SiteUsage{
			Site:             site,
			Calls:            sc.calls,
			PromptTokens:     sc.promptTokens,
			CompletionTokens: sc.completionTokens,
			CostUSD:          float64(sc.costMicroUSD) / 1e6,
		})
	}
	t.mu.Unlock()

	sort.Slice(snap.Sites, func(i, j int) bool {
		return snap.Sites[i].Site < snap.Sites[j].Site
	})
	return snap
}
