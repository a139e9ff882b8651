// Package orgmemory 实现组织记忆：按类别追加的课程库。
// 课程只增不删，按插入顺序保存，以纯文本拼接的方式注入提示词。
package orgmemory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Config 组织记忆配置
type Config struct {
	// MaxLessons 每个类别保留的最大课程数，0 表示不限。
	// 达到上限后拒绝追加（不淘汰旧课程）。
	MaxLessons int
}

// DefaultMemoryConfig 返回默认配置
func DefaultMemoryConfig() Config {
	return Config{MaxLessons: 0}
}

// Memory 按类别持有有序课程列表。
// 并发安全；写入只有 Append 一条路径。
type Memory struct {
	mu      sync.RWMutex
	lessons map[string][]string
	order   []string // 类别的插入顺序
	config  Config
	logger  *zap.Logger
}

// NewMemory 创建空的组织记忆
func NewMemory(config Config, logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		lessons: make(map[string][]string),
		config:  config,
		logger:  logger.With(zap.String("component", "org_memory")),
	}
}

// Append 在类别末尾追加一条课程。
// 超出类别上限时返回错误，已有课程永不被覆盖或删除。
func (m *Memory) Append(category, lesson string) error {
	category = strings.TrimSpace(category)
	lesson = strings.TrimSpace(lesson)
	if category == "" {
		return fmt.Errorf("category must not be empty")
	}
	if lesson == "" {
		return fmt.Errorf("lesson must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.MaxLessons > 0 && len(m.lessons[category]) >= m.config.MaxLessons {
		return fmt.Errorf("category %q is at its lesson cap (%d)", category, m.config.MaxLessons)
	}

	if _, ok := m.lessons[category]; !ok {
		m.order = append(m.order, category)
	}
	m.lessons[category] = append(m.lessons[category], lesson)

	m.logger.Debug("lesson appended",
		zap.String("category", category),
		zap.Int("count", len(m.lessons[category])),
	)
	return nil
}

// Lessons 返回类别下的课程副本，保持插入顺序
func (m *Memory) Lessons(category string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.lessons[category]...)
}

// Categories 返回所有类别，按插入顺序
func (m *Memory) Categories() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Len 返回课程总数
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, ls := range m.lessons {
		n += len(ls)
	}
	return n
}

// Render 将指定类别的课程拼接成可注入提示词的文本。
// 不传类别时渲染全部。类别不存在或为空则跳过；全空返回 ""。
func (m *Memory) Render(categories ...string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(categories) == 0 {
		categories = m.order
	}

	var sb strings.Builder
	for _, cat := range categories {
		ls := m.lessons[cat]
		if len(ls) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("## ")
		sb.WriteString(cat)
		sb.WriteString("\n")
		for _, l := range ls {
			sb.WriteString("- ")
			sb.WriteString(l)
			sb.WriteString("\n")
		}
	}
	if sb.Len() == 0 {
		return ""
	}
	return "ORGANIZATIONAL MEMORY (apply these lessons):\n" + sb.String()
}

// Snapshot 返回深拷贝快照，类别键排序与否不影响内容
func (m *Memory) Snapshot() map[string][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := make(map[string][]string, len(m.lessons))
	for cat, ls := range m.lessons {
		snap[cat] = append([]string(nil), ls...)
	}
	return snap
}

// Clone 返回内容相同的独立副本
func (m *Memory) Clone() *Memory {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clone := NewMemory(m.config, m.logger)
	clone.order = append([]string(nil), m.order...)
	for cat, ls := range m.lessons {
		clone.lessons[cat] = append([]string(nil), ls...)
	}
	return clone
}

// Restore 用快照重建记忆内容，仅用于从持久化边界加载。
// 快照的类别按字典序进入插入顺序。
func (m *Memory) Restore(snapshot map[string][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lessons = make(map[string][]string, len(snapshot))
	m.order = m.order[:0]

	cats := make([]string, 0, len(snapshot))
	for cat := range snapshot {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	for _, cat := range cats {
		ls := snapshot[cat]
		if len(ls) == 0 {
			continue
		}
		m.order = append(m.order, cat)
		m.lessons[cat] = append([]string(nil), ls...)
	}
}
