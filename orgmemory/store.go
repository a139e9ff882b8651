package orgmemory

import "context"

// Store 组织记忆的持久化边界。
// 记忆本身活在进程内；Store 只负责跨进程/跨次运行的搬运。
type Store interface {
	// Load 读取指定键下的记忆快照，键不存在时返回空快照
	Load(ctx context.Context, key string) (map[string][]string, error)

	// Save 整体写入指定键下的记忆快照
	Save(ctx context.Context, key string, snapshot map[string][]string) error
}
