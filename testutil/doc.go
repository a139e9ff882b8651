/*
Package testutil 提供基准测试的共享工具和辅助函数。

# 子包

  - testutil/mocks: Mock 实现，核心是 MockProvider（脚本化的
    LLM Provider），支持 Builder 模式、按序脚本响应与错误注入，
    并记录每次请求的 max_tokens / 模型 / 提示，供断言使用。

# 使用示例

	provider := mocks.NewMockProvider().WithResponse("hello")
	resp, err := provider.Completion(ctx, req)
	require.NoError(t, err)
*/
package testutil
