// Package llm 提供统一的模型后端抽象：Provider 接口、带重试与
// 预算升级的 Client、以及进程级成本计数。
//
// Client 是基准各组件唯一的模型入口。调用语义:
//   - 瞬时错误按指数退避重试
//   - 空响应以更高的 token 预算重试一次
//   - 重试耗尽后可对配置的升级后端做最后一次尝试
//   - 提示超过后端上下文上限是致命配置错误，绝不静默截断
package llm
