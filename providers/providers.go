// Package providers 汇集各模型后端的 HTTP 实现与共享配置。
package providers

import "time"

// Config 各 Provider 共用的连接配置
type Config struct {
	// BaseURL API 基础地址
	BaseURL string
	// APIKey 认证密钥
	APIKey string
	// Model 默认模型名称
	Model string
	// Timeout HTTP 客户端超时
	Timeout time.Duration
}
