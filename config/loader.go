// =============================================================================
// 📦 OrgBench 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("orgbench.yaml").
//	    WithEnvPrefix("ORGBENCH").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 OrgBench 的完整配置结构
type Config struct {
	// Backends 模型后端注册表（名称 → 后端配置）
	Backends map[string]BackendConfig `yaml:"backends" env:"-"`

	// Client 模型客户端配置
	Client ClientConfig `yaml:"client" env:"CLIENT"`

	// Loop 学习循环配置
	Loop LoopConfig `yaml:"loop" env:"LOOP"`

	// Eval 盲评配置
	Eval EvalConfig `yaml:"eval" env:"EVAL"`

	// Memory 组织记忆配置
	Memory MemoryConfig `yaml:"memory" env:"MEMORY"`

	// Redis 记忆共享存储配置（可选）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Archive 结果归档配置（可选）
	Archive ArchiveConfig `yaml:"archive" env:"ARCHIVE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`
}

// BackendConfig 单个模型后端配置
type BackendConfig struct {
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 提供商类型: cerebras, anthropic
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 硬性上下文上限（token）
	ContextLimit int `yaml:"context_limit" env:"CONTEXT_LIMIT"`
	// 输入价格（美元 / 百万 token）
	PromptPricePerMTok float64 `yaml:"prompt_price_per_mtok" env:"PROMPT_PRICE_PER_MTOK"`
	// 输出价格（美元 / 百万 token）
	CompletionPricePerMTok float64 `yaml:"completion_price_per_mtok" env:"COMPLETION_PRICE_PER_MTOK"`
}

// ClientConfig 模型客户端配置
type ClientConfig struct {
	// 默认后端名称
	DefaultBackend string `yaml:"default_backend" env:"DEFAULT_BACKEND"`
	// 升级后端名称（大上下文，合成调用兜底）
	AlternateBackend string `yaml:"alternate_backend" env:"ALTERNATE_BACKEND"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 初始退避间隔
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	// 最大退避间隔
	MaxDelay time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	// 退避倍数
	Multiplier float64 `yaml:"multiplier" env:"MULTIPLIER"`
	// 空响应重试时的预算增量（token）
	EmptyContentIncrement int `yaml:"empty_content_increment" env:"EMPTY_CONTENT_INCREMENT"`
	// 单次调用超时
	CallTimeout time.Duration `yaml:"call_timeout" env:"CALL_TIMEOUT"`
}

// LoopConfig 学习循环配置
type LoopConfig struct {
	// 最大迭代次数
	MaxIterations int `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	// 收敛阈值（delta_mean 达到该值即收敛停机）
	ConvergenceThreshold float64 `yaml:"convergence_threshold" env:"CONVERGENCE_THRESHOLD"`
	// 跨拓扑共享记忆
	TransferMemory bool `yaml:"transfer_memory" env:"TRANSFER_MEMORY"`
}

// EvalConfig 盲评配置
type EvalConfig struct {
	// 每次评估的评审轮数
	Runs int `yaml:"runs" env:"RUNS"`
	// 评审调用的 token 预算
	JudgeBudget int `yaml:"judge_budget" env:"JUDGE_BUDGET"`
	// 胜负判定阈值（delta 绝对值 ≤ 阈值视为平局）
	TieMargin float64 `yaml:"tie_margin" env:"TIE_MARGIN"`
}

// MemoryConfig 组织记忆配置
type MemoryConfig struct {
	// 每个类别的最大课程数（0 = 不限）
	MaxLessons int `yaml:"max_lessons" env:"MAX_LESSONS"`
	// 是否注入出厂预置课程
	Seed bool `yaml:"seed" env:"SEED"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// ArchiveConfig 结果归档配置
type ArchiveConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// SQLite 文件路径
	Path string `yaml:"path" env:"PATH"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "ORGBENCH",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Client.DefaultBackend == "" {
		errs = append(errs, "client.default_backend is required")
	}
	if _, ok := c.Backends[c.Client.DefaultBackend]; c.Client.DefaultBackend != "" && !ok {
		errs = append(errs, fmt.Sprintf("client.default_backend %q not in backends", c.Client.DefaultBackend))
	}
	if c.Client.AlternateBackend != "" {
		if _, ok := c.Backends[c.Client.AlternateBackend]; !ok {
			errs = append(errs, fmt.Sprintf("client.alternate_backend %q not in backends", c.Client.AlternateBackend))
		}
	}
	for name, b := range c.Backends {
		if b.ContextLimit <= 0 {
			errs = append(errs, fmt.Sprintf("backend %q: context_limit must be positive", name))
		}
	}
	if c.Loop.MaxIterations <= 0 {
		errs = append(errs, "loop.max_iterations must be positive")
	}
	if c.Eval.Runs <= 0 {
		errs = append(errs, "eval.runs must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
