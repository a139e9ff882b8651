// =============================================================================
// OrgBench 主入口
// =============================================================================
// 多代理组织拓扑基准：组织运行、盲评、失败归因、组织记忆学习闭环
//
// 使用方法:
//
//	orgbench run                          # 全部任务 × 全部拓扑
//	orgbench run --config orgbench.yaml   # 指定配置文件
//	orgbench run --tasks ai_incident_response --topologies star,hrm
//	orgbench run --no-transfer            # 拓扑之间不共享组织记忆
//	orgbench tasks                        # 列出内置任务
//	orgbench topologies                   # 列出组织拓扑
//	orgbench version                      # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/machine-machine/orgbench/config"
	"github.com/machine-machine/orgbench/eval"
	"github.com/machine-machine/orgbench/internal/metrics"
	"github.com/machine-machine/orgbench/learning"
	"github.com/machine-machine/orgbench/llm"
	"github.com/machine-machine/orgbench/orgmemory"
	"github.com/machine-machine/orgbench/providers"
	"github.com/machine-machine/orgbench/providers/anthropic"
	"github.com/machine-machine/orgbench/providers/cerebras"
	"github.com/machine-machine/orgbench/retrospective"
	"github.com/machine-machine/orgbench/tasks"
	"github.com/machine-machine/orgbench/topology"
	"github.com/machine-machine/orgbench/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runBenchmark(os.Args[2:])
	case "tasks":
		printTasks()
	case "topologies":
		printTopologies()
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🏁 run 命令
// =============================================================================

func runBenchmark(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	taskIDs := fs.String("tasks", "", "Comma-separated task IDs (default: all built-in tasks)")
	topologies := fs.String("topologies", "", "Comma-separated topology names (default: all)")
	noTransfer := fs.Bool("no-transfer", false, "Do not carry org memory across topologies")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting OrgBench",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	selectedTasks, err := resolveTasks(*taskIDs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	topologyNames := topology.Names()
	if *topologies != "" {
		topologyNames = splitList(*topologies)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector("orgbench", nil, logger)
	client, err := buildClient(cfg, collector, logger)
	if err != nil {
		logger.Fatal("Failed to build model client", zap.Error(err))
	}

	topoConfig := topology.DefaultConfig()
	factory := func(name string) (topology.Executor, error) {
		executor, err := topology.New(name, client, topoConfig, logger)
		if err != nil {
			return nil, err
		}
		return topology.WithMetrics(executor, collector), nil
	}

	baseline := topology.WithMetrics(topology.NewBaseline(client, topoConfig, logger), collector)
	evaluator := eval.NewBlindEvaluator(client, eval.Config{
		Runs:        cfg.Eval.Runs,
		JudgeBudget: cfg.Eval.JudgeBudget,
		TieMargin:   cfg.Eval.TieMargin,
	}, nil, logger)
	analyzer := retrospective.NewAnalyzer(client, retrospective.DefaultConfig(), logger)

	loopConfig := learning.Config{
		MaxIterations:        cfg.Loop.MaxIterations,
		ConvergenceThreshold: cfg.Loop.ConvergenceThreshold,
		TransferMemory:       cfg.Loop.TransferMemory && !*noTransfer,
		SeedMemory:           cfg.Memory.Seed,
	}
	controller := learning.NewController(baseline, evaluator, analyzer, loopConfig, logger).
		WithMetrics(collector)

	store := buildMemoryStore(cfg, logger)
	suite := learning.NewSuite(controller, factory,
		orgmemory.Config{MaxLessons: cfg.Memory.MaxLessons}, store, loopConfig, logger)

	result, err := suite.Run(ctx, selectedTasks, topologyNames)
	if err != nil {
		logger.Fatal("Benchmark failed", zap.Error(err))
	}

	archiveResults(ctx, cfg, result, logger)
	printSummary(result, client)
	logger.Info("OrgBench finished")
}

// buildClient 按配置组装提供商与模型客户端
func buildClient(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (*llm.Client, error) {
	backends := make([]*llm.Backend, 0, len(cfg.Backends))
	for name, bc := range cfg.Backends {
		provider, err := buildProvider(bc, logger)
		if err != nil {
			return nil, fmt.Errorf("backend %q: %w", name, err)
		}
		backends = append(backends, &llm.Backend{
			Name:                   name,
			Provider:               provider,
			Model:                  bc.Model,
			ContextLimit:           bc.ContextLimit,
			PromptPricePerMTok:     bc.PromptPricePerMTok,
			CompletionPricePerMTok: bc.CompletionPricePerMTok,
		})
	}

	client := llm.NewClient(backends, llm.ClientConfig{
		DefaultBackend:        cfg.Client.DefaultBackend,
		AlternateBackend:      cfg.Client.AlternateBackend,
		MaxRetries:            cfg.Client.MaxRetries,
		InitialDelay:          cfg.Client.InitialDelay,
		MaxDelay:              cfg.Client.MaxDelay,
		Multiplier:            cfg.Client.Multiplier,
		EmptyContentIncrement: cfg.Client.EmptyContentIncrement,
		CallTimeout:           cfg.Client.CallTimeout,
	}, logger)
	return client.WithMetrics(collector), nil
}

// buildProvider 按后端配置创建提供商实现
func buildProvider(bc config.BackendConfig, logger *zap.Logger) (llm.Provider, error) {
	pc := providers.Config{
		BaseURL: bc.BaseURL,
		APIKey:  bc.APIKey,
		Model:   bc.Model,
	}
	switch bc.Provider {
	case "cerebras":
		return cerebras.New(pc, logger), nil
	case "anthropic":
		return anthropic.New(pc, logger), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s (supported: cerebras, anthropic)", bc.Provider)
	}
}

// openArchive 打开 SQLite 结果归档
func openArchive(cfg config.ArchiveConfig, logger *zap.Logger) (*learning.Archive, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("archive path not configured")
	}
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}
	return learning.NewArchive(db, logger)
}

// buildMemoryStore 组装可选的记忆共享存储
func buildMemoryStore(cfg *config.Config, logger *zap.Logger) orgmemory.Store {
	if !cfg.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return orgmemory.NewRedisStore(client, cfg.Redis.KeyPrefix, logger)
}

// archiveResults 把闭环结果写入 SQLite 归档（可选）
func archiveResults(ctx context.Context, cfg *config.Config, result *learning.SuiteResult, logger *zap.Logger) {
	if !cfg.Archive.Enabled {
		return
	}
	archive, err := openArchive(cfg.Archive, logger)
	if err != nil {
		logger.Warn("Result archive unavailable", zap.Error(err))
		return
	}
	for _, r := range result.Results {
		if err := archive.Save(ctx, r); err != nil {
			logger.Warn("Failed to archive result",
				zap.String("task_id", r.TaskID),
				zap.String("topology", r.Topology),
				zap.Error(err))
		}
	}
}

// resolveTasks 把任务 ID 列表解析为内置任务
func resolveTasks(list string) ([]types.Task, error) {
	if list == "" {
		return tasks.All(), nil
	}
	var selected []types.Task
	for _, id := range splitList(list) {
		task, ok := tasks.ByID(id)
		if !ok {
			return nil, fmt.Errorf("unknown task: %s (try 'orgbench tasks')", id)
		}
		selected = append(selected, task)
	}
	return selected, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// =============================================================================
// 📊 结果汇总
// =============================================================================

func printSummary(result *learning.SuiteResult, client *llm.Client) {
	fmt.Println()
	fmt.Printf("%-24s %-16s %-10s %-6s %-12s %-10s\n",
		"TASK", "TOPOLOGY", "CONVERGED", "ITERS", "FINAL DELTA", "LEARN RATE")
	for _, r := range result.Results {
		converged := "no"
		if r.Converged {
			converged = fmt.Sprintf("iter %d", r.ConvergenceIter)
		}
		fmt.Printf("%-24s %-16s %-10s %-6d %+-12.1f %+-10.2f\n",
			r.TaskID, r.Topology, converged, len(r.Iterations), r.FinalDelta, r.LearningRate)
	}

	snapshot := client.Costs().Snapshot()
	fmt.Printf("\nTotal spend: $%.4f across %d calls (%d tokens)\n",
		client.Costs().TotalCostUSD(), snapshot.TotalCalls, client.Costs().TotalTokens())
}

// =============================================================================
// 📋 列表、版本和帮助
// =============================================================================

func printTasks() {
	for _, t := range tasks.All() {
		fmt.Printf("%-24s %s (%d roles, max score %d)\n", t.ID, t.Name, len(t.Roles), t.MaxScore())
	}
}

func printTopologies() {
	for _, name := range topology.Names() {
		fmt.Println(name)
	}
}

func printVersion() {
	fmt.Printf("OrgBench %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`OrgBench - Multi-Agent Organization Benchmark

Usage:
  orgbench <command> [options]

Commands:
  run         Run the benchmark suite
  tasks       List built-in tasks
  topologies  List organizational topologies
  version     Show version information
  help        Show this help message

Options for 'run':
  --config <path>        Path to configuration file (YAML)
  --tasks <ids>          Comma-separated task IDs
  --topologies <names>   Comma-separated topology names
  --no-transfer          Do not carry org memory across topologies

Examples:
  orgbench run
  orgbench run --config /etc/orgbench/config.yaml
  orgbench run --tasks code_review_execution --topologies star,peer_review
  orgbench run --no-transfer`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
