package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"profiler/internal/config"
	"profiler/internal/logging"
	"profiler/internal/output"
	"profiler/internal/profiler"
	"profiler/internal/progress"
	"profiler/internal/shutdown"
	"profiler/pkg/models"
)

var (
	// 区间参数
	startBlock uint64
	endBlock   uint64

	// 剖析参数
	workers           int
	chunkSize         uint64
	txCap             uint64
	skipContractCheck bool
	traceMode         string

	// 输出参数
	summaryPath string
	csvPath     string
	format      string

	// 高级参数
	configFile string
	verbose    bool

	// 进度管理参数
	resume        bool // 是否启用断点续跑
	resetProgress bool // 是否重置进度
	progressDB    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "profiler",
		Short: "ETH区块区间交易剖析工具",
		Long:  `对指定区间内的以太坊区块做交易分类与聚合统计，输出JSON汇总和可选的按区块CSV`,
		RunE:  run,
	}

	// 区间参数
	rootCmd.Flags().Uint64Var(&startBlock, "start-block", 0, "起始区块号")
	rootCmd.Flags().Uint64Var(&endBlock, "end-block", 0, "结束区块号")

	// 剖析参数
	rootCmd.Flags().IntVar(&workers, "workers", 8, "单区块内收据并发请求数")
	rootCmd.Flags().Uint64Var(&chunkSize, "chunk-size", 50, "每个分块的区块数")
	rootCmd.Flags().Uint64Var(&txCap, "tx-cap", 0, "处理交易总数上限，0表示不限")
	rootCmd.Flags().BoolVar(&skipContractCheck, "skip-contract-check", false, "跳过接收方合约代码检查")
	rootCmd.Flags().StringVar(&traceMode, "trace", "none", "内部转账追踪后端 (none/erigon/geth)")

	// 输出参数
	rootCmd.Flags().StringVar(&summaryPath, "output", "summary.json", "JSON汇总输出路径")
	rootCmd.Flags().StringVar(&csvPath, "csv", "", "按区块CSV输出路径，为空时不输出")
	rootCmd.Flags().StringVar(&format, "format", "json", "输出方式 (json/kafka)")

	// 高级参数
	rootCmd.Flags().StringVar(&configFile, "config", "configs/config.yaml", "配置文件路径")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "详细输出")

	// 进度管理参数
	rootCmd.Flags().BoolVar(&resume, "resume", false, "启用分块级断点续跑")
	rootCmd.Flags().BoolVar(&resetProgress, "reset-progress", false, "重置进度重新开始")
	rootCmd.Flags().StringVar(&progressDB, "progress-db", progress.DefaultDBPath, "进度数据库路径")

	// 进度查询子命令
	progressCmd := &cobra.Command{
		Use:   "progress",
		Short: "查看剖析进度",
		RunE:  showProgress,
	}

	rootCmd.AddCommand(progressCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("start-block") || !cmd.Flags().Changed("end-block") {
		return fmt.Errorf("必须指定 --start-block 和 --end-block")
	}
	if endBlock < startBlock {
		return fmt.Errorf("结束区块号 %d 小于起始区块号 %d", endBlock, startBlock)
	}

	// 加载配置
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	// 命令行参数覆盖配置文件
	applyFlags(cmd, cfg)

	if verbose {
		cfg.Logging.Level = "debug"
	}
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}

	// 创建输出器
	outputter, err := output.NewOutput(cfg.Output.Format, cfg.Output.SummaryPath, cfg.Output.CSVPath, cfg.Output.Kafka, logger)
	if err != nil {
		return fmt.Errorf("创建输出器失败: %w", err)
	}

	// 进度管理（可选）
	var progressMgr *progress.Manager
	if resume || resetProgress {
		progressMgr, err = progress.NewManager(progressDB, logger)
		if err != nil {
			return fmt.Errorf("初始化进度管理器失败: %w", err)
		}

		if resetProgress {
			logger.Info("重置剖析进度...")
			if err := progressMgr.Reset(); err != nil {
				logger.Warnf("重置进度失败: %v", err)
			} else {
				logger.Info("进度已重置")
			}
		}
		if !resume {
			progressMgr.Close()
			progressMgr = nil
		}
	}

	// 创建节点客户端
	client, err := profiler.NewEthLedgerClient(context.Background(), cfg.Blockchain.Nodes, logger)
	if err != nil {
		return fmt.Errorf("创建节点客户端失败: %w", err)
	}

	// 创建剖析器
	prof, err := profiler.New(client, cfg.Profiler, cfg.Decoder, outputter, progressMgr, logger)
	if err != nil {
		return fmt.Errorf("创建剖析器失败: %w", err)
	}

	// 优雅停机：信号触发上下文取消，收尾时刷输出、存进度、断连接
	gs := shutdown.NewGracefulShutdown(30*time.Second, logger)
	gs.RegisterShutdownFunc("flush_outputs", func(ctx context.Context) error {
		return outputter.Close()
	}, shutdown.OrderFlushOutputs)
	if progressMgr != nil {
		gs.RegisterShutdownFunc("save_progress", func(ctx context.Context) error {
			return progressMgr.Close()
		}, shutdown.OrderSaveProgress)
	}
	gs.RegisterShutdownFunc("close_connections", func(ctx context.Context) error {
		return client.Close()
	}, shutdown.OrderCloseConnections)
	gs.Start()

	// 执行剖析
	summary, runErr := prof.Run(gs.Context(), startBlock, endBlock)
	if runErr == nil {
		printSummary(summary)
	}

	// 触发收尾并等待完成
	gs.Shutdown()
	gs.Wait()

	return runErr
}

// applyFlags 命令行显式传入的参数覆盖配置文件里的值
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("workers") {
		cfg.Profiler.ReceiptWorkers = workers
	}
	if cmd.Flags().Changed("chunk-size") {
		cfg.Profiler.ChunkSize = chunkSize
	}
	if cmd.Flags().Changed("tx-cap") {
		cfg.Profiler.TxCap = txCap
	}
	if cmd.Flags().Changed("skip-contract-check") {
		cfg.Profiler.SkipContractCheck = skipContractCheck
	}
	if cmd.Flags().Changed("trace") {
		cfg.Profiler.TraceMode = traceMode
	}
	if cmd.Flags().Changed("output") {
		cfg.Output.SummaryPath = summaryPath
	}
	if cmd.Flags().Changed("csv") {
		cfg.Output.CSVPath = csvPath
	}
	if cmd.Flags().Changed("format") {
		cfg.Output.Format = format
	}
}

// printSummary 在终端输出汇总要点
func printSummary(summary *models.OverallSummary) {
	fmt.Println("📊 剖析结果汇总")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("%-20s: %d - %d\n", "区块区间", summary.StartBlock, summary.EndBlock)
	fmt.Printf("%-20s: %d\n", "链ID", summary.ChainID)
	fmt.Printf("%-20s: %d\n", "区块数", summary.BlockCount)
	fmt.Printf("%-20s: %d\n", "交易总数", summary.TotalTx)
	fmt.Printf("%-20s: %s ETH\n", "转账总额", summary.TotalEth)
	fmt.Printf("%-20s: %s ETH\n", "内部转账总额", summary.TotalInternal)

	// 类别统计按数量降序
	names := make([]string, 0, len(summary.TxTypes))
	for name := range summary.TxTypes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return summary.TxTypes[names[i]].Count > summary.TxTypes[names[j]].Count
	})

	fmt.Println("\n各类别交易:")
	for _, name := range names {
		report := summary.TxTypes[name]
		fmt.Printf("  %-22s %8d 笔  gas %12d  均价 %s gwei\n",
			name, report.Count, report.GasUsed, report.AvgGasPriceGwei)
	}

	if len(summary.Notes) > 0 {
		fmt.Println("\n说明:")
		for _, note := range summary.Notes {
			fmt.Printf("  - %s\n", note)
		}
	}
}

// showProgress 显示剖析进度
func showProgress(cmd *cobra.Command, args []string) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	progressMgr, err := progress.NewManager(progressDB, logger)
	if err != nil {
		return fmt.Errorf("初始化进度管理器失败: %w", err)
	}
	defer progressMgr.Close()

	stats := progressMgr.GetStats()

	fmt.Println("📊 剖析进度信息")
	fmt.Println(strings.Repeat("=", 50))

	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		fmt.Printf("%-20s: %v\n", key, stats[key])
	}

	return nil
}
