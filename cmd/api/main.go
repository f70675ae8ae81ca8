package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"profiler/internal/api"
	"profiler/internal/config"
	"profiler/internal/logging"
	"profiler/internal/output"

	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "配置文件路径")
	port       = flag.Int("port", 8080, "API 服务端口")
	verbose    = flag.Bool("verbose", false, "详细输出")
)

func main() {
	flag.Parse()

	// 自动检测并加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}

	if *verbose {
		cfg.Logging.Level = "debug"
	}
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}

	// 创建输出器
	outputter, err := output.NewOutput(cfg.Output.Format, cfg.Output.SummaryPath, cfg.Output.CSVPath, cfg.Output.Kafka, logger)
	if err != nil {
		logger.Fatalf("创建输出器失败: %v", err)
	}
	defer outputter.Close()

	// 创建API服务器
	server := api.NewServer(cfg, outputter, logger, *port)

	// 启动服务器
	go func() {
		if err := server.Start(); err != nil {
			logger.Errorf("启动服务器失败: %v", err)
		}
	}()

	logger.Infof("API服务器已启动，监听端口: %d", *port)

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("正在关闭服务器...")
	if err := server.Stop(); err != nil {
		logger.Errorf("关闭服务器失败: %v", err)
	}

	logger.Info("服务器已关闭")
}
