package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string `json:"level" mapstructure:"level"`             // 日志级别 (debug, info, warn, error)
	Format     string `json:"format" mapstructure:"format"`           // 日志格式 (json, text)
	Output     string `json:"output" mapstructure:"output"`           // 输出路径 (stdout, stderr, 文件路径)
	Rotation   bool   `json:"rotation" mapstructure:"rotation"`       // 是否启用日志轮转
	MaxSize    int    `json:"max_size" mapstructure:"max_size"`       // 单个日志文件最大大小(MB)
	MaxAge     int    `json:"max_age" mapstructure:"max_age"`         // 日志文件保留天数
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"` // 保留的日志文件数量
	Compress   bool   `json:"compress" mapstructure:"compress"`       // 是否压缩轮转的日志文件
}

// DefaultLogConfig 默认日志配置
var DefaultLogConfig = &LogConfig{
	Level:      "info",
	Format:     "json",
	Output:     "stdout",
	Rotation:   false,
	MaxSize:    100,
	MaxAge:     30,
	MaxBackups: 3,
	Compress:   true,
}

// NewLogger 根据配置创建logrus日志器
func NewLogger(config *LogConfig) (*logrus.Logger, error) {
	if config == nil {
		config = DefaultLogConfig
	}

	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("无效的日志级别 '%s': %w", config.Level, err)
	}
	logger.SetLevel(level)

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return nil, fmt.Errorf("不支持的日志格式: %s", config.Format)
	}

	writer, err := getLogWriter(config)
	if err != nil {
		return nil, fmt.Errorf("创建日志输出失败: %w", err)
	}
	logger.SetOutput(writer)

	return logger, nil
}

// getLogWriter 获取日志输出
func getLogWriter(config *LogConfig) (io.Writer, error) {
	switch config.Output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		// 文件输出
		dir := filepath.Dir(config.Output)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}

		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("打开日志文件失败: %w", err)
		}

		return file, nil
	}
}

// NewBlockLogger 区块处理专用日志器
func NewBlockLogger(baseLogger *logrus.Logger, blockNumber uint64) *logrus.Entry {
	return baseLogger.WithFields(logrus.Fields{
		"component":    "block_processor",
		"block_number": blockNumber,
	})
}

// NewChunkLogger 分块处理专用日志器
func NewChunkLogger(baseLogger *logrus.Logger, startBlock, endBlock uint64) *logrus.Entry {
	return baseLogger.WithFields(logrus.Fields{
		"component":   "chunk_processor",
		"start_block": startBlock,
		"end_block":   endBlock,
	})
}

// NewRPCLogger RPC调用专用日志器
func NewRPCLogger(baseLogger *logrus.Logger, method string, nodeURL string) *logrus.Entry {
	return baseLogger.WithFields(logrus.Fields{
		"component": "rpc_client",
		"method":    method,
		"node_url":  nodeURL,
	})
}
