package config

import (
	"fmt"
	"os"

	"profiler/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 主配置
type Config struct {
	Blockchain *BlockchainConfig  `mapstructure:"blockchain"`
	Profiler   *ProfilerConfig    `mapstructure:"profiler"`
	Output     *OutputConfig      `mapstructure:"output"`
	Decoder    *DecoderConfig     `mapstructure:"decoder"`
	Logging    *logging.LogConfig `mapstructure:"logging"`
}

// BlockchainConfig 区块链配置
type BlockchainConfig struct {
	Nodes []*NodeConfig `mapstructure:"nodes"`
}

// NodeConfig 节点配置
type NodeConfig struct {
	Name      string `mapstructure:"name"`
	URL       string `mapstructure:"url"`
	Type      string `mapstructure:"type"`
	RateLimit int    `mapstructure:"rate_limit"`
	Priority  int    `mapstructure:"priority"`
}

// ProfilerConfig 剖析器配置
type ProfilerConfig struct {
	ReceiptWorkers    int    `mapstructure:"receipt_workers"`     // 单区块内并发收据请求上限
	ChunkSize         uint64 `mapstructure:"chunk_size"`          // 每个分块的区块数
	TxCap             uint64 `mapstructure:"tx_cap"`              // 处理交易总数上限，0表示不限
	SkipContractCheck bool   `mapstructure:"skip_contract_check"` // 跳过接收方合约代码检查
	TraceMode         string `mapstructure:"trace_mode"`          // 内部转账追踪后端 (none/erigon/geth)
	Timeout           string `mapstructure:"timeout"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers []string          `mapstructure:"brokers"`
	Topics  map[string]string `mapstructure:"topics"`
}

// DecoderConfig 方法选择器解码配置
type DecoderConfig struct {
	FourByteAPIURL string `mapstructure:"fourbyte_api_url"`
	APITimeout     string `mapstructure:"api_timeout"`
	EnableCache    bool   `mapstructure:"enable_cache"`
	CacheSize      int    `mapstructure:"cache_size"`
	EnableAPI      bool   `mapstructure:"enable_api"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	Format      string       `mapstructure:"format"`
	SummaryPath string       `mapstructure:"summary_path"`
	CSVPath     string       `mapstructure:"csv_path"`
	Kafka       *KafkaConfig `mapstructure:"kafka"`
}

// LoadConfig 加载配置（自动检测配置源）
func LoadConfig(configPath string) (*Config, error) {
	// 优先从环境变量指定的数据库加载配置
	dbDSN := os.Getenv("PROFILER_DB_DSN")
	if dbDSN != "" {
		logger := logrus.New()
		dbConfig, err := NewDatabaseConfig(dbDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("连接配置数据库失败: %w", err)
		}
		defer dbConfig.Close()

		config, err := dbConfig.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("从数据库加载配置失败: %w", err)
		}

		logger.Info("已从数据库加载配置")
		return config, nil
	}

	return LoadConfigFromFile(configPath)
}

// LoadConfigFromFile 从YAML文件加载配置
func LoadConfigFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	applyDefaults(&config)
	return &config, nil
}

// applyDefaults 补全未配置的字段
func applyDefaults(config *Config) {
	if config.Profiler == nil {
		config.Profiler = GetDefaultConfig().Profiler
		return
	}
	if config.Profiler.ReceiptWorkers <= 0 {
		config.Profiler.ReceiptWorkers = 8
	}
	if config.Profiler.ChunkSize == 0 {
		config.Profiler.ChunkSize = 50
	}
	if config.Profiler.TraceMode == "" {
		config.Profiler.TraceMode = "none"
	}
	if config.Profiler.Timeout == "" {
		config.Profiler.Timeout = "60s"
	}
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Blockchain: &BlockchainConfig{
			Nodes: []*NodeConfig{
				{
					Name:      "local_node",
					URL:       "", // 需要在YAML配置或数据库中指定
					Type:      "local",
					RateLimit: 1000,
					Priority:  1,
				},
			},
		},
		Profiler: &ProfilerConfig{
			ReceiptWorkers:    8,
			ChunkSize:         50,
			TxCap:             0,
			SkipContractCheck: false,
			TraceMode:         "none",
			Timeout:           "60s",
		},
		Output: &OutputConfig{
			Format:      "json",
			SummaryPath: "summary.json",
			CSVPath:     "",
			Kafka: &KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topics: map[string]string{
					"summaries":  "profiler_summaries",
					"block_rows": "profiler_block_rows",
				},
			},
		},
		Decoder: &DecoderConfig{
			FourByteAPIURL: "https://www.4byte.directory/api/v1/signatures/",
			APITimeout:     "5s",
			EnableCache:    true,
			CacheSize:      10000,
			EnableAPI:      false,
		},
		Logging: &logging.LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			Rotation:   false,
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 3,
			Compress:   true,
		},
	}
}
