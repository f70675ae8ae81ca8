package config

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DatabaseConfig 数据库配置管理器
// 节点列表存于profiler_nodes表，其余配置以JSON值存于profiler_settings键值表
type DatabaseConfig struct {
	DB     *sql.DB
	logger *logrus.Logger
}

// NewDatabaseConfig 创建数据库配置管理器
func NewDatabaseConfig(dsn string, logger *logrus.Logger) (*DatabaseConfig, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return &DatabaseConfig{
		DB:     db,
		logger: logger,
	}, nil
}

// LoadConfig 从数据库加载完整配置
func (dc *DatabaseConfig) LoadConfig() (*Config, error) {
	config := GetDefaultConfig()

	nodes, err := dc.loadNodes()
	if err != nil {
		return nil, fmt.Errorf("加载节点配置失败: %w", err)
	}
	if len(nodes) > 0 {
		config.Blockchain.Nodes = nodes
	}

	if err := dc.loadSetting("profiler", config.Profiler); err != nil {
		return nil, fmt.Errorf("加载剖析器配置失败: %w", err)
	}
	if err := dc.loadSetting("output", config.Output); err != nil {
		return nil, fmt.Errorf("加载输出配置失败: %w", err)
	}
	if err := dc.loadSetting("decoder", config.Decoder); err != nil {
		return nil, fmt.Errorf("加载解码器配置失败: %w", err)
	}
	if err := dc.loadSetting("logging", config.Logging); err != nil {
		return nil, fmt.Errorf("加载日志配置失败: %w", err)
	}

	applyDefaults(config)
	return config, nil
}

// loadNodes 加载节点列表（按优先级排序）
func (dc *DatabaseConfig) loadNodes() ([]*NodeConfig, error) {
	rows, err := dc.DB.Query(`
		SELECT name, url, type, rate_limit, priority
		FROM profiler_nodes
		WHERE enabled = true
		ORDER BY priority ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*NodeConfig
	for rows.Next() {
		node := &NodeConfig{}
		if err := rows.Scan(&node.Name, &node.URL, &node.Type, &node.RateLimit, &node.Priority); err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// loadSetting 加载单个JSON配置项，不存在时保留默认值
func (dc *DatabaseConfig) loadSetting(key string, target interface{}) error {
	var value string
	err := dc.DB.QueryRow(`SELECT value FROM profiler_settings WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		dc.logger.Debugf("数据库中没有配置项 %s，使用默认值", key)
		return nil
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(value), target); err != nil {
		return fmt.Errorf("解析配置项 %s 失败: %w", key, err)
	}
	return nil
}

// Close 关闭数据库连接
func (dc *DatabaseConfig) Close() error {
	if dc.DB != nil {
		return dc.DB.Close()
	}
	return nil
}
