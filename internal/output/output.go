package output

import (
	"fmt"
	"os"
	"strings"

	"profiler/internal/config"
	"profiler/pkg/models"

	"github.com/sirupsen/logrus"
)

// Output 汇总结果输出接口
type Output interface {
	WriteSummary(summary *models.OverallSummary) error
	WriteBlockRow(row *models.BlockRow) error
	Close() error
}

// NewOutput 创建输出器
// format为"kafka"时写入Kafka，否则写入本地文件；csvPath为空时不输出按区块CSV
func NewOutput(format, summaryPath, csvPath string, kafkaConfig *config.KafkaConfig, logger *logrus.Logger) (Output, error) {
	if format == "kafka" {
		brokers := []string{"localhost:9092"}
		if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
			brokers = strings.Split(kafkaBrokers, ",")
		}

		topics := map[string]string{
			"summaries":  "profiler_summaries",
			"block_rows": "profiler_block_rows",
		}

		if kafkaConfig != nil {
			if len(kafkaConfig.Brokers) > 0 {
				brokers = kafkaConfig.Brokers
			}
			if len(kafkaConfig.Topics) > 0 {
				topics = kafkaConfig.Topics
			}
		}

		return NewKafkaOutput(brokers, topics, logger)
	}

	if format != "json" {
		return nil, fmt.Errorf("不支持的输出格式: %s", format)
	}

	return NewFileOutput(summaryPath, csvPath, logger)
}
