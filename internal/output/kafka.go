package output

import (
	"encoding/json"
	"fmt"
	"time"

	"profiler/pkg/models"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// KafkaOutput Kafka输出器
type KafkaOutput struct {
	logger   *logrus.Logger
	topics   map[string]string // 数据类型到topic的映射
	producer sarama.SyncProducer
}

// NewKafkaOutput 创建Kafka输出器
func NewKafkaOutput(brokers []string, topics map[string]string, logger *logrus.Logger) (*KafkaOutput, error) {
	logger.Infof("初始化Kafka输出器，brokers: %v", brokers)

	// 配置Kafka生产者
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	return &KafkaOutput{
		logger:   logger,
		topics:   topics,
		producer: producer,
	}, nil
}

// sendToKafka 发送数据到Kafka
func (k *KafkaOutput) sendToKafka(topic string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("序列化数据失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.StringEncoder(jsonData),
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送消息到Kafka失败: %w", err)
	}

	k.logger.Debugf("成功发送数据到Kafka topic '%s' (partition: %d, offset: %d)",
		topic, partition, offset)
	return nil
}

// WriteSummary 写入整体汇总
func (k *KafkaOutput) WriteSummary(summary *models.OverallSummary) error {
	if summary == nil {
		return nil
	}

	topic, exists := k.topics["summaries"]
	if !exists {
		return fmt.Errorf("未配置summaries的Kafka topic")
	}
	return k.sendToKafka(topic, summary)
}

// WriteBlockRow 写入按区块统计行
func (k *KafkaOutput) WriteBlockRow(row *models.BlockRow) error {
	if row == nil {
		return nil
	}

	topic, exists := k.topics["block_rows"]
	if !exists {
		return fmt.Errorf("未配置block_rows的Kafka topic")
	}
	return k.sendToKafka(topic, row)
}

// Close 关闭Kafka生产者
func (k *KafkaOutput) Close() error {
	if k.producer != nil {
		if err := k.producer.Close(); err != nil {
			return fmt.Errorf("关闭Kafka生产者失败: %w", err)
		}
	}
	return nil
}
