package output

import (
	"encoding/json"
	"fmt"
	"time"

	"esdtscan/internal/config"
	"esdtscan/internal/errors"
	"esdtscan/pkg/models"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// 默认topic名称
var defaultTopics = map[string]string{
	RecordReceipts:  "esdt_receipts",
	RecordIssuances: "esdt_issuances",
}

// KafkaOutput Kafka输出器
type KafkaOutput struct {
	logger   *logrus.Logger
	topics   map[string]string // 记录类型到topic的映射
	producer sarama.SyncProducer
}

// newProducerConfig 同步生产者配置
func newProducerConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Version = sarama.V2_8_0_0
	if clientID != "" {
		config.ClientID = clientID
	}
	return config
}

// NewKafkaOutput 创建Kafka输出器
func NewKafkaOutput(cfg *config.KafkaConfig, logger *logrus.Logger) (*KafkaOutput, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("未配置Kafka brokers")
	}
	logger.Infof("初始化Kafka输出器，brokers: %v", cfg.Brokers)

	producer, err := sarama.NewSyncProducer(cfg.Brokers, newProducerConfig(cfg.ClientID))
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeOutput, errors.SeverityHigh,
			"KAFKA_CONNECT_FAILED", "创建Kafka生产者失败")
	}

	logger.Info("Kafka生产者已创建")
	return NewKafkaOutputWithProducer(producer, cfg.Topics, logger), nil
}

// NewKafkaOutputWithProducer 使用已有的生产者创建输出器
func NewKafkaOutputWithProducer(producer sarama.SyncProducer, topics map[string]string, logger *logrus.Logger) *KafkaOutput {
	return &KafkaOutput{
		logger:   logger,
		topics:   topics,
		producer: producer,
	}
}

// topicFor 查找记录类型对应的topic
func topicFor(topics map[string]string, record string) string {
	if topic, exists := topics[record]; exists && topic != "" {
		return topic
	}
	return defaultTopics[record]
}

// newMessage 构造消息，以交易哈希为键保证同一交易落在同一分区
func newMessage(topic, record, key string, data interface{}) (*sarama.ProducerMessage, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("序列化数据失败: %w", err)
	}

	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(jsonData),
		Headers: []sarama.RecordHeader{
			{Key: []byte("record_type"), Value: []byte(record)},
		},
	}, nil
}

// sendToKafka 发送数据到Kafka
func (k *KafkaOutput) sendToKafka(record, key string, data interface{}) error {
	topic := topicFor(k.topics, record)
	msg, err := newMessage(topic, record, key, data)
	if err != nil {
		return err
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeOutput, errors.SeverityMedium,
			"KAFKA_PRODUCE_FAILED", "发送消息到Kafka失败").
			WithTxHash(key).WithContext("topic", topic)
	}

	k.logger.WithFields(logrus.Fields{
		"topic":     topic,
		"partition": partition,
		"offset":    offset,
		"tx_hash":   key,
	}).Debug("已发送数据到Kafka")
	return nil
}

// WriteReceipt 写入回执
func (k *KafkaOutput) WriteReceipt(receipt *models.ParsedReceipt) error {
	if receipt == nil {
		return nil
	}
	return k.sendToKafka(RecordReceipts, receipt.Hash, receipt)
}

// WriteIssuance 写入发行记录
func (k *KafkaOutput) WriteIssuance(token *models.IssuedToken) error {
	if token == nil {
		return nil
	}
	return k.sendToKafka(RecordIssuances, token.TxHash, token)
}

// Close 关闭Kafka连接
func (k *KafkaOutput) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
