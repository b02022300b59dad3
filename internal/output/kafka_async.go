package output

import (
	"context"
	"fmt"
	"sync"
	"time"

	"esdtscan/internal/config"
	"esdtscan/internal/errors"
	"esdtscan/pkg/models"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// AsyncKafkaOutput 异步Kafka输出器
type AsyncKafkaOutput struct {
	logger   *logrus.Logger
	topics   map[string]string
	producer sarama.AsyncProducer
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// 统计信息
	mu         sync.RWMutex
	sentCount  int64
	errorCount int64
}

// NewAsyncKafkaOutput 创建异步Kafka输出器
func NewAsyncKafkaOutput(cfg *config.KafkaConfig, logger *logrus.Logger) (*AsyncKafkaOutput, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("未配置Kafka brokers")
	}
	logger.Infof("初始化异步Kafka输出器，brokers: %v", cfg.Brokers)

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Producer.Timeout = 3 * time.Second
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Compression = sarama.CompressionSnappy
	config.ChannelBufferSize = 1000
	config.Version = sarama.V2_8_0_0
	if cfg.ClientID != "" {
		config.ClientID = cfg.ClientID
	}

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeOutput, errors.SeverityHigh,
			"KAFKA_CONNECT_FAILED", "创建异步Kafka生产者失败")
	}

	logger.Info("异步Kafka生产者已创建并启动")
	return NewAsyncKafkaOutputWithProducer(producer, cfg.Topics, logger), nil
}

// NewAsyncKafkaOutputWithProducer 使用已有的异步生产者创建输出器
func NewAsyncKafkaOutputWithProducer(producer sarama.AsyncProducer, topics map[string]string, logger *logrus.Logger) *AsyncKafkaOutput {
	ctx, cancel := context.WithCancel(context.Background())
	k := &AsyncKafkaOutput{
		logger:   logger,
		topics:   topics,
		producer: producer,
		ctx:      ctx,
		cancel:   cancel,
	}

	k.wg.Add(2)
	go k.handleSuccesses()
	go k.handleErrors()
	return k
}

// handleSuccesses 处理成功发送的消息，生产者关闭后通道关闭
func (k *AsyncKafkaOutput) handleSuccesses() {
	defer k.wg.Done()
	for msg := range k.producer.Successes() {
		k.mu.Lock()
		k.sentCount++
		k.mu.Unlock()

		k.logger.Debugf("消息成功发送到 topic %s, partition %d, offset %d",
			msg.Topic, msg.Partition, msg.Offset)
	}
}

// handleErrors 处理发送失败的消息
func (k *AsyncKafkaOutput) handleErrors() {
	defer k.wg.Done()
	for perr := range k.producer.Errors() {
		k.mu.Lock()
		k.errorCount++
		k.mu.Unlock()

		k.logger.WithError(perr.Err).WithField("topic", perr.Msg.Topic).Error("Kafka发送失败")
	}
}

// sendToKafkaAsync 异步发送，输入通道满时立即返回错误
func (k *AsyncKafkaOutput) sendToKafkaAsync(record, key string, data interface{}) error {
	msg, err := newMessage(topicFor(k.topics, record), record, key, data)
	if err != nil {
		return err
	}

	select {
	case <-k.ctx.Done():
		return fmt.Errorf("Kafka生产者已关闭")
	default:
	}

	select {
	case k.producer.Input() <- msg:
		return nil
	default:
		return errors.NewScanError(errors.ErrorTypeOutput, errors.SeverityMedium,
			"KAFKA_PRODUCE_FAILED", "Kafka生产者输入通道已满").WithTxHash(key)
	}
}

// WriteReceipt 异步写入回执
func (k *AsyncKafkaOutput) WriteReceipt(receipt *models.ParsedReceipt) error {
	if receipt == nil {
		return nil
	}
	return k.sendToKafkaAsync(RecordReceipts, receipt.Hash, receipt)
}

// WriteIssuance 异步写入发行记录
func (k *AsyncKafkaOutput) WriteIssuance(token *models.IssuedToken) error {
	if token == nil {
		return nil
	}
	return k.sendToKafkaAsync(RecordIssuances, token.TxHash, token)
}

// GetStats 获取发送成功和失败数量
func (k *AsyncKafkaOutput) GetStats() (int64, int64) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.sentCount, k.errorCount
}

// Close 关闭生产者，等待已入队的消息处理完成
func (k *AsyncKafkaOutput) Close() error {
	k.logger.Info("关闭异步Kafka生产者...")
	k.cancel()

	// AsyncClose会在发送完缓冲消息后关闭Successes和Errors通道
	k.producer.AsyncClose()
	k.wg.Wait()

	sent, failed := k.GetStats()
	k.logger.Infof("异步Kafka生产者已关闭，总计发送: %d，错误: %d", sent, failed)
	return nil
}
