package mq

import (
	"fmt"

	"coursepay/internal/config"

	"github.com/IBM/sarama"
)

// Producer 同步 Kafka 生产者封装
type Producer struct {
	producer sarama.SyncProducer
}

// NewKafkaConfig 生产者配置：等待所有副本确认
func NewKafkaConfig() *sarama.Config {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	return kafkaConfig
}

// NewProducer 连接 brokers 创建生产者
func NewProducer(cfg *config.KafkaConfig) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewKafkaConfig())
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}
	return &Producer{producer: producer}, nil
}

// WrapProducer 包装已有的 SyncProducer，测试中传入 mocks.SyncProducer
func WrapProducer(producer sarama.SyncProducer) *Producer {
	return &Producer{producer: producer}
}

// SendMessage 发送消息到 Kafka
func (p *Producer) SendMessage(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}
	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
