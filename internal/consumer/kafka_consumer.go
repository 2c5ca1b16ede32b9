package consumer

import (
	"context"
	"fmt"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	log "github.com/sirupsen/logrus"
)

type MessageHandler interface {
	HandleMessage(ctx context.Context, message []byte) error
}

// messageSource is the part of *kafka.Consumer the loop uses.
type messageSource interface {
	Poll(timeoutMs int) kafka.Event
	CommitMessage(m *kafka.Message) ([]kafka.TopicPartition, error)
	Close() error
}

type Config struct {
	BootstrapServers string
	GroupID          string
	Topic            string
}

type KafkaConsumer struct {
	consumer messageSource
	topic    string
	handler  MessageHandler
}

// NewKafkaConsumer connects to the brokers and subscribes to cfg.Topic.
// Offsets are committed only after a message was handled.
func NewKafkaConsumer(cfg Config, handler MessageHandler) (*KafkaConsumer, error) {
	servers := strings.Trim(cfg.BootstrapServers, "\"")
	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  servers,
		"group.id":           cfg.GroupID,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	}
	log.WithFields(log.Fields{"kafka_servers": servers, "group_id": cfg.GroupID}).Info("Connecting to Kafka")

	c, err := kafka.NewConsumer(configMap)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}
	if err := c.SubscribeTopics([]string{cfg.Topic}, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", cfg.Topic, err)
	}
	log.WithField("topic", cfg.Topic).Info("Subscribed to Kafka topic")
	return &KafkaConsumer{consumer: c, topic: cfg.Topic, handler: handler}, nil
}

func (c *KafkaConsumer) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			log.Info("Kafka consumer stopping due to context cancellation")
			return ctx.Err()
		default:
			ev := c.consumer.Poll(100)
			if ev == nil {
				continue
			}

			switch e := ev.(type) {
			case *kafka.Message:
				c.handle(ctx, e)
			case kafka.Error:
				log.WithError(e).Error("Kafka error")
				if e.IsFatal() {
					return e
				}
			}
		}
	}
}

// handle applies one message. A handler error leaves the offset uncommitted,
// so the message is redelivered after a rebalance or restart.
func (c *KafkaConsumer) handle(ctx context.Context, m *kafka.Message) {
	fields := log.Fields{"topic": c.topic, "partition": m.TopicPartition.Partition, "offset": m.TopicPartition.Offset}
	if err := c.handler.HandleMessage(ctx, m.Value); err != nil {
		log.WithFields(fields).WithError(err).Error("Failed to handle message")
		return
	}
	if _, err := c.consumer.CommitMessage(m); err != nil {
		log.WithFields(fields).WithError(err).Warn("Failed to commit offset")
	}
}

func (c *KafkaConsumer) Close() error {
	return c.consumer.Close()
}
