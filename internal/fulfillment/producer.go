package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"boxoffice/internal/shared/clock"
	"boxoffice/internal/shared/config"
	"boxoffice/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

const (
	headerAttempt   = "attempt"
	headerLastError = "last_error"
	headerProducer  = "producer"
	producerName    = "boxoffice-fulfillment"
)

// ProducerConfig contains configuration for the Kafka fulfillment producer
type ProducerConfig struct {
	Brokers           []string
	FulfillmentTopic  string
	NotificationTopic string
	DeadLetterTopic   string
	RetryMax          int
	Timeout           time.Duration
	RequiredAcks      sarama.RequiredAcks
	Compression       sarama.CompressionCodec
	IdempotentWrites  bool
	MaxMessageBytes   int
}

// DefaultProducerConfig builds the producer settings from the kafka section
func DefaultProducerConfig(cfg config.KafkaConfig) *ProducerConfig {
	return &ProducerConfig{
		Brokers:           cfg.Brokers,
		FulfillmentTopic:  cfg.FulfillmentTopic,
		NotificationTopic: cfg.NotificationTopic,
		DeadLetterTopic:   cfg.DeadLetterTopic,
		RetryMax:          3,
		Timeout:           10 * time.Second,
		RequiredAcks:      sarama.WaitForAll,
		Compression:       sarama.CompressionSnappy,
		IdempotentWrites:  true,
		MaxMessageBytes:   1000000,
	}
}

// SaramaConfig translates the settings into a sarama producer config
func (c *ProducerConfig) SaramaConfig() *sarama.Config {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = c.RequiredAcks
	sc.Producer.Compression = c.Compression
	sc.Producer.Retry.Max = c.RetryMax
	sc.Producer.Timeout = c.Timeout
	sc.Producer.Idempotent = c.IdempotentWrites
	sc.Producer.MaxMessageBytes = c.MaxMessageBytes
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	if c.IdempotentWrites {
		// required by sarama for idempotent writes
		sc.Net.MaxOpenRequests = 1
	}
	return sc
}

// Producer publishes fulfillment jobs, buyer notifications and dead letters.
type Producer struct {
	producer sarama.SyncProducer
	config   *ProducerConfig
	clock    clock.Clock
	log      *logger.Logger
}

func NewProducer(cfg *ProducerConfig, log *logger.Logger) (*Producer, error) {
	p, err := sarama.NewSyncProducer(cfg.Brokers, cfg.SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewProducerWithClient(p, cfg, clock.NewSystem(), log), nil
}

// NewProducerWithClient wraps an existing sarama producer.
func NewProducerWithClient(p sarama.SyncProducer, cfg *ProducerConfig, clk clock.Clock, log *logger.Logger) *Producer {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Producer{
		producer: p,
		config:   cfg,
		clock:    clk,
		log:      logger.OrDefault(log).WithComponent("fulfillment-producer"),
	}
}

// Enqueue schedules the first fulfillment attempt for a paid order.
func (p *Producer) Enqueue(ctx context.Context, orderID uuid.UUID) error {
	return p.Publish(ctx, Job{OrderID: orderID, Attempt: 0, EnqueuedAt: p.clock.Now()})
}

func (p *Producer) Publish(ctx context.Context, job Job) error {
	value, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal fulfillment job: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.config.FulfillmentTopic,
		Key:   sarama.StringEncoder(job.OrderID.String()),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerAttempt), Value: []byte(fmt.Sprint(job.Attempt))},
			{Key: []byte(headerProducer), Value: []byte(producerName)},
		},
		Timestamp: job.EnqueuedAt,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send fulfillment job to Kafka: %w", err)
	}

	p.log.DebugWithContext(ctx, "fulfillment job published", map[string]interface{}{
		"order_id":  job.OrderID.String(),
		"partition": partition,
		"offset":    offset,
	})
	return nil
}

func (p *Producer) PublishNotification(ctx context.Context, n *Notification) error {
	value, err := n.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.config.NotificationTopic,
		Key:   sarama.StringEncoder(n.PartitionKey()),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("notification_type"), Value: []byte(n.Type)},
			{Key: []byte("order_id"), Value: []byte(n.OrderID.String())},
			{Key: []byte(headerProducer), Value: []byte(producerName)},
		},
		Timestamp: n.CreatedAt,
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to send notification to Kafka: %w", err)
	}
	return nil
}

// DeadLetter copies a message that exhausted its attempts to the DLQ topic,
// keeping its key and value and recording the last error.
func (p *Producer) DeadLetter(ctx context.Context, msg *sarama.ConsumerMessage, attempts int, cause error) error {
	headers := make([]sarama.RecordHeader, 0, len(msg.Headers)+3)
	for _, h := range msg.Headers {
		if h == nil || string(h.Key) == headerAttempt {
			continue
		}
		headers = append(headers, *h)
	}
	if cause == nil {
		cause = errors.New("unknown failure")
	}
	lastErr := cause.Error()
	headers = append(headers,
		sarama.RecordHeader{Key: []byte(headerAttempt), Value: []byte(fmt.Sprint(attempts))},
		sarama.RecordHeader{Key: []byte(headerLastError), Value: []byte(lastErr)},
		sarama.RecordHeader{Key: []byte("source_topic"), Value: []byte(msg.Topic)},
	)

	dlq := &sarama.ProducerMessage{
		Topic:     p.config.DeadLetterTopic,
		Key:       sarama.ByteEncoder(msg.Key),
		Value:     sarama.ByteEncoder(msg.Value),
		Headers:   headers,
		Timestamp: p.clock.Now(),
	}
	if _, _, err := p.producer.SendMessage(dlq); err != nil {
		return fmt.Errorf("failed to send message to dead letter topic: %w", err)
	}

	p.log.ErrorWithContext(ctx, "fulfillment job dead-lettered", cause, map[string]interface{}{
		"key":      string(msg.Key),
		"attempts": attempts,
	})
	return nil
}

func (p *Producer) Close() error {
	if p.producer == nil {
		return nil
	}
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}
