package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"boxoffice/internal/shared/config"
	"boxoffice/pkg/logger"

	"github.com/IBM/sarama"
)

// DeadLetterer receives jobs that exhausted their attempts.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, msg *sarama.ConsumerMessage, attempts int, cause error) error
}

type ConsumerConfig struct {
	Brokers           []string
	GroupID           string
	Topic             string
	Workers           int
	SessionTimeout    time.Duration
	Heartbeat         time.Duration
	MaxProcessingTime time.Duration
	OffsetOldest      bool
	MaxAttempts       int
	RetryBackoff      time.Duration
}

func DefaultConsumerConfig(cfg config.KafkaConfig) *ConsumerConfig {
	return &ConsumerConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.ConsumerGroup,
		Topic:             cfg.FulfillmentTopic,
		Workers:           cfg.Workers,
		SessionTimeout:    30 * time.Second,
		Heartbeat:         3 * time.Second,
		MaxProcessingTime: 5 * time.Minute,
		OffsetOldest:      true,
		MaxAttempts:       cfg.MaxAttempts,
		RetryBackoff:      cfg.RetryBackoff,
	}
}

// Consumer runs the fulfillment consumer group.
type Consumer struct {
	group   sarama.ConsumerGroup
	config  *ConsumerConfig
	handler *Handler
	log     *logger.Logger
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func NewConsumer(cfg *ConsumerConfig, handler *Handler, log *logger.Logger) (*Consumer, error) {
	sc := sarama.NewConfig()
	sc.Consumer.Group.Session.Timeout = cfg.SessionTimeout
	sc.Consumer.Group.Heartbeat.Interval = cfg.Heartbeat
	sc.Consumer.MaxProcessingTime = cfg.MaxProcessingTime
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.AutoCommit.Enable = true
	sc.Consumer.Offsets.AutoCommit.Interval = time.Second
	if cfg.OffsetOldest {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Consumer{
		group:   group,
		config:  cfg,
		handler: handler,
		log:     logger.OrDefault(log).WithComponent("fulfillment-consumer"),
	}, nil
}

func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.log.ErrorWithContext(ctx, "consumer group error", err, nil)
		}
	}()

	workers := c.config.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go func(workerID int) {
			defer c.wg.Done()
			c.run(ctx, workerID)
		}(i)
	}
}

func (c *Consumer) run(ctx context.Context, workerID int) {
	for {
		if err := c.group.Consume(ctx, []string{c.config.Topic}, c.handler); err != nil {
			c.log.ErrorWithContext(ctx, "failed to consume fulfillment topic", err, map[string]interface{}{"worker": workerID})
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.group.Close()
	c.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	return nil
}

const deadLetterAttempts = 3

// Handler is the sarama.ConsumerGroupHandler for fulfillment jobs.
type Handler struct {
	processor   *Processor
	deadLetters DeadLetterer
	maxAttempts int
	backoff     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	log         *logger.Logger
}

func NewHandler(processor *Processor, deadLetters DeadLetterer, maxAttempts int, backoff time.Duration, log *logger.Logger) *Handler {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	return &Handler{
		processor:   processor,
		deadLetters: deadLetters,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		sleep:       sleepContext,
		log:         logger.OrDefault(log).WithComponent("fulfillment-consumer"),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *Handler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *Handler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.HandleMessage(session.Context(), msg); err != nil {
				// Not marked, but a later mark on this partition commits past
				// it. Reconciliation re-enqueues paid orders left unfulfilled.
				h.log.ErrorWithContext(session.Context(), "fulfillment job not settled", err, map[string]interface{}{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				})
				continue
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// HandleMessage runs one job with exponential backoff between attempts.
// A nil return means the offset may be committed: the job either succeeded
// or was copied to the dead letter topic.
func (h *Handler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var job Job
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		return h.deadLetter(ctx, msg, 0, fmt.Errorf("malformed fulfillment job: %w", err))
	}

	var lastErr error
	for attempt := job.Attempt; attempt < h.maxAttempts; attempt++ {
		job.Attempt = attempt
		lastErr = h.processor.Process(ctx, job)
		if lastErr == nil {
			return nil
		}
		if attempt+1 >= h.maxAttempts {
			break
		}

		delay := h.backoff * time.Duration(1<<attempt)
		h.log.InfoWithContext(ctx, "fulfillment attempt failed, retrying", map[string]interface{}{
			"order_id": job.OrderID.String(),
			"attempt":  attempt + 1,
			"delay":    delay.String(),
			"error":    lastErr.Error(),
		})
		if err := h.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return h.deadLetter(ctx, msg, h.maxAttempts, lastErr)
}

// deadLetter copies msg to the dead letter topic, retrying the publish
// before giving the job up.
func (h *Handler) deadLetter(ctx context.Context, msg *sarama.ConsumerMessage, attempts int, cause error) error {
	var err error
	for i := 0; i < deadLetterAttempts; i++ {
		if err = h.deadLetters.DeadLetter(ctx, msg, attempts, cause); err == nil {
			return nil
		}
		if i+1 < deadLetterAttempts {
			if serr := h.sleep(ctx, h.backoff); serr != nil {
				return serr
			}
		}
	}
	return fmt.Errorf("failed to dead-letter fulfillment job: %w", err)
}
