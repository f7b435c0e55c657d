package broker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"tripchat-service/internal/observability"
)

// TopicPattern matches every room topic.
const TopicPattern = "^chat-room-"

// Handler processes one delivered message. A non-nil error triggers a
// bounded redelivery; after MaxHandleAttempts the message is skipped so a
// poison message cannot stall its partition.
type Handler func(ctx context.Context, key, value []byte) error

// MaxHandleAttempts bounds in-place retries of a failing handler before
// the message is dropped and its offset committed.
const MaxHandleAttempts = 3

const handleRetryPause = 200 * time.Millisecond

// Consumer pulls room topics as one consumer group and feeds a Handler.
// One Poll loop per Consumer: handler invocations never overlap for the
// partitions this instance owns, so per-room order is preserved.
// Horizontal scaling redistributes partitions through the group's
// rebalancing rather than duplicating fan-out.
type Consumer struct {
	consumer *kafka.Consumer
	groupID  string
	handler  Handler
}

// NewConsumer builds a consumer for every room topic. Offsets are
// committed only after a message is handled (or given up on), which makes
// delivery at-least-once: a crash may redeliver the last uncommitted
// batch and downstream consumers must tolerate duplicates.
func NewConsumer(brokers, groupID string, handler Handler) (*Consumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":     brokers,
		"group.id":              groupID,
		"auto.offset.reset":     "earliest",
		"enable.auto.commit":    false,
		"session.timeout.ms":    10000,
		"heartbeat.interval.ms": 3000,
		// Room topics are created lazily on first publish; keep watching
		// for new ones.
		"topic.metadata.refresh.interval.ms": 10000,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	return &Consumer{consumer: c, groupID: groupID, handler: handler}, nil
}

// Run subscribes to the room-topic pattern and polls until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.consumer.SubscribeTopics([]string{TopicPattern}, nil); err != nil {
		return fmt.Errorf("subscribe to %s: %w", TopicPattern, err)
	}

	log.Printf("kafka consumer started (pattern: %s, group: %s)", TopicPattern, c.groupID)

	for {
		select {
		case <-ctx.Done():
			log.Println("kafka consumer stopping")
			return nil
		default:
		}

		ev := c.consumer.Poll(500)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			if !c.handleWithRetry(ctx, e) {
				// Handling was cut short by shutdown. Leaving the offset
				// uncommitted makes the broker redeliver after restart.
				continue
			}
			if _, err := c.consumer.CommitMessage(e); err != nil {
				log.Printf("kafka commit failed (partition=%d offset=%v): %v",
					e.TopicPartition.Partition, e.TopicPartition.Offset, err)
			}
		case kafka.Error:
			log.Printf("kafka error: %v (code=%d fatal=%v)", e, e.Code(), e.IsFatal())
			if e.IsFatal() {
				return fmt.Errorf("fatal kafka error: %w", e)
			}
		default:
			// Rebalance and stats events need no action.
		}
	}
}

// handleWithRetry reports whether the message's offset may be committed:
// true after a successful handling or a deliberate poison drop, false when
// ctx cancellation aborted handling before either outcome.
func (c *Consumer) handleWithRetry(ctx context.Context, msg *kafka.Message) bool {
	var err error
	for attempt := 1; attempt <= MaxHandleAttempts; attempt++ {
		if err = c.handler(ctx, msg.Key, msg.Value); err == nil {
			return true
		}
		if ctx.Err() != nil {
			log.Printf("handling aborted by shutdown (partition=%d offset=%v), message will be redelivered",
				msg.TopicPartition.Partition, msg.TopicPartition.Offset)
			return false
		}
		if attempt < MaxHandleAttempts {
			select {
			case <-time.After(handleRetryPause):
			case <-ctx.Done():
				log.Printf("handling aborted by shutdown (partition=%d offset=%v), message will be redelivered",
					msg.TopicPartition.Partition, msg.TopicPartition.Offset)
				return false
			}
		}
	}
	observability.IncPoisonMessage()
	log.Printf("dropping message after %d attempts (topic=%s partition=%d offset=%v): %v",
		MaxHandleAttempts, *msg.TopicPartition.Topic, msg.TopicPartition.Partition,
		msg.TopicPartition.Offset, err)
	return true
}

// Close shuts the underlying consumer down.
func (c *Consumer) Close() error {
	log.Println("closing kafka consumer")
	return c.consumer.Close()
}
