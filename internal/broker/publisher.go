package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"tripchat-service/internal/models"
)

// TopicForRoom names the per-room topic. All messages of a room flow
// through exactly one topic so consumer order equals submission order.
func TopicForRoom(roomID int) string {
	return "chat-room-" + strconv.Itoa(roomID)
}

// Publisher publishes persisted chat messages onto the room's topic.
type Publisher interface {
	Publish(ctx context.Context, msg models.ChatMessage) error
	Close() error
}

// KafkaPublisher is a confluent-kafka-go producer with lazy per-room
// topic provisioning. Brokers that auto-create topics asynchronously can
// drop the first publish, so topics are created explicitly through the
// admin client before the first message for a room goes out.
type KafkaPublisher struct {
	producer *kafka.Producer
	admin    *kafka.AdminClient
	doneCh   chan struct{}

	mu      sync.Mutex
	ensured map[string]bool
}

// NewKafkaPublisher builds the producer and admin client.
func NewKafkaPublisher(brokers string) (*KafkaPublisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "all",
		"enable.idempotence": true,
		"linger.ms":          5,
		"compression.type":   "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	admin, err := kafka.NewAdminClientFromProducer(p)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("create kafka admin client: %w", err)
	}

	kp := &KafkaPublisher{
		producer: p,
		admin:    admin,
		doneCh:   make(chan struct{}),
		ensured:  make(map[string]bool),
	}

	go kp.deliveryReportHandler()

	return kp, nil
}

func (kp *KafkaPublisher) deliveryReportHandler() {
	for e := range kp.producer.Events() {
		if ev, ok := e.(*kafka.Message); ok && ev.TopicPartition.Error != nil {
			log.Printf("kafka delivery failed topic=%s: %v", *ev.TopicPartition.Topic, ev.TopicPartition.Error)
		}
	}
	close(kp.doneCh)
}

// Publish sends one message to the room's topic, keyed by room id. The
// call blocks until the broker acknowledges delivery or ctx expires.
func (kp *KafkaPublisher) Publish(ctx context.Context, msg models.ChatMessage) error {
	topic := TopicForRoom(msg.RoomID)
	if err := kp.ensureTopic(ctx, topic); err != nil {
		return fmt.Errorf("ensure topic %s: %w", topic, err)
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}

	deliveryCh := make(chan kafka.Event, 1)
	err = kp.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(strconv.Itoa(msg.RoomID)),
		Value: value,
	}, deliveryCh)
	if err != nil {
		return fmt.Errorf("produce message: %w", err)
	}

	select {
	case e := <-deliveryCh:
		ev, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event %T", e)
		}
		if ev.TopicPartition.Error != nil {
			return fmt.Errorf("deliver message: %w", ev.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (kp *KafkaPublisher) ensureTopic(ctx context.Context, topic string) error {
	kp.mu.Lock()
	done := kp.ensured[topic]
	kp.mu.Unlock()
	if done {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	results, err := kp.admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return err
	}
	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError && result.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("create topic %s: %v", result.Topic, result.Error)
		}
	}

	kp.mu.Lock()
	kp.ensured[topic] = true
	kp.mu.Unlock()
	return nil
}

// Close flushes outstanding messages and releases the clients.
func (kp *KafkaPublisher) Close() error {
	kp.producer.Flush(5000)
	kp.admin.Close()
	kp.producer.Close()
	<-kp.doneCh
	return nil
}
