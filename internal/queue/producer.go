package queue

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Producer enqueues send-missed jobs. The HTTP layer depends on this
// interface; tests substitute a fake.
type Producer interface {
	EnqueueSendMissed(ctx context.Context, purchaseID, workflowID string) error
	Close() error
}

// KafkaProducer writes jobs to the send-missed topic.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer builds a producer for the given brokers and topic.
func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

// EnqueueSendMissed implements Producer. The purchase id is the message key,
// so batches for the same purchase land on the same partition.
func (p *KafkaProducer) EnqueueSendMissed(ctx context.Context, purchaseID, workflowID string) error {
	payload, err := SendMissedJob{PurchaseID: purchaseID, WorkflowID: workflowID}.Marshal()
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(purchaseID),
		Value: payload,
	})
}

// Close flushes and closes the underlying writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
