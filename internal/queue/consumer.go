package queue

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/gumroad/post-delivery/internal/observability"
)

// Handler runs one send-missed batch. *services.Dispatcher implements it.
type Handler interface {
	SendMissed(ctx context.Context, purchaseID, workflowID string) error
}

// Consumer reads send-missed jobs and hands them to the handler, one at a
// time. Each job is a self-contained batch: a failed batch is not retried by
// the queue (the dispatcher already reported the failure over the realtime
// channel, and a fresh request naturally skips delivered posts), so messages
// are committed regardless of handler outcome.
type Consumer struct {
	reader  *kafka.Reader
	handler Handler
	log     zerolog.Logger
}

// NewConsumer builds a consumer group member for the job topic.
func NewConsumer(brokers []string, topic, groupID string, handler Handler, log zerolog.Logger) *Consumer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MaxBytes: 1 << 20,
		}),
		handler: handler,
		log:     log,
	}
}

// Run consumes until ctx is cancelled. It returns nil on clean shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		c.handle(ctx, m)
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	job, err := UnmarshalJob(m.Value)
	if err != nil {
		observability.JobsConsumed.WithLabelValues("error").Inc()
		c.log.Error().
			Err(err).
			Bytes("raw", m.Value).
			Msg("undecodable send-missed job dropped")
		return
	}

	if err := c.handler.SendMissed(ctx, job.PurchaseID, job.WorkflowID); err != nil {
		observability.JobsConsumed.WithLabelValues("error").Inc()
		c.log.Error().
			Err(err).
			Str("purchase_id", job.PurchaseID).
			Str("workflow_id", job.WorkflowID).
			Msg("send-missed batch failed")
		return
	}

	observability.JobsConsumed.WithLabelValues("ok").Inc()
	c.log.Info().
		Str("purchase_id", job.PurchaseID).
		Str("workflow_id", job.WorkflowID).
		Msg("send-missed batch completed")
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
