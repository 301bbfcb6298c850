package intake

import (
	"context"
	"errors"
	"time"

	"github.com/laserman120/discord-bridge/internal/log"

	kgo "github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kgo.Message, error)
	CommitMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

// KafkaConsumer reads events from a topic and routes them. Offsets are
// committed by hand once a message has been routed.
type KafkaConsumer struct {
	reader messageReader
	router *Router
	logger *log.Logger
}

func NewKafkaConsumer(brokers []string, topic, groupID string, router *Router, logger *log.Logger) *KafkaConsumer {
	r := kgo.NewReader(kgo.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commits
	})
	return &KafkaConsumer{reader: r, router: router, logger: logger.Named("kafka")}
}

func (c *KafkaConsumer) Close() error { return c.reader.Close() }

// Run consumes until ctx is done.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	c.logger.Info("Kafka consumer started")
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("Kafka consumer shutting down")
				return nil
			}
			return err
		}
		c.handle(ctx, m)
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, m kgo.Message) {
	events, err := DecodeEvents(m.Value)
	if err != nil {
		// commit bad messages so the partition does not stall on them
		c.logger.Warnw("Dropping undecodable event", "offset", m.Offset, "partition", m.Partition, "error", err)
		c.commit(ctx, m)
		return
	}
	for _, ev := range events {
		if _, err := c.router.Route(ctx, ev); err != nil {
			c.logger.Warnw("Dropping event", "offset", m.Offset, "error", err)
		}
	}
	c.commit(ctx, m)
}

func (c *KafkaConsumer) commit(ctx context.Context, m kgo.Message) {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.reader.CommitMessages(cctx, m); err != nil {
		c.logger.Errorw("Failed to commit offset", "offset", m.Offset, "error", err)
	}
}
