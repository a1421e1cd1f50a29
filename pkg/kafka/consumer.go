package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Consumer wraps a kafka-go Reader for a single topic consumer group.
type Consumer struct {
	reader *kafkago.Reader
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Handler receives one message at a time. Returning an error logs and skips;
// the offset is committed either way by the reader's group semantics.
type Handler func(ctx context.Context, key, value []byte) error

// NewConsumer constructs a Consumer from the given configuration.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	return &Consumer{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:        cfg.Brokers,
			Topic:          cfg.Topic,
			GroupID:        cfg.GroupID,
			MinBytes:       1,
			MaxBytes:       10 << 20,
			CommitInterval: time.Second,
		}),
	}
}

// Run fetches messages until ctx is cancelled or the reader closes.
// Handler errors are returned to the caller for logging but do not stop
// consumption.
func (c *Consumer) Run(ctx context.Context, handle Handler, onError func(error)) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := handle(ctx, msg.Key, msg.Value); err != nil && onError != nil {
			onError(err)
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
