package kafka

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/example/wfm/internal/ports/primary"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds record events from a consumer group into a handler.
// Offsets are committed after the handler returns, so a crash redelivers
// the event; the numbering triggers tolerate that.
type Consumer struct {
	reader  messageReader
	handler primary.EventHandler
	logger  zerolog.Logger
}

// NewConsumer creates a Consumer reading topic as groupID.
func NewConsumer(brokers []string, topic, groupID string, handler primary.EventHandler, logger zerolog.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 1 << 20,
		}),
		handler: handler,
		logger:  logger.With().Str("component", "kafka_consumer").Str("topic", topic).Logger(),
	}
}

// Run consumes until ctx is done. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch message")
		}

		event, err := decodeEvent(msg)
		if err != nil {
			// Poison messages are skipped.
			c.logger.Error().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).Msg("dropping undecodable message")
		} else if err := c.handler.Handle(ctx, event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrapf(err, "handle %s for %s", event.Type, event.RecordID)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "commit offset")
		}
	}
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
