// Package kafka carries record events over Kafka so numbering triggers can
// run in a separate process from the writers that emit them.
package kafka

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"

	"github.com/example/wfm/internal/ports/secondary"
)

// Header carrying the event type, so consumers can route without decoding.
const typeHeader = "wfm-event-type"

// encodeEvent builds the message for event. The record ID is the key, which
// keeps all events of one record on one partition in order.
func encodeEvent(event secondary.RecordEvent) (kafka.Message, error) {
	if event.RecordID == "" {
		return kafka.Message{}, errors.New("event has no record id")
	}
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "encode event")
	}
	return kafka.Message{
		Key:     []byte(event.RecordID),
		Value:   value,
		Headers: []kafka.Header{{Key: typeHeader, Value: []byte(event.Type)}},
	}, nil
}

func decodeEvent(msg kafka.Message) (secondary.RecordEvent, error) {
	var event secondary.RecordEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return event, errors.Wrapf(err, "decode event at offset %d", msg.Offset)
	}
	if event.Type == "" || event.RecordID == "" {
		return event, errors.Newf("incomplete event at offset %d", msg.Offset)
	}
	return event, nil
}
