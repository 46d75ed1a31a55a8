// Package outbox stores domain events in the same transaction as the state
// change that produced them and relays them to Kafka afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ErrEmptyTopic signals an event without a topic.
var ErrEmptyTopic = errors.New("outbox: topic is required")

// Writer appends events to the outbox table.
type Writer struct{}

// NewWriter creates an outbox writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Enqueue marshals payload and inserts it as a pending event inside tx. The
// event becomes visible to the relay only if tx commits.
func (w *Writer) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload any) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ErrEmptyTopic
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal %s: %w", topic, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, $2)`, topic, body); err != nil {
		return fmt.Errorf("outbox: enqueue %s: %w", topic, err)
	}
	return nil
}
