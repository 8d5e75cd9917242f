// Package events carries receipt lifecycle notifications over AMQP.
package events

import (
	"context"
	"log/slog"
)

// Publisher announces committed receipts
type Publisher interface {
	PublishReceiptCommitted(ctx context.Context, msg *ReceiptCommitted) error
}

// Noop drops every message. It is used when no broker is configured.
type Noop struct{}

// PublishReceiptCommitted logs the message at debug level and returns nil
func (Noop) PublishReceiptCommitted(ctx context.Context, msg *ReceiptCommitted) error {
	slog.DebugContext(ctx, "No event broker configured, dropping message", "receipt_id", msg.ReceiptID)
	return nil
}

// Handler processes one consumed message. An error requeues the message
// unless it wraps ErrRejected.
type Handler func(ctx context.Context, msg *ReceiptCommitted) error
