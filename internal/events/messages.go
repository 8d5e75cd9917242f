package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/pantry-tracker/internal/receipt"
)

// ErrRejected marks a message that can never be handled. Handlers wrap it so
// the message is dropped instead of requeued.
var ErrRejected = errors.New("message rejected")

// ReceiptCommitted announces that a receipt was added to the receipt log.
// It carries only what consumers need to find the affected reports; the
// receipt itself is read back from the database.
type ReceiptCommitted struct {
	ReceiptID    string          `json:"receipt_id"`
	PurchaseDate string          `json:"purchase_date"`
	Total        decimal.Decimal `json:"total"`
	ItemCount    int             `json:"item_count"`
	Version      int             `json:"version"`
	Timestamp    time.Time       `json:"timestamp"`
}

// NewReceiptCommitted builds the message for a committed receipt
func NewReceiptCommitted(r *receipt.Receipt) *ReceiptCommitted {
	return &ReceiptCommitted{
		ReceiptID:    r.ID,
		PurchaseDate: r.PurchaseDate.Format("2006-01-02"),
		Total:        r.Total,
		ItemCount:    len(r.Items),
		Version:      r.Version,
		Timestamp:    time.Now(),
	}
}

// Day returns the purchase date as midnight UTC
func (m *ReceiptCommitted) Day() (time.Time, error) {
	d, err := time.Parse("2006-01-02", m.PurchaseDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing purchase date: %w", err)
	}
	return d, nil
}

// ToJSON converts the message to JSON bytes
func (m *ReceiptCommitted) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReceiptCommittedFromJSON decodes a message body
func ReceiptCommittedFromJSON(data []byte) (*ReceiptCommitted, error) {
	var msg ReceiptCommitted
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ReceiptID == "" {
		return nil, fmt.Errorf("message has no receipt id")
	}
	if _, err := msg.Day(); err != nil {
		return nil, err
	}
	return &msg, nil
}
