package receipt

import (
	"errors"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the processing status of a receipt
type Status string

const (
	StatusUploaded    Status = "uploaded"
	StatusRecognized  Status = "recognized"
	StatusNormalized  Status = "normalized"
	StatusCategorized Status = "categorized"
	StatusReconciled  Status = "reconciled"
	StatusCommitted   Status = "committed"
)

// Flag is a non-fatal review marker. Flags are data, never control flow.
type Flag string

const (
	// FlagNeedsReview marks an item whose stated line total disagrees with
	// quantity*unitPrice-discount, or a receipt holding such items or missing its date.
	FlagNeedsReview Flag = "needs_review"
	// FlagTotalMismatch marks a receipt whose header total disagrees with the sum of its items.
	FlagTotalMismatch Flag = "total_mismatch"
	// FlagUnparsed marks an item kept only as raw text.
	FlagUnparsed Flag = "unparsed"
)

// ErrNotFound is returned when a receipt does not exist
var ErrNotFound = errors.New("receipt not found")

// Item is one purchased product line
type Item struct {
	Line        int              `json:"line"`
	Description string           `json:"description"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Unit        string           `json:"unit,omitempty"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	Discount    decimal.Decimal  `json:"discount"`
	FinalPrice  decimal.Decimal  `json:"final_price"`
	StatedTotal *decimal.Decimal `json:"stated_total,omitempty"`
	// Category is empty until categorization runs.
	Category   string     `json:"category,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
	VATRate    string     `json:"vat_rate,omitempty"`
	ExpiresOn  *time.Time `json:"expires_on,omitempty"`
	Flags      []Flag     `json:"flags,omitempty"`
	Raw        string     `json:"raw,omitempty"`
}

// Unparsed reports whether the item carries only raw text
func (i Item) Unparsed() bool {
	return i.HasFlag(FlagUnparsed)
}

// HasFlag reports whether the item carries the flag
func (i Item) HasFlag(f Flag) bool {
	return slices.Contains(i.Flags, f)
}

// Receipt is one purchase transaction
type Receipt struct {
	ID            string          `json:"id"`
	StoreName     string          `json:"store_name"`
	StoreAddress  string          `json:"store_address,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	PurchaseDate  time.Time       `json:"purchase_date"`
	Currency      string          `json:"currency,omitempty"`
	// Total is the sum of the final prices of parsed items.
	Total       decimal.Decimal  `json:"total"`
	StatedTotal *decimal.Decimal `json:"stated_total,omitempty"`
	Items       []Item           `json:"items"`
	Flags       []Flag           `json:"flags,omitempty"`
	SourceFile  string           `json:"source_file"`
	ContentType string           `json:"content_type"`
	ContentHash string           `json:"content_hash"`
	Status      Status           `json:"status"`
	Version     int              `json:"version"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// HasFlag reports whether the receipt carries the flag
func (r *Receipt) HasFlag(f Flag) bool {
	return slices.Contains(r.Flags, f)
}

// Clone returns a deep copy of the receipt
func (r *Receipt) Clone() *Receipt {
	c := *r
	c.Flags = slices.Clone(r.Flags)
	c.Items = make([]Item, len(r.Items))
	for i, item := range r.Items {
		item.Flags = slices.Clone(item.Flags)
		c.Items[i] = item
	}
	return &c
}

func addFlag(flags []Flag, f Flag) []Flag {
	if slices.Contains(flags, f) {
		return flags
	}
	return append(flags, f)
}
