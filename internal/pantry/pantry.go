// Package pantry keeps the on-hand inventory derived from committed receipts.
// Entries change only through Reconcile and the explicit manual operations
// on Service.
package pantry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/pantry-tracker/internal/category"
)

// ExpirySource records where an entry's expiration date came from. Later
// sources are more specific and win over earlier ones.
type ExpirySource string

const (
	ExpiryNone     ExpirySource = ""
	ExpiryInferred ExpirySource = "inferred"
	ExpiryReceipt  ExpirySource = "receipt"
	ExpiryManual   ExpirySource = "manual"
)

func (s ExpirySource) rank() int {
	switch s {
	case ExpiryInferred:
		return 1
	case ExpiryReceipt:
		return 2
	case ExpiryManual:
		return 3
	}
	return 0
}

var (
	// ErrNotFound is returned when a pantry entry does not exist
	ErrNotFound = errors.New("pantry entry not found")
	// ErrAlreadyReconciled is returned by DB.Commit for a receipt that was already applied
	ErrAlreadyReconciled = errors.New("receipt already reconciled")
	// ErrInvalidQuantity is returned for non-positive consumption amounts
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// Entry is the on-hand state of one product
type Entry struct {
	Key          string          `json:"key"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	Quantity     decimal.Decimal `json:"quantity"`
	Frozen       bool            `json:"frozen"`
	ExpiresOn    *time.Time      `json:"expires_on,omitempty"`
	ExpirySource ExpirySource    `json:"expiry_source,omitempty"`
	Category     string          `json:"category"`
	UpdatedAt    time.Time       `json:"updated_at"`
	// EmptiedAt is set when the quantity reaches zero and starts the purge grace period
	EmptiedAt *time.Time `json:"emptied_at,omitempty"`
}

// Empty reports whether nothing is left on hand
func (e *Entry) Empty() bool {
	return !e.Quantity.IsPositive()
}

// ProductKey identifies one inventory line by normalized description and unit
func ProductKey(description, unit string) string {
	return category.Fold(description) + "|" + strings.TrimSuffix(category.Fold(unit), ".")
}

// Change describes what reconciling one receipt item did to the pantry
type Change struct {
	Line     int             `json:"line"`
	Key      string          `json:"key"`
	Added    decimal.Decimal `json:"added"`
	Quantity decimal.Decimal `json:"quantity"`
	Created  bool            `json:"created"`
}

// Delta is the result of reconciling one receipt
type Delta struct {
	ReceiptID string `json:"receipt_id"`
	// AlreadyApplied is set when the receipt had been reconciled before; nothing changed
	AlreadyApplied bool     `json:"already_applied"`
	Changes        []Change `json:"changes"`
	// Skipped lists the lines of unparsed or uncategorized items
	Skipped []int `json:"skipped,omitempty"`
}

// ReconciliationError reports that the pantry store could not be read or written.
// Retryable errors are safe to retry for the same receipt.
type ReconciliationError struct {
	ReceiptID string
	Retryable bool
	Err       error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciling receipt %s: %v", e.ReceiptID, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// Filter narrows a pantry listing. Zero values match everything except empty entries.
type Filter struct {
	Category       string
	Frozen         *bool
	Query          string
	ExpiringBefore *time.Time
	IncludeEmpty   bool
}

func (f Filter) matches(e *Entry) bool {
	if !f.IncludeEmpty && e.Empty() {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.Frozen != nil && e.Frozen != *f.Frozen {
		return false
	}
	if q := category.Fold(f.Query); q != "" && !strings.Contains(e.Key, q) {
		return false
	}
	if f.ExpiringBefore != nil && (e.ExpiresOn == nil || e.ExpiresOn.After(*f.ExpiringBefore)) {
		return false
	}
	return true
}
