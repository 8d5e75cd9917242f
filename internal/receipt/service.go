package receipt

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/pantry-tracker/internal/category"
	"github.com/zombor/pantry-tracker/internal/keylock"
)

// ErrInvalidCorrection is returned when a manual correction breaks an item invariant
var ErrInvalidCorrection = errors.New("invalid correction")

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Filter narrows a receipt listing. Zero values match everything.
type Filter struct {
	Flag    Flag
	Store   string
	From    *time.Time
	To      *time.Time
	Page    int
	PerPage int
}

// Page is one page of a receipt listing
type Page struct {
	Receipts []*Receipt `json:"receipts"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PerPage  int        `json:"per_page"`
}

// Correction is a manual edit of one item. Nil fields are left unchanged.
type Correction struct {
	Description *string          `json:"description,omitempty"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	Unit        *string          `json:"unit,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	Discount    *decimal.Decimal `json:"discount,omitempty"`
	Category    *string          `json:"category,omitempty"`
}

// Service handles queries and manual corrections of committed receipts
type Service struct {
	db         DB
	storage    Storage
	normalizer *Normalizer
	timeSource TimeSource
	// corrections of one receipt run one at a time
	locks      *keylock.KeyLock
}

// NewService creates a new Service with the default time source
func NewService(db DB, storage Storage, normalizer *Normalizer) *Service {
	return NewServiceWithDeps(db, storage, normalizer, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, normalizer *Normalizer, timeSrc TimeSource) *Service {
	return &Service{
		db:         db,
		storage:    storage,
		normalizer: normalizer,
		timeSource: timeSrc,
		locks:      keylock.New(),
	}
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns receipts matching the filter, newest purchase first
func (s *Service) ListReceipts(filter Filter) (*Page, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}

	store := category.Fold(filter.Store)
	matched := make([]*Receipt, 0, len(receipts))
	for _, r := range receipts {
		if filter.Flag != "" && !r.HasFlag(filter.Flag) && !anyItemHasFlag(r, filter.Flag) {
			continue
		}
		if store != "" && !strings.Contains(category.Fold(r.StoreName), store) {
			continue
		}
		if filter.From != nil && r.PurchaseDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && r.PurchaseDate.After(*filter.To) {
			continue
		}
		matched = append(matched, r)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].PurchaseDate.Equal(matched[j].PurchaseDate) {
			return matched[i].PurchaseDate.After(matched[j].PurchaseDate)
		}
		return matched[i].ID < matched[j].ID
	})

	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	start := (page - 1) * perPage
	if start > len(matched) {
		start = len(matched)
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}

	return &Page{
		Receipts: matched[start:end],
		Total:    len(matched),
		Page:     page,
		PerPage:  perPage,
	}, nil
}

func anyItemHasFlag(r *Receipt, f Flag) bool {
	for _, item := range r.Items {
		if item.HasFlag(f) {
			return true
		}
	}
	return false
}

// GetReceiptFile retrieves the source file for a receipt
func (s *Service) GetReceiptFile(id string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}

	data, err := s.storage.Get(receipt.SourceFile)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	return data, receipt.ContentType, nil
}

// Versions returns every version of a receipt, oldest first
func (s *Service) Versions(id string) ([]*Receipt, error) {
	versions, err := s.db.Versions(id)
	if err != nil {
		return nil, fmt.Errorf("listing receipt versions: %w", err)
	}
	return versions, nil
}

// CorrectItem applies a manual correction to one item and stores the result
// as a new version. Earlier versions stay readable through Versions.
func (s *Service) CorrectItem(id string, line int, c Correction) (*Receipt, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	current, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}

	next := current.Clone()
	idx := -1
	for i := range next.Items {
		if next.Items[i].Line == line {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: receipt %s has no line %d", ErrNotFound, id, line)
	}

	item := &next.Items[idx]
	if c.Description != nil {
		item.Description = strings.TrimSpace(*c.Description)
	}
	if c.Quantity != nil {
		item.Quantity = *c.Quantity
	}
	if c.Unit != nil {
		item.Unit = *c.Unit
	}
	if c.UnitPrice != nil {
		item.UnitPrice = *c.UnitPrice
	}
	if c.Discount != nil {
		item.Discount = *c.Discount
	}
	if err := s.normalizer.Recompute(item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCorrection, err)
	}
	if c.Category != nil {
		item.Category = strings.TrimSpace(*c.Category)
	}
	if item.Category == "" {
		item.Category = category.Unassigned
	}

	// a receipt-level review flag not explained by any item came from the header
	headerReview := current.HasFlag(FlagNeedsReview) && !anyItemNeedsReview(current)
	flags := next.Flags[:0:0]
	for _, f := range next.Flags {
		if f != FlagNeedsReview {
			flags = append(flags, f)
		}
	}
	next.Flags = flags
	if headerReview || anyItemNeedsReview(next) {
		next.Flags = addFlag(next.Flags, FlagNeedsReview)
	}
	s.normalizer.Retotal(next)

	next.Version = current.Version + 1
	next.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveReceipt(next); err != nil {
		return nil, fmt.Errorf("saving corrected receipt: %w", err)
	}

	slog.Info("Receipt item corrected",
		"receipt_id", id,
		"line", line,
		"version", next.Version,
		"final_price", item.FinalPrice.String(),
	)
	return next, nil
}

func anyItemNeedsReview(r *Receipt) bool {
	for _, item := range r.Items {
		if item.Unparsed() || item.HasFlag(FlagNeedsReview) {
			return true
		}
	}
	return false
}
