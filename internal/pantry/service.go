package pantry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/pantry-tracker/internal/category"
	"github.com/zombor/pantry-tracker/internal/keylock"
	"github.com/zombor/pantry-tracker/internal/receipt"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// ExpiryPolicy supplies the default shelf life of a category
type ExpiryPolicy interface {
	ShelfLife(categoryID string) (time.Duration, bool)
}

// Config holds pantry tuning values
type Config struct {
	// DefaultUnit keys items printed without a unit
	DefaultUnit string
	// Grace is how long an empty entry is kept before Purge removes it
	Grace time.Duration
}

// Service owns all pantry mutations
type Service struct {
	db         DB
	expiry     ExpiryPolicy
	cfg        Config
	locks      *keylock.KeyLock
	timeSource TimeSource
}

// NewService creates a new Service with the default time source
func NewService(db DB, expiry ExpiryPolicy, cfg Config) *Service {
	return NewServiceWithDeps(db, expiry, cfg, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, expiry ExpiryPolicy, cfg Config, timeSrc TimeSource) *Service {
	if cfg.DefaultUnit == "" {
		cfg.DefaultUnit = "szt"
	}
	return &Service{
		db:         db,
		expiry:     expiry,
		cfg:        cfg,
		locks:      keylock.New(),
		timeSource: timeSrc,
	}
}

func (s *Service) itemKey(item receipt.Item) string {
	unit := item.Unit
	if strings.TrimSpace(unit) == "" {
		unit = s.cfg.DefaultUnit
	}
	return ProductKey(item.Description, unit)
}

// expiryFor picks the most specific expiration known for an item
func (s *Service) expiryFor(item receipt.Item, purchased time.Time) (*time.Time, ExpirySource) {
	if item.ExpiresOn != nil {
		d := *item.ExpiresOn
		return &d, ExpiryReceipt
	}
	if s.expiry != nil {
		if life, ok := s.expiry.ShelfLife(item.Category); ok && life > 0 {
			d := purchased.Add(life)
			return &d, ExpiryInferred
		}
	}
	return nil, ExpiryNone
}

// Reconcile merges a categorized receipt into the pantry. Applying the same
// receipt again is a no-op reported through Delta.AlreadyApplied.
func (s *Service) Reconcile(ctx context.Context, r *receipt.Receipt) (*Delta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	delta := &Delta{ReceiptID: r.ID, Changes: make([]Change, 0, len(r.Items))}
	keys := make([]string, 0, len(r.Items))
	for _, item := range r.Items {
		if item.Unparsed() || item.Category == "" || !item.Quantity.IsPositive() {
			delta.Skipped = append(delta.Skipped, item.Line)
			continue
		}
		keys = append(keys, s.itemKey(item))
	}

	unlock := s.locks.LockAll(keys)
	defer unlock()

	done, err := s.db.IsReconciled(r.ID)
	if err != nil {
		return nil, &ReconciliationError{ReceiptID: r.ID, Retryable: true, Err: err}
	}
	if done {
		delta.AlreadyApplied = true
		return delta, nil
	}

	existing, err := s.db.GetEntries(keys)
	if err != nil {
		return nil, &ReconciliationError{ReceiptID: r.ID, Retryable: true, Err: err}
	}

	now := s.timeSource.Now()
	touched := make(map[string]*Entry, len(keys))
	order := make([]string, 0, len(keys))
	for _, item := range r.Items {
		if item.Unparsed() || item.Category == "" || !item.Quantity.IsPositive() {
			continue
		}
		key := s.itemKey(item)

		e, ok := touched[key]
		created := false
		if !ok {
			if prev, found := existing[key]; found {
				e = prev
			} else {
				unit := strings.TrimSpace(item.Unit)
				if unit == "" {
					unit = s.cfg.DefaultUnit
				}
				e = &Entry{
					Key:      key,
					Name:     strings.TrimSpace(item.Description),
					Unit:     unit,
					Quantity: decimal.Zero,
					Category: item.Category,
				}
				created = true
			}
			touched[key] = e
			order = append(order, key)
		}

		restock := e.Empty()
		if e.Category == "" || e.Category == category.Unassigned {
			e.Category = item.Category
		}
		if date, src := s.expiryFor(item, r.PurchaseDate); date != nil {
			// a restock refreshes a date from an equally specific source
			if src.rank() > e.ExpirySource.rank() || (restock && src.rank() == e.ExpirySource.rank()) {
				e.ExpiresOn, e.ExpirySource = date, src
			}
		}
		e.Quantity = e.Quantity.Add(item.Quantity)
		e.EmptiedAt = nil
		e.UpdatedAt = now

		delta.Changes = append(delta.Changes, Change{
			Line:     item.Line,
			Key:      key,
			Added:    item.Quantity,
			Quantity: e.Quantity,
			Created:  created,
		})
	}

	entries := make([]*Entry, 0, len(order))
	for _, key := range order {
		entries = append(entries, touched[key])
	}

	if err := s.db.Commit(r.ID, entries, now); err != nil {
		if errors.Is(err, ErrAlreadyReconciled) {
			return &Delta{ReceiptID: r.ID, AlreadyApplied: true, Skipped: delta.Skipped}, nil
		}
		return nil, &ReconciliationError{ReceiptID: r.ID, Retryable: true, Err: err}
	}

	slog.Info("Receipt reconciled into pantry",
		"receipt_id", r.ID,
		"entries", len(entries),
		"skipped", len(delta.Skipped),
	)
	return delta, nil
}

// List returns entries matching the filter ordered by name
func (s *Service) List(filter Filter) ([]*Entry, error) {
	entries, err := s.db.ListEntries()
	if err != nil {
		return nil, fmt.Errorf("listing pantry: %w", err)
	}

	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if filter.matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ni, nj := category.Fold(out[i].Name), category.Fold(out[j].Name)
		if ni != nj {
			return ni < nj
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// update runs a read-modify-write of one entry under its key lock
func (s *Service) update(key string, fn func(e *Entry) error) (*Entry, error) {
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	e, err := s.db.GetEntry(key)
	if err != nil {
		return nil, err
	}
	if err := fn(e); err != nil {
		return nil, err
	}
	e.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveEntry(e); err != nil {
		return nil, fmt.Errorf("saving pantry entry: %w", err)
	}
	return e, nil
}

// SetFrozen toggles the frozen flag. Reconciliation never changes it.
func (s *Service) SetFrozen(key string, frozen bool) (*Entry, error) {
	return s.update(key, func(e *Entry) error {
		e.Frozen = frozen
		return nil
	})
}

// SetExpiry records a manually entered expiration date, which reconciliation keeps
func (s *Service) SetExpiry(key string, date time.Time) (*Entry, error) {
	return s.update(key, func(e *Entry) error {
		d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
		e.ExpiresOn, e.ExpirySource = &d, ExpiryManual
		return nil
	})
}

// Consume removes a used amount, stopping at zero
func (s *Service) Consume(key string, amount decimal.Decimal) (*Entry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuantity, amount)
	}
	return s.update(key, func(e *Entry) error {
		e.Quantity = e.Quantity.Sub(amount)
		if !e.Quantity.IsPositive() {
			e.Quantity = decimal.Zero
			now := s.timeSource.Now()
			e.EmptiedAt = &now
		}
		return nil
	})
}

// Purge removes entries that have been empty for longer than the grace period
func (s *Service) Purge(ctx context.Context) (int, error) {
	entries, err := s.db.ListEntries()
	if err != nil {
		return 0, fmt.Errorf("listing pantry: %w", err)
	}

	cutoff := s.timeSource.Now().Add(-s.cfg.Grace)
	var candidates []string
	for _, e := range entries {
		if e.Empty() && e.EmptiedAt != nil && e.EmptiedAt.Before(cutoff) {
			candidates = append(candidates, e.Key)
		}
	}
	if len(candidates) == 0 || ctx.Err() != nil {
		return 0, ctx.Err()
	}

	unlock := s.locks.LockAll(candidates)
	defer unlock()

	// re-read under the locks; a reconciliation may have restocked an entry
	current, err := s.db.GetEntries(candidates)
	if err != nil {
		return 0, fmt.Errorf("reading pantry: %w", err)
	}
	expired := make([]string, 0, len(candidates))
	for _, key := range candidates {
		if e, ok := current[key]; ok && e.Empty() && e.EmptiedAt != nil && e.EmptiedAt.Before(cutoff) {
			expired = append(expired, key)
		}
	}
	if err := s.db.DeleteEntries(expired); err != nil {
		return 0, fmt.Errorf("purging pantry: %w", err)
	}

	if len(expired) > 0 {
		slog.Info("Purged empty pantry entries", "count", len(expired))
	}
	return len(expired), nil
}
