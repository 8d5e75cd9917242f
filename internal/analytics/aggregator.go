package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/pantry-tracker/internal/category"
	"github.com/zombor/pantry-tracker/internal/receipt"
)

var hundred = decimal.NewFromInt(100)

// Source is a read-only view of the committed receipt log
type Source interface {
	Snapshot() (*receipt.Snapshot, error)
	LogVersion() (uint64, error)
}

// DailySpend is the spend of one calendar day
type DailySpend struct {
	Date  string          `json:"date"`
	Total decimal.Decimal `json:"total"`
}

// CategoryTotal is the spend of one category within the window
type CategoryTotal struct {
	Category   string          `json:"category"`
	Total      decimal.Decimal `json:"total"`
	ItemCount  int             `json:"item_count"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Report is the aggregate of one window. It is the cached unit of derived
// analysis buckets: the "all" bucket is TotalSpend/ItemCount, the per-category
// buckets are Categories.
type Report struct {
	Window     Window          `json:"window"`
	Start      string          `json:"start"`
	End        string          `json:"end"`
	Timezone   string          `json:"timezone"`
	TotalSpend decimal.Decimal `json:"total_spend"`
	ItemCount  int             `json:"item_count"`
	Daily      []DailySpend    `json:"daily"`
	Categories []CategoryTotal `json:"categories"`
	LogVersion uint64          `json:"log_version"`
}

// Aggregator computes spend reports, reusing cached ones while the log is unchanged
type Aggregator struct {
	source Source
	cache  Cache
	loc    *time.Location
}

// NewAggregator creates an Aggregator. A nil cache disables caching.
func NewAggregator(source Source, cache Cache, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{source: source, cache: cache, loc: loc}
}

func cacheKey(w Window, start time.Time, loc *time.Location) string {
	return fmt.Sprintf("%s|%s|%s", w, start.Format(dateLayout), loc.String())
}

// Aggregate returns the report for the window containing asOf. It never fails
// on an empty log; a stale or unreadable cache falls back to recomputation.
func (a *Aggregator) Aggregate(ctx context.Context, w Window, asOf time.Time) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start, end := Range(w, asOf, a.loc)
	key := cacheKey(w, start, a.loc)

	if a.cache != nil {
		version, err := a.source.LogVersion()
		if err != nil {
			return nil, fmt.Errorf("reading log version: %w", err)
		}
		cached, err := a.cache.Get(key)
		if err != nil {
			slog.Warn("Analysis cache read failed", "key", key, "error", err)
		} else if cached != nil && cached.LogVersion == version {
			return cached, nil
		}
	}

	snap, err := a.source.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("reading receipt log: %w", err)
	}

	report := Compute(snap.Receipts, w, start, end)
	report.Timezone = a.loc.String()
	report.LogVersion = snap.Version

	if a.cache != nil {
		if err := a.cache.Put(key, report); err != nil {
			slog.Warn("Analysis cache write failed", "key", key, "error", err)
		}
	}
	return report, nil
}

// Warm recomputes the week, month and year reports containing day
func (a *Aggregator) Warm(ctx context.Context, day time.Time) error {
	for _, w := range []Window{Week, Month, Year} {
		if _, err := a.Aggregate(ctx, w, day); err != nil {
			return fmt.Errorf("warming %s report: %w", w, err)
		}
	}
	return nil
}

// Compute aggregates receipts over the civil date range [start, end]
func Compute(receipts []*receipt.Receipt, w Window, start, end time.Time) *Report {
	days := Days(start, end)
	daily := make(map[string]decimal.Decimal, days)
	byCategory := make(map[string]*CategoryTotal)
	total := decimal.Zero
	count := 0

	for _, r := range receipts {
		day := purchaseDay(r.PurchaseDate)
		if day.Before(start) || day.After(end) {
			continue
		}
		dayKey := day.Format(dateLayout)
		for _, item := range r.Items {
			if item.Unparsed() {
				continue
			}
			id := item.Category
			if id == "" {
				id = category.Unassigned
			}
			ct, ok := byCategory[id]
			if !ok {
				ct = &CategoryTotal{Category: id, Total: decimal.Zero}
				byCategory[id] = ct
			}
			ct.Total = ct.Total.Add(item.FinalPrice)
			ct.ItemCount++

			daily[dayKey] = daily[dayKey].Add(item.FinalPrice)
			total = total.Add(item.FinalPrice)
			count++
		}
	}

	report := &Report{
		Window:     w,
		Start:      start.Format(dateLayout),
		End:        end.Format(dateLayout),
		TotalSpend: total,
		ItemCount:  count,
		Daily:      make([]DailySpend, 0, days),
		Categories: make([]CategoryTotal, 0, len(byCategory)),
	}

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		k := d.Format(dateLayout)
		report.Daily = append(report.Daily, DailySpend{Date: k, Total: daily[k]})
	}

	for _, ct := range byCategory {
		ct.Percentage = decimal.Zero
		if !total.IsZero() {
			ct.Percentage = ct.Total.Div(total).Mul(hundred).Round(2)
		}
		report.Categories = append(report.Categories, *ct)
	}
	sort.Slice(report.Categories, func(i, j int) bool {
		ci, cj := report.Categories[i], report.Categories[j]
		if c := ci.Total.Cmp(cj.Total); c != 0 {
			return c > 0
		}
		return ci.Category < cj.Category
	})

	return report
}
