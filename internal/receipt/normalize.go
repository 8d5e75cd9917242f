package receipt

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/pantry-tracker/internal/category"
	"github.com/zombor/pantry-tracker/internal/scanning"
)

// DefaultTolerance is the largest difference between two totals treated as equal
var DefaultTolerance = decimal.RequireFromString("0.01")

// ParseError reports recognition output that cannot form a receipt at all
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Reason
}

// Normalizer turns recognition output into a typed Receipt
type Normalizer struct {
	tolerance  decimal.Decimal
	currency   string
	timeSource TimeSource
}

// NewNormalizer creates a Normalizer. A zero tolerance selects DefaultTolerance.
func NewNormalizer(tolerance decimal.Decimal, currency string) *Normalizer {
	return NewNormalizerWithDeps(tolerance, currency, &defaultTimeSource{})
}

// NewNormalizerWithDeps creates a Normalizer with a custom time source for testing
func NewNormalizerWithDeps(tolerance decimal.Decimal, currency string, timeSrc TimeSource) *Normalizer {
	if !tolerance.IsPositive() {
		tolerance = DefaultTolerance
	}
	return &Normalizer{tolerance: tolerance, currency: currency, timeSource: timeSrc}
}

// header holds receipt-level values before typing
type header struct {
	storeName     string
	storeAddress  string
	date          string
	total         string
	currency      string
	paymentMethod string
}

// row is one candidate line item before typing
type row struct {
	description string
	quantity    string
	unit        string
	unitPrice   string
	discount    string
	total       string
	vatRate     string
	expiresOn   string
	confidence  *float64
	raw         string
	// grossTotal is set when the stated total precedes a separate discount line
	grossTotal bool
	// unparsed is set when the text parser already knows the row is unusable
	unparsed bool
}

// Normalize converts recognition output into a Receipt with status normalized.
// Row-level problems become flags; only structurally unusable input fails.
func (n *Normalizer) Normalize(rec *scanning.Recognition) (*Receipt, error) {
	if rec.Empty() {
		return nil, &ParseError{Reason: "empty recognition output"}
	}

	var (
		h    header
		rows []row
	)
	if rec.Fields != nil {
		h, rows = fromFields(rec.Fields)
	} else {
		h, rows = parseText(rec.Text)
	}
	if len(rows) == 0 {
		return nil, &ParseError{Reason: "no line items"}
	}

	r := &Receipt{
		StoreName:     strings.TrimSpace(h.storeName),
		StoreAddress:  strings.TrimSpace(h.storeAddress),
		PaymentMethod: strings.TrimSpace(h.paymentMethod),
		Currency:      strings.ToUpper(strings.TrimSpace(h.currency)),
		Status:        StatusNormalized,
		Items:         make([]Item, 0, len(rows)),
		Total:         decimal.Zero,
	}
	if r.StoreName == "" {
		r.StoreName = "Unknown Store"
	}
	if r.Currency == "" {
		r.Currency = n.currency
	}

	if d, err := ParseDate(h.date); err == nil {
		r.PurchaseDate = d
	} else {
		now := n.timeSource.Now()
		r.PurchaseDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		r.Flags = addFlag(r.Flags, FlagNeedsReview)
	}

	for i, rw := range rows {
		item := n.buildItem(rw, i+1)
		if item.Unparsed() || item.HasFlag(FlagNeedsReview) {
			r.Flags = addFlag(r.Flags, FlagNeedsReview)
		}
		r.Items = append(r.Items, item)
	}

	if strings.TrimSpace(h.total) != "" {
		if stated, err := ParseAmount(h.total); err == nil {
			r.StatedTotal = &stated
		}
	}
	n.Retotal(r)

	return r, nil
}

// Retotal recomputes the receipt total from its parsed items and re-evaluates
// the header total check.
func (n *Normalizer) Retotal(r *Receipt) {
	total := decimal.Zero
	for _, item := range r.Items {
		if item.Unparsed() {
			continue
		}
		total = total.Add(item.FinalPrice)
	}
	r.Total = total

	flags := r.Flags[:0:0]
	for _, f := range r.Flags {
		if f != FlagTotalMismatch {
			flags = append(flags, f)
		}
	}
	r.Flags = flags
	if r.StatedTotal != nil && r.StatedTotal.Sub(total).Abs().GreaterThan(n.tolerance) {
		r.Flags = addFlag(r.Flags, FlagTotalMismatch)
	}
}

// buildItem types a row. Anything unusable yields an unparsed item carrying the raw text.
func (n *Normalizer) buildItem(rw row, line int) Item {
	raw := rw.raw
	if raw == "" {
		raw = strings.TrimSpace(strings.Join([]string{rw.description, rw.quantity, rw.unit, rw.unitPrice, rw.discount, rw.total}, " "))
	}
	unparsed := func() Item {
		desc := strings.TrimSpace(rw.description)
		if desc == "" {
			desc = raw
		}
		return Item{
			Line:        line,
			Description: desc,
			Quantity:    decimal.Zero,
			UnitPrice:   decimal.Zero,
			Discount:    decimal.Zero,
			FinalPrice:  decimal.Zero,
			Confidence:  rw.confidence,
			Flags:       []Flag{FlagUnparsed},
			Raw:         raw,
		}
	}

	desc := strings.TrimSpace(rw.description)
	if rw.unparsed || desc == "" {
		return unparsed()
	}

	qty := decimal.NewFromInt(1)
	if strings.TrimSpace(rw.quantity) != "" {
		q, err := ParseAmount(rw.quantity)
		if err != nil || !q.IsPositive() {
			return unparsed()
		}
		qty = q
	}

	discount := decimal.Zero
	if strings.TrimSpace(rw.discount) != "" {
		d, err := ParseAmount(rw.discount)
		if err != nil {
			return unparsed()
		}
		discount = d.Abs()
	}

	var (
		unitPrice decimal.Decimal
		stated    *decimal.Decimal
		hasUnit   bool
	)
	if strings.TrimSpace(rw.unitPrice) != "" {
		p, err := ParseAmount(rw.unitPrice)
		if err != nil || p.IsNegative() {
			return unparsed()
		}
		unitPrice, hasUnit = p, true
	}
	if strings.TrimSpace(rw.total) != "" {
		t, err := ParseAmount(rw.total)
		if err != nil {
			return unparsed()
		}
		stated = &t
	}
	if !hasUnit && stated == nil {
		return unparsed()
	}
	if !hasUnit {
		gross := *stated
		if !rw.grossTotal {
			gross = gross.Add(discount)
		}
		unitPrice = gross.DivRound(qty, 4)
	}

	item := Item{
		Line:        line,
		Description: desc,
		Quantity:    qty,
		Unit:        normalizeUnit(rw.unit),
		UnitPrice:   unitPrice,
		Discount:    discount,
		StatedTotal: stated,
		Confidence:  rw.confidence,
		VATRate:     strings.ToUpper(strings.TrimSpace(rw.vatRate)),
		Raw:         rw.raw,
	}
	if rw.expiresOn != "" {
		if d, err := ParseDate(rw.expiresOn); err == nil {
			item.ExpiresOn = &d
		}
	}

	computed := qty.Mul(unitPrice).Sub(discount).Round(2)
	item.FinalPrice = computed
	if stated != nil {
		expected := *stated
		if rw.grossTotal {
			expected = expected.Sub(discount)
		}
		if expected.Sub(computed).Abs().GreaterThan(n.tolerance) {
			item.FinalPrice = expected.Round(2)
			item.Flags = addFlag(item.Flags, FlagNeedsReview)
		}
	}
	if item.FinalPrice.IsNegative() {
		item.Flags = addFlag(item.Flags, FlagNeedsReview)
	}
	return item
}

// Recompute applies the item invariant to a corrected item, clearing review flags
func (n *Normalizer) Recompute(item *Item) error {
	if strings.TrimSpace(item.Description) == "" {
		return fmt.Errorf("description is required")
	}
	if !item.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be positive")
	}
	if item.UnitPrice.IsNegative() {
		return fmt.Errorf("unit price must not be negative")
	}
	item.Discount = item.Discount.Abs()
	item.Unit = normalizeUnit(item.Unit)
	item.FinalPrice = item.Quantity.Mul(item.UnitPrice).Sub(item.Discount).Round(2)
	item.StatedTotal = nil
	item.Flags = nil
	return nil
}

func normalizeUnit(unit string) string {
	return strings.TrimSuffix(category.Fold(unit), ".")
}

func fromFields(f *scanning.Fields) (header, []row) {
	h := header{
		storeName:     f.StoreName,
		storeAddress:  f.StoreAddress,
		date:          f.Date,
		total:         string(f.Total),
		currency:      f.Currency,
		paymentMethod: f.PaymentMethod,
	}
	rows := make([]row, 0, len(f.Items))
	for _, li := range f.Items {
		rw := row{
			description: li.Description,
			quantity:    string(li.Quantity),
			unit:        li.Unit,
			unitPrice:   string(li.UnitPrice),
			discount:    string(li.Discount),
			total:       string(li.Total),
			vatRate:     li.VATRate,
			expiresOn:   li.ExpiresOn,
			confidence:  li.Confidence,
		}
		if strings.TrimSpace(rw.description+rw.quantity+rw.unitPrice+rw.total) == "" {
			continue
		}
		rows = append(rows, rw)
	}
	return h, rows
}

var (
	num = `-?\d+(?:[ .]\d{3})*(?:[.,]\d+)?`

	// "Mleko 2 l x 3,99 7,98 A"
	itemWithTotal = regexp.MustCompile(`^(.+?)\s+(\d+(?:[.,]\d+)?)\s*(\p{L}+\.?)?\s*[x×*]\s*(` + num + `)\s+(` + num + `)\s*([A-Da-d])?$`)
	// "Mleko 2 x 3,99"
	itemNoTotal = regexp.MustCompile(`^(.+?)\s+(\d+(?:[.,]\d+)?)\s*(\p{L}+\.?)?\s*[x×*]\s*(` + num + `)\s*([A-Da-d])?$`)
	// "Chleb 4,50 A"
	itemPriceOnly = regexp.MustCompile(`^(.+?)\s+(-?\d+[.,]\d{2})\s*([A-Da-d])?$`)
	// a line that looks like "qty x price" but did not parse
	itemLike = regexp.MustCompile(`\s[x×*]\s`)

	lastNumber = regexp.MustCompile(num)

	totalPrefixes    = []string{"suma", "razem", "total", "do zaplaty", "naleznosc", "kwota"}
	discountPrefixes = []string{"rabat", "upust", "discount", "promocja", "obnizka"}
	// tax summaries and fiscal boilerplate; "suma ptu" must win over "suma"
	ignoredPrefixes = []string{"suma ptu", "ptu", "sprzedaz", "paragon fiskalny", "nip", "nr ", "kasjer", "kasa ", "vat", "receipt", "fiscal"}
)

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func detectCurrency(folded string) string {
	switch {
	case strings.Contains(folded, "pln") || strings.Contains(folded, "zl"):
		return "PLN"
	case strings.Contains(folded, "eur") || strings.Contains(folded, "€"):
		return "EUR"
	case strings.Contains(folded, "usd") || strings.Contains(folded, "$"):
		return "USD"
	}
	return ""
}

func detectPayment(folded string) string {
	switch {
	case strings.Contains(folded, "karta") || strings.Contains(folded, "card"):
		return "card"
	case strings.Contains(folded, "gotowka") || strings.Contains(folded, "cash"):
		return "cash"
	case strings.Contains(folded, "blik"):
		return "blik"
	}
	return ""
}

// parseText segments raw receipt text into a header and candidate rows.
// Header lines precede the first item; everything after the total line is footer.
func parseText(text string) (header, []row) {
	var (
		h         header
		rows      []row
		address   []string
		inItems   bool
		inFooter  bool
		foundDate bool
	)

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		folded := category.Fold(line)

		if !foundDate {
			if d, ok := findDate(line); ok {
				h.date = d.Format("2006-01-02")
				foundDate = true
				continue
			}
		}

		if inFooter {
			if h.paymentMethod == "" {
				h.paymentMethod = detectPayment(folded)
			}
			continue
		}

		if hasAnyPrefix(folded, ignoredPrefixes) {
			continue
		}

		if hasAnyPrefix(folded, totalPrefixes) {
			if m := lastNumber.FindAllString(line, -1); len(m) > 0 {
				h.total = m[len(m)-1]
			}
			if c := detectCurrency(folded); c != "" {
				h.currency = c
			}
			inFooter = true
			continue
		}

		if hasAnyPrefix(folded, discountPrefixes) {
			m := lastNumber.FindAllString(line, -1)
			if len(rows) > 0 && !rows[len(rows)-1].unparsed && len(m) > 0 {
				rows[len(rows)-1].discount = m[len(m)-1]
				rows[len(rows)-1].grossTotal = true
				rows[len(rows)-1].raw += "\n" + line
			} else {
				rows = append(rows, row{raw: line, unparsed: true})
			}
			continue
		}

		if rw, ok := parseItemLine(line); ok {
			inItems = true
			rows = append(rows, rw)
			continue
		}

		if inItems || itemLike.MatchString(line) {
			inItems = true
			rows = append(rows, row{raw: line, unparsed: true})
			continue
		}

		if h.storeName == "" {
			h.storeName = line
		} else {
			address = append(address, line)
		}
	}

	h.storeAddress = strings.Join(address, ", ")
	return h, rows
}

func parseItemLine(line string) (row, bool) {
	if m := itemWithTotal.FindStringSubmatch(line); m != nil {
		return row{description: m[1], quantity: m[2], unit: m[3], unitPrice: m[4], total: m[5], vatRate: m[6], raw: line}, true
	}
	if m := itemNoTotal.FindStringSubmatch(line); m != nil {
		return row{description: m[1], quantity: m[2], unit: m[3], unitPrice: m[4], vatRate: m[5], raw: line}, true
	}
	if m := itemPriceOnly.FindStringSubmatch(line); m != nil {
		return row{description: m[1], total: m[2], vatRate: m[3], raw: line}, true
	}
	return row{}, false
}
