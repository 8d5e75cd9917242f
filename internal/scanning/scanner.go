package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Recognition is the output of a recognition engine. Exactly one shape is
// set: raw Text, or pre-segmented Fields.
type Recognition struct {
	Text   string  `json:"text,omitempty"`
	Fields *Fields `json:"fields,omitempty"`
}

// Empty reports whether the recognition carries nothing usable
func (r *Recognition) Empty() bool {
	return r == nil || (len(bytes.TrimSpace([]byte(r.Text))) == 0 && r.Fields == nil)
}

// Fields contains pre-segmented receipt data
type Fields struct {
	StoreName     string     `json:"store_name"`
	StoreAddress  string     `json:"store_address,omitempty"`
	Date          string     `json:"date"`
	Total         Number     `json:"total"`
	Currency      string     `json:"currency,omitempty"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	Items         []LineItem `json:"items"`
}

// LineItem is one recognized product line. Numbers stay textual so the
// normalizer applies a single locale policy to both shapes.
type LineItem struct {
	Description string   `json:"description"`
	Quantity    Number   `json:"quantity"`
	Unit        string   `json:"unit,omitempty"`
	UnitPrice   Number   `json:"unit_price"`
	Discount    Number   `json:"discount,omitempty"`
	Total       Number   `json:"total"`
	VATRate     string   `json:"vat_rate,omitempty"`
	ExpiresOn   string   `json:"expires_on,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// Number is a JSON value that may arrive as a number, a string or null
type Number string

// UnmarshalJSON accepts numbers, strings and null
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Number(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("invalid number %s", data)
	}
	*n = Number(data)
	return nil
}

// RecognitionError reports that the engine could not produce output for a file
type RecognitionError struct {
	Reason string
	Err    error
}

func (e *RecognitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("recognition failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("recognition failed: %s", e.Reason)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}

// ErrUnsupportedFormat is returned for content types no engine accepts
var ErrUnsupportedFormat = errors.New("unsupported format")

// Scanner defines the interface for receipt recognition engines
type Scanner interface {
	// Recognize turns an image or PDF into text or segmented fields
	Recognize(ctx context.Context, data []byte, contentType string) (*Recognition, error)
	// Close closes the scanner and releases resources
	Close() error
}
