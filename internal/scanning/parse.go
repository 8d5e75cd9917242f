package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// receiptScanPrompt is the shared prompt used by all LLM providers for scanning receipts
const receiptScanPrompt = `You are reading a grocery receipt, most likely Polish. Transcribe it into structured data. Do not compute or correct anything: copy numbers exactly as printed, keeping the decimal comma if the receipt uses one.

Extract:
1. **store_name**: the merchant name at the top of the receipt.
2. **store_address**: the street and city printed under the name, if any.
3. **date**: the purchase date as printed (prefer YYYY-MM-DD if unambiguous).
4. **total**: the amount after "SUMA", "RAZEM" or "DO ZAPŁATY".
5. **currency**: the currency code, e.g. "PLN".
6. **payment_method**: "card", "cash" or "blik" if stated.
7. **items**: one entry per product line, in printed order:
   - "description": the product name
   - "quantity": the quantity (may be fractional for weighed goods)
   - "unit": the unit if printed ("szt", "kg", "l", "opak")
   - "unit_price": the price per unit
   - "discount": any discount ("RABAT", "UPUST") printed for this line, as a positive number
   - "total": the line value after discount
   - "vat_rate": the PTU letter printed after the line value (A, B, C, D)

Return ONLY valid JSON in this exact format:
{
  "store_name": "",
  "store_address": "",
  "date": "YYYY-MM-DD",
  "total": "0,00",
  "currency": "PLN",
  "payment_method": "",
  "items": [
    {"description": "", "quantity": "1", "unit": "", "unit_price": "0,00", "discount": "", "total": "0,00", "vat_rate": ""}
  ]
}

Important:
- If you cannot read a field, use an empty string for it
- Keep lines you cannot fully read, with whatever fields you can read
- Do not include tax summary lines (PTU, SPRZEDAŻ OPODATKOWANA) as items
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// parseRecognitionJSON extracts the segmented fields from an LLM response.
// A response with no JSON object is passed on as raw receipt text.
func parseRecognitionJSON(text string) (*Recognition, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if text == "" {
		return nil, &RecognitionError{Reason: "empty response"}
	}

	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")
	if startIdx == -1 || endIdx < startIdx {
		return &Recognition{Text: text}, nil
	}

	var fields Fields
	if err := json.Unmarshal([]byte(text[startIdx:endIdx+1]), &fields); err != nil {
		return nil, &RecognitionError{Reason: "malformed response", Err: fmt.Errorf("unmarshaling json: %w", err)}
	}

	fields.StoreName = strings.TrimSpace(fields.StoreName)
	fields.Date = strings.TrimSpace(fields.Date)
	return &Recognition{Fields: &fields}, nil
}
