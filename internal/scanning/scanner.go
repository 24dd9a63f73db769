// Package scanning reads product names and expiry dates off photos of product labels.
package scanning

import (
	"context"

	"github.com/zombor/expiryguard/internal/api"
)

// LabelData contains what could be read from a product label
type LabelData struct {
	ProductName      string     `json:"product_name"`
	ExpiryDate       string     `json:"expiry_date"` // DD/MM/YYYY, empty when none was found
	BestBeforeMonths api.Months `json:"best_before_months"`
	Text             string     `json:"text"`
	ImageURL         string     `json:"image_url,omitempty"`
}

// LabelReader defines the interface for label reading operations
type LabelReader interface {
	// ReadLabel analyzes a label photo and extracts product details
	ReadLabel(ctx context.Context, data []byte, contentType string) (*LabelData, error)
	// Close closes the reader and releases resources
	Close() error
}

// labelPrompt is the shared prompt used by all LLM providers for reading labels
const labelPrompt = `You are looking at a photo of a product or its packaging. Carefully read all printed text and extract the following information:

1. **Product Name**: The name of the product as printed on the front of the pack. Keep the brand if it is part of the name. Examples: "Semi Skimmed Milk", "Nivea Soft Cream".

2. **Expiry Date**: The date after which the product should not be used. Look for "EXP", "Use By", "Best Before" or a bare date near the batch code. Convert it to DD/MM/YYYY. If only a month and year are printed, use the last day of that month.

3. **Best Before Months**: Cosmetics often print an open jar symbol or text such as "12M" meaning the product is good for that many months after opening or manufacture. Return the number of months as an integer.

4. **Text**: All the text you can read on the label, one line per printed line.

Return ONLY valid JSON in this exact format:
{
  "product_name": "Product Name",
  "expiry_date": "DD/MM/YYYY",
  "best_before_months": 0,
  "text": "..."
}

Important:
- The expiry date must be in DD/MM/YYYY format
- best_before_months must be a number (not a string)
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// fillFromText completes fields the reader left empty with what ExtractFromText finds in
// the raw label text
func fillFromText(data *LabelData) {
	if data.Text == "" {
		return
	}
	extracted := ExtractFromText(data.Text)
	if data.ProductName == "" {
		data.ProductName = extracted.ProductName
	}
	if data.ExpiryDate == "" {
		data.ExpiryDate = extracted.ExpiryDate
	}
	if data.BestBeforeMonths == 0 {
		data.BestBeforeMonths = extracted.BestBeforeMonths
	}
}
