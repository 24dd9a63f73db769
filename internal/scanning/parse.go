package scanning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zombor/expiryguard/internal/expiry"
)

// parseLabelJSON parses the JSON answer of an LLM reader
func parseLabelJSON(text string) (*LabelData, error) {
	// Remove markdown code blocks if present
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var data LabelData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.ProductName = strings.TrimSpace(data.ProductName)
	data.ExpiryDate = normalizeDate(data.ExpiryDate)
	if data.BestBeforeMonths < 0 {
		data.BestBeforeMonths = 0
	}
	fillFromText(&data)

	return &data, nil
}

// normalizeDate rewrites a model supplied date as DD/MM/YYYY. A date that cannot be
// understood is dropped rather than guessed.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || expiry.IsValidDate(s) {
		return s
	}
	date, ok := dateFromToken(s)
	if !ok {
		return ""
	}
	return date
}
