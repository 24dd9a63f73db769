package barcode

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidBarcode is returned for manual input that is not an 8 to 13 digit code
var ErrInvalidBarcode = errors.New("invalid barcode: expected 8 to 13 digits")

// ManualEntryHint is shown to the user when a typed barcode is rejected
const ManualEntryHint = "Please enter a valid 8-13 digit barcode."

var manualCodePattern = regexp.MustCompile(`^\d{8,13}$`)

// ParseManualCode validates a typed barcode and returns it trimmed
func ParseManualCode(input string) (string, error) {
	code := strings.TrimSpace(input)
	if !manualCodePattern.MatchString(code) {
		return "", ErrInvalidBarcode
	}
	return code, nil
}
