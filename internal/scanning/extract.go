package scanning

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/zombor/expiryguard/internal/api"
	"github.com/zombor/expiryguard/internal/expiry"
)

var (
	bestBeforePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:best before|bbe|bb)\s*(?:date)?\s*[:\-]?\s*(\d+)\s*(?:months?|mon|m)`),
		regexp.MustCompile(`(?i)(\d+)\s*(?:months?|mon|m)\s*(?:best before|bbe|bb)`),
		regexp.MustCompile(`(?i)(?:use within|use by|consume within)\s*(\d+)\s*(?:months?|mon|m)`),
	}

	// expiryPatterns run in order; the first token that makes a real date wins
	expiryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:expiry|expires|expire|exp|best before|use by)\s*[:\-]?\s*(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`),
		regexp.MustCompile(`\b(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{4})\b`),
		regexp.MustCompile(`\b(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2})\b`),
		regexp.MustCompile(`\b(\d{1,2}[/\-.]\d{4})\b`),
		regexp.MustCompile(`\b(\d{1,2}[/\-.]\d{2})\b`),
		regexp.MustCompile(`\b(\d{4})\b`),
	}

	fullDatePattern = regexp.MustCompile(`\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}`)
	separators      = regexp.MustCompile(`[/\-.]`)
	labelWords      = regexp.MustCompile(`(?i)\b(?:exp|expiry|expires|best|before|use|by)\b`)
	digitsOnly      = regexp.MustCompile(`^\d+$`)
)

// ExtractFromText pulls a product name, an expiry date and a best-before period out of raw
// OCR text. Fields that cannot be found are left empty.
func ExtractFromText(text string) LabelData {
	text = norm.NFKC.String(strings.ReplaceAll(text, "\r\n", "\n"))

	data := LabelData{Text: text}
	data.BestBeforeMonths = extractMonths(text)
	data.ExpiryDate = extractExpiry(text)
	data.ProductName = extractProductName(text)
	return data
}

func extractMonths(text string) api.Months {
	for _, re := range bestBeforePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			continue
		}
		return api.Months(n)
	}
	return 0
}

func extractExpiry(text string) string {
	for _, re := range expiryPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if date, ok := dateFromToken(m[1]); ok {
				return date
			}
		}
	}
	return ""
}

func extractProductName(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		n := utf8.RuneCountInString(line)
		if n <= 2 || n >= 60 {
			continue
		}
		if fullDatePattern.MatchString(line) || labelWords.MatchString(line) || digitsOnly.MatchString(line) {
			continue
		}
		return line
	}
	return ""
}

// dateFromToken turns a printed date into DD/MM/YYYY. It understands day/month/year with a
// two or four digit year (falling back to month/day/year), ISO year-month-day, month/year
// (the last day of that month) and a bare year (31 December).
func dateFromToken(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	parts := separators.Split(token, -1)
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", false
		}
		nums[i] = n
	}

	switch len(parts) {
	case 3:
		if len(parts[0]) == 4 {
			return formatDate(nums[2], nums[1], nums[0])
		}
		year := nums[2]
		if len(parts[2]) == 2 {
			year += 2000
		} else if len(parts[2]) != 4 {
			return "", false
		}
		if date, ok := formatDate(nums[0], nums[1], year); ok {
			return date, true
		}
		return formatDate(nums[1], nums[0], year)
	case 2:
		month, year := nums[0], nums[1]
		if len(parts[1]) == 2 {
			year += 2000
		} else if len(parts[1]) != 4 {
			return "", false
		}
		if month < 1 || month > 12 || year < 2000 || year > 2100 {
			return "", false
		}
		return formatDate(lastDayOfMonth(year, month), month, year)
	case 1:
		if len(parts[0]) != 4 || nums[0] < 2000 || nums[0] > 2100 {
			return "", false
		}
		return formatDate(31, 12, nums[0])
	}
	return "", false
}

func formatDate(day, month, year int) (string, bool) {
	date := fmt.Sprintf("%02d/%02d/%04d", day, month, year)
	if !expiry.IsValidDate(date) {
		return "", false
	}
	return date, true
}

func lastDayOfMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
