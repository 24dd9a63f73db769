package api

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// User is the account returned by the auth endpoints
type User struct {
	ID               string            `json:"id"`
	Username         string            `json:"username"`
	Email            string            `json:"email"`
	NotificationTime *NotificationTime `json:"notification_time,omitempty"`
}

// NotificationTime is the daily alert time of a user
type NotificationTime struct {
	Hour   int `json:"hour" validate:"min=0,max=23"`
	Minute int `json:"minute" validate:"min=0,max=59"`
}

// AuthResponse is returned by login and signup
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

// SignupRequest registers a new account
type SignupRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Product is a tracked inventory item
type Product struct {
	ID          string `json:"_id"`
	UserID      string `json:"user_id"`
	ProductName string `json:"product_name"`
	ExpiryDate  string `json:"expiry_date"` // DD/MM/YYYY
	ImageURL    string `json:"image_url,omitempty"`
	Barcode     string `json:"barcode,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// ProductInput is the body of an add-item request
type ProductInput struct {
	ProductName string `json:"product_name" validate:"required"`
	ExpiryDate  string `json:"expiry_date" validate:"required,len=10"`
	ImageURL    string `json:"image_url,omitempty"`
	Barcode     string `json:"barcode,omitempty" validate:"omitempty,numeric,min=8,max=13"`
}

// Statistics aggregates a user's inventory
type Statistics struct {
	TotalItems          int            `json:"total_items"`
	ExpiringThisWeek    int            `json:"expiring_this_week"`
	ExpiredItems        int            `json:"expired_items"`
	ItemsAddedThisMonth int            `json:"items_added_this_month"`
	StatusBreakdown     map[string]int `json:"status_breakdown,omitempty"`
}

// AlertResponse reports an expiry alert dispatch
type AlertResponse struct {
	Message       string `json:"message"`
	ProductsCount int    `json:"products_count"`
}

// Barcode lookup sources.
const (
	SourceUserInventory   = "user_inventory"
	SourceOpenFoodFacts   = "openfoodfacts"
	SourceOpenBeautyFacts = "openbeautyfacts"
)

// BarcodeProduct is the result of a barcode lookup
type BarcodeProduct struct {
	ProductName string `json:"product_name"`
	Barcode     string `json:"barcode"`
	Source      string `json:"source"`
}

// SourceLabel returns a readable name for the lookup source
func (p *BarcodeProduct) SourceLabel() string {
	switch p.Source {
	case SourceOpenFoodFacts:
		return "Open Food Facts"
	case SourceOpenBeautyFacts:
		return "Open Beauty Facts"
	case SourceUserInventory:
		return "Your Inventory"
	default:
		return "Unknown"
	}
}

// UploadResult is what the OCR endpoint extracted from a product photo
type UploadResult struct {
	ImageURL         string `json:"image_url"`
	ExpiryDate       string `json:"expiry_date"`
	ExtractedText    string `json:"extracted_text"`
	ProductName      string `json:"product_name"`
	BestBeforeMonths Months `json:"best_before_months"`
}

// VoiceResult is the product parsed from a spoken sentence
type VoiceResult struct {
	ProductName string `json:"product_name"`
	ExpiryDate  string `json:"expiry_date"`
	Error       string `json:"error,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
	LLMContent  string `json:"llm_content,omitempty"`
}

// MessageResponse is the plain acknowledgement most mutations return
type MessageResponse struct {
	Message string `json:"message"`
}

// Months is a shelf life in months. The API sends it as a number or a numeric string.
type Months int

// UnmarshalJSON accepts 12, "12" and null
func (m *Months) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	s := strings.TrimSpace(strings.Trim(string(data), `"`))
	if s == "" {
		*m = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("parsing months %q: %w", s, err)
	}
	*m = Months(n)
	return nil
}
