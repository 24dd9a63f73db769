package inventory

import (
	"time"

	"github.com/zombor/expiryguard/internal/api"
	"github.com/zombor/expiryguard/internal/expiry"
)

// CachedLookup is a barcode lookup result kept locally
type CachedLookup struct {
	Barcode     string    `json:"barcode"`
	ProductName string    `json:"product_name"`
	Source      string    `json:"source"`
	CachedAt    time.Time `json:"cached_at"`
}

// Product returns the lookup as the API would have returned it
func (c *CachedLookup) Product() *api.BarcodeProduct {
	return &api.BarcodeProduct{
		ProductName: c.ProductName,
		Barcode:     c.Barcode,
		Source:      c.Source,
	}
}

// Session is the persisted login
type Session struct {
	Token    string    `json:"token"`
	Username string    `json:"username"`
	SavedAt  time.Time `json:"saved_at"`
}

// Item is a product with its status worked out for a given day
type Item struct {
	api.Product
	Status   expiry.Status `json:"status"`
	DaysLeft int           `json:"days_left"`
	Alert    bool          `json:"alert"`
}

// Dashboard is the inventory overview
type Dashboard struct {
	Items     []Item
	Attention []Item // near or past expiry, soonest first
	Counts    map[expiry.Status]int
}
