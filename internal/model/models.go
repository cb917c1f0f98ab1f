// Package model defines shared data structures for the monitor service.
package model

import (
	"fmt"
	"strings"
	"time"
)

// SearchDefinition is one user-registered marketplace search. Every filter
// except MaxPrice is optional; an unset filter always passes.
type SearchDefinition struct {
	ID        string    `json:"id"`
	Keyword   string    `json:"keyword"`
	Brand     string    `json:"brand,omitempty"`
	Category  string    `json:"category,omitempty"`
	Size      string    `json:"size,omitempty"`
	MaxPrice  float64   `json:"maxPrice"`
	Channel   string    `json:"channel"` // destination chat identifier
	CreatedAt time.Time `json:"createdAt"`
}

// Validate rejects definitions that must never enter the registry.
func (s SearchDefinition) Validate() error {
	if strings.TrimSpace(s.Keyword) == "" && s.Brand == "" && s.Category == "" {
		return fmt.Errorf("search needs at least a keyword, brand or category")
	}
	if s.MaxPrice <= 0 {
		return fmt.Errorf("max price must be positive, got %.2f", s.MaxPrice)
	}
	if s.Channel == "" {
		return fmt.Errorf("destination channel is required")
	}
	return nil
}

// SearchText is the free-text query sent to the catalog API. Brand, category
// and size terms are folded in alongside the keyword so the upstream narrows
// results early; they are still applied individually as post-filters.
func (s SearchDefinition) SearchText() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{s.Keyword, s.Brand, s.Category, s.Size} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Listing is a normalised marketplace item. Optional fields the upstream
// omitted arrive already defaulted ("Unknown"/zero) from the catalog client,
// so downstream code never handles absence.
type Listing struct {
	ID           string
	Title        string
	Price        float64 // GBP
	Brand        string
	Size         string
	Seller       string
	SellerRating float64
	ImageURL     string
	URL          string
	CreatedAt    time.Time // zero when the upstream omitted it
}

// CostBreakdown is the derived buyer-side cost of a listing. Never persisted;
// recomputed on every notification.
type CostBreakdown struct {
	ItemPrice float64
	BuyerFee  float64
	Shipping  float64
	Total     float64
}

// Notification is the payload handed to the notification sink.
type Notification struct {
	SearchID string
	Channel  string
	Listing  Listing
	Cost     CostBreakdown
}
