package catalogue

import "time"

// Item is one row per distinct perfume. Quantity is mutated only through
// Reserve/Release/Replenish, never directly.
type Item struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	PerfumeName string    `json:"perfumeName"`
	Quantity    int       `json:"quantity"`
	PriceCents  int       `json:"priceCents"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RequestedItem is one line of a sale request.
type RequestedItem struct {
	PerfumeID string `json:"perfumeId"`
	Quantity  int    `json:"quantity"`
}

// Pricing carries the metadata the orchestrator needs to build a receipt
// line without trusting client-supplied prices.
type Pricing struct {
	PerfumeID   string
	PerfumeName string
	PriceCents  int
}
