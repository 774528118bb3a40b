package events

import (
	"encoding/json"
	"time"
)

const (
	TopicSaleCompleted  = "sale.completed"
	TopicSaleFailed     = "sale.failed"
	TopicPackageShipped = "warehouse.package.shipped"
	TopicBatchCompleted = "production.batch.completed"
)

const (
	EventSaleCompleted  = "SaleCompleted"
	EventSaleFailed     = "SaleFailed"
	EventPackageShipped = "PackageShipped"
	EventBatchCompleted = "ProductionBatchCompleted"
)

// Envelope is the versioned wrapper every event travels in.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually sale_id
	Payload       json.RawMessage `json:"payload"`
}

// PartitionKey keeps all events of one sale on one partition so ordering is
// preserved per sale.
func PartitionKey(saleID string) []byte { return []byte(saleID) }

type SaleLine struct {
	PerfumeID string `json:"perfume_id"`
	Qty       int    `json:"qty"`
}

type SaleCompletedPayload struct {
	SaleID     string     `json:"sale_id"`
	UserID     string     `json:"user_id"`
	Items      []SaleLine `json:"items"`
	TotalCents int        `json:"total_cents"`
}

type SaleFailedPayload struct {
	SaleID string `json:"sale_id"`
	UserID string `json:"user_id"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type PackageShippedPayload struct {
	PackageIDs     []string `json:"package_ids"`
	WarehouseID    string   `json:"warehouse_id,omitempty"`
	PackageCount   int      `json:"package_count"`
	Strategy       string   `json:"strategy"`
	ProcessingTime string   `json:"processing_time"`
}

type BatchCompletedPayload struct {
	BatchID   string `json:"batch_id"`
	PerfumeID string `json:"perfume_id"`
	Quantity  int    `json:"quantity"`
}
