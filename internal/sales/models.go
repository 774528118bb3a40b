package sales

import (
	"time"

	"github.com/scentworks/fulfillment/internal/catalogue"
)

// SaleStatus tracks a sale through the fulfillment chain. Each forward edge
// has a compensator on failure: a reservation is released, a failed sale is
// marked with the step that broke. Shipped packages stay shipped for audit.
type SaleStatus string

const (
	SalePending   SaleStatus = "PENDING"
	SaleReserved  SaleStatus = "RESERVED"
	SaleShipped   SaleStatus = "SHIPPED"
	SaleRecorded  SaleStatus = "RECORDED"
	SaleCompleted SaleStatus = "COMPLETED"
	SaleFailed    SaleStatus = "FAILED"
)

type Sale struct {
	ID            string     `json:"id"`
	ExternalID    string     `json:"externalId,omitempty"`
	UserID        string     `json:"userId"`
	Status        SaleStatus `json:"status"`
	TotalCents    int        `json:"totalCents"`
	FailureReason string     `json:"failureReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// SellRequest is the orchestration input. ExternalID is optional and dedupes
// retried submissions. SaleType/PaymentType flow into the receipt.
type SellRequest struct {
	ExternalID  string                    `json:"external_id,omitempty"`
	UserID      string                    `json:"userId"`
	Items       []catalogue.RequestedItem `json:"perfumes"`
	SaleType    string                    `json:"saleType,omitempty"`
	PaymentType string                    `json:"paymentType,omitempty"`
}

// SellResult is what the sale endpoint returns. Message is set on failure so
// a UI can tell "insufficient stock" from "service unreachable".
type SellResult struct {
	Success    bool   `json:"success"`
	SaleID     string `json:"saleId,omitempty"`
	Message    string `json:"message,omitempty"`
	QRCode     string `json:"qrCode,omitempty"`
	Token      string `json:"token,omitempty"`
	TotalCents int    `json:"totalCents,omitempty"`
	Idempotent bool   `json:"idempotent,omitempty"`
}
