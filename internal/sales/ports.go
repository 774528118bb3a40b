package sales

import (
	"context"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/scentworks/fulfillment/internal/auth"
	"github.com/scentworks/fulfillment/internal/catalogue"
	"github.com/scentworks/fulfillment/internal/receipts"
	"github.com/scentworks/fulfillment/internal/warehouse"
)

// Ledger is the catalogue side of a sale: atomic reserve, commit, release.
type Ledger interface {
	Reserve(ctx context.Context, saleID string, items []catalogue.RequestedItem) error
	Commit(ctx context.Context, saleID string) error
	Release(ctx context.Context, saleID string) error
	PriceItems(ctx context.Context, perfumeIDs []string) (map[string]catalogue.Pricing, error)
}

// Shipper is the warehouse collaborator: pack units, ship the package under
// the caller's policy.
type Shipper interface {
	ReceivePackage(ctx context.Context, caller auth.Caller, warehouseID, name, sender string, unitIDs []string) (*warehouse.Package, error)
	ShipPackages(ctx context.Context, caller auth.Caller, packageIDs []string) (*warehouse.ShipResult, error)
}

// ReceiptRecorder is the external receipt ledger.
type ReceiptRecorder interface {
	Record(ctx context.Context, caller auth.Caller, rc *receipts.Receipt) (*receipts.Receipt, error)
}

// TokenIssuer turns a recorded receipt into a redemption token.
type TokenIssuer interface {
	Issue(saleID string, rc *receipts.Receipt, issuedAt time.Time) (string, error)
	QRCode(token string) (string, error)
}

// SaleStore persists the sale state machine.
type SaleStore interface {
	Create(ctx context.Context, s *Sale) error
	SetStatus(ctx context.Context, saleID string, status SaleStatus) error
	Complete(ctx context.Context, saleID string, totalCents int) error
	Fail(ctx context.Context, saleID, reason string) error
	FindByExternalID(ctx context.Context, externalID string) (*Sale, error)
}

// Publisher matches the kafka producer's publish signature.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}
