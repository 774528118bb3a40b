package warehouse

import "time"

// Warehouse is a capacity-bounded container of packages. MaxPackages is
// fixed at creation; there is no resize operation.
type Warehouse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	MaxPackages int       `json:"maxPackages"`
	Packages    []Package `json:"packages,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Package groups the perfume units of one shipment. Shipped packages are
// retained for audit.
type Package struct {
	ID            string     `json:"id"`
	WarehouseID   string     `json:"warehouseId"`
	Name          string     `json:"name"`
	SenderAddress string     `json:"senderAddress"`
	UnitIDs       []string   `json:"perfumeIds"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	ShippedAt     *time.Time `json:"shippedAt,omitempty"`
}

type Status string

const (
	StatusPacked  Status = "PACKED"
	StatusShipped Status = "SHIPPED"
)

var validNext = map[Status]map[Status]bool{
	StatusPacked:  {StatusShipped: true},
	StatusShipped: {},
}

// CanTransition enforces PACKED -> SHIPPED and nothing else.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// ShipResult is what a batch transition reports back to the caller.
type ShipResult struct {
	PackageCount   int           `json:"packageCount"`
	ProcessingTime time.Duration `json:"processingTime"`
	Strategy       string        `json:"strategy"`
}
