package receipts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Line is one priced row of a receipt. Prices come from the catalogue
// ledger, never from the client.
type Line struct {
	PerfumeID   string          `json:"perfumeId"`
	PerfumeName string          `json:"perfumeName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

// Receipt is the flattened, priced snapshot of a fulfilled sale. Immutable
// once recorded by the ledger.
type Receipt struct {
	ID          string          `json:"id,omitempty"`
	SaleType    string          `json:"saleType"`
	PaymentType string          `json:"paymentType"`
	Lines       []Line          `json:"perfumeDetails"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	UserID      string          `json:"userId"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// PriceFromCents converts a ledger price into the receipt's currency unit.
func PriceFromCents(cents int) decimal.Decimal {
	return decimal.NewFromInt(int64(cents)).Div(decimal.NewFromInt(100))
}

// BuildLine prices one sale line and computes its total.
func BuildLine(perfumeID, perfumeName string, qty, unitPriceCents int) Line {
	unit := PriceFromCents(unitPriceCents)
	return Line{
		PerfumeID:   perfumeID,
		PerfumeName: perfumeName,
		Quantity:    qty,
		UnitPrice:   unit,
		LineTotal:   unit.Mul(decimal.NewFromInt(int64(qty))),
	}
}

// Total sums the line totals.
func Total(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.LineTotal)
	}
	return sum
}
