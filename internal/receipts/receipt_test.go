package receipts

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPriceFromCents(t *testing.T) {
	assert.True(t, decimal.RequireFromString("12.5").Equal(PriceFromCents(1250)))
	assert.True(t, decimal.RequireFromString("0.01").Equal(PriceFromCents(1)))
	assert.True(t, decimal.Zero.Equal(PriceFromCents(0)))
}

func TestBuildLine(t *testing.T) {
	l := BuildLine("p1", "Rose", 3, 1250)
	assert.Equal(t, 3, l.Quantity)
	assert.True(t, decimal.RequireFromString("12.5").Equal(l.UnitPrice))
	assert.True(t, decimal.RequireFromString("37.5").Equal(l.LineTotal))
}

func TestTotal(t *testing.T) {
	lines := []Line{
		BuildLine("p1", "Rose", 3, 1250),
		BuildLine("p2", "Oud", 1, 3000),
	}
	assert.True(t, decimal.RequireFromString("67.5").Equal(Total(lines)))
	assert.True(t, decimal.Zero.Equal(Total(nil)))
}
