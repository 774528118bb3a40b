package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentworks/fulfillment/internal/receipts"
)

func sampleReceipt() *receipts.Receipt {
	lines := []receipts.Line{
		receipts.BuildLine("p1", "Rose", 3, 1250),
	}
	return &receipts.Receipt{
		SaleType:    "retail",
		PaymentType: "cash",
		Lines:       lines,
		TotalAmount: receipts.Total(lines),
		UserID:      "u42",
		CreatedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestIssueAndVerify(t *testing.T) {
	iss := NewIssuer("test-secret")
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tok, err := iss.Issue("sale-1", sampleReceipt(), at)
	require.NoError(t, err)

	p, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "sale-1", p.SaleID)
	assert.Equal(t, "u42", p.UserID)
	assert.True(t, p.TotalAmount.Equal(sampleReceipt().TotalAmount))
	assert.Equal(t, at, p.IssuedAt)
	require.Len(t, p.Lines, 1)
	assert.Equal(t, "Rose", p.Lines[0].PerfumeName)
}

func TestIssueIsDeterministic(t *testing.T) {
	iss := NewIssuer("test-secret")
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	a, err := iss.Issue("sale-1", sampleReceipt(), at)
	require.NoError(t, err)
	b, err := iss.Issue("sale-1", sampleReceipt(), at)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestVerifyRejectsTampering(t *testing.T) {
	iss := NewIssuer("test-secret")
	tok, err := iss.Issue("sale-1", sampleReceipt(), time.Now())
	require.NoError(t, err)

	// flip a byte inside the payload part
	parts := strings.SplitN(tok, ".", 2)
	body := []byte(parts[0])
	body[0] ^= 0x01
	_, err = iss.Verify(string(body) + "." + parts[1])
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, err := NewIssuer("secret-a").Issue("sale-1", sampleReceipt(), time.Now())
	require.NoError(t, err)

	_, err = NewIssuer("secret-b").Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	iss := NewIssuer("test-secret")
	for _, tok := range []string{"", "abc", "a.b.c", "!!!.###"} {
		_, err := iss.Verify(tok)
		assert.Error(t, err, "token %q", tok)
	}
}

func TestQRCode(t *testing.T) {
	iss := NewIssuer("test-secret")
	tok, err := iss.Issue("sale-1", sampleReceipt(), time.Now())
	require.NoError(t, err)

	qr, err := iss.QRCode(tok)
	require.NoError(t, err)
	assert.NotEmpty(t, qr)
}
