package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/scentworks/fulfillment/internal/receipts"
)

var ErrInvalidToken = errors.New("redemption token failed verification")

// Payload is what a redemption token encodes. IssuedAt plus the keyed
// signature make the token verifiable by whoever redeems it.
type Payload struct {
	SaleID      string          `json:"sale_id"`
	UserID      string          `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Lines       []receipts.Line `json:"perfume_details"`
	IssuedAt    time.Time       `json:"issued_at"`
}

// Issuer turns a recorded receipt into a signed, scannable token.
type Issuer struct {
	secret []byte
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

// Issue encodes the receipt into "base64(payload).base64(mac)". The encoding
// is deterministic for a fixed receipt and issue time.
func (i *Issuer) Issue(saleID string, rc *receipts.Receipt, issuedAt time.Time) (string, error) {
	p := Payload{
		SaleID:      saleID,
		UserID:      rc.UserID,
		TotalAmount: rc.TotalAmount,
		Lines:       rc.Lines,
		IssuedAt:    issuedAt.UTC(),
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(body) + "." + i.sign(body), nil
}

// Verify checks the signature and returns the decoded payload.
func (i *Issuer) Verify(token string) (*Payload, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, ErrInvalidToken
	}
	body, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal([]byte(i.sign(body)), []byte(parts[1])) {
		return nil, ErrInvalidToken
	}
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode token payload: %w", err)
	}
	return &p, nil
}

// QRCode renders the token as a PNG, base64-encoded for transport in a JSON
// response.
func (i *Issuer) QRCode(token string) (string, error) {
	png, err := qrcode.Encode(token, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

func (i *Issuer) sign(body []byte) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write(body)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
