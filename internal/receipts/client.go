package receipts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scentworks/fulfillment/internal/auth"
	"github.com/scentworks/fulfillment/internal/errs"
)

// Client records receipts with the external receipt ledger. Calls carry a
// bounded timeout and an internal service token; a tripping breaker maps to
// DownstreamUnavailable like any other hard failure of the step.
type Client struct {
	baseURL string
	secret  string
	service string
	timeout time.Duration
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewClient(baseURL, secret, service string, timeout time.Duration, logger *slog.Logger) *Client {
	settings := gobreaker.Settings{
		Name:    "receipt-ledger",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		service: service,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Record posts the assembled receipt and returns the ledger's copy.
// At-most-one attempt; no retry.
func (c *Client) Record(ctx context.Context, caller auth.Caller, rc *Receipt) (*Receipt, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		return c.record(ctx, caller, rc)
	})
	if err != nil {
		if e, ok := errs.As(err); ok {
			return nil, e
		}
		return nil, errs.DownstreamUnavailable("receipt ledger", err)
	}
	return out.(*Receipt), nil
}

func (c *Client) record(ctx context.Context, caller auth.Caller, rc *Receipt) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(rc)
	if err != nil {
		return nil, errs.Internal(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/receipts", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Internal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	tok, err := auth.Mint(c.secret, caller, c.timeout+time.Minute)
	if err != nil {
		return nil, errs.Internal(err)
	}
	req.Header.Set(auth.HeaderInternalToken, tok)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("receipt ledger returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, errs.InvalidRequest(fmt.Sprintf("receipt ledger rejected the payload (%d)", resp.StatusCode))
	}

	var recorded Receipt
	if err := json.NewDecoder(resp.Body).Decode(&recorded); err != nil {
		return nil, err
	}
	return &recorded, nil
}
