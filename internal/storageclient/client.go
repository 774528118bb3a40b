package storageclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/scentworks/fulfillment/internal/auth"
	"github.com/scentworks/fulfillment/internal/errs"
	"github.com/scentworks/fulfillment/internal/warehouse"
)

// Client talks to the storage service's package endpoints. The storage side
// derives the shipment policy from the role inside the internal token, so
// the caller identity travels with every request.
type Client struct {
	baseURL string
	secret  string
	timeout time.Duration
	http    *http.Client
}

func New(baseURL, secret string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
	}
}

type receiveReq struct {
	WarehouseID   string   `json:"warehouseId"`
	Name          string   `json:"name"`
	SenderAddress string   `json:"senderAddress"`
	PerfumeIDs    []string `json:"perfumeIds"`
}

type shipReq struct {
	PackageIDs []string `json:"packageIds"`
}

type shipResp struct {
	PackageCount   int    `json:"packageCount"`
	ProcessingTime string `json:"processingTime"`
	Strategy       string `json:"strategy"`
}

func (c *Client) ReceivePackage(ctx context.Context, caller auth.Caller, warehouseID, name, sender string, unitIDs []string) (*warehouse.Package, error) {
	var pkg warehouse.Package
	err := c.post(ctx, caller, "/storage/packages", receiveReq{
		WarehouseID:   warehouseID,
		Name:          name,
		SenderAddress: sender,
		PerfumeIDs:    unitIDs,
	}, &pkg)
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (c *Client) ShipPackages(ctx context.Context, caller auth.Caller, packageIDs []string) (*warehouse.ShipResult, error) {
	var out shipResp
	if err := c.post(ctx, caller, "/storage/ship", shipReq{PackageIDs: packageIDs}, &out); err != nil {
		return nil, err
	}
	d, err := time.ParseDuration(out.ProcessingTime)
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("bad processing time %q: %w", out.ProcessingTime, err))
	}
	return &warehouse.ShipResult{
		PackageCount:   out.PackageCount,
		ProcessingTime: d,
		Strategy:       out.Strategy,
	}, nil
}

func (c *Client) post(ctx context.Context, caller auth.Caller, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return errs.Internal(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errs.Internal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	tok, err := auth.Mint(c.secret, caller, c.timeout+time.Minute)
	if err != nil {
		return errs.Internal(err)
	}
	req.Header.Set(auth.HeaderInternalToken, tok)

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.DownstreamUnavailable("storage service", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// The storage service answers with the typed error body; surface it
		// with the original code so the orchestrator can branch.
		var e errs.Error
		if decodeErr := json.NewDecoder(resp.Body).Decode(&e); decodeErr == nil && e.Code != "" {
			e.HTTPStatus = resp.StatusCode
			return &e
		}
		if resp.StatusCode >= 500 {
			return errs.DownstreamUnavailable("storage service", fmt.Errorf("status %d", resp.StatusCode))
		}
		return errs.InvalidRequest(fmt.Sprintf("storage service rejected the request (%d)", resp.StatusCode))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
