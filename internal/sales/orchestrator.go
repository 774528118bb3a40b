package sales

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/scentworks/fulfillment/internal/auth"
	"github.com/scentworks/fulfillment/internal/catalogue"
	"github.com/scentworks/fulfillment/internal/errs"
	"github.com/scentworks/fulfillment/internal/events"
	"github.com/scentworks/fulfillment/internal/kafka"
	"github.com/scentworks/fulfillment/internal/receipts"
	"github.com/scentworks/fulfillment/internal/redisx"
)

// Orchestrator drives the end-to-end sell operation across the catalogue
// ledger, the warehouse collaborator and the external receipt ledger. The
// sale is a persisted state machine: RESERVED -> SHIPPED -> RECORDED ->
// COMPLETED, with the reservation released on any downstream failure.
type Orchestrator struct {
	Ledger            Ledger
	Shipper           Shipper
	Receipts          ReceiptRecorder
	Tokens            TokenIssuer
	Sales             SaleStore
	Redis             *redis.Client
	CompletedProducer Publisher // publishes sale.completed
	FailedProducer    Publisher // publishes sale.failed
	ServiceName       string
	WarehouseID       string
	Logger            *slog.Logger
	Now               func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

// Sell runs the fixed fulfillment sequence and stops at the first failure.
// State already committed by earlier steps is compensated where a
// compensator exists: the reservation is released; shipped packages remain
// shipped and the sale row records why.
func (o *Orchestrator) Sell(ctx context.Context, caller auth.Caller, req SellRequest) (*SellResult, error) {
	if err := validate(req); err != nil {
		return fail(err), err
	}

	// Retried submission with the same external id returns the original
	// outcome instead of selling twice.
	if req.ExternalID != "" {
		if res, ok := o.shortCircuit(ctx, req.ExternalID); ok {
			return res, nil
		}
	}

	sale := &Sale{
		ID:         uuid.NewString(),
		ExternalID: req.ExternalID,
		UserID:     req.UserID,
		Status:     SalePending,
	}
	if err := o.Sales.Create(ctx, sale); err != nil {
		return fail(err), err
	}

	// Step 2+7 of the naive flow collapse into one atomic reserve: the
	// availability check and the decrement happen under a row lock, so two
	// racing sales for the last unit cannot both pass.
	if err := o.Ledger.Reserve(ctx, sale.ID, req.Items); err != nil {
		o.markFailed(ctx, sale, err)
		return fail(err), err
	}
	o.setStatus(ctx, sale, SaleReserved)

	// One unit reference per unit sold; minted per sale, so concurrent
	// sales can never share a reference.
	unitIDs := expandUnits(req.Items)

	res, err := o.ship(ctx, caller, sale, unitIDs)
	if err != nil {
		o.compensate(ctx, sale, err)
		return fail(err), err
	}
	o.setStatus(ctx, sale, SaleShipped)

	rc, totalCents, err := o.buildReceipt(ctx, caller, req)
	if err != nil {
		o.compensate(ctx, sale, err)
		return fail(err), err
	}
	recorded, err := o.Receipts.Record(ctx, caller, rc)
	if err != nil {
		o.compensate(ctx, sale, err)
		return fail(err), err
	}
	o.setStatus(ctx, sale, SaleRecorded)

	tok, err := o.Tokens.Issue(sale.ID, recorded, o.now())
	if err != nil {
		err = errs.Internal(err)
		o.compensate(ctx, sale, err)
		return fail(err), err
	}
	qr, err := o.Tokens.QRCode(tok)
	if err != nil {
		err = errs.Internal(err)
		o.compensate(ctx, sale, err)
		return fail(err), err
	}

	if err := o.Ledger.Commit(ctx, sale.ID); err != nil {
		o.compensate(ctx, sale, err)
		return fail(err), err
	}
	if err := o.Sales.Complete(ctx, sale.ID, totalCents); err != nil {
		return fail(err), err
	}

	o.cacheStatus(ctx, sale.ID, SaleCompleted)
	o.rememberExternalID(ctx, req.ExternalID, sale.ID)
	o.publishCompleted(ctx, sale.ID, req, totalCents)
	if o.Logger != nil {
		o.Logger.Info("sale completed",
			"sale_id", sale.ID, "user_id", req.UserID,
			"total_cents", totalCents, "packages", res.PackageCount, "strategy", res.Strategy)
	}

	return &SellResult{
		Success:    true,
		SaleID:     sale.ID,
		Token:      tok,
		QRCode:     qr,
		TotalCents: totalCents,
	}, nil
}

func validate(req SellRequest) error {
	if req.UserID == "" {
		return errs.InvalidRequest("userId is required")
	}
	if len(req.Items) == 0 {
		return errs.InvalidRequest("a sale needs at least one item")
	}
	for _, it := range req.Items {
		if it.PerfumeID == "" {
			return errs.InvalidRequest("every item needs a perfumeId")
		}
		if it.Quantity <= 0 {
			return errs.InvalidRequest("every quantity must be positive")
		}
	}
	return nil
}

func expandUnits(items []catalogue.RequestedItem) []string {
	var out []string
	for _, it := range items {
		for i := 0; i < it.Quantity; i++ {
			out = append(out, it.PerfumeID+":"+uuid.NewString())
		}
	}
	return out
}

func (o *Orchestrator) ship(ctx context.Context, caller auth.Caller, sale *Sale, unitIDs []string) (*ShipOutcome, error) {
	pkg, err := o.Shipper.ReceivePackage(ctx, caller, o.WarehouseID,
		"sale-"+sale.ID, "fulfillment-center", unitIDs)
	if err != nil {
		return nil, err
	}
	res, err := o.Shipper.ShipPackages(ctx, caller, []string{pkg.ID})
	if err != nil {
		return nil, err
	}
	return &ShipOutcome{PackageID: pkg.ID, PackageCount: res.PackageCount, Strategy: res.Strategy}, nil
}

// ShipOutcome is the slice of the warehouse result the orchestrator keeps.
type ShipOutcome struct {
	PackageID    string
	PackageCount int
	Strategy     string
}

func (o *Orchestrator) buildReceipt(ctx context.Context, caller auth.Caller, req SellRequest) (*receipts.Receipt, int, error) {
	ids := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.PerfumeID)
	}
	pricing, err := o.Ledger.PriceItems(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	lines := make([]receipts.Line, 0, len(req.Items))
	totalCents := 0
	for _, it := range req.Items {
		p := pricing[it.PerfumeID]
		lines = append(lines, receipts.BuildLine(p.PerfumeID, p.PerfumeName, it.Quantity, p.PriceCents))
		totalCents += p.PriceCents * it.Quantity
	}

	saleType := req.SaleType
	if saleType == "" {
		saleType = "retail"
	}
	paymentType := req.PaymentType
	if paymentType == "" {
		paymentType = "cash"
	}
	return &receipts.Receipt{
		SaleType:    saleType,
		PaymentType: paymentType,
		Lines:       lines,
		TotalAmount: receipts.Total(lines),
		UserID:      req.UserID,
		CreatedAt:   o.now(),
	}, totalCents, nil
}

// compensate releases the reservation and records the failing step. No
// un-ship: a physically shipped package cannot be recalled, so it stays
// SHIPPED and the sale row carries the reason.
func (o *Orchestrator) compensate(ctx context.Context, sale *Sale, cause error) {
	if err := o.Ledger.Release(ctx, sale.ID); err != nil && o.Logger != nil {
		o.Logger.Error("reservation release failed", "sale_id", sale.ID, "error", err)
	}
	o.markFailed(ctx, sale, cause)
}

func (o *Orchestrator) markFailed(ctx context.Context, sale *Sale, cause error) {
	e := errs.From(cause)
	if err := o.Sales.Fail(ctx, sale.ID, e.Code+": "+e.Message); err != nil && o.Logger != nil {
		o.Logger.Error("sale status update failed", "sale_id", sale.ID, "error", err)
	}
	o.cacheStatus(ctx, sale.ID, SaleFailed)
	o.publishFailed(ctx, sale.ID, sale.UserID, e)
}

func (o *Orchestrator) setStatus(ctx context.Context, sale *Sale, status SaleStatus) {
	sale.Status = status
	if err := o.Sales.SetStatus(ctx, sale.ID, status); err != nil && o.Logger != nil {
		o.Logger.Error("sale status update failed", "sale_id", sale.ID, "error", err)
	}
	o.cacheStatus(ctx, sale.ID, status)
}

func (o *Orchestrator) shortCircuit(ctx context.Context, externalID string) (*SellResult, bool) {
	existing, err := o.Sales.FindByExternalID(ctx, externalID)
	if err != nil || existing == nil {
		return nil, false
	}
	res := &SellResult{
		SaleID:     existing.ID,
		Idempotent: true,
		TotalCents: existing.TotalCents,
	}
	if existing.Status == SaleCompleted {
		res.Success = true
	} else {
		res.Message = string(existing.Status)
	}
	return res, true
}

func (o *Orchestrator) cacheStatus(ctx context.Context, saleID string, status SaleStatus) {
	if o.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeySaleStatus, saleID)
	_ = o.Redis.Set(ctx, key, fmt.Sprintf(`{"status":%q}`, status), redisx.TTLStatusCache).Err()
}

func (o *Orchestrator) rememberExternalID(ctx context.Context, externalID, saleID string) {
	if o.Redis == nil || externalID == "" {
		return
	}
	key := fmt.Sprintf(redisx.KeyIdemSale, externalID)
	_ = o.Redis.Set(ctx, key, saleID, redisx.TTLIdempotency).Err()
}

func (o *Orchestrator) publishCompleted(ctx context.Context, saleID string, req SellRequest, totalCents int) {
	if o.CompletedProducer == nil {
		return
	}
	lines := make([]events.SaleLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, events.SaleLine{PerfumeID: it.PerfumeID, Qty: it.Quantity})
	}
	ev := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     events.EventSaleCompleted,
		EventVersion:  1,
		OccurredAt:    o.now(),
		Producer:      o.ServiceName,
		CorrelationID: saleID,
		Payload: kafka.MustMarshal(events.SaleCompletedPayload{
			SaleID: saleID, UserID: req.UserID, Items: lines, TotalCents: totalCents,
		}),
	}
	o.CompletedProducer.Publish(events.PartitionKey(saleID), kafka.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(events.EventSaleCompleted)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (o *Orchestrator) publishFailed(ctx context.Context, saleID, userID string, e *errs.Error) {
	if o.FailedProducer == nil {
		return
	}
	ev := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     events.EventSaleFailed,
		EventVersion:  1,
		OccurredAt:    o.now(),
		Producer:      o.ServiceName,
		CorrelationID: saleID,
		Payload: kafka.MustMarshal(events.SaleFailedPayload{
			SaleID: saleID, UserID: userID, Code: e.Code, Reason: e.Message,
		}),
	}
	o.FailedProducer.Publish(events.PartitionKey(saleID), kafka.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(events.EventSaleFailed)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func fail(err error) *SellResult {
	e := errs.From(err)
	return &SellResult{Success: false, Message: e.Message}
}
