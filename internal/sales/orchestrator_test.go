package sales

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentworks/fulfillment/internal/auth"
	"github.com/scentworks/fulfillment/internal/catalogue"
	"github.com/scentworks/fulfillment/internal/errs"
	"github.com/scentworks/fulfillment/internal/receipts"
	"github.com/scentworks/fulfillment/internal/token"
	"github.com/scentworks/fulfillment/internal/warehouse"
)

// fakeLedger mirrors the pgx repo's semantics: Reserve is atomic under a
// lock, all-or-nothing, and Release restores exactly what was reserved.
type fakeLedger struct {
	mu       sync.Mutex
	items    map[string]*catalogue.Item
	reserved map[string][]catalogue.RequestedItem
}

func newFakeLedger(items ...catalogue.Item) *fakeLedger {
	l := &fakeLedger{
		items:    make(map[string]*catalogue.Item),
		reserved: make(map[string][]catalogue.RequestedItem),
	}
	for i := range items {
		it := items[i]
		l.items[it.ID] = &it
	}
	return l
}

func (l *fakeLedger) Reserve(ctx context.Context, saleID string, items []catalogue.RequestedItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rq := range items {
		it, ok := l.items[rq.PerfumeID]
		if !ok {
			return errs.ItemNotFound(rq.PerfumeID)
		}
		if it.Quantity < rq.Quantity {
			return errs.InsufficientQuantity(rq.PerfumeID, rq.Quantity, it.Quantity)
		}
	}
	for _, rq := range items {
		l.items[rq.PerfumeID].Quantity -= rq.Quantity
	}
	l.reserved[saleID] = items
	return nil
}

func (l *fakeLedger) Commit(ctx context.Context, saleID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.reserved, saleID)
	return nil
}

func (l *fakeLedger) Release(ctx context.Context, saleID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rq := range l.reserved[saleID] {
		l.items[rq.PerfumeID].Quantity += rq.Quantity
	}
	delete(l.reserved, saleID)
	return nil
}

func (l *fakeLedger) PriceItems(ctx context.Context, ids []string) (map[string]catalogue.Pricing, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]catalogue.Pricing, len(ids))
	for _, id := range ids {
		it, ok := l.items[id]
		if !ok {
			return nil, errs.ItemNotFound(id)
		}
		out[id] = catalogue.Pricing{PerfumeID: it.ID, PerfumeName: it.PerfumeName, PriceCents: it.PriceCents}
	}
	return out, nil
}

func (l *fakeLedger) quantity(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.items[id].Quantity
}

// fakeShipper enforces the capacity invariant and the role-derived batch
// policy the way the storage service does.
type fakeShipper struct {
	mu       sync.Mutex
	capacity int
	packages map[string]warehouse.Status
	shipErr  error
}

func newFakeShipper(capacity int) *fakeShipper {
	return &fakeShipper{capacity: capacity, packages: make(map[string]warehouse.Status)}
}

func (s *fakeShipper) ReceivePackage(ctx context.Context, caller auth.Caller, warehouseID, name, sender string, unitIDs []string) (*warehouse.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.packages) >= s.capacity {
		return nil, errs.CapacityExceeded(warehouseID, s.capacity)
	}
	p := &warehouse.Package{ID: uuid.NewString(), WarehouseID: warehouseID, Name: name, UnitIDs: unitIDs, Status: warehouse.StatusPacked}
	s.packages[p.ID] = warehouse.StatusPacked
	return p, nil
}

func (s *fakeShipper) ShipPackages(ctx context.Context, caller auth.Caller, packageIDs []string) (*warehouse.ShipResult, error) {
	if s.shipErr != nil {
		return nil, s.shipErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	policy := warehouse.PolicyForRole(caller.Role)
	if !policy.CanSend(len(packageIDs)) {
		return nil, errs.BatchTooLarge(len(packageIDs), policy.MaxBatchSize())
	}
	for _, id := range packageIDs {
		if s.packages[id] != warehouse.StatusPacked {
			return nil, errs.InvalidState(id)
		}
	}
	for _, id := range packageIDs {
		s.packages[id] = warehouse.StatusShipped
	}
	return &warehouse.ShipResult{
		PackageCount:   len(packageIDs),
		ProcessingTime: policy.EstimatedProcessingTime(len(packageIDs)),
		Strategy:       policy.Name(),
	}, nil
}

type fakeReceipts struct {
	err      error
	recorded []*receipts.Receipt
}

func (r *fakeReceipts) Record(ctx context.Context, caller auth.Caller, rc *receipts.Receipt) (*receipts.Receipt, error) {
	if r.err != nil {
		return nil, r.err
	}
	cp := *rc
	cp.ID = uuid.NewString()
	r.recorded = append(r.recorded, &cp)
	return &cp, nil
}

type fakeSaleStore struct {
	mu    sync.Mutex
	sales map[string]*Sale
	byExt map[string]string
}

func newFakeSaleStore() *fakeSaleStore {
	return &fakeSaleStore{sales: make(map[string]*Sale), byExt: make(map[string]string)}
}

func (s *fakeSaleStore) Create(ctx context.Context, sale *Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sale
	s.sales[sale.ID] = &cp
	if sale.ExternalID != "" {
		if _, dup := s.byExt[sale.ExternalID]; dup {
			return errs.Conflict("duplicate external id")
		}
		s.byExt[sale.ExternalID] = sale.ID
	}
	return nil
}

func (s *fakeSaleStore) SetStatus(ctx context.Context, saleID string, status SaleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales[saleID].Status = status
	return nil
}

func (s *fakeSaleStore) Complete(ctx context.Context, saleID string, totalCents int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales[saleID].Status = SaleCompleted
	s.sales[saleID].TotalCents = totalCents
	return nil
}

func (s *fakeSaleStore) Fail(ctx context.Context, saleID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales[saleID].Status = SaleFailed
	s.sales[saleID].FailureReason = reason
	return nil
}

func (s *fakeSaleStore) FindByExternalID(ctx context.Context, externalID string) (*Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExt[externalID]
	if !ok {
		return nil, nil
	}
	return s.sales[id], nil
}

func (s *fakeSaleStore) get(saleID string) *Sale {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sales[saleID]
}

func (s *fakeSaleStore) only(t *testing.T) *Sale {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.sales, 1)
	for _, sale := range s.sales {
		return sale
	}
	return nil
}

type fixture struct {
	orch     *Orchestrator
	ledger   *fakeLedger
	shipper  *fakeShipper
	receipts *fakeReceipts
	store    *fakeSaleStore
}

func setup(t *testing.T, items ...catalogue.Item) *fixture {
	t.Helper()
	f := &fixture{
		ledger:   newFakeLedger(items...),
		shipper:  newFakeShipper(100),
		receipts: &fakeReceipts{},
		store:    newFakeSaleStore(),
	}
	f.orch = &Orchestrator{
		Ledger:      f.ledger,
		Shipper:     f.shipper,
		Receipts:    f.receipts,
		Tokens:      token.NewIssuer("test-secret"),
		Sales:       f.store,
		ServiceName: "sales-test",
		WarehouseID: "wh-1",
	}
	return f
}

func manager() auth.Caller { return auth.Caller{UserID: "u1", Role: "manager"} }
func seller() auth.Caller  { return auth.Caller{UserID: "u2", Role: "seller"} }

func rose(qty int) catalogue.Item {
	return catalogue.Item{ID: "p-rose", PerfumeName: "Rose", PriceCents: 1250, Quantity: qty}
}

func TestSellHappyPath(t *testing.T) {
	f := setup(t, rose(5))

	res, err := f.orch.Sell(context.Background(), manager(), SellRequest{
		UserID: "u1",
		Items:  []catalogue.RequestedItem{{PerfumeID: "p-rose", Quantity: 3}},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Token)
	assert.NotEmpty(t, res.QRCode)
	assert.Equal(t, 3*1250, res.TotalCents)

	// post-sale quantity = pre-sale quantity - requested
	assert.Equal(t, 2, f.ledger.quantity("p-rose"))
	assert.Equal(t, SaleCompleted, f.store.get(res.SaleID).Status)

	// receipt total matches qty x unit price
	require.Len(t, f.receipts.recorded, 1)
	rc := f.receipts.recorded[0]
	assert.Equal(t, "37.5", rc.TotalAmount.String())

	// token decodes back to the sale
	p, err := token.NewIssuer("test-secret").Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.SaleID, p.SaleID)
}

func TestSellValidation(t *testing.T) {
	f := setup(t, rose(5))
	ctx := context.Background()

	cases := []SellRequest{
		{UserID: "", Items: []catalogue.RequestedItem{{PerfumeID: "p-rose", Quantity: 1}}},
		{UserID: "u1"},
		{UserID: "u1", Items: []catalogue.RequestedItem{{PerfumeID: "p-rose", Quantity: 0}}},
		{UserID: "u1", Items: []catalogue.RequestedItem{{PerfumeID: "p-rose", Quantity: -2}}},
		{UserID: "u1", Items: []catalogue.RequestedItem{{PerfumeID: "", Quantity: 1}}},
	}
	for _, req := range cases {
		res, err := f.orch.Sell(ctx, seller(), req)
		require.Error(t, err)
		assert.True(t, errs.Is(err, errs.CodeInvalidRequest))
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Message)
	}
	// nothing moved
	assert.Equal(t, 5, f.ledger.quantity("p-rose"))
}

func TestSellUnknownItem(t *testing.T) {
	f := setup(t, rose(5))

	res, err := f.orch.Sell(context.Background(), seller(), SellRequest{
		UserID: "u2",
		Items:  []catalogue.RequestedItem{{PerfumeID: "p-oud", Quantity: 1}},
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeItemNotFound))
	assert.False(t, res.Success)
}

func TestSellInsufficientQuantity(t *testing.T) {
	f := setup(t, rose(2))

	res, err := f.orch.Sell(context.Background(), seller(), SellRequest{
		UserID: "u2",
		Items:  []catalogue.RequestedItem{{PerfumeID: "p-rose", Quantity: 3}},
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInsufficientQuantity))
	assert.False(t, res.Success)
	assert.Equal(t, 2, f.ledger.quantity("p-rose"))
}

// Two concurrent sales racing for the last units: exactly one wins, the
// other reports insufficient quantity, and stock never goes negative.
func TestConcurrentSalesLastUnit(t *testing.T) {
	f := setup(t, rose(2))
	ctx := context.Background()

	type outcome struct {
		res *SellResult
		err error
	}
	results := make(chan outcome, 2)
	var wg sync.WaitGroup
	for _, qty := range []int{2, 1} {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			res, err := f.orch.Sell(ctx, seller(), SellRequest{
				UserID: "u2",
				Items:  []catalogue.RequestedItem{{PerfumeID: "p-rose", Quantity: q}},
			})
			results <- outcome{res, err}
		}(qty)
	}
	wg.Wait()
	close(results)

	succeeded, failed := 0, 0
	for o := range results {
		if o.err == nil && o.res.Success {
			succeeded++
		} else {
			failed++
			assert.True(t, errs.Is(o.err, errs.CodeInsufficientQuantity))
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)
	assert.GreaterOrEqual(t, f.ledger.quantity("p-rose"), 0)
}

func TestSellReleasesOnShipmentFailure(t *testing.T) {
	f := setup(t, rose(5))
	f.shipper.shipErr = errs.DownstreamUnavailable("storage service", nil)

	res, err := f.orch.Sell(context.Background(), seller(), SellRequest{
		UserID: "u2",
		Items:  []catalogue.RequestedItem{{PerfumeID: "p-rose", Quantity: 3}},
	})
	require.Error(t, err)
	assert.False(t, res.Success)

	// reservation released, stock restored
	assert.Equal(t, 5, f.ledger.quantity("p-rose"))
	// no receipt was recorded
	assert.Empty(t, f.receipts.recorded)
}

func TestSellReleasesOnCapacityExceeded(t *testing.T) {
	f := setup(t, rose(5))
	f.shipper.capacity = 0

	res, err := f.orch.Sell(context.Background(), seller(), SellRequest{
		UserID: "u2",
		Items:  []catalogue.RequestedItem{{PerfumeID: "p-rose", Quantity: 1}},
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeCapacityExceeded))
	assert.False(t, res.Success)
	assert.Equal(t, 5, f.ledger.quantity("p-rose"))
}

func TestSellReleasesOnReceiptFailure(t *testing.T) {
	f := setup(t, rose(5))
	f.receipts.err = errs.DownstreamUnavailable("receipt ledger", nil)

	res, err := f.orch.Sell(context.Background(), seller(), SellRequest{
		UserID: "u2",
		Items:  []catalogue.RequestedItem{{PerfumeID: "p-rose", Quantity: 2}},
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeDownstreamUnavailable))
	assert.False(t, res.Success)

	// the shipment is not recalled, but the reservation is released and the
	// sale row records the failing step
	assert.Equal(t, 5, f.ledger.quantity("p-rose"))
	sale := f.store.only(t)
	assert.Equal(t, SaleFailed, sale.Status)
	assert.Contains(t, sale.FailureReason, errs.CodeDownstreamUnavailable)
	assert.NotEmpty(t, res.Message)
}

func TestSellIdempotentResubmission(t *testing.T) {
	f := setup(t, rose(5))
	ctx := context.Background()
	req := SellRequest{
		ExternalID: "ext-1",
		UserID:     "u2",
		Items:      []catalogue.RequestedItem{{PerfumeID: "p-rose", Quantity: 2}},
	}

	first, err := f.orch.Sell(ctx, seller(), req)
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := f.orch.Sell(ctx, seller(), req)
	require.NoError(t, err)
	assert.True(t, second.Idempotent)
	assert.Equal(t, first.SaleID, second.SaleID)

	// sold exactly once
	assert.Equal(t, 3, f.ledger.quantity("p-rose"))
}

func TestSellMultipleItems(t *testing.T) {
	f := setup(t,
		rose(5),
		catalogue.Item{ID: "p-oud", PerfumeName: "Oud", PriceCents: 3000, Quantity: 4},
	)

	res, err := f.orch.Sell(context.Background(), manager(), SellRequest{
		UserID: "u1",
		Items: []catalogue.RequestedItem{
			{PerfumeID: "p-rose", Quantity: 2},
			{PerfumeID: "p-oud", Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2*1250+3000, res.TotalCents)
	assert.Equal(t, 3, f.ledger.quantity("p-rose"))
	assert.Equal(t, 3, f.ledger.quantity("p-oud"))
}

func TestSellAllOrNothingReserve(t *testing.T) {
	f := setup(t,
		rose(5),
		catalogue.Item{ID: "p-oud", PerfumeName: "Oud", PriceCents: 3000, Quantity: 0},
	)

	_, err := f.orch.Sell(context.Background(), seller(), SellRequest{
		UserID: "u2",
		Items: []catalogue.RequestedItem{
			{PerfumeID: "p-rose", Quantity: 2},
			{PerfumeID: "p-oud", Quantity: 1},
		},
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInsufficientQuantity))

	// the rose line was not decremented either
	assert.Equal(t, 5, f.ledger.quantity("p-rose"))
}

func TestExpandUnits(t *testing.T) {
	units := expandUnits([]catalogue.RequestedItem{
		{PerfumeID: "a", Quantity: 2},
		{PerfumeID: "b", Quantity: 1},
	})
	require.Len(t, units, 3)
	seen := make(map[string]bool)
	for _, u := range units {
		assert.False(t, seen[u], "unit references must be unique")
		seen[u] = true
	}
}

// The sold units leave the warehouse: the package created for the sale ends
// up SHIPPED, not stuck in PACKED.
func TestSellMarksPackageShipped(t *testing.T) {
	f := setup(t, rose(5))
	res, err := f.orch.Sell(context.Background(), manager(), SellRequest{
		UserID: "u1",
		Items:  []catalogue.RequestedItem{{PerfumeID: "p-rose", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, f.shipper.packages, 1)
	for _, status := range f.shipper.packages {
		assert.Equal(t, warehouse.StatusShipped, status)
	}
}
