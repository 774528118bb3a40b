package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scentworks/fulfillment/internal/errs"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) CreateWarehouse(ctx context.Context, name, location string, maxPackages int) (*Warehouse, error) {
	if name == "" || maxPackages <= 0 {
		return nil, errs.InvalidRequest("warehouse needs a name and a positive capacity")
	}
	w := &Warehouse{
		ID:          uuid.NewString(),
		Name:        name,
		Location:    location,
		MaxPackages: maxPackages,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO warehouses(id, name, location, max_packages, created_at)
		VALUES ($1, $2, $3, $4, $5)`, w.ID, w.Name, w.Location, w.MaxPackages, w.CreatedAt)
	if err != nil {
		return nil, errs.Internal(err)
	}
	return w, nil
}

// ReceivePackage creates a PACKED package if the warehouse has a free slot.
// The capacity check and the insert run in one transaction with the
// warehouse row locked, so concurrent receives cannot both take the last
// slot.
func (r *Repo) ReceivePackage(ctx context.Context, warehouseID, name, senderAddress string, unitIDs []string) (*Package, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errs.Internal(err)
	}
	defer tx.Rollback(ctx)

	var maxPackages int
	err = tx.QueryRow(ctx, `SELECT max_packages FROM warehouses WHERE id=$1 FOR UPDATE`, warehouseID).Scan(&maxPackages)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.WarehouseNotFound(warehouseID)
	}
	if err != nil {
		return nil, errs.Internal(err)
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM packages WHERE warehouse_id=$1`, warehouseID).Scan(&count); err != nil {
		return nil, errs.Internal(err)
	}
	if count >= maxPackages {
		return nil, errs.CapacityExceeded(warehouseID, maxPackages)
	}

	p := &Package{
		ID:            uuid.NewString(),
		WarehouseID:   warehouseID,
		Name:          name,
		SenderAddress: senderAddress,
		UnitIDs:       unitIDs,
		Status:        StatusPacked,
		CreatedAt:     time.Now().UTC(),
	}
	units, err := json.Marshal(p.UnitIDs)
	if err != nil {
		return nil, errs.Internal(err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO packages(id, warehouse_id, name, sender_address, unit_ids, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.WarehouseID, p.Name, p.SenderAddress, units, p.Status, p.CreatedAt); err != nil {
		return nil, errs.Internal(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errs.Internal(err)
	}
	return p, nil
}

// ShipPackages transitions a batch PACKED -> SHIPPED under the given policy.
// All-or-nothing: missing ids or wrong-state packages fail the whole batch
// and nothing moves.
func (r *Repo) ShipPackages(ctx context.Context, packageIDs []string, policy Policy) (*ShipResult, error) {
	if len(packageIDs) == 0 {
		return nil, errs.InvalidRequest("no packages to ship")
	}
	if !policy.CanSend(len(packageIDs)) {
		return nil, errs.BatchTooLarge(len(packageIDs), policy.MaxBatchSize())
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errs.Internal(err)
	}
	defer tx.Rollback(ctx)

	statuses := make(map[string]Status, len(packageIDs))
	for _, id := range packageIDs {
		var s string
		err := tx.QueryRow(ctx, `SELECT status FROM packages WHERE id=$1 FOR UPDATE`, id).Scan(&s)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, errs.Internal(err)
		}
		statuses[id] = Status(s)
	}

	var missing, wrongState []string
	for _, id := range packageIDs {
		s, ok := statuses[id]
		switch {
		case !ok:
			missing = append(missing, id)
		case !CanTransition(s, StatusShipped):
			wrongState = append(wrongState, id)
		}
	}
	if len(missing) > 0 {
		return nil, errs.PackageNotFound(strings.Join(missing, ","))
	}
	if len(wrongState) > 0 {
		return nil, errs.InvalidState(strings.Join(wrongState, ","))
	}

	now := time.Now().UTC()
	for _, id := range packageIDs {
		if _, err := tx.Exec(ctx, `
			UPDATE packages SET status=$2, shipped_at=$3 WHERE id=$1`, id, StatusShipped, now); err != nil {
			return nil, errs.Internal(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errs.Internal(err)
	}
	return &ShipResult{
		PackageCount:   len(packageIDs),
		ProcessingTime: policy.EstimatedProcessingTime(len(packageIDs)),
		Strategy:       policy.Name(),
	}, nil
}

// ListWarehouses returns every warehouse with its package set nested, for
// the occupancy display.
func (r *Repo) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, name, location, max_packages, created_at
		FROM warehouses ORDER BY name`)
	if err != nil {
		return nil, errs.Internal(err)
	}
	var whs []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Name, &w.Location, &w.MaxPackages, &w.CreatedAt); err != nil {
			rows.Close()
			return nil, errs.Internal(err)
		}
		whs = append(whs, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errs.Internal(err)
	}

	for i := range whs {
		pkgs, err := r.packagesFor(ctx, whs[i].ID)
		if err != nil {
			return nil, err
		}
		whs[i].Packages = pkgs
	}
	return whs, nil
}

func (r *Repo) packagesFor(ctx context.Context, warehouseID string) ([]Package, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, warehouse_id, name, sender_address, unit_ids, status, created_at, shipped_at
		FROM packages WHERE warehouse_id=$1 ORDER BY created_at`, warehouseID)
	if err != nil {
		return nil, errs.Internal(err)
	}
	defer rows.Close()

	var out []Package
	for rows.Next() {
		var p Package
		var units []byte
		if err := rows.Scan(&p.ID, &p.WarehouseID, &p.Name, &p.SenderAddress, &units, &p.Status, &p.CreatedAt, &p.ShippedAt); err != nil {
			return nil, errs.Internal(err)
		}
		if err := json.Unmarshal(units, &p.UnitIDs); err != nil {
			return nil, errs.Internal(err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
