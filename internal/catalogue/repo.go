package catalogue

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scentworks/fulfillment/internal/errs"
)

type Repo struct{ DB *pgxpool.Pool }

// CheckAvailability verifies every requested line against current stock.
// Read-only; the first failing line wins. A passing check is advisory only —
// Reserve re-validates under a row lock.
func (r *Repo) CheckAvailability(ctx context.Context, items []RequestedItem) error {
	for _, it := range items {
		var available int
		err := r.DB.QueryRow(ctx, `SELECT quantity FROM catalogue_items WHERE id=$1`, it.PerfumeID).Scan(&available)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ItemNotFound(it.PerfumeID)
		}
		if err != nil {
			return errs.Internal(err)
		}
		if available < it.Quantity {
			return errs.InsufficientQuantity(it.PerfumeID, it.Quantity, available)
		}
	}
	return nil
}

// Reserve atomically decrements stock and records reservation rows for a
// sale, all in one transaction. Either every line reserves or none does;
// quantity can never be observed negative, and two racing sales for the last
// unit resolve to exactly one winner.
func (r *Repo) Reserve(ctx context.Context, saleID string, items []RequestedItem) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errs.Internal(err)
	}
	defer tx.Rollback(ctx)

	for _, it := range items {
		var available int
		err := tx.QueryRow(ctx, `SELECT quantity FROM catalogue_items WHERE id=$1 FOR UPDATE`, it.PerfumeID).Scan(&available)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ItemNotFound(it.PerfumeID)
		}
		if err != nil {
			return errs.Internal(err)
		}
		if available < it.Quantity {
			return errs.InsufficientQuantity(it.PerfumeID, it.Quantity, available)
		}

		ct, err := tx.Exec(ctx, `
			UPDATE catalogue_items
			SET quantity = quantity - $2, updated_at = now()
			WHERE id = $1 AND quantity >= $2`, it.PerfumeID, it.Quantity)
		if err != nil {
			return errs.Internal(err)
		}
		if ct.RowsAffected() != 1 {
			// lost the row between lock and update; treat as shortage
			return errs.InsufficientQuantity(it.PerfumeID, it.Quantity, available)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO reservations(sale_id, perfume_id, qty, status)
			VALUES ($1, $2, $3, 'RESERVED')
			ON CONFLICT (sale_id, perfume_id) DO NOTHING`, saleID, it.PerfumeID, it.Quantity); err != nil {
			return errs.Internal(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errs.Internal(err)
	}
	return nil
}

// Commit finalizes a sale's reservation rows. The stock decrement already
// happened in Reserve; this marks the reservation as consumed so Release can
// no longer restore it.
func (r *Repo) Commit(ctx context.Context, saleID string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE reservations SET status='COMMITTED'
		WHERE sale_id=$1 AND status='RESERVED'`, saleID)
	if err != nil {
		return errs.Internal(err)
	}
	return nil
}

// Release compensates a failed sale: restores stock for every still-RESERVED
// line and marks the rows RELEASED.
func (r *Repo) Release(ctx context.Context, saleID string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errs.Internal(err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT perfume_id, qty FROM reservations
		WHERE sale_id=$1 AND status='RESERVED'`, saleID)
	if err != nil {
		return errs.Internal(err)
	}
	type rec struct {
		pid string
		qty int
	}
	var recs []rec
	for rows.Next() {
		var x rec
		if err := rows.Scan(&x.pid, &x.qty); err != nil {
			rows.Close()
			return errs.Internal(err)
		}
		recs = append(recs, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errs.Internal(err)
	}

	for _, x := range recs {
		if _, err := tx.Exec(ctx, `
			UPDATE catalogue_items SET quantity = quantity + $2, updated_at = now()
			WHERE id=$1`, x.pid, x.qty); err != nil {
			return errs.Internal(err)
		}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE reservations SET status='RELEASED'
		WHERE sale_id=$1 AND status='RESERVED'`, saleID); err != nil {
		return errs.Internal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Internal(err)
	}
	return nil
}

// Replenish adds produced stock for a perfume.
func (r *Repo) Replenish(ctx context.Context, perfumeID string, qty int) error {
	if qty <= 0 {
		return errs.InvalidRequest("replenish quantity must be positive")
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE catalogue_items SET quantity = quantity + $2, updated_at = now()
		WHERE id=$1`, perfumeID, qty)
	if err != nil {
		return errs.Internal(err)
	}
	if ct.RowsAffected() != 1 {
		return errs.ItemNotFound(perfumeID)
	}
	return nil
}

// PriceItems resolves name and unit price for the given perfume ids so the
// receipt is built from ledger data, not client input.
func (r *Repo) PriceItems(ctx context.Context, perfumeIDs []string) (map[string]Pricing, error) {
	params := ""
	args := make([]any, 0, len(perfumeIDs))
	for i, id := range perfumeIDs {
		if i > 0 {
			params += ","
		}
		params += fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	rows, err := r.DB.Query(ctx, `SELECT id, perfume_name, price_cents FROM catalogue_items WHERE id IN (`+params+`)`, args...)
	if err != nil {
		return nil, errs.Internal(err)
	}
	defer rows.Close()

	out := make(map[string]Pricing, len(perfumeIDs))
	for rows.Next() {
		var p Pricing
		if err := rows.Scan(&p.PerfumeID, &p.PerfumeName, &p.PriceCents); err != nil {
			return nil, errs.Internal(err)
		}
		out[p.PerfumeID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Internal(err)
	}
	for _, id := range perfumeIDs {
		if _, ok := out[id]; !ok {
			return nil, errs.ItemNotFound(id)
		}
	}
	return out, nil
}

// List returns the full catalogue ordered by SKU.
func (r *Repo) List(ctx context.Context) ([]Item, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, sku, perfume_name, quantity, price_cents, created_at, updated_at
		FROM catalogue_items ORDER BY sku`)
	if err != nil {
		return nil, errs.Internal(err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SKU, &it.PerfumeName, &it.Quantity, &it.PriceCents, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, errs.Internal(err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
