package sales

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scentworks/fulfillment/internal/errs"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Create(ctx context.Context, s *Sale) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO sales(id, external_id, user_id, status, total_cents)
		VALUES ($1, NULLIF($2,''), $3, $4, $5)`,
		s.ID, s.ExternalID, s.UserID, s.Status, s.TotalCents)
	if err != nil {
		return errs.Internal(err)
	}
	return nil
}

func (r *Repo) SetStatus(ctx context.Context, saleID string, status SaleStatus) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE sales SET status=$2, updated_at=now() WHERE id=$1`, saleID, status)
	if err != nil {
		return errs.Internal(err)
	}
	return nil
}

func (r *Repo) Complete(ctx context.Context, saleID string, totalCents int) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE sales SET status=$2, total_cents=$3, updated_at=now() WHERE id=$1`,
		saleID, SaleCompleted, totalCents)
	if err != nil {
		return errs.Internal(err)
	}
	return nil
}

func (r *Repo) Fail(ctx context.Context, saleID, reason string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE sales SET status=$2, failure_reason=$3, updated_at=now() WHERE id=$1`,
		saleID, SaleFailed, reason)
	if err != nil {
		return errs.Internal(err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, saleID string) (*Sale, error) {
	var s Sale
	err := r.DB.QueryRow(ctx, `
		SELECT id, COALESCE(external_id,''), user_id, status, total_cents, COALESCE(failure_reason,''), created_at, updated_at
		FROM sales WHERE id=$1`, saleID).
		Scan(&s.ID, &s.ExternalID, &s.UserID, &s.Status, &s.TotalCents, &s.FailureReason, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.InvalidRequest("sale not found").WithDetail("sale_id", saleID)
	}
	if err != nil {
		return nil, errs.Internal(err)
	}
	return &s, nil
}

func (r *Repo) FindByExternalID(ctx context.Context, externalID string) (*Sale, error) {
	var s Sale
	err := r.DB.QueryRow(ctx, `
		SELECT id, COALESCE(external_id,''), user_id, status, total_cents, COALESCE(failure_reason,''), created_at, updated_at
		FROM sales WHERE external_id=$1`, externalID).
		Scan(&s.ID, &s.ExternalID, &s.UserID, &s.Status, &s.TotalCents, &s.FailureReason, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Internal(err)
	}
	return &s, nil
}
