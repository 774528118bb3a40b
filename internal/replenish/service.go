package replenish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/scentworks/fulfillment/internal/errs"
	"github.com/scentworks/fulfillment/internal/events"
	"github.com/scentworks/fulfillment/internal/kafka"
	"github.com/scentworks/fulfillment/internal/redisx"
)

// Ledger is the slice of the catalogue the replenisher needs.
type Ledger interface {
	Replenish(ctx context.Context, perfumeID string, qty int) error
}

// Service applies finished production batches to the catalogue ledger.
// Installed as the consumer handler for production.batch.completed.
type Service struct {
	Ledger      Ledger
	Redis       *redis.Client
	ServiceName string
	Logger      *slog.Logger
}

func (s *Service) HandleBatchCompleted(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != events.EventBatchCompleted {
		return nil
	}

	// Dedup on event id so a redelivered batch never double-credits stock.
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return nil
	}

	p, err := kafka.UnwrapPayload[events.BatchCompletedPayload](env.Payload)
	if err != nil {
		return err
	}

	if err := s.Ledger.Replenish(ctx, p.PerfumeID, p.Quantity); err != nil {
		// Unknown perfume or bad quantity will never succeed on redelivery;
		// log and commit instead of poisoning the partition.
		if errs.Is(err, errs.CodeItemNotFound) || errs.Is(err, errs.CodeInvalidRequest) {
			s.Logger.Warn("dropping unprocessable batch",
				"batch_id", p.BatchID, "perfume_id", p.PerfumeID, "error", err)
			_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
			return nil
		}
		return err
	}

	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	s.Logger.Info("stock replenished",
		"batch_id", p.BatchID, "perfume_id", p.PerfumeID, "qty", p.Quantity)
	return nil
}
