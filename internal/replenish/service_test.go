package replenish

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentworks/fulfillment/internal/errs"
	"github.com/scentworks/fulfillment/internal/events"
)

type fakeLedger struct {
	err   error
	calls []struct {
		perfumeID string
		qty       int
	}
}

func (l *fakeLedger) Replenish(ctx context.Context, perfumeID string, qty int) error {
	l.calls = append(l.calls, struct {
		perfumeID string
		qty       int
	}{perfumeID, qty})
	return l.err
}

func newService(l *fakeLedger) *Service {
	return &Service{
		Ledger: l,
		// dedup cache unreachable in tests; the handler treats cache errors
		// as a miss and reprocesses
		Redis:       redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 10 * time.Millisecond}),
		ServiceName: "replenisher-test",
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func batchMessage(t *testing.T, eventType, batchID, perfumeID string, qty int) kafkago.Message {
	t.Helper()
	payload, err := json.Marshal(events.BatchCompletedPayload{BatchID: batchID, PerfumeID: perfumeID, Quantity: qty})
	require.NoError(t, err)
	env := events.Envelope{
		EventID:      "ev-1",
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now(),
		Producer:     "production-test",
		Payload:      payload,
	}
	value, err := json.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{Value: value}
}

func TestHandleBatchCompleted(t *testing.T) {
	l := &fakeLedger{}
	svc := newService(l)

	err := svc.HandleBatchCompleted(context.Background(), batchMessage(t, events.EventBatchCompleted, "b1", "p-rose", 40))
	require.NoError(t, err)
	require.Len(t, l.calls, 1)
	assert.Equal(t, "p-rose", l.calls[0].perfumeID)
	assert.Equal(t, 40, l.calls[0].qty)
}

func TestIgnoresForeignEvents(t *testing.T) {
	l := &fakeLedger{}
	svc := newService(l)

	err := svc.HandleBatchCompleted(context.Background(), batchMessage(t, events.EventSaleCompleted, "b1", "p-rose", 40))
	require.NoError(t, err)
	assert.Empty(t, l.calls)
}

func TestMalformedEnvelope(t *testing.T) {
	svc := newService(&fakeLedger{})
	err := svc.HandleBatchCompleted(context.Background(), kafkago.Message{Value: []byte("{not json")})
	assert.Error(t, err)
}

// A batch for an unknown perfume can never succeed on redelivery, so the
// handler drops it instead of returning an error that would block the
// partition.
func TestDropsUnprocessableBatch(t *testing.T) {
	l := &fakeLedger{err: errs.ItemNotFound("p-ghost")}
	svc := newService(l)

	err := svc.HandleBatchCompleted(context.Background(), batchMessage(t, events.EventBatchCompleted, "b1", "p-ghost", 40))
	assert.NoError(t, err)
}

func TestPropagatesTransientErrors(t *testing.T) {
	l := &fakeLedger{err: errs.Internal(context.DeadlineExceeded)}
	svc := newService(l)

	err := svc.HandleBatchCompleted(context.Background(), batchMessage(t, events.EventBatchCompleted, "b1", "p-rose", 40))
	assert.Error(t, err)
}
