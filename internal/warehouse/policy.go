package warehouse

import "time"

// Policy is the role-dependent rule set for a shipment batch. Implementations
// are pure and stateless; a batch above MaxBatchSize is a caller error, not a
// policy fault.
type Policy interface {
	CanSend(batchSize int) bool
	MaxBatchSize() int
	EstimatedProcessingTime(batchSize int) time.Duration
	Name() string
}

// DistributionPolicy serves distribution-role callers: larger batches,
// faster per-package handling.
type DistributionPolicy struct{}

func (DistributionPolicy) CanSend(batchSize int) bool { return batchSize <= 3 }
func (DistributionPolicy) MaxBatchSize() int          { return 3 }
func (DistributionPolicy) EstimatedProcessingTime(batchSize int) time.Duration {
	return time.Duration(batchSize) * 500 * time.Millisecond
}
func (DistributionPolicy) Name() string { return "distribution" }

// CounterPolicy serves over-the-counter callers: one package at a time.
type CounterPolicy struct{}

func (CounterPolicy) CanSend(batchSize int) bool { return batchSize <= 1 }
func (CounterPolicy) MaxBatchSize() int          { return 1 }
func (CounterPolicy) EstimatedProcessingTime(batchSize int) time.Duration {
	return time.Duration(batchSize) * 2500 * time.Millisecond
}
func (CounterPolicy) Name() string { return "counter" }

// PolicyForRole maps the caller role to a policy. Managers get the
// distribution channel, everyone else goes through the counter.
func PolicyForRole(role string) Policy {
	if role == "manager" {
		return DistributionPolicy{}
	}
	return CounterPolicy{}
}
