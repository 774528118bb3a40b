package warehouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDistributionPolicy(t *testing.T) {
	p := DistributionPolicy{}

	assert.Equal(t, 3, p.MaxBatchSize())
	assert.True(t, p.CanSend(1))
	assert.True(t, p.CanSend(3))
	assert.False(t, p.CanSend(4))
	assert.Equal(t, 1500*time.Millisecond, p.EstimatedProcessingTime(3))
	assert.Equal(t, 500*time.Millisecond, p.EstimatedProcessingTime(1))
}

func TestCounterPolicy(t *testing.T) {
	p := CounterPolicy{}

	assert.Equal(t, 1, p.MaxBatchSize())
	assert.True(t, p.CanSend(1))
	assert.False(t, p.CanSend(2))
	assert.Equal(t, 2500*time.Millisecond, p.EstimatedProcessingTime(1))
	assert.Equal(t, 5000*time.Millisecond, p.EstimatedProcessingTime(2))
}

func TestPolicyForRole(t *testing.T) {
	assert.IsType(t, DistributionPolicy{}, PolicyForRole("manager"))
	assert.IsType(t, CounterPolicy{}, PolicyForRole("seller"))
	assert.IsType(t, CounterPolicy{}, PolicyForRole(""))
	assert.IsType(t, CounterPolicy{}, PolicyForRole("admin"))
}

// A counter-role batch of two is rejected where a distribution-role batch of
// the same size goes through.
func TestRoleBatchSplit(t *testing.T) {
	assert.False(t, PolicyForRole("seller").CanSend(2))
	assert.True(t, PolicyForRole("manager").CanSend(2))
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusPacked, StatusShipped))
	assert.False(t, CanTransition(StatusShipped, StatusPacked))
	assert.False(t, CanTransition(StatusShipped, StatusShipped))
	assert.False(t, CanTransition(StatusPacked, StatusPacked))
}
