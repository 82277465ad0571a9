package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var errTimeout = errors.New("gateway timeout")

type flakyGateway struct {
	failures int
	err      error
	calls    int
}

func (g *flakyGateway) Charge(_ context.Context, orderID string, _ decimal.Decimal) (string, error) {
	g.calls++
	if g.calls <= g.failures {
		return "", g.err
	}
	return "ref-" + orderID, nil
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}
}

func TestResilientGateway_RetriesTransientErrors(t *testing.T) {
	inner := &flakyGateway{failures: 2, err: errTimeout}
	gateway := NewResilientGateway(inner, fastRetry(3), nil, nil)

	ref, err := gateway.Charge(context.Background(), "o-1", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Equal(t, "ref-o-1", ref)
	assert.Equal(t, 3, inner.calls)
}

func TestResilientGateway_GivesUpAfterMaxAttempts(t *testing.T) {
	inner := &flakyGateway{failures: 5, err: errTimeout}
	gateway := NewResilientGateway(inner, fastRetry(2), nil, nil)

	_, err := gateway.Charge(context.Background(), "o-1", decimal.NewFromInt(10))
	assert.ErrorIs(t, err, errTimeout)
	assert.Equal(t, 2, inner.calls)
}

func TestResilientGateway_DoesNotRetryDomainErrors(t *testing.T) {
	inner := &flakyGateway{failures: 5, err: domain.ErrUnitPriceInvalid}
	breaker := NewCircuitBreaker(1, time.Minute, nil)
	gateway := NewResilientGateway(inner, fastRetry(3), breaker, nil)

	_, err := gateway.Charge(context.Background(), "o-1", decimal.NewFromInt(10))
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, CircuitClosed, breaker.State())
}

func TestResilientGateway_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gateway := NewResilientGateway(NewStubGateway(), fastRetry(3), nil, nil)

	_, err := gateway.Charge(ctx, "o-1", decimal.NewFromInt(10))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	breaker := NewCircuitBreaker(2, time.Minute, nil)
	breaker.now = func() time.Time { return now }

	inner := &flakyGateway{failures: 2, err: errTimeout}
	gateway := NewResilientGateway(inner, RetryConfig{MaxAttempts: 1}, breaker, nil)

	for i := 0; i < 2; i++ {
		_, err := gateway.Charge(context.Background(), "o-1", decimal.NewFromInt(1))
		require.ErrorIs(t, err, errTimeout)
	}
	assert.Equal(t, CircuitOpen, breaker.State())

	_, err := gateway.Charge(context.Background(), "o-1", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.ErrorIs(t, err, domain.ErrPrecondition)
	assert.Equal(t, 2, inner.calls, "open breaker must not call the gateway")

	now = now.Add(2 * time.Minute)
	ref, err := gateway.Charge(context.Background(), "o-1", decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, "ref-o-1", ref)
	assert.Equal(t, CircuitClosed, breaker.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	breaker := NewCircuitBreaker(1, time.Minute, nil)
	breaker.now = func() time.Time { return now }

	breaker.record(errTimeout)
	require.Equal(t, CircuitOpen, breaker.State())

	now = now.Add(2 * time.Minute)
	require.True(t, breaker.allow())
	assert.Equal(t, CircuitHalfOpen, breaker.State())

	breaker.record(errTimeout)
	assert.Equal(t, CircuitOpen, breaker.State())
	assert.False(t, breaker.allow())
	assert.Equal(t, "open", breaker.State().String())
}
