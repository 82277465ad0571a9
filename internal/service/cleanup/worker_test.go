package cleanup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

var _ domain.IdempotencyRepository = (*stubKeyRepo)(nil)

func TestExpiredIdempotencyKeys_Batches(t *testing.T) {
	t.Parallel()

	repo := &stubKeyRepo{deleteResults: []int{2, 2, 1}}
	task := ExpiredIdempotencyKeys(repo, 2)

	deleted, err := task.Sweep(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 5, deleted)
	assert.Equal(t, 3, repo.calls())
	assert.Equal(t, TaskIdempotencyKeys, task.Name)
}

func TestExpiredIdempotencyKeys_StopsOnError(t *testing.T) {
	t.Parallel()

	repo := &stubKeyRepo{deleteResults: []int{10}, deleteErrors: []error{nil, errors.New("boom")}}

	deleted, err := ExpiredIdempotencyKeys(repo, 10).Sweep(context.Background(), time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, 10, deleted)
	assert.Equal(t, 2, repo.calls())
}

func TestExpiredIdempotencyKeys_MemoryRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for key, ttl := range map[string]time.Time{
		"checkout-expired":  now.Add(-time.Minute),
		"approve-expired":   now.Add(-time.Second),
		"checkout-in-force": now.Add(time.Hour),
	} {
		_, err := repo.CreateProcessing(ctx, key, "hash-"+key, ttl)
		require.NoError(t, err)
	}

	deleted, err := ExpiredIdempotencyKeys(repo, 1).Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = repo.Get(ctx, "checkout-in-force")
	assert.NoError(t, err)
	_, err = repo.Get(ctx, "checkout-expired")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
}

func TestWorker_RunOnce_IsolatesFailingTask(t *testing.T) {
	t.Parallel()

	m := metrics.NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())
	carts := &stubEvicter{evicted: 3}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var seen time.Time
	failing := Task{Name: "broken", Sweep: func(_ context.Context, at time.Time) (int, error) {
		seen = at
		return 0, errors.New("storage unavailable")
	}}

	worker := NewWorker(
		[]Task{failing, IdleCarts(carts), {Name: "no-op"}},
		WithClock(func() time.Time { return now }),
		WithMetrics(m),
	)

	removed, err := worker.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: storage unavailable")
	assert.Equal(t, map[string]int{"broken": 0, TaskIdleCarts: 3}, removed)
	assert.Equal(t, now, seen)
	assert.Equal(t, int32(1), carts.calls.Load())
}

func TestWorker_RunOnce_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	carts := &stubEvicter{}
	worker := NewWorker([]Task{ExpiredIdempotencyKeys(&stubKeyRepo{}, 10), IdleCarts(carts)})

	_, err := worker.RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, carts.calls.Load())
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &stubKeyRepo{}
	carts := &stubEvicter{}
	worker := NewWorker(
		[]Task{ExpiredIdempotencyKeys(repo, 10), IdleCarts(carts)},
		WithInterval(5*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}

	assert.Positive(t, repo.calls(), "cleanup must run at least once")
	assert.Positive(t, carts.calls.Load())
}

func TestWorker_Run_WithoutTasksReturns(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewWorker(nil).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker without tasks must return immediately")
	}
}

type stubEvicter struct {
	evicted int
	calls   atomic.Int32
}

func (s *stubEvicter) EvictIdle() int {
	s.calls.Add(1)
	return s.evicted
}

type stubKeyRepo struct {
	mu sync.Mutex

	deleteResults []int
	deleteErrors  []error
	callCount     int
}

func (s *stubKeyRepo) CreateProcessing(context.Context, string, string, time.Time) (domain.IdempotencyRecord, error) {
	panic("not implemented")
}

func (s *stubKeyRepo) Get(context.Context, string) (domain.IdempotencyRecord, error) {
	panic("not implemented")
}

func (s *stubKeyRepo) MarkDone(context.Context, string, []byte, int) error {
	panic("not implemented")
}

func (s *stubKeyRepo) MarkFailed(context.Context, string, []byte, int) error {
	panic("not implemented")
}

func (s *stubKeyRepo) DeleteExpired(_ context.Context, _ time.Time, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++

	if len(s.deleteErrors) > 0 {
		err := s.deleteErrors[0]
		s.deleteErrors = s.deleteErrors[1:]
		if err != nil {
			return 0, err
		}
	}

	if len(s.deleteResults) == 0 {
		return 0, nil
	}
	result := s.deleteResults[0]
	s.deleteResults = s.deleteResults[1:]
	return result, nil
}

func (s *stubKeyRepo) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}
