// Package cleanup периодически удаляет устаревшее состояние витрины:
// просроченные ключи идемпотентности и простаивающие корзины покупателей.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultInterval  = time.Minute
	defaultBatchSize = 500

	// TaskIdempotencyKeys — удаление просроченных ключей идемпотентности.
	TaskIdempotencyKeys = "idempotency_keys"
	// TaskIdleCarts — вытеснение корзин, простаивающих дольше idle TTL.
	TaskIdleCarts = "idle_carts"
)

// Task — одна задача очистки. Sweep возвращает число удалённых записей.
type Task struct {
	Name  string
	Sweep func(ctx context.Context, now time.Time) (int, error)
}

// ExpiredIdempotencyKeys удаляет ключи с истёкшим ttl порциями batchSize,
// пока очередная порция не окажется неполной.
func ExpiredIdempotencyKeys(repo domain.IdempotencyRepository, batchSize int) Task {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return Task{
		Name: TaskIdempotencyKeys,
		Sweep: func(ctx context.Context, now time.Time) (int, error) {
			total := 0
			for {
				if err := ctx.Err(); err != nil {
					return total, err
				}
				deleted, err := repo.DeleteExpired(ctx, now, batchSize)
				total += deleted
				if err != nil {
					return total, err
				}
				if deleted < batchSize {
					return total, nil
				}
			}
		},
	}
}

// IdleEvicter — хранилище корзин, умеющее вытеснять простаивающие сессии.
type IdleEvicter interface {
	EvictIdle() int
}

// IdleCarts вытесняет корзины; idle TTL задаётся самими сессиями.
func IdleCarts(carts IdleEvicter) Task {
	return Task{
		Name: TaskIdleCarts,
		Sweep: func(context.Context, time.Time) (int, error) {
			return carts.EvictIdle(), nil
		},
	}
}

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithInterval задаёт интервал между прогонами.
func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(w *Worker) {
		if clock != nil {
			w.clock = clock
		}
	}
}

// WithMetrics подключает метрики прогонов.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// Worker по таймеру прогоняет задачи очистки. Ошибка одной задачи не
// мешает остальным.
type Worker struct {
	tasks    []Task
	logger   *log.Entry
	interval time.Duration
	clock    func() time.Time
	metrics  *metrics.StorefrontMetrics
}

// NewWorker создаёт воркер. Задачи без Sweep пропускаются.
func NewWorker(tasks []Task, options ...Option) *Worker {
	w := &Worker{
		logger:   log.WithField("component", "cleanup-worker"),
		interval: defaultInterval,
		clock:    func() time.Time { return time.Now().UTC() },
	}
	for _, task := range tasks {
		if task.Sweep != nil {
			w.tasks = append(w.tasks, task)
		}
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run выполняет первый прогон сразу и затем повторяет его до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if len(w.tasks) == 0 {
		w.logger.Warn("cleanup worker is disabled: no tasks")
		return
	}

	_, _ = w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.RunOnce(ctx)
		}
	}
}

// RunOnce прогоняет все задачи и возвращает число удалённых записей по задачам.
// Ошибки задач объединяются; отмена ctx не считается сбоем задачи.
func (w *Worker) RunOnce(ctx context.Context) (map[string]int, error) {
	now := w.clock()
	removed := make(map[string]int, len(w.tasks))

	var errs []error
	for _, task := range w.tasks {
		n, err := task.Sweep(ctx, now)
		removed[task.Name] = n
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return removed, err
		}

		w.metrics.RecordCleanup(task.Name, n, err)
		logger := w.logger.WithField("task", task.Name)
		if err != nil {
			logger.WithError(err).Warn("cleanup task failed")
			errs = append(errs, fmt.Errorf("%s: %w", task.Name, err))
			continue
		}
		if n > 0 {
			logger.WithField("removed", n).Info("cleanup task completed")
		}
	}

	return removed, errors.Join(errs...)
}
