package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrGatewayUnavailable — circuit breaker открыт, платёж не отправлялся.
var ErrGatewayUnavailable = fmt.Errorf("payment gateway unavailable: %w", domain.ErrPrecondition)

// RetryConfig задаёт повторы Charge при временных ошибках шлюза.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию. Задержки короткие:
// Charge выполняется внутри транзакции оплаты.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  20 * time.Millisecond,
		MaxDelay:      200 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// CircuitState — состояние circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker размыкается после maxFailures подряд и пропускает пробный
// вызов по истечении resetTimeout.
type CircuitBreaker struct {
	mu           sync.Mutex
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	failures    int
	lastFailure time.Time
	state       CircuitState
	logger      *log.Entry
}

// NewCircuitBreaker создаёт circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.New().WithField("component", "payment-circuit-breaker")
	}
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
		state:        CircuitClosed,
		logger:       logger,
	}
}

// State возвращает текущее состояние.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return true
	}
	if cb.now().Sub(cb.lastFailure) > cb.resetTimeout {
		cb.state = CircuitHalfOpen
		cb.logger.Info("circuit breaker half-open")
		return true
	}
	return false
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == CircuitHalfOpen {
			cb.logger.Info("circuit breaker closed")
		}
		cb.state = CircuitClosed
		cb.failures = 0
		return
	}

	cb.failures++
	cb.lastFailure = cb.now()
	if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
		if cb.state != CircuitOpen {
			cb.logger.WithField("failures", cb.failures).Warn("circuit breaker opened")
		}
		cb.state = CircuitOpen
	}
}

// ResilientGateway оборачивает шлюз повторами и circuit breaker.
type ResilientGateway struct {
	gateway domain.PaymentGateway
	breaker *CircuitBreaker
	config  RetryConfig
	logger  *log.Entry
}

var _ domain.PaymentGateway = (*ResilientGateway)(nil)

// NewResilientGateway создаёт обёртку; breaker может быть nil.
func NewResilientGateway(gateway domain.PaymentGateway, config RetryConfig, breaker *CircuitBreaker, logger *log.Entry) *ResilientGateway {
	if logger == nil {
		logger = log.New().WithField("component", "payment-gateway")
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.BackoffFactor < 1 {
		config.BackoffFactor = 1
	}
	return &ResilientGateway{gateway: gateway, breaker: breaker, config: config, logger: logger}
}

// Charge реализует domain.PaymentGateway.
func (g *ResilientGateway) Charge(ctx context.Context, orderID string, amount decimal.Decimal) (string, error) {
	var lastErr error
	delay := g.config.InitialDelay

	for attempt := 1; attempt <= g.config.MaxAttempts; attempt++ {
		if g.breaker != nil && !g.breaker.allow() {
			return "", ErrGatewayUnavailable
		}

		reference, err := g.gateway.Charge(ctx, orderID, amount)
		if !shouldRetry(err) {
			// Доменные отказы шлюза не считаются сбоем соединения.
			if g.breaker != nil {
				g.breaker.record(nil)
			}
			if err == nil && attempt > 1 {
				g.logger.WithFields(log.Fields{
					"order_id": orderID,
					"attempt":  attempt,
				}).Info("charge succeeded after retry")
			}
			return reference, err
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		lastErr = err
		if g.breaker != nil {
			g.breaker.record(err)
		}
		if attempt == g.config.MaxAttempts {
			break
		}

		g.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt,
			"delay":    delay,
		}).Warn("charge failed, retrying")

		if err := sleepCtx(ctx, delay); err != nil {
			return "", err
		}
		delay = time.Duration(float64(delay) * g.config.BackoffFactor)
		if g.config.MaxDelay > 0 && delay > g.config.MaxDelay {
			delay = g.config.MaxDelay
		}
	}

	g.logger.WithError(lastErr).WithFields(log.Fields{
		"order_id":     orderID,
		"max_attempts": g.config.MaxAttempts,
	}).Error("charge failed after all retry attempts")
	return "", lastErr
}

// shouldRetry: повторяем только ошибки вне доменной таксономии (сеть, таймауты шлюза).
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	for _, kind := range []error{
		domain.ErrValidation,
		domain.ErrNotFound,
		domain.ErrForbidden,
		domain.ErrPrecondition,
		domain.ErrConflict,
	} {
		if errors.Is(err, kind) {
			return false
		}
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
