package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DefaultTTL — срок хранения ответа по ключу идемпотентности.
const DefaultTTL = 24 * time.Hour

// Replay — сохранённый результат предыдущего запроса с тем же ключом.
type Replay struct {
	Status domain.IdempotencyStatus
	Body   []byte
	Code   int
}

// InProgress сообщает, что первый запрос ещё не завершён.
func (r Replay) InProgress() bool {
	return r.Status == domain.IdempotencyStatusProcessing
}

// GuardOption настраивает Guard.
type GuardOption func(*Guard)

// WithTTL задаёт срок жизни ключа.
func WithTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithClock подменяет часы.
func WithClock(clock domain.Clock) GuardOption {
	return func(g *Guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithGuardLogger задаёт logger.
func WithGuardLogger(logger *log.Entry) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Guard резервирует ключи идемпотентности и хранит ответы на мутирующие запросы.
// Кодирование ответа и ошибок остаётся на стороне транспорта.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	clock  domain.Clock
	logger *log.Entry
}

// NewGuard создаёт Guard поверх хранилища ключей.
func NewGuard(repo domain.IdempotencyRepository, options ...GuardOption) *Guard {
	g := &Guard{
		repo:   repo,
		ttl:    DefaultTTL,
		clock:  domain.SystemClock,
		logger: log.WithField("component", "idempotency-guard"),
	}
	for _, option := range options {
		option(g)
	}
	return g
}

// Begin резервирует ключ. Возвращает nil, если запрос нужно выполнить,
// или сохранённый результат, если ключ уже использован с тем же запросом.
// Повтор ключа с другим телом запроса возвращает ErrIdempotencyHashMismatch.
func (g *Guard) Begin(ctx context.Context, key, requestHash string) (*Replay, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return nil, domain.ErrIdempotencyRequestHashRequired
	}

	record, err := g.repo.CreateProcessing(ctx, key, requestHash, g.clock().Add(g.ttl))
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		return &Replay{Status: record.Status, Body: record.ResponseBody, Code: record.ResponseCode}, nil
	default:
		return nil, err
	}
}

// Complete сохраняет успешный ответ.
func (g *Guard) Complete(ctx context.Context, key string, body []byte, code int) {
	if err := g.repo.MarkDone(ctx, key, body, code); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent success response")
	}
}

// Fail сохраняет ответ с ошибкой, чтобы повтор вернул ту же ошибку.
func (g *Guard) Fail(ctx context.Context, key string, body []byte, code int) {
	if err := g.repo.MarkFailed(ctx, key, body, code); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotency failure response")
	}
}

// HashRequest считает отпечаток запроса: sha256 от "method:json(req)".
// encoding/json сортирует ключи map, поэтому отпечаток детерминирован.
func HashRequest(method string, req any) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	payload := make([]byte, 0, len(method)+1+len(data))
	payload = append(payload, method...)
	payload = append(payload, ':')
	payload = append(payload, data...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
