package supplier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

const defaultListLimit = 100

// RegisterInput — данные регистрации поставщика. UserID заполняет только
// сотрудник, регистрирующий поставщика от имени пользователя.
type RegisterInput struct {
	UserID      string
	CompanyName string
	TaxID       string
}

// Event — payload событий поставщика в outbox.
type Event struct {
	SupplierID string    `json:"supplier_id"`
	UserID     string    `json:"user_id"`
	State      string    `json:"state"`
	Previous   string    `json:"previous_state,omitempty"`
	ActorID    string    `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает запись метрик.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет часы.
func WithClock(clock domain.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// Service управляет аккаунтами поставщиков и их модерацией.
type Service struct {
	tx      domain.TxManager
	logger  *log.Entry
	metrics *metrics.StorefrontMetrics
	clock   domain.Clock
	newID   func() string
}

// NewService создаёт сервис поставщиков.
func NewService(tx domain.TxManager, options ...Option) *Service {
	s := &Service{
		tx:     tx,
		logger: log.New().WithField("component", "supplier"),
		clock:  domain.SystemClock,
		newID:  uuid.NewString,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Register создаёт аккаунт поставщика в статусе pending.
func (s *Service) Register(ctx context.Context, caller domain.Caller, input RegisterInput) (domain.SupplierAccount, error) {
	if caller.IsAnonymous() {
		return domain.SupplierAccount{}, fmt.Errorf("register supplier requires authentication: %w", domain.ErrForbidden)
	}

	userID := strings.TrimSpace(input.UserID)
	switch {
	case userID == "":
		userID = caller.UserID
	case userID != caller.UserID && !caller.IsStaff():
		return domain.SupplierAccount{}, domain.ErrNotOwner
	}

	var account domain.SupplierAccount
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		if _, err := uow.Suppliers().GetByUserID(ctx, userID); err == nil {
			return domain.ErrSupplierExists
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		created, err := domain.NewSupplierAccount(s.newID(), userID, input.CompanyName, input.TaxID, s.clock())
		if err != nil {
			return err
		}
		if err := uow.Suppliers().Create(ctx, created); err != nil {
			return err
		}
		account = created
		return outbox.Record(ctx, uow.Outbox(), domain.AggregateSupplier, created.ID, domain.EventSupplierRegistered, Event{
			SupplierID: created.ID,
			UserID:     created.UserID,
			State:      string(created.State),
			ActorID:    caller.UserID,
			OccurredAt: created.CreatedAt,
		})
	})
	if err != nil {
		return domain.SupplierAccount{}, err
	}

	s.metrics.RecordSupplierTransition(string(account.State))
	s.logger.WithFields(log.Fields{"supplier_id": account.ID, "user_id": account.UserID}).Info("supplier registered")
	return account, nil
}

// Get возвращает поставщика сотруднику или его владельцу.
func (s *Service) Get(ctx context.Context, caller domain.Caller, id string) (domain.SupplierAccount, error) {
	var account domain.SupplierAccount
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		var err error
		account, err = uow.Suppliers().Get(ctx, id)
		return err
	})
	if err != nil {
		return domain.SupplierAccount{}, err
	}
	if !caller.IsStaff() && (caller.IsAnonymous() || account.UserID != caller.UserID) {
		return domain.SupplierAccount{}, domain.ErrNotOwner
	}
	return account, nil
}

// Mine возвращает аккаунт поставщика вызывающего пользователя.
func (s *Service) Mine(ctx context.Context, caller domain.Caller) (domain.SupplierAccount, error) {
	if caller.IsAnonymous() {
		return domain.SupplierAccount{}, domain.ErrNoSupplierAccount
	}

	var account domain.SupplierAccount
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		var err error
		account, err = uow.Suppliers().GetByUserID(ctx, caller.UserID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNoSupplierAccount
		}
		return err
	})
	return account, err
}

// List возвращает поставщиков в статусе (пустой — все). Только для сотрудников.
func (s *Service) List(ctx context.Context, caller domain.Caller, state domain.SupplierState, limit int) ([]domain.SupplierAccount, error) {
	if err := caller.RequireStaff("list suppliers"); err != nil {
		return nil, err
	}
	if state != "" && !state.Valid() {
		return nil, domain.ErrUnknownState
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	var accounts []domain.SupplierAccount
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		var err error
		accounts, err = uow.Suppliers().List(ctx, state, limit)
		return err
	})
	return accounts, err
}

// SetState переводит поставщика в другой статус. Переходы выполняет только
// сотрудник и никогда автоматически.
func (s *Service) SetState(ctx context.Context, caller domain.Caller, id string, target domain.SupplierState) (domain.SupplierAccount, error) {
	if err := caller.RequireStaff("change supplier state"); err != nil {
		return domain.SupplierAccount{}, err
	}

	var account domain.SupplierAccount
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		current, err := uow.Suppliers().Get(ctx, id)
		if err != nil {
			return err
		}
		previous := current.State
		if err := current.TransitionTo(target, s.clock()); err != nil {
			return err
		}
		if err := uow.Suppliers().Save(ctx, current); err != nil {
			return fmt.Errorf("save supplier: %w", err)
		}
		account = current
		return outbox.Record(ctx, uow.Outbox(), domain.AggregateSupplier, current.ID, domain.EventSupplierStateChanged, Event{
			SupplierID: current.ID,
			UserID:     current.UserID,
			State:      string(current.State),
			Previous:   string(previous),
			ActorID:    caller.UserID,
			OccurredAt: current.UpdatedAt,
		})
	})
	if err != nil {
		return domain.SupplierAccount{}, err
	}

	s.metrics.RecordSupplierTransition(string(account.State))
	s.logger.WithFields(log.Fields{
		"supplier_id": account.ID,
		"state":       account.State,
		"actor_id":    caller.UserID,
	}).Info("supplier state changed")
	return account, nil
}

// Sales возвращает продажи товаров поставщика: количество, базовую цену и
// заработок поставщика без наценки магазина. Сотрудник видит любого
// поставщика, поставщик только себя (пустой supplierID означает «мои»).
func (s *Service) Sales(ctx context.Context, caller domain.Caller, supplierID string, limit int) ([]domain.SupplierSale, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	var sales []domain.SupplierSale
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		if !caller.IsStaff() {
			if caller.IsAnonymous() {
				return domain.ErrNoSupplierAccount
			}
			own, err := uow.Suppliers().GetByUserID(ctx, caller.UserID)
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNoSupplierAccount
			}
			if err != nil {
				return err
			}
			if supplierID != "" && supplierID != own.ID {
				return domain.ErrNotOwner
			}
			supplierID = own.ID
		} else if supplierID == "" {
			return domain.ErrSupplierIDRequired
		}

		var err error
		sales, err = uow.Orders().ListSupplierSales(ctx, supplierID, limit)
		return err
	})
	return sales, err
}
