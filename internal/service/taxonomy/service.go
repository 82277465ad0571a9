// Package taxonomy ведёт справочники категорий и способов доставки, на
// которые ссылаются товары каталога.
package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

// CategoryEvent — payload событий категории в outbox.
type CategoryEvent struct {
	CategoryID string    `json:"category_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	Name       string    `json:"name,omitempty"`
	ActorID    string    `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DeliveryModeEvent — payload событий способа доставки в outbox.
type DeliveryModeEvent struct {
	DeliveryModeID string    `json:"delivery_mode_id"`
	Name           string    `json:"name,omitempty"`
	Kind           string    `json:"kind,omitempty"`
	ActorID        string    `json:"actor_id"`
	OccurredAt     time.Time `json:"occurred_at"`
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

// WithChangeHook вызывается после каждого закоммиченного изменения
// справочника (например, для сброса кэша витрины).
func WithChangeHook(hook func(ctx context.Context)) Option {
	return func(s *Service) {
		s.onChange = hook
	}
}

// Service управляет категориями и способами доставки. Изменения доступны
// только сотрудникам, чтение анонимно.
type Service struct {
	tx       domain.TxManager
	logger   *log.Entry
	clock    domain.Clock
	newID    func() string
	onChange func(ctx context.Context)
}

// NewService создаёт сервис справочников.
func NewService(tx domain.TxManager, options ...Option) *Service {
	s := &Service{
		tx:     tx,
		logger: log.New().WithField("component", "taxonomy"),
		clock:  domain.SystemClock,
		newID:  uuid.NewString,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// CreateCategory создаёт категорию или подкатегорию (draft.ParentID).
func (s *Service) CreateCategory(ctx context.Context, caller domain.Caller, draft domain.CategoryDraft) (domain.Category, error) {
	if err := caller.RequireStaff("create category"); err != nil {
		return domain.Category{}, err
	}

	var category domain.Category
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		parent, err := loadParent(ctx, uow, draft.ParentID)
		if err != nil {
			return err
		}
		created, err := domain.NewCategory(s.newID(), draft, parent, s.clock())
		if err != nil {
			return err
		}
		if err := uow.Categories().Create(ctx, created); err != nil {
			return err
		}
		category = created
		return outbox.Record(ctx, uow.Outbox(), domain.AggregateCategory, created.ID, domain.EventCategoryCreated, CategoryEvent{
			CategoryID: created.ID,
			ParentID:   created.ParentID,
			Name:       created.Name,
			ActorID:    caller.UserID,
			OccurredAt: created.CreatedAt,
		})
	})
	if err != nil {
		return domain.Category{}, err
	}

	s.changed(ctx)
	s.logger.WithFields(log.Fields{"category_id": category.ID, "parent_id": category.ParentID}).Info("category created")
	return category, nil
}

// UpdateCategory меняет имя, изображение или родителя категории. Категорию
// с подкатегориями нельзя сделать подкатегорией.
func (s *Service) UpdateCategory(ctx context.Context, caller domain.Caller, id string, draft domain.CategoryDraft) (domain.Category, error) {
	if err := caller.RequireStaff("update category"); err != nil {
		return domain.Category{}, err
	}

	var category domain.Category
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		current, err := uow.Categories().Get(ctx, id)
		if err != nil {
			return err
		}
		parent, err := loadParent(ctx, uow, draft.ParentID)
		if err != nil {
			return err
		}
		if parent != nil {
			children, err := uow.Categories().List(ctx, current.ID)
			if err != nil {
				return err
			}
			if len(children) > 0 {
				return domain.ErrCategoryDepth
			}
		}
		if err := current.Apply(draft, parent, s.clock()); err != nil {
			return err
		}
		if err := uow.Categories().Save(ctx, current); err != nil {
			return fmt.Errorf("save category: %w", err)
		}
		category = current
		category.Version++
		return outbox.Record(ctx, uow.Outbox(), domain.AggregateCategory, current.ID, domain.EventCategoryUpdated, CategoryEvent{
			CategoryID: current.ID,
			ParentID:   current.ParentID,
			Name:       current.Name,
			ActorID:    caller.UserID,
			OccurredAt: current.UpdatedAt,
		})
	})
	if err != nil {
		return domain.Category{}, err
	}

	s.changed(ctx)
	s.logger.WithField("category_id", category.ID).Info("category updated")
	return category, nil
}

// DeleteCategory удаляет категорию без подкатегорий и товаров.
func (s *Service) DeleteCategory(ctx context.Context, caller domain.Caller, id string) error {
	if err := caller.RequireStaff("delete category"); err != nil {
		return err
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		if _, err := uow.Categories().Get(ctx, id); err != nil {
			return err
		}
		children, err := uow.Categories().List(ctx, id)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return domain.ErrCategoryInUse
		}
		entries, err := uow.Catalog().List(ctx, domain.CatalogFilter{CategoryIDs: []string{id}, Limit: 1})
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			return domain.ErrCategoryInUse
		}
		if err := uow.Categories().Delete(ctx, id); err != nil {
			return err
		}
		return outbox.Record(ctx, uow.Outbox(), domain.AggregateCategory, id, domain.EventCategoryDeleted, CategoryEvent{
			CategoryID: id,
			ActorID:    caller.UserID,
			OccurredAt: s.clock(),
		})
	})
	if err != nil {
		return err
	}

	s.changed(ctx)
	s.logger.WithField("category_id", id).Info("category deleted")
	return nil
}

// GetCategory возвращает категорию.
func (s *Service) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	var category domain.Category
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		var err error
		category, err = uow.Categories().Get(ctx, id)
		return err
	})
	return category, err
}

// ListCategories возвращает подкатегории parentID или все категории.
func (s *Service) ListCategories(ctx context.Context, parentID string) ([]domain.Category, error) {
	var categories []domain.Category
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		if parentID != "" {
			if _, err := uow.Categories().Get(ctx, parentID); err != nil {
				return err
			}
		}
		var err error
		categories, err = uow.Categories().List(ctx, parentID)
		return err
	})
	return categories, err
}

// CreateDeliveryMode создаёт способ доставки.
func (s *Service) CreateDeliveryMode(ctx context.Context, caller domain.Caller, draft domain.DeliveryModeDraft) (domain.DeliveryMode, error) {
	if err := caller.RequireStaff("create delivery mode"); err != nil {
		return domain.DeliveryMode{}, err
	}

	var mode domain.DeliveryMode
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		created, err := domain.NewDeliveryMode(s.newID(), draft, s.clock())
		if err != nil {
			return err
		}
		if err := uow.DeliveryModes().Create(ctx, created); err != nil {
			return err
		}
		mode = created
		return outbox.Record(ctx, uow.Outbox(), domain.AggregateDeliveryMode, created.ID, domain.EventDeliveryModeCreated, DeliveryModeEvent{
			DeliveryModeID: created.ID,
			Name:           created.Name,
			Kind:           created.Kind,
			ActorID:        caller.UserID,
			OccurredAt:     created.CreatedAt,
		})
	})
	if err != nil {
		return domain.DeliveryMode{}, err
	}

	s.changed(ctx)
	s.logger.WithField("delivery_mode_id", mode.ID).Info("delivery mode created")
	return mode, nil
}

// UpdateDeliveryMode меняет способ доставки.
func (s *Service) UpdateDeliveryMode(ctx context.Context, caller domain.Caller, id string, draft domain.DeliveryModeDraft) (domain.DeliveryMode, error) {
	if err := caller.RequireStaff("update delivery mode"); err != nil {
		return domain.DeliveryMode{}, err
	}

	var mode domain.DeliveryMode
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		current, err := uow.DeliveryModes().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := current.Apply(draft, s.clock()); err != nil {
			return err
		}
		if err := uow.DeliveryModes().Save(ctx, current); err != nil {
			return fmt.Errorf("save delivery mode: %w", err)
		}
		mode = current
		mode.Version++
		return outbox.Record(ctx, uow.Outbox(), domain.AggregateDeliveryMode, current.ID, domain.EventDeliveryModeUpdated, DeliveryModeEvent{
			DeliveryModeID: current.ID,
			Name:           current.Name,
			Kind:           current.Kind,
			ActorID:        caller.UserID,
			OccurredAt:     current.UpdatedAt,
		})
	})
	if err != nil {
		return domain.DeliveryMode{}, err
	}

	s.changed(ctx)
	s.logger.WithField("delivery_mode_id", mode.ID).Info("delivery mode updated")
	return mode, nil
}

// DeleteDeliveryMode удаляет способ доставки, не указанный ни у одного товара.
func (s *Service) DeleteDeliveryMode(ctx context.Context, caller domain.Caller, id string) error {
	if err := caller.RequireStaff("delete delivery mode"); err != nil {
		return err
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		if _, err := uow.DeliveryModes().Get(ctx, id); err != nil {
			return err
		}
		entries, err := uow.Catalog().List(ctx, domain.CatalogFilter{DeliveryModeID: id, Limit: 1})
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			return domain.ErrDeliveryModeInUse
		}
		if err := uow.DeliveryModes().Delete(ctx, id); err != nil {
			return err
		}
		return outbox.Record(ctx, uow.Outbox(), domain.AggregateDeliveryMode, id, domain.EventDeliveryModeDeleted, DeliveryModeEvent{
			DeliveryModeID: id,
			ActorID:        caller.UserID,
			OccurredAt:     s.clock(),
		})
	})
	if err != nil {
		return err
	}

	s.changed(ctx)
	s.logger.WithField("delivery_mode_id", id).Info("delivery mode deleted")
	return nil
}

// ListDeliveryModes возвращает все способы доставки.
func (s *Service) ListDeliveryModes(ctx context.Context) ([]domain.DeliveryMode, error) {
	var modes []domain.DeliveryMode
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		var err error
		modes, err = uow.DeliveryModes().List(ctx)
		return err
	})
	return modes, err
}

func (s *Service) changed(ctx context.Context) {
	if s.onChange != nil {
		s.onChange(ctx)
	}
}

func loadParent(ctx context.Context, uow domain.UnitOfWork, parentID string) (*domain.Category, error) {
	parentID = strings.TrimSpace(parentID)
	if parentID == "" {
		return nil, nil
	}
	parent, err := uow.Categories().Get(ctx, parentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnknownCategory
		}
		return nil, err
	}
	return &parent, nil
}
