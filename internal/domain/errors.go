package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Базовые категории доменных ошибок. Конкретные ошибки ниже оборачивают одну из них,
// поэтому транспортный слой проверяет только категорию через errors.Is.
var (
	// ErrValidation — некорректные входные данные, состояние не менялось.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound — запрошенная сущность не существует.
	ErrNotFound = errors.New("not found")
	// ErrForbidden — роль или владение не позволяют выполнить операцию.
	ErrForbidden = errors.New("operation not permitted")
	// ErrPrecondition — сущность находится в неподходящем состоянии.
	ErrPrecondition = errors.New("precondition failed")
	// ErrInsufficientStock — на складе меньше, чем запрошено.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict — операция конфликтует с уже зафиксированными данными.
	ErrConflict = errors.New("conflict")
)

var (
	// Ошибки валидации.
	ErrNameRequired        = fmt.Errorf("name is required: %w", ErrValidation)
	ErrBasePriceInvalid    = fmt.Errorf("base price must be non-negative with at most 2 decimal places: %w", ErrValidation)
	ErrMarkupInvalid       = fmt.Errorf("markup percent must be between 0 and 99999.9999 with at most 4 decimal places: %w", ErrValidation)
	ErrStockNegative       = fmt.Errorf("stock quantity must be non-negative: %w", ErrValidation)
	ErrQuantityInvalid     = fmt.Errorf("quantity must be greater than zero: %w", ErrValidation)
	ErrItemsRequired       = fmt.Errorf("order must contain at least one item: %w", ErrValidation)
	ErrUnknownItem         = fmt.Errorf("unknown catalog item: %w", ErrValidation)
	ErrCompanyNameRequired = fmt.Errorf("company name is required: %w", ErrValidation)
	ErrUserIDRequired      = fmt.Errorf("user id is required: %w", ErrValidation)
	ErrIDRequired          = fmt.Errorf("id is required: %w", ErrValidation)
	ErrUnknownState        = fmt.Errorf("unknown state: %w", ErrValidation)
	ErrAmountMismatch      = fmt.Errorf("order total does not match lines sum: %w", ErrValidation)
	ErrUnitPriceInvalid    = fmt.Errorf("unit price must be non-negative: %w", ErrValidation)
	ErrOrderBuyerRequired  = fmt.Errorf("order buyer is required: %w", ErrValidation)
	ErrSupplierIDRequired  = fmt.Errorf("supplier id is required: %w", ErrValidation)
	ErrUnknownCategory     = fmt.Errorf("unknown category: %w", ErrValidation)
	ErrUnknownDeliveryMode = fmt.Errorf("unknown delivery mode: %w", ErrValidation)
	ErrCategoryDepth       = fmt.Errorf("subcategory parent must be a top-level category: %w", ErrValidation)

	// ErrNoSupplierAccount — вызывающий пользователь не владеет аккаунтом поставщика.
	ErrNoSupplierAccount = fmt.Errorf("caller has no supplier account: %w", ErrForbidden)
	// ErrNotOwner — ресурс принадлежит другому пользователю или поставщику.
	ErrNotOwner = fmt.Errorf("caller does not own the resource: %w", ErrForbidden)

	// Ошибки отсутствующих сущностей.
	ErrCatalogEntryNotFound = fmt.Errorf("catalog entry %w", ErrNotFound)
	ErrSupplierNotFound     = fmt.Errorf("supplier %w", ErrNotFound)
	ErrOrderNotFound        = fmt.Errorf("order %w", ErrNotFound)
	ErrCategoryNotFound     = fmt.Errorf("category %w", ErrNotFound)
	ErrDeliveryModeNotFound = fmt.Errorf("delivery mode %w", ErrNotFound)

	// Ошибки предусловий переходов.
	ErrSupplierNotApproved  = fmt.Errorf("supplier not approved: %w", ErrPrecondition)
	ErrEntryNotPending      = fmt.Errorf("catalog entry is not pending: %w", ErrPrecondition)
	ErrEntryNotInactive     = fmt.Errorf("catalog entry is not inactive: %w", ErrPrecondition)
	ErrEntryAlreadyInactive = fmt.Errorf("catalog entry is already inactive: %w", ErrPrecondition)
	ErrEntryNotActive       = fmt.Errorf("catalog entry is not active: %w", ErrPrecondition)
	ErrSupplierSameState    = fmt.Errorf("supplier is already in requested state: %w", ErrPrecondition)
	ErrOrderNotPending      = fmt.Errorf("order is not pending: %w", ErrPrecondition)
	ErrOrderNotConfirmed    = fmt.Errorf("order is not confirmed: %w", ErrPrecondition)
	ErrOrderAlreadyRejected = fmt.Errorf("order is already rejected: %w", ErrPrecondition)

	// Конфликты.
	ErrEntryHasOrderLines  = fmt.Errorf("catalog entry is referenced by order lines: %w", ErrConflict)
	ErrOrderAlreadyShipped = fmt.Errorf("cannot reject an already-shipped order: %w", ErrConflict)
	ErrSupplierExists      = fmt.Errorf("user already owns a supplier account: %w", ErrConflict)
	ErrVersionConflict     = fmt.Errorf("version conflict: %w", ErrConflict)
	ErrAlreadyExists       = fmt.Errorf("record already exists: %w", ErrConflict)
	ErrCategoryInUse       = fmt.Errorf("category has subcategories or catalog entries: %w", ErrConflict)
	ErrDeliveryModeInUse   = fmt.Errorf("delivery mode is used by catalog entries: %w", ErrConflict)

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// StockShortage описывает одну позицию, по которой не хватает остатка.
type StockShortage struct {
	EntryID   string
	Name      string
	Available int64
	Requested int64
}

// InsufficientStockError перечисляет все позиции с нехваткой остатка,
// чтобы вызывающая сторона могла показать детали по каждой.
type InsufficientStockError struct {
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	if len(e.Shortages) == 0 {
		return ErrInsufficientStock.Error()
	}
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s (available %d, requested %d)", s.EntryID, s.Available, s.Requested))
	}
	return ErrInsufficientStock.Error() + ": " + strings.Join(parts, "; ")
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// LineError привязывает ошибку к конкретной позиции заказа.
type LineError struct {
	EntryID string
	Err     error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("item %s: %v", e.EntryID, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsIdempotencyConflict проверяет, что ключ идемпотентности уже занят.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// ShortagesOf возвращает детали нехватки остатка, если ошибка их содержит.
func ShortagesOf(err error) []StockShortage {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return stockErr.Shortages
	}
	return nil
}
