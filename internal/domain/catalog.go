package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CatalogState описывает статус модерации товара в каталоге.
type CatalogState string

const (
	// CatalogStatePending — товар ждёт проверки сотрудником (начальное состояние).
	CatalogStatePending CatalogState = "pending"
	// CatalogStateActive — товар одобрен и продаётся.
	CatalogStateActive CatalogState = "active"
	// CatalogStateInactive — товар снят с продажи.
	CatalogStateInactive CatalogState = "inactive"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s CatalogState) Valid() bool {
	switch s {
	case CatalogStatePending, CatalogStateActive, CatalogStateInactive:
		return true
	default:
		return false
	}
}

// CatalogDraft — редактируемые поставщиком поля товара.
type CatalogDraft struct {
	Name           string
	Description    string
	CategoryID     string
	DeliveryModeID string
	// ImageRef — непрозрачное имя файла изображения, ядро его не интерпретирует.
	ImageRef      string
	BasePrice     decimal.Decimal
	StockQuantity int64
}

// Validate проверяет черновик товара.
func (d CatalogDraft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrNameRequired
	}
	if err := ValidateBasePrice(d.BasePrice); err != nil {
		return err
	}
	if d.StockQuantity < 0 {
		return ErrStockNegative
	}
	return nil
}

// CatalogEntry — товар поставщика. FinalPrice меняется только вместе с
// BasePrice или MarkupPercent через reprice.
type CatalogEntry struct {
	ID             string
	SupplierID     string
	Name           string
	Description    string
	CategoryID     string
	DeliveryModeID string
	ImageRef       string
	BasePrice      decimal.Decimal
	MarkupPercent  decimal.Decimal
	FinalPrice     decimal.Decimal
	StockQuantity  int64
	State          CatalogState
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewCatalogEntry создаёт товар в статусе pending с нулевой наценкой.
func NewCatalogEntry(id, supplierID string, draft CatalogDraft, now time.Time) (CatalogEntry, error) {
	if strings.TrimSpace(supplierID) == "" {
		return CatalogEntry{}, ErrSupplierIDRequired
	}
	if err := draft.Validate(); err != nil {
		return CatalogEntry{}, err
	}

	entry := CatalogEntry{
		ID:         id,
		SupplierID: supplierID,
		State:      CatalogStatePending,
		CreatedAt:  now,
	}
	entry.applyDraft(draft)
	if err := entry.reprice(draft.BasePrice, decimal.Zero); err != nil {
		return CatalogEntry{}, err
	}
	entry.UpdatedAt = now
	return entry, nil
}

// ApplyEdit применяет правки. Правка владельцем-поставщиком всегда возвращает
// товар на модерацию, независимо от предыдущего статуса.
func (e *CatalogEntry) ApplyEdit(draft CatalogDraft, byOwner bool, now time.Time) error {
	if err := draft.Validate(); err != nil {
		return err
	}
	if err := e.reprice(draft.BasePrice, e.MarkupPercent); err != nil {
		return err
	}
	e.applyDraft(draft)
	if byOwner {
		e.State = CatalogStatePending
	}
	e.UpdatedAt = now
	return nil
}

// Activate одобряет товар: pending → active. Поставщик должен быть approved.
// markup == nil оставляет текущую наценку.
func (e *CatalogEntry) Activate(supplier SupplierAccount, markup *decimal.Decimal, now time.Time) error {
	switch e.State {
	case CatalogStatePending:
	case CatalogStateActive, CatalogStateInactive:
		return ErrEntryNotPending
	default:
		return ErrUnknownState
	}
	if supplier.ID != e.SupplierID || !supplier.CanSell() {
		return ErrSupplierNotApproved
	}

	newMarkup := e.MarkupPercent
	if markup != nil {
		newMarkup = *markup
	}
	if err := e.reprice(e.BasePrice, newMarkup); err != nil {
		return err
	}
	e.State = CatalogStateActive
	e.UpdatedAt = now
	return nil
}

// Suspend снимает товар с продажи: pending|active → inactive.
func (e *CatalogEntry) Suspend(now time.Time) error {
	switch e.State {
	case CatalogStatePending, CatalogStateActive:
		e.State = CatalogStateInactive
		e.UpdatedAt = now
		return nil
	case CatalogStateInactive:
		return ErrEntryAlreadyInactive
	default:
		return ErrUnknownState
	}
}

// Reactivate возвращает снятый товар на модерацию: inactive → pending.
// Для pending и active это ошибка, а не пустой переход.
func (e *CatalogEntry) Reactivate(now time.Time) error {
	switch e.State {
	case CatalogStateInactive:
		e.State = CatalogStatePending
		e.UpdatedAt = now
		return nil
	case CatalogStatePending, CatalogStateActive:
		return ErrEntryNotInactive
	default:
		return ErrUnknownState
	}
}

// Sellable сообщает, можно ли заказать товар.
func (e CatalogEntry) Sellable() bool {
	return e.State == CatalogStateActive
}

// Shortage возвращает описание нехватки, если остатка меньше qty.
func (e CatalogEntry) Shortage(qty int64) (StockShortage, bool) {
	if e.StockQuantity >= qty {
		return StockShortage{}, false
	}
	return StockShortage{
		EntryID:   e.ID,
		Name:      e.Name,
		Available: e.StockQuantity,
		Requested: qty,
	}, true
}

// DecrementStock списывает остаток при отгрузке.
func (e *CatalogEntry) DecrementStock(qty int64, now time.Time) error {
	if qty <= 0 {
		return ErrQuantityInvalid
	}
	if shortage, short := e.Shortage(qty); short {
		return &InsufficientStockError{Shortages: []StockShortage{shortage}}
	}
	e.StockQuantity -= qty
	e.UpdatedAt = now
	return nil
}

// VisibleTo реализует правило видимости: покупатели и анонимы видят только
// активные товары, сотрудники видят всё, поставщик видит свои товары в любом статусе.
// callerSupplierID пустой, если у вызывающего нет аккаунта поставщика.
func (e CatalogEntry) VisibleTo(caller Caller, callerSupplierID string) bool {
	if e.State == CatalogStateActive || caller.IsStaff() {
		return true
	}
	return callerSupplierID != "" && callerSupplierID == e.SupplierID
}

// ValidateInvariants проверяет согласованность цены и остатка.
func (e CatalogEntry) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(e.Name) == "" {
		errs = append(errs, ErrNameRequired)
	}
	if e.StockQuantity < 0 {
		errs = append(errs, ErrStockNegative)
	}
	if !e.State.Valid() {
		errs = append(errs, ErrUnknownState)
	}
	expected, err := ComputeFinalPrice(e.BasePrice, e.MarkupPercent)
	if err != nil {
		errs = append(errs, err)
	} else if !expected.Equal(e.FinalPrice) {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// reprice — единственное место, где меняются цена и наценка.
func (e *CatalogEntry) reprice(basePrice, markupPercent decimal.Decimal) error {
	finalPrice, err := ComputeFinalPrice(basePrice, markupPercent)
	if err != nil {
		return err
	}
	e.BasePrice = basePrice
	e.MarkupPercent = markupPercent
	e.FinalPrice = finalPrice
	return nil
}

func (e *CatalogEntry) applyDraft(draft CatalogDraft) {
	e.Name = strings.TrimSpace(draft.Name)
	e.Description = draft.Description
	e.CategoryID = draft.CategoryID
	e.DeliveryModeID = draft.DeliveryModeID
	e.ImageRef = draft.ImageRef
	e.StockQuantity = draft.StockQuantity
}
