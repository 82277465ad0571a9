package grpcsvc

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Empty — пустой ответ.
type Empty struct{}

// RegisterSupplierRequest регистрирует поставщика. UserID задаёт только сотрудник.
type RegisterSupplierRequest struct {
	UserID      string `json:"user_id,omitempty"`
	CompanyName string `json:"company_name"`
	TaxID       string `json:"tax_id,omitempty"`
}

// IDRequest адресует сущность по идентификатору.
type IDRequest struct {
	ID string `json:"id"`
}

// ListSuppliersRequest фильтрует поставщиков по статусу.
type ListSuppliersRequest struct {
	State string `json:"state,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// SetSupplierStateRequest переводит поставщика в статус.
type SetSupplierStateRequest struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// Supplier — аккаунт поставщика.
type Supplier struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CompanyName string    `json:"company_name"`
	TaxID       string    `json:"tax_id,omitempty"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SupplierList — список поставщиков.
type SupplierList struct {
	Suppliers []Supplier `json:"suppliers"`
}

// EntryDraft — редактируемые поля товара. Цена продажи не принимается от клиента.
type EntryDraft struct {
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	CategoryID     string          `json:"category_id,omitempty"`
	DeliveryModeID string          `json:"delivery_mode_id,omitempty"`
	ImageRef       string          `json:"image_ref,omitempty"`
	BasePrice      decimal.Decimal `json:"base_price"`
	StockQuantity  int64           `json:"stock_quantity"`
}

// SubmitEntryRequest создаёт товар.
type SubmitEntryRequest struct {
	SupplierID string     `json:"supplier_id,omitempty"`
	Draft      EntryDraft `json:"draft"`
}

// EditEntryRequest правит товар.
type EditEntryRequest struct {
	ID    string     `json:"id"`
	Draft EntryDraft `json:"draft"`
}

// ActivateEntryRequest одобряет товар; без markup_percent наценка не меняется.
type ActivateEntryRequest struct {
	ID            string           `json:"id"`
	MarkupPercent *decimal.Decimal `json:"markup_percent,omitempty"`
}

// ListEntriesRequest фильтрует товары.
type ListEntriesRequest struct {
	State       string `json:"state,omitempty"`
	SupplierID  string `json:"supplier_id,omitempty"`
	CategoryID  string `json:"category_id,omitempty"`
	InStockOnly bool   `json:"in_stock_only,omitempty"`
	Mine        bool   `json:"mine,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// Entry — товар каталога.
type Entry struct {
	ID             string          `json:"id"`
	SupplierID     string          `json:"supplier_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	CategoryID     string          `json:"category_id,omitempty"`
	DeliveryModeID string          `json:"delivery_mode_id,omitempty"`
	ImageRef       string          `json:"image_ref,omitempty"`
	BasePrice      decimal.Decimal `json:"base_price"`
	MarkupPercent  decimal.Decimal `json:"markup_percent"`
	FinalPrice     decimal.Decimal `json:"final_price"`
	StockQuantity  int64           `json:"stock_quantity"`
	State          string          `json:"state"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// EntryList — список товаров.
type EntryList struct {
	Entries []Entry `json:"entries"`
}

// SupplierSalesRequest запрашивает продажи поставщика.
type SupplierSalesRequest struct {
	SupplierID string `json:"supplier_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// Sale — проданная позиция товара поставщика.
type Sale struct {
	OrderID    string          `json:"order_id"`
	OrderState string          `json:"order_state"`
	EntryID    string          `json:"entry_id,omitempty"`
	EntryName  string          `json:"entry_name"`
	Quantity   int64           `json:"quantity"`
	BasePrice  decimal.Decimal `json:"base_price"`
	Earnings   decimal.Decimal `json:"earnings"`
	SoldAt     time.Time       `json:"sold_at"`
}

// SalesReport — продажи и суммарный заработок поставщика.
type SalesReport struct {
	Sales         []Sale          `json:"sales"`
	TotalEarnings decimal.Decimal `json:"total_earnings"`
}

// RejectOrderRequest отклоняет заказ с причиной.
type RejectOrderRequest struct {
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"`
}

// ListOrdersRequest — очередь заказов в статусе.
type ListOrdersRequest struct {
	State string `json:"state"`
	Limit int    `json:"limit,omitempty"`
}

// OrderLine — позиция заказа.
type OrderLine struct {
	ID         string          `json:"id"`
	EntryID    string          `json:"entry_id,omitempty"`
	EntryName  string          `json:"entry_name"`
	SupplierID string          `json:"supplier_id"`
	Quantity   int64           `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// TimelineEvent — запись истории заказа.
type TimelineEvent struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	ActorID  string    `json:"actor_id,omitempty"`
	Occurred time.Time `json:"occurred"`
}

// Order — заказ с позициями и, для GetOrder, историей.
type Order struct {
	ID        string          `json:"id"`
	BuyerID   string          `json:"buyer_id"`
	State     string          `json:"state"`
	Total     decimal.Decimal `json:"total"`
	Lines     []OrderLine     `json:"lines"`
	Timeline  []TimelineEvent `json:"timeline,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// OrderList — список заказов.
type OrderList struct {
	Orders []Order `json:"orders"`
}

func (d EntryDraft) toDomain() domain.CatalogDraft {
	return domain.CatalogDraft{
		Name:           d.Name,
		Description:    d.Description,
		CategoryID:     d.CategoryID,
		DeliveryModeID: d.DeliveryModeID,
		ImageRef:       d.ImageRef,
		BasePrice:      d.BasePrice,
		StockQuantity:  d.StockQuantity,
	}
}

func toSupplier(s domain.SupplierAccount) *Supplier {
	return &Supplier{
		ID:          s.ID,
		UserID:      s.UserID,
		CompanyName: s.CompanyName,
		TaxID:       s.TaxID,
		State:       string(s.State),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func toEntry(e domain.CatalogEntry) Entry {
	return Entry{
		ID:             e.ID,
		SupplierID:     e.SupplierID,
		Name:           e.Name,
		Description:    e.Description,
		CategoryID:     e.CategoryID,
		DeliveryModeID: e.DeliveryModeID,
		ImageRef:       e.ImageRef,
		BasePrice:      e.BasePrice,
		MarkupPercent:  e.MarkupPercent,
		FinalPrice:     e.FinalPrice,
		StockQuantity:  e.StockQuantity,
		State:          string(e.State),
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func toOrder(o domain.Order, timeline []domain.TimelineEvent) Order {
	lines := make([]OrderLine, 0, len(o.Lines))
	for _, line := range o.Lines {
		lines = append(lines, OrderLine{
			ID:         line.ID,
			EntryID:    line.EntryID,
			EntryName:  line.EntryName,
			SupplierID: line.SupplierID,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			Subtotal:   line.Subtotal(),
		})
	}

	events := make([]TimelineEvent, 0, len(timeline))
	for _, event := range timeline {
		events = append(events, TimelineEvent{
			Type:     event.Type,
			Reason:   event.Reason,
			ActorID:  event.ActorID,
			Occurred: event.Occurred,
		})
	}

	return Order{
		ID:        o.ID,
		BuyerID:   o.BuyerID,
		State:     string(o.State),
		Total:     o.Total,
		Lines:     lines,
		Timeline:  events,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

// CategoryDraft — редактируемые поля категории. ParentID делает её подкатегорией.
type CategoryDraft struct {
	Name     string `json:"name"`
	ImageRef string `json:"image_ref,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

// UpdateCategoryRequest меняет категорию.
type UpdateCategoryRequest struct {
	ID    string        `json:"id"`
	Draft CategoryDraft `json:"draft"`
}

// ListCategoriesRequest — подкатегории ParentID или все категории.
type ListCategoriesRequest struct {
	ParentID string `json:"parent_id,omitempty"`
}

// Category — категория каталога.
type Category struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Name      string    `json:"name"`
	ImageRef  string    `json:"image_ref,omitempty"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CategoryList — список категорий.
type CategoryList struct {
	Categories []Category `json:"categories"`
}

// DeliveryModeDraft — редактируемые поля способа доставки.
type DeliveryModeDraft struct {
	Name    string `json:"name"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// UpdateDeliveryModeRequest меняет способ доставки.
type UpdateDeliveryModeRequest struct {
	ID    string            `json:"id"`
	Draft DeliveryModeDraft `json:"draft"`
}

// DeliveryMode — способ доставки.
type DeliveryMode struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind,omitempty"`
	Details   string    `json:"details,omitempty"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeliveryModeList — список способов доставки.
type DeliveryModeList struct {
	DeliveryModes []DeliveryMode `json:"delivery_modes"`
}

func (d CategoryDraft) toDomain() domain.CategoryDraft {
	return domain.CategoryDraft{Name: d.Name, ImageRef: d.ImageRef, ParentID: d.ParentID}
}

func (d DeliveryModeDraft) toDomain() domain.DeliveryModeDraft {
	return domain.DeliveryModeDraft{Name: d.Name, Kind: d.Kind, Details: d.Details}
}

func toCategory(c domain.Category) *Category {
	return &Category{
		ID:        c.ID,
		ParentID:  c.ParentID,
		Name:      c.Name,
		ImageRef:  c.ImageRef,
		Version:   c.Version,
		UpdatedAt: c.UpdatedAt,
	}
}

func toDeliveryMode(m domain.DeliveryMode) *DeliveryMode {
	return &DeliveryMode{
		ID:        m.ID,
		Name:      m.Name,
		Kind:      m.Kind,
		Details:   m.Details,
		Version:   m.Version,
		UpdatedAt: m.UpdatedAt,
	}
}
