package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
)

// EntryView — товар витрины. Базовая цена и наценка покупателю не показываются.
type EntryView struct {
	ID             string          `json:"id"`
	SupplierID     string          `json:"supplier_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	CategoryID     string          `json:"category_id,omitempty"`
	DeliveryModeID string          `json:"delivery_mode_id,omitempty"`
	ImageRef       string          `json:"image_ref,omitempty"`
	Price          decimal.Decimal `json:"price"`
	InStock        bool            `json:"in_stock"`
	StockQuantity  int64           `json:"stock_quantity"`
	State          string          `json:"state"`
}

// EntryListView — страница каталога.
type EntryListView struct {
	Entries []EntryView `json:"entries"`
}

// CategoryView — категория или подкатегория витрины.
type CategoryView struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Name     string `json:"name"`
	ImageRef string `json:"image_ref,omitempty"`
}

// CategoryListView — список категорий.
type CategoryListView struct {
	Categories []CategoryView `json:"categories"`
}

// DeliveryModeView — способ доставки.
type DeliveryModeView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// DeliveryModeListView — список способов доставки.
type DeliveryModeListView struct {
	DeliveryModes []DeliveryModeView `json:"delivery_modes"`
}

// CartItemRequest — добавление или изменение позиции корзины.
type CartItemRequest struct {
	EntryID  string `json:"entry_id"`
	Quantity int64  `json:"quantity"`
}

// CartLineView — позиция корзины.
type CartLineView struct {
	EntryID   string          `json:"entry_id"`
	Name      string          `json:"name,omitempty"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Available bool            `json:"available"`
}

// CartView — корзина с ценами на момент чтения.
type CartView struct {
	Lines      []CartLineView  `json:"lines"`
	TotalItems int64           `json:"total_items"`
	Total      decimal.Decimal `json:"total"`
}

// CheckoutView — результат оформления.
type CheckoutView struct {
	OrderID string          `json:"order_id"`
	Total   decimal.Decimal `json:"total"`
}

// OrderLineView — позиция заказа.
type OrderLineView struct {
	EntryID   string          `json:"entry_id,omitempty"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// TimelineView — запись истории заказа.
type TimelineView struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

// OrderView — заказ покупателя.
type OrderView struct {
	ID        string          `json:"id"`
	State     string          `json:"state"`
	Total     decimal.Decimal `json:"total"`
	Lines     []OrderLineView `json:"lines"`
	Timeline  []TimelineView  `json:"timeline,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// OrderListView — история заказов.
type OrderListView struct {
	Orders []OrderView `json:"orders"`
}

// ReceiptView — подтверждение оплаты.
type ReceiptView struct {
	OrderID   string          `json:"order_id"`
	Total     decimal.Decimal `json:"total"`
	Reference string          `json:"reference"`
	PaidAt    time.Time       `json:"paid_at"`
}

func toEntryView(e domain.CatalogEntry) EntryView {
	return EntryView{
		ID:             e.ID,
		SupplierID:     e.SupplierID,
		Name:           e.Name,
		Description:    e.Description,
		CategoryID:     e.CategoryID,
		DeliveryModeID: e.DeliveryModeID,
		ImageRef:       e.ImageRef,
		Price:          e.FinalPrice,
		InStock:        e.StockQuantity > 0,
		StockQuantity:  e.StockQuantity,
		State:          string(e.State),
	}
}

func toEntryList(entries []domain.CatalogEntry) EntryListView {
	view := EntryListView{Entries: make([]EntryView, 0, len(entries))}
	for _, entry := range entries {
		view.Entries = append(view.Entries, toEntryView(entry))
	}
	return view
}

func toCategoryView(c domain.Category) CategoryView {
	return CategoryView{ID: c.ID, ParentID: c.ParentID, Name: c.Name, ImageRef: c.ImageRef}
}

func toCategoryList(categories []domain.Category) CategoryListView {
	view := CategoryListView{Categories: make([]CategoryView, 0, len(categories))}
	for _, category := range categories {
		view.Categories = append(view.Categories, toCategoryView(category))
	}
	return view
}

func toCartView(v cart.View) CartView {
	view := CartView{Lines: make([]CartLineView, 0, len(v.Lines)), TotalItems: v.TotalItems, Total: v.Total}
	for _, line := range v.Lines {
		view.Lines = append(view.Lines, CartLineView{
			EntryID:   line.EntryID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  line.Subtotal,
			Available: line.Available,
		})
	}
	return view
}

func toOrderView(o domain.Order, timeline []domain.TimelineEvent) OrderView {
	view := OrderView{
		ID:        o.ID,
		State:     string(o.State),
		Total:     o.Total,
		Lines:     make([]OrderLineView, 0, len(o.Lines)),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	for _, line := range o.Lines {
		view.Lines = append(view.Lines, OrderLineView{
			EntryID:   line.EntryID,
			Name:      line.EntryName,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  line.Subtotal(),
		})
	}
	for _, event := range timeline {
		view.Timeline = append(view.Timeline, TimelineView{Type: event.Type, Reason: event.Reason, Occurred: event.Occurred})
	}
	return view
}

func toCheckoutView(r ordering.CheckoutResult) CheckoutView {
	return CheckoutView{OrderID: r.OrderID, Total: r.Total}
}
