package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderRepository — in-memory реализация OrderRepository внутри транзакции.
type orderRepository struct {
	st *state
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r orderRepository) Create(_ context.Context, order domain.Order) error {
	if _, exists := r.st.orders[order.ID]; exists {
		return domain.ErrAlreadyExists
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.st.orders[order.ID] = cloneOrder(order)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	order, ok := r.st.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r orderRepository) GetForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return r.Get(ctx, id)
}

// ListByBuyer возвращает заказы покупателя, ограничивая выборку limit (если >0).
func (r orderRepository) ListByBuyer(_ context.Context, buyerID string, limit int) ([]domain.Order, error) {
	result := r.collect(func(o domain.Order) bool { return o.BuyerID == buyerID })
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return limitOrders(result, limit), nil
}

func (r orderRepository) ListByState(_ context.Context, state domain.OrderState, limit int) ([]domain.Order, error) {
	result := r.collect(func(o domain.Order) bool { return o.State == state })
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return limitOrders(result, limit), nil
}

// Save обновляет статус заказа, проверяя версию (optimistic locking). Позиции не меняются.
func (r orderRepository) Save(_ context.Context, order domain.Order) error {
	current, ok := r.st.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrVersionConflict
	}
	current.State = order.State
	current.UpdatedAt = order.UpdatedAt
	current.Version++
	r.st.orders[order.ID] = current
	return nil
}

func (r orderRepository) HasLinesForEntry(_ context.Context, entryID string) (bool, error) {
	for _, order := range r.st.orders {
		for _, line := range order.Lines {
			if line.EntryID == entryID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r orderRepository) ListSupplierSales(_ context.Context, supplierID string, limit int) ([]domain.SupplierSale, error) {
	result := make([]domain.SupplierSale, 0)
	for _, order := range r.st.orders {
		for _, line := range order.Lines {
			if line.SupplierID != supplierID {
				continue
			}
			result = append(result, domain.SupplierSale{
				OrderID:    order.ID,
				OrderState: order.State,
				EntryID:    line.EntryID,
				EntryName:  line.EntryName,
				Quantity:   line.Quantity,
				BasePrice:  line.BasePrice,
				Earnings:   domain.LineSubtotal(line.BasePrice, line.Quantity),
				SoldAt:     order.CreatedAt,
			})
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].SoldAt.Equal(result[j].SoldAt) {
			return result[i].SoldAt.After(result[j].SoldAt)
		}
		return result[i].OrderID > result[j].OrderID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r orderRepository) collect(match func(domain.Order) bool) []domain.Order {
	result := make([]domain.Order, 0)
	for _, order := range r.st.orders {
		if match(order) {
			result = append(result, cloneOrder(order))
		}
	}
	return result
}

func limitOrders(orders []domain.Order, limit int) []domain.Order {
	if limit > 0 && len(orders) > limit {
		return orders[:limit]
	}
	return orders
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Lines = append([]domain.OrderLine(nil), src.Lines...)
	return dst
}

var _ domain.OrderRepository = orderRepository{}
