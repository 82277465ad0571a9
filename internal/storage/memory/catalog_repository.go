package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// catalogRepository работает с копией состояния внутри транзакции.
type catalogRepository struct {
	st *state
}

// Create сохраняет новый товар, если ID ещё не занят.
func (r catalogRepository) Create(_ context.Context, entry domain.CatalogEntry) error {
	if _, exists := r.st.entries[entry.ID]; exists {
		return domain.ErrAlreadyExists
	}
	r.st.entries[entry.ID] = entry
	return nil
}

func (r catalogRepository) Get(_ context.Context, id string) (domain.CatalogEntry, error) {
	entry, ok := r.st.entries[id]
	if !ok {
		return domain.CatalogEntry{}, domain.ErrCatalogEntryNotFound
	}
	return entry, nil
}

// GetForUpdate совпадает с Get: транзакции in-memory хранилища и так сериализованы.
func (r catalogRepository) GetForUpdate(ctx context.Context, id string) (domain.CatalogEntry, error) {
	return r.Get(ctx, id)
}

func (r catalogRepository) List(_ context.Context, filter domain.CatalogFilter) ([]domain.CatalogEntry, error) {
	states := make(map[domain.CatalogState]bool, len(filter.States))
	for _, s := range filter.States {
		states[s] = true
	}

	categories := make(map[string]bool, len(filter.CategoryIDs))
	for _, id := range filter.CategoryIDs {
		categories[id] = true
	}

	result := make([]domain.CatalogEntry, 0)
	for _, entry := range r.st.entries {
		if len(states) > 0 && !states[entry.State] {
			continue
		}
		if filter.SupplierID != "" && entry.SupplierID != filter.SupplierID {
			continue
		}
		if filter.CategoryID != "" && entry.CategoryID != filter.CategoryID {
			continue
		}
		if len(categories) > 0 && !categories[entry.CategoryID] {
			continue
		}
		if filter.DeliveryModeID != "" && entry.DeliveryModeID != filter.DeliveryModeID {
			continue
		}
		if filter.InStockOnly && entry.StockQuantity <= 0 {
			continue
		}
		result = append(result, entry)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Save перезаписывает товар, проверяя версию (optimistic locking).
func (r catalogRepository) Save(_ context.Context, entry domain.CatalogEntry) error {
	current, ok := r.st.entries[entry.ID]
	if !ok {
		return domain.ErrCatalogEntryNotFound
	}
	if current.Version != entry.Version {
		return domain.ErrVersionConflict
	}
	if entry.StockQuantity < 0 {
		return domain.ErrStockNegative
	}
	entry.Version++
	r.st.entries[entry.ID] = entry
	return nil
}

func (r catalogRepository) Delete(_ context.Context, id string) error {
	if _, ok := r.st.entries[id]; !ok {
		return domain.ErrCatalogEntryNotFound
	}
	delete(r.st.entries, id)

	// Позиции исторических заказов переживают удаление товара и теряют только ссылку.
	for orderID, order := range r.st.orders {
		detached := false
		lines := order.Lines
		for i := range lines {
			if lines[i].EntryID != id {
				continue
			}
			if !detached {
				lines = append([]domain.OrderLine(nil), lines...)
				detached = true
			}
			lines[i].EntryID = ""
		}
		if detached {
			order.Lines = lines
			r.st.orders[orderID] = order
		}
	}
	return nil
}

var _ domain.CatalogRepository = catalogRepository{}
