package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type supplierRepository struct {
	st *state
}

// Create сохраняет поставщика; у пользователя может быть только один аккаунт.
func (r supplierRepository) Create(_ context.Context, supplier domain.SupplierAccount) error {
	if _, exists := r.st.suppliers[supplier.ID]; exists {
		return domain.ErrAlreadyExists
	}
	for _, existing := range r.st.suppliers {
		if existing.UserID == supplier.UserID {
			return domain.ErrSupplierExists
		}
	}
	r.st.suppliers[supplier.ID] = supplier
	return nil
}

func (r supplierRepository) Get(_ context.Context, id string) (domain.SupplierAccount, error) {
	supplier, ok := r.st.suppliers[id]
	if !ok {
		return domain.SupplierAccount{}, domain.ErrSupplierNotFound
	}
	return supplier, nil
}

func (r supplierRepository) GetByUserID(_ context.Context, userID string) (domain.SupplierAccount, error) {
	for _, supplier := range r.st.suppliers {
		if supplier.UserID == userID {
			return supplier, nil
		}
	}
	return domain.SupplierAccount{}, domain.ErrSupplierNotFound
}

func (r supplierRepository) List(_ context.Context, state domain.SupplierState, limit int) ([]domain.SupplierAccount, error) {
	result := make([]domain.SupplierAccount, 0, len(r.st.suppliers))
	for _, supplier := range r.st.suppliers {
		if state != "" && supplier.State != state {
			continue
		}
		result = append(result, supplier)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Save перезаписывает поставщика, проверяя версию.
func (r supplierRepository) Save(_ context.Context, supplier domain.SupplierAccount) error {
	current, ok := r.st.suppliers[supplier.ID]
	if !ok {
		return domain.ErrSupplierNotFound
	}
	if current.Version != supplier.Version {
		return domain.ErrVersionConflict
	}
	supplier.Version++
	r.st.suppliers[supplier.ID] = supplier
	return nil
}

var _ domain.SupplierRepository = supplierRepository{}
