package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type categoryRepository struct {
	st *state
}

func (r categoryRepository) Create(_ context.Context, category domain.Category) error {
	if _, exists := r.st.categories[category.ID]; exists {
		return domain.ErrAlreadyExists
	}
	r.st.categories[category.ID] = category
	return nil
}

func (r categoryRepository) Get(_ context.Context, id string) (domain.Category, error) {
	category, ok := r.st.categories[id]
	if !ok {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	return category, nil
}

func (r categoryRepository) List(_ context.Context, parentID string) ([]domain.Category, error) {
	result := make([]domain.Category, 0, len(r.st.categories))
	for _, category := range r.st.categories {
		if parentID != "" && category.ParentID != parentID {
			continue
		}
		result = append(result, category)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Save перезаписывает категорию, проверяя версию.
func (r categoryRepository) Save(_ context.Context, category domain.Category) error {
	current, ok := r.st.categories[category.ID]
	if !ok {
		return domain.ErrCategoryNotFound
	}
	if current.Version != category.Version {
		return domain.ErrVersionConflict
	}
	category.Version++
	r.st.categories[category.ID] = category
	return nil
}

func (r categoryRepository) Delete(_ context.Context, id string) error {
	if _, ok := r.st.categories[id]; !ok {
		return domain.ErrCategoryNotFound
	}
	delete(r.st.categories, id)
	return nil
}

type deliveryModeRepository struct {
	st *state
}

func (r deliveryModeRepository) Create(_ context.Context, mode domain.DeliveryMode) error {
	if _, exists := r.st.deliveryModes[mode.ID]; exists {
		return domain.ErrAlreadyExists
	}
	r.st.deliveryModes[mode.ID] = mode
	return nil
}

func (r deliveryModeRepository) Get(_ context.Context, id string) (domain.DeliveryMode, error) {
	mode, ok := r.st.deliveryModes[id]
	if !ok {
		return domain.DeliveryMode{}, domain.ErrDeliveryModeNotFound
	}
	return mode, nil
}

func (r deliveryModeRepository) List(context.Context) ([]domain.DeliveryMode, error) {
	result := make([]domain.DeliveryMode, 0, len(r.st.deliveryModes))
	for _, mode := range r.st.deliveryModes {
		result = append(result, mode)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Save перезаписывает способ доставки, проверяя версию.
func (r deliveryModeRepository) Save(_ context.Context, mode domain.DeliveryMode) error {
	current, ok := r.st.deliveryModes[mode.ID]
	if !ok {
		return domain.ErrDeliveryModeNotFound
	}
	if current.Version != mode.Version {
		return domain.ErrVersionConflict
	}
	mode.Version++
	r.st.deliveryModes[mode.ID] = mode
	return nil
}

func (r deliveryModeRepository) Delete(_ context.Context, id string) error {
	if _, ok := r.st.deliveryModes[id]; !ok {
		return domain.ErrDeliveryModeNotFound
	}
	delete(r.st.deliveryModes, id)
	return nil
}

var (
	_ domain.CategoryRepository     = categoryRepository{}
	_ domain.DeliveryModeRepository = deliveryModeRepository{}
)
