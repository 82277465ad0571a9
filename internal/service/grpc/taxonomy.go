package grpcsvc

import (
	"context"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
)

// CreateCategory создаёт категорию или подкатегорию.
func (s *BackOffice) CreateCategory(ctx context.Context, req *CategoryDraft) (*Category, error) {
	return withIdempotency(s, ctx, methodCreateCategory, req, false, func(ctx context.Context) (*Category, error) {
		category, err := s.taxonomy.CreateCategory(ctx, auth.CallerFrom(ctx), req.toDomain())
		if err != nil {
			return nil, toStatus(s.logger, methodCreateCategory, err)
		}
		return toCategory(category), nil
	})
}

// UpdateCategory меняет категорию.
func (s *BackOffice) UpdateCategory(ctx context.Context, req *UpdateCategoryRequest) (*Category, error) {
	return withIdempotency(s, ctx, methodUpdateCategory, req, false, func(ctx context.Context) (*Category, error) {
		category, err := s.taxonomy.UpdateCategory(ctx, auth.CallerFrom(ctx), req.ID, req.Draft.toDomain())
		if err != nil {
			return nil, toStatus(s.logger, methodUpdateCategory, err)
		}
		return toCategory(category), nil
	})
}

// DeleteCategory удаляет категорию без подкатегорий и товаров.
func (s *BackOffice) DeleteCategory(ctx context.Context, req *IDRequest) (*Empty, error) {
	return withIdempotency(s, ctx, methodDeleteCategory, req, false, func(ctx context.Context) (*Empty, error) {
		if err := s.taxonomy.DeleteCategory(ctx, auth.CallerFrom(ctx), req.ID); err != nil {
			return nil, toStatus(s.logger, methodDeleteCategory, err)
		}
		return &Empty{}, nil
	})
}

// ListCategories возвращает категории.
func (s *BackOffice) ListCategories(ctx context.Context, req *ListCategoriesRequest) (*CategoryList, error) {
	categories, err := s.taxonomy.ListCategories(ctx, req.ParentID)
	if err != nil {
		return nil, toStatus(s.logger, methodListCategories, err)
	}
	resp := &CategoryList{Categories: make([]Category, 0, len(categories))}
	for _, category := range categories {
		resp.Categories = append(resp.Categories, *toCategory(category))
	}
	return resp, nil
}

// CreateDeliveryMode создаёт способ доставки.
func (s *BackOffice) CreateDeliveryMode(ctx context.Context, req *DeliveryModeDraft) (*DeliveryMode, error) {
	return withIdempotency(s, ctx, methodCreateDeliveryMode, req, false, func(ctx context.Context) (*DeliveryMode, error) {
		mode, err := s.taxonomy.CreateDeliveryMode(ctx, auth.CallerFrom(ctx), req.toDomain())
		if err != nil {
			return nil, toStatus(s.logger, methodCreateDeliveryMode, err)
		}
		return toDeliveryMode(mode), nil
	})
}

// UpdateDeliveryMode меняет способ доставки.
func (s *BackOffice) UpdateDeliveryMode(ctx context.Context, req *UpdateDeliveryModeRequest) (*DeliveryMode, error) {
	return withIdempotency(s, ctx, methodUpdateDeliveryMode, req, false, func(ctx context.Context) (*DeliveryMode, error) {
		mode, err := s.taxonomy.UpdateDeliveryMode(ctx, auth.CallerFrom(ctx), req.ID, req.Draft.toDomain())
		if err != nil {
			return nil, toStatus(s.logger, methodUpdateDeliveryMode, err)
		}
		return toDeliveryMode(mode), nil
	})
}

// DeleteDeliveryMode удаляет неиспользуемый способ доставки.
func (s *BackOffice) DeleteDeliveryMode(ctx context.Context, req *IDRequest) (*Empty, error) {
	return withIdempotency(s, ctx, methodDeleteDeliveryMode, req, false, func(ctx context.Context) (*Empty, error) {
		if err := s.taxonomy.DeleteDeliveryMode(ctx, auth.CallerFrom(ctx), req.ID); err != nil {
			return nil, toStatus(s.logger, methodDeleteDeliveryMode, err)
		}
		return &Empty{}, nil
	})
}

// ListDeliveryModes возвращает способы доставки.
func (s *BackOffice) ListDeliveryModes(ctx context.Context, _ *Empty) (*DeliveryModeList, error) {
	modes, err := s.taxonomy.ListDeliveryModes(ctx)
	if err != nil {
		return nil, toStatus(s.logger, methodListDeliveryModes, err)
	}
	resp := &DeliveryModeList{DeliveryModes: make([]DeliveryMode, 0, len(modes))}
	for _, mode := range modes {
		resp.DeliveryModes = append(resp.DeliveryModes, *toDeliveryMode(mode))
	}
	return resp, nil
}
