package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	categoryColumns     = `id, parent_id, name, image_ref, version, created_at, updated_at`
	deliveryModeColumns = `id, name, kind, details, version, created_at, updated_at`
)

type categoryRepository struct {
	q querier
}

func (r categoryRepository) Create(ctx context.Context, category domain.Category) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		category.ID,
		nullIfEmpty(category.ParentID),
		category.Name,
		category.ImageRef,
		category.Version,
		category.CreatedAt.UTC(),
		category.UpdatedAt.UTC(),
	)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return domain.ErrAlreadyExists
	case isForeignKeyViolation(err):
		return domain.ErrUnknownCategory
	}
	return fmt.Errorf("insert category: %w", err)
}

func (r categoryRepository) Get(ctx context.Context, id string) (domain.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	category, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Category{}, domain.ErrCategoryNotFound
		}
		return domain.Category{}, fmt.Errorf("select category: %w", err)
	}
	return category, nil
}

func (r categoryRepository) List(ctx context.Context, parentID string) ([]domain.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		WHERE ($1 = '' OR parent_id = $1)
		ORDER BY name, id
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Category, 0)
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		result = append(result, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return result, nil
}

func (r categoryRepository) Save(ctx context.Context, category domain.Category) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE categories
		SET parent_id = $3,
		    name = $4,
		    image_ref = $5,
		    updated_at = $6,
		    version = version + 1
		WHERE id = $1 AND version = $2
	`,
		category.ID,
		category.Version,
		nullIfEmpty(category.ParentID),
		category.Name,
		category.ImageRef,
		category.UpdatedAt.UTC(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrUnknownCategory
		}
		return fmt.Errorf("update category: %w", err)
	}
	return versionedUpdateResult(ctx, r.q, res, "categories", category.ID, domain.ErrCategoryNotFound)
}

func (r categoryRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrCategoryInUse
		}
		return fmt.Errorf("delete category: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("category rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCategoryNotFound
	}
	return nil
}

func scanCategory(row rowScanner) (domain.Category, error) {
	var (
		category domain.Category
		parentID sql.NullString
	)
	if err := row.Scan(
		&category.ID,
		&parentID,
		&category.Name,
		&category.ImageRef,
		&category.Version,
		&category.CreatedAt,
		&category.UpdatedAt,
	); err != nil {
		return domain.Category{}, err
	}
	category.ParentID = parentID.String
	category.CreatedAt = category.CreatedAt.UTC()
	category.UpdatedAt = category.UpdatedAt.UTC()
	return category, nil
}

type deliveryModeRepository struct {
	q querier
}

func (r deliveryModeRepository) Create(ctx context.Context, mode domain.DeliveryMode) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO delivery_modes (`+deliveryModeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		mode.ID,
		mode.Name,
		mode.Kind,
		mode.Details,
		mode.Version,
		mode.CreatedAt.UTC(),
		mode.UpdatedAt.UTC(),
	)
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return fmt.Errorf("insert delivery mode: %w", err)
}

func (r deliveryModeRepository) Get(ctx context.Context, id string) (domain.DeliveryMode, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.q.QueryRowContext(ctx, `SELECT `+deliveryModeColumns+` FROM delivery_modes WHERE id = $1`, id)
	mode, err := scanDeliveryMode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DeliveryMode{}, domain.ErrDeliveryModeNotFound
		}
		return domain.DeliveryMode{}, fmt.Errorf("select delivery mode: %w", err)
	}
	return mode, nil
}

func (r deliveryModeRepository) List(ctx context.Context) ([]domain.DeliveryMode, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `SELECT `+deliveryModeColumns+` FROM delivery_modes ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list delivery modes: %w", err)
	}
	defer rows.Close()

	result := make([]domain.DeliveryMode, 0)
	for rows.Next() {
		mode, err := scanDeliveryMode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery mode: %w", err)
		}
		result = append(result, mode)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery modes: %w", err)
	}
	return result, nil
}

func (r deliveryModeRepository) Save(ctx context.Context, mode domain.DeliveryMode) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE delivery_modes
		SET name = $3,
		    kind = $4,
		    details = $5,
		    updated_at = $6,
		    version = version + 1
		WHERE id = $1 AND version = $2
	`,
		mode.ID,
		mode.Version,
		mode.Name,
		mode.Kind,
		mode.Details,
		mode.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("update delivery mode: %w", err)
	}
	return versionedUpdateResult(ctx, r.q, res, "delivery_modes", mode.ID, domain.ErrDeliveryModeNotFound)
}

func (r deliveryModeRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM delivery_modes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete delivery mode: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delivery mode rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrDeliveryModeNotFound
	}
	return nil
}

func scanDeliveryMode(row rowScanner) (domain.DeliveryMode, error) {
	var mode domain.DeliveryMode
	if err := row.Scan(
		&mode.ID,
		&mode.Name,
		&mode.Kind,
		&mode.Details,
		&mode.Version,
		&mode.CreatedAt,
		&mode.UpdatedAt,
	); err != nil {
		return domain.DeliveryMode{}, err
	}
	mode.CreatedAt = mode.CreatedAt.UTC()
	mode.UpdatedAt = mode.UpdatedAt.UTC()
	return mode, nil
}

// versionedUpdateResult различает отсутствие строки и конфликт версий после
// UPDATE ... WHERE version = $2.
func versionedUpdateResult(ctx context.Context, q querier, res sql.Result, table, id string, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", table, err)
	}
	if affected > 0 {
		return nil
	}
	exists, err := rowExists(ctx, q, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id)
	if err != nil {
		return fmt.Errorf("check %s existence: %w", table, err)
	}
	if !exists {
		return notFound
	}
	return domain.ErrVersionConflict
}

var (
	_ domain.CategoryRepository     = categoryRepository{}
	_ domain.DeliveryModeRepository = deliveryModeRepository{}
)
