package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const catalogColumns = `
	id, supplier_id, name, description, category_id, delivery_mode_id, image_ref,
	base_price, markup_percent, final_price, stock_quantity, state, version, created_at, updated_at`

type catalogRepository struct {
	q querier
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r catalogRepository) Create(ctx context.Context, entry domain.CatalogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO catalog_entries (`+catalogColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		entry.ID,
		entry.SupplierID,
		entry.Name,
		entry.Description,
		entry.CategoryID,
		entry.DeliveryModeID,
		entry.ImageRef,
		entry.BasePrice,
		entry.MarkupPercent,
		entry.FinalPrice,
		entry.StockQuantity,
		string(entry.State),
		entry.Version,
		entry.CreatedAt.UTC(),
		entry.UpdatedAt.UTC(),
	)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return domain.ErrAlreadyExists
	case isForeignKeyViolation(err):
		return domain.ErrSupplierNotFound
	default:
		return fmt.Errorf("insert catalog entry: %w", err)
	}
}

func (r catalogRepository) Get(ctx context.Context, id string) (domain.CatalogEntry, error) {
	return r.getOne(ctx, id, "")
}

func (r catalogRepository) GetForUpdate(ctx context.Context, id string) (domain.CatalogEntry, error) {
	return r.getOne(ctx, id, " FOR UPDATE")
}

func (r catalogRepository) getOne(ctx context.Context, id, lockClause string) (domain.CatalogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.q.QueryRowContext(ctx, `
		SELECT `+catalogColumns+`
		FROM catalog_entries
		WHERE id = $1`+lockClause, id)

	entry, err := scanCatalogEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CatalogEntry{}, domain.ErrCatalogEntryNotFound
		}
		return domain.CatalogEntry{}, fmt.Errorf("select catalog entry: %w", err)
	}
	return entry, nil
}

func (r catalogRepository) List(ctx context.Context, filter domain.CatalogFilter) ([]domain.CatalogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		conditions []string
		args       []any
	)
	placeholder := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.States) > 0 {
		marks := make([]string, 0, len(filter.States))
		for _, s := range filter.States {
			marks = append(marks, placeholder(string(s)))
		}
		conditions = append(conditions, "state IN ("+strings.Join(marks, ",")+")")
	}
	if filter.SupplierID != "" {
		conditions = append(conditions, "supplier_id = "+placeholder(filter.SupplierID))
	}
	if filter.CategoryID != "" {
		conditions = append(conditions, "category_id = "+placeholder(filter.CategoryID))
	}
	if len(filter.CategoryIDs) > 0 {
		marks := make([]string, 0, len(filter.CategoryIDs))
		for _, id := range filter.CategoryIDs {
			marks = append(marks, placeholder(id))
		}
		conditions = append(conditions, "category_id IN ("+strings.Join(marks, ",")+")")
	}
	if filter.DeliveryModeID != "" {
		conditions = append(conditions, "delivery_mode_id = "+placeholder(filter.DeliveryModeID))
	}
	if filter.InStockOnly {
		conditions = append(conditions, "stock_quantity > 0")
	}

	query := `SELECT ` + catalogColumns + ` FROM catalog_entries`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + placeholder(filter.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list catalog entries: %w", err)
	}
	defer rows.Close()

	result := make([]domain.CatalogEntry, 0)
	for rows.Next() {
		entry, err := scanCatalogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan catalog entry: %w", err)
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog entries: %w", err)
	}
	return result, nil
}

// Save обновляет товар, если версия в базе совпадает с версией entry.
func (r catalogRepository) Save(ctx context.Context, entry domain.CatalogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE catalog_entries
		SET name = $3,
		    description = $4,
		    category_id = $5,
		    delivery_mode_id = $6,
		    image_ref = $7,
		    base_price = $8,
		    markup_percent = $9,
		    final_price = $10,
		    stock_quantity = $11,
		    state = $12,
		    updated_at = $13,
		    version = version + 1
		WHERE id = $1 AND version = $2
	`,
		entry.ID,
		entry.Version,
		entry.Name,
		entry.Description,
		entry.CategoryID,
		entry.DeliveryModeID,
		entry.ImageRef,
		entry.BasePrice,
		entry.MarkupPercent,
		entry.FinalPrice,
		entry.StockQuantity,
		string(entry.State),
		entry.UpdatedAt.UTC(),
	)
	if err != nil {
		if isCheckViolation(err) {
			return domain.ErrStockNegative
		}
		return fmt.Errorf("update catalog entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	exists, err := rowExists(ctx, r.q, `SELECT EXISTS(SELECT 1 FROM catalog_entries WHERE id = $1)`, entry.ID)
	if err != nil {
		return fmt.Errorf("check catalog entry existence: %w", err)
	}
	if !exists {
		return domain.ErrCatalogEntryNotFound
	}
	return domain.ErrVersionConflict
}

// Delete удаляет товар; ссылки из исторических позиций заказов обнуляет внешний ключ.
func (r catalogRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM catalog_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete catalog entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCatalogEntryNotFound
	}
	return nil
}

func scanCatalogEntry(row rowScanner) (domain.CatalogEntry, error) {
	var (
		entry    domain.CatalogEntry
		stateRaw string
	)
	if err := row.Scan(
		&entry.ID,
		&entry.SupplierID,
		&entry.Name,
		&entry.Description,
		&entry.CategoryID,
		&entry.DeliveryModeID,
		&entry.ImageRef,
		&entry.BasePrice,
		&entry.MarkupPercent,
		&entry.FinalPrice,
		&entry.StockQuantity,
		&stateRaw,
		&entry.Version,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	); err != nil {
		return domain.CatalogEntry{}, err
	}

	entry.State = domain.CatalogState(stateRaw)
	if !entry.State.Valid() {
		return domain.CatalogEntry{}, fmt.Errorf("invalid catalog state %q for entry %s", stateRaw, entry.ID)
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	return entry, nil
}

var _ domain.CatalogRepository = catalogRepository{}
