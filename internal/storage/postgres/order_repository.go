package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const orderColumns = `id, buyer_id, state, total, version, created_at, updated_at`

type orderRepository struct {
	q querier
}

// Create сохраняет заказ и позиции. Вызывается внутри WithinTx, поэтому
// частично записанный заказ не становится видимым.
func (r orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		order.ID,
		order.BuyerID,
		string(order.State),
		order.Total,
		order.Version,
		order.CreatedAt.UTC(),
		order.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, line := range order.Lines {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_lines (
				id, order_id, line_no, entry_id, entry_name, supplier_id, quantity, unit_price, base_price
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			line.ID,
			order.ID,
			i,
			nullIfEmpty(line.EntryID),
			line.EntryName,
			line.SupplierID,
			line.Quantity,
			line.UnitPrice,
			line.BasePrice,
		); err != nil {
			if isForeignKeyViolation(err) {
				return &domain.LineError{EntryID: line.EntryID, Err: domain.ErrCatalogEntryNotFound}
			}
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	return nil
}

func (r orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.getOne(ctx, id, "")
}

func (r orderRepository) GetForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return r.getOne(ctx, id, " FOR UPDATE")
}

func (r orderRepository) getOne(ctx context.Context, id, lockClause string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`+lockClause, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	lines, err := r.loadLines(ctx, `WHERE order_id = $1`, id)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines[id]
	return order, nil
}

func (r orderRepository) ListByBuyer(ctx context.Context, buyerID string, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, `buyer_id = $1`, `created_at DESC, id DESC`, buyerID, limit)
}

func (r orderRepository) ListByState(ctx context.Context, state domain.OrderState, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, `state = $1`, `created_at, id`, string(state), limit)
}

// list выбирает заказы и одним запросом подгружает их позиции.
func (r orderRepository) list(ctx context.Context, where, orderBy string, arg any, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	selection := `SELECT id FROM orders WHERE ` + where + ` ORDER BY ` + orderBy + ` LIMIT $2`

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id IN (`+selection+`)
		ORDER BY `+orderBy, arg, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	lines, err := r.loadLines(ctx, `WHERE order_id IN (`+selection+`)`, arg, limit)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}
	return orders, nil
}

// Save меняет статус заказа с проверкой версии. Позиции не перезаписываются.
func (r orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET state = $3,
		    updated_at = $4,
		    version = version + 1
		WHERE id = $1 AND version = $2
	`, order.ID, order.Version, string(order.State), order.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("order rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	exists, err := rowExists(ctx, r.q, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, order.ID)
	if err != nil {
		return fmt.Errorf("check order existence: %w", err)
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return domain.ErrVersionConflict
}

func (r orderRepository) HasLinesForEntry(ctx context.Context, entryID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	exists, err := rowExists(ctx, r.q, `SELECT EXISTS(SELECT 1 FROM order_lines WHERE entry_id = $1)`, entryID)
	if err != nil {
		return false, fmt.Errorf("check order lines for entry: %w", err)
	}
	return exists, nil
}

func (r orderRepository) ListSupplierSales(ctx context.Context, supplierID string, limit int) ([]domain.SupplierSale, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT o.id, o.state, COALESCE(l.entry_id, ''), l.entry_name, l.quantity, l.base_price, o.created_at
		FROM order_lines l
		JOIN orders o ON o.id = l.order_id
		WHERE l.supplier_id = $1
		ORDER BY o.created_at DESC, o.id DESC, l.line_no
		LIMIT $2
	`, supplierID, limit)
	if err != nil {
		return nil, fmt.Errorf("list supplier sales: %w", err)
	}
	defer rows.Close()

	result := make([]domain.SupplierSale, 0)
	for rows.Next() {
		var (
			sale     domain.SupplierSale
			stateRaw string
		)
		if err := rows.Scan(
			&sale.OrderID,
			&stateRaw,
			&sale.EntryID,
			&sale.EntryName,
			&sale.Quantity,
			&sale.BasePrice,
			&sale.SoldAt,
		); err != nil {
			return nil, fmt.Errorf("scan supplier sale: %w", err)
		}
		sale.OrderState = domain.OrderState(stateRaw)
		sale.Earnings = domain.LineSubtotal(sale.BasePrice, sale.Quantity)
		sale.SoldAt = sale.SoldAt.UTC()
		result = append(result, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate supplier sales: %w", err)
	}
	return result, nil
}

// loadLines возвращает позиции, сгруппированные по заказу, в порядке оформления.
func (r orderRepository) loadLines(ctx context.Context, where string, args ...any) (map[string][]domain.OrderLine, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, COALESCE(entry_id, ''), entry_name, supplier_id, quantity, unit_price, base_price
		FROM order_lines
		`+where+`
		ORDER BY order_id, line_no
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("select order lines: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.OrderLine)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(
			&line.ID,
			&line.OrderID,
			&line.EntryID,
			&line.EntryName,
			&line.SupplierID,
			&line.Quantity,
			&line.UnitPrice,
			&line.BasePrice,
		); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		result[line.OrderID] = append(result[line.OrderID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return result, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order    domain.Order
		stateRaw string
	)
	if err := row.Scan(
		&order.ID,
		&order.BuyerID,
		&stateRaw,
		&order.Total,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	order.State = domain.OrderState(stateRaw)
	if !order.State.Valid() {
		return domain.Order{}, fmt.Errorf("invalid order state %q for order %s", stateRaw, order.ID)
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

var _ domain.OrderRepository = orderRepository{}
