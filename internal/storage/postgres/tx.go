package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// querier — общее подмножество *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithinTx выполняет fn в транзакции READ COMMITTED. Конкурирующие изменения
// остатков сериализуются через SELECT ... FOR UPDATE в GetForUpdate.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) (err error) {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &unitOfWork{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type unitOfWork struct {
	q querier
}

func (u *unitOfWork) Catalog() domain.CatalogRepository    { return catalogRepository{q: u.q} }
func (u *unitOfWork) Suppliers() domain.SupplierRepository { return supplierRepository{q: u.q} }
func (u *unitOfWork) Categories() domain.CategoryRepository {
	return categoryRepository{q: u.q}
}
func (u *unitOfWork) DeliveryModes() domain.DeliveryModeRepository {
	return deliveryModeRepository{q: u.q}
}
func (u *unitOfWork) Orders() domain.OrderRepository      { return orderRepository{q: u.q} }
func (u *unitOfWork) Timeline() domain.TimelineRepository { return timelineRepository{q: u.q} }
func (u *unitOfWork) Outbox() domain.OutboxRepository     { return &outboxRepository{q: u.q} }

func pgErrorCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

func isUniqueViolation(err error) bool {
	code, _ := pgErrorCode(err)
	return code == pgUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	code, _ := pgErrorCode(err)
	return code == pgForeignKeyViolation
}

func isCheckViolation(err error) bool {
	code, _ := pgErrorCode(err)
	return code == pgCheckViolation
}

// nullIfEmpty превращает пустую строку в NULL для необязательных внешних ключей.
func nullIfEmpty(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func rowExists(ctx context.Context, q querier, query string, args ...any) (bool, error) {
	var exists bool
	if err := q.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

var (
	_ domain.TxManager  = (*Store)(nil)
	_ domain.UnitOfWork = (*unitOfWork)(nil)
)
