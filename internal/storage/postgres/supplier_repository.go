package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	supplierColumns       = `id, user_id, company_name, tax_id, state, version, created_at, updated_at`
	supplierUserIDUniqKey = "suppliers_user_id_key"
)

type supplierRepository struct {
	q querier
}

func (r supplierRepository) Create(ctx context.Context, supplier domain.SupplierAccount) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO suppliers (`+supplierColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		supplier.ID,
		supplier.UserID,
		supplier.CompanyName,
		supplier.TaxID,
		string(supplier.State),
		supplier.Version,
		supplier.CreatedAt.UTC(),
		supplier.UpdatedAt.UTC(),
	)
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		if _, constraint := pgErrorCode(err); constraint == supplierUserIDUniqKey {
			return domain.ErrSupplierExists
		}
		return domain.ErrAlreadyExists
	}
	return fmt.Errorf("insert supplier: %w", err)
}

func (r supplierRepository) Get(ctx context.Context, id string) (domain.SupplierAccount, error) {
	return r.getBy(ctx, "id", id)
}

func (r supplierRepository) GetByUserID(ctx context.Context, userID string) (domain.SupplierAccount, error) {
	return r.getBy(ctx, "user_id", userID)
}

func (r supplierRepository) getBy(ctx context.Context, column, value string) (domain.SupplierAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.q.QueryRowContext(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE `+column+` = $1`, value)
	supplier, err := scanSupplier(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SupplierAccount{}, domain.ErrSupplierNotFound
		}
		return domain.SupplierAccount{}, fmt.Errorf("select supplier: %w", err)
	}
	return supplier, nil
}

func (r supplierRepository) List(ctx context.Context, state domain.SupplierState, limit int) ([]domain.SupplierAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+supplierColumns+`
		FROM suppliers
		WHERE ($1 = '' OR state = $1)
		ORDER BY created_at, id
		LIMIT $2
	`, string(state), limit)
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	defer rows.Close()

	result := make([]domain.SupplierAccount, 0)
	for rows.Next() {
		supplier, err := scanSupplier(rows)
		if err != nil {
			return nil, fmt.Errorf("scan supplier: %w", err)
		}
		result = append(result, supplier)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suppliers: %w", err)
	}
	return result, nil
}

func (r supplierRepository) Save(ctx context.Context, supplier domain.SupplierAccount) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE suppliers
		SET company_name = $3,
		    tax_id = $4,
		    state = $5,
		    updated_at = $6,
		    version = version + 1
		WHERE id = $1 AND version = $2
	`,
		supplier.ID,
		supplier.Version,
		supplier.CompanyName,
		supplier.TaxID,
		string(supplier.State),
		supplier.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("update supplier: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("supplier rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	exists, err := rowExists(ctx, r.q, `SELECT EXISTS(SELECT 1 FROM suppliers WHERE id = $1)`, supplier.ID)
	if err != nil {
		return fmt.Errorf("check supplier existence: %w", err)
	}
	if !exists {
		return domain.ErrSupplierNotFound
	}
	return domain.ErrVersionConflict
}

func scanSupplier(row rowScanner) (domain.SupplierAccount, error) {
	var (
		supplier domain.SupplierAccount
		stateRaw string
	)
	if err := row.Scan(
		&supplier.ID,
		&supplier.UserID,
		&supplier.CompanyName,
		&supplier.TaxID,
		&stateRaw,
		&supplier.Version,
		&supplier.CreatedAt,
		&supplier.UpdatedAt,
	); err != nil {
		return domain.SupplierAccount{}, err
	}

	supplier.State = domain.SupplierState(stateRaw)
	if !supplier.State.Valid() {
		return domain.SupplierAccount{}, fmt.Errorf("invalid supplier state %q for supplier %s", stateRaw, supplier.ID)
	}
	supplier.CreatedAt = supplier.CreatedAt.UTC()
	supplier.UpdatedAt = supplier.UpdatedAt.UTC()
	return supplier, nil
}

var _ domain.SupplierRepository = supplierRepository{}
