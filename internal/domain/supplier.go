package domain

import (
	"strings"
	"time"
)

// SupplierState описывает статус модерации поставщика.
type SupplierState string

const (
	// SupplierStatePending — поставщик зарегистрирован и ждёт проверки.
	SupplierStatePending SupplierState = "pending"
	// SupplierStateApproved — поставщик допущен к продажам.
	SupplierStateApproved SupplierState = "approved"
	// SupplierStateInactive — поставщик отключён сотрудником.
	SupplierStateInactive SupplierState = "inactive"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s SupplierState) Valid() bool {
	switch s {
	case SupplierStatePending, SupplierStateApproved, SupplierStateInactive:
		return true
	default:
		return false
	}
}

// SupplierAccount — продавец, отдельный от учётной записи пользователя.
type SupplierAccount struct {
	ID          string
	UserID      string
	CompanyName string
	TaxID       string
	State       SupplierState
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewSupplierAccount создаёт поставщика в статусе pending.
func NewSupplierAccount(id, userID, companyName, taxID string, now time.Time) (SupplierAccount, error) {
	if strings.TrimSpace(userID) == "" {
		return SupplierAccount{}, ErrUserIDRequired
	}
	if strings.TrimSpace(companyName) == "" {
		return SupplierAccount{}, ErrCompanyNameRequired
	}
	return SupplierAccount{
		ID:          id,
		UserID:      userID,
		CompanyName: strings.TrimSpace(companyName),
		TaxID:       strings.TrimSpace(taxID),
		State:       SupplierStatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// TransitionTo переводит поставщика в новый статус. Переходы двунаправленные,
// запрещён только переход в текущий статус.
func (s *SupplierAccount) TransitionTo(target SupplierState, now time.Time) error {
	if !target.Valid() {
		return ErrUnknownState
	}
	if s.State == target {
		return ErrSupplierSameState
	}
	s.State = target
	s.UpdatedAt = now
	return nil
}

// CanSell сообщает, могут ли товары поставщика становиться активными.
func (s SupplierAccount) CanSell() bool {
	return s.State == SupplierStateApproved
}
