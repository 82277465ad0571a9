package domain

import (
	"fmt"
	"strings"
)

// Role — роль пользователя, выданная внешним провайдером идентичности.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSupplier Role = "supplier"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// ParseRole приводит строковое значение роли к Role.
func ParseRole(raw string) (Role, error) {
	switch role := Role(strings.ToLower(strings.TrimSpace(raw))); role {
	case RoleBuyer, RoleSupplier, RoleStaff, RoleAdmin:
		return role, nil
	default:
		return "", fmt.Errorf("role %q: %w", raw, ErrUnknownState)
	}
}

// Caller — аутентифицированный вызывающий. Передаётся в каждую операцию явно;
// ядро только авторизует по роли и владению, но не аутентифицирует.
type Caller struct {
	UserID string
	Roles  []Role
}

// Anonymous возвращает вызывающего без идентичности (публичный просмотр каталога).
func Anonymous() Caller {
	return Caller{}
}

// IsAnonymous сообщает, что вызывающий не аутентифицирован.
func (c Caller) IsAnonymous() bool {
	return c.UserID == ""
}

// HasRole проверяет наличие роли.
func (c Caller) HasRole(role Role) bool {
	if c.IsAnonymous() {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsStaff — сотрудник магазина; администратор обладает теми же правами.
func (c Caller) IsStaff() bool {
	return c.HasRole(RoleStaff) || c.HasRole(RoleAdmin)
}

// RequireStaff возвращает ErrForbidden, если вызывающий не сотрудник.
func (c Caller) RequireStaff(operation string) error {
	if !c.IsStaff() {
		return fmt.Errorf("%s requires staff role: %w", operation, ErrForbidden)
	}
	return nil
}

// RequireRole возвращает ErrForbidden, если у вызывающего нет роли.
func (c Caller) RequireRole(role Role, operation string) error {
	if !c.HasRole(role) {
		return fmt.Errorf("%s requires %s role: %w", operation, role, ErrForbidden)
	}
	return nil
}
