package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Role — роль пользователя маркетплейса. Определяется внешним провайдером идентичности.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleSeller   Role = "SELLER"
	RoleAdmin    Role = "ADMIN"
)

// ParseRole разбирает роль без учёта регистра.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return role, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleSeller, RoleAdmin:
		return true
	default:
		return false
	}
}

// Actor — уже аутентифицированный инициатор операции.
type Actor struct {
	ID   string
	Role Role
}

// Anonymous сообщает, что личность актора не установлена.
func (a Actor) Anonymous() bool {
	return a.ID == "" || !a.Role.Valid()
}

// Authorize проверяет, что у актора одна из разрешённых ролей.
func Authorize(actor Actor, allowed ...Role) error {
	if actor.Anonymous() {
		return ErrUnauthorized
	}
	if !slices.Contains(allowed, actor.Role) {
		return fmt.Errorf("%w: role %s is not allowed", ErrForbidden, actor.Role)
	}
	return nil
}
