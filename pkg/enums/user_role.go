package enums

import "fmt"

// UserRole is carried in access tokens issued by the identity service.
type UserRole string

const (
	UserRoleBuyer UserRole = "buyer"
	UserRoleShop  UserRole = "shop"
	UserRoleAdmin UserRole = "admin"
)

var validUserRoles = []UserRole{UserRoleBuyer, UserRoleShop, UserRoleAdmin}

func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
