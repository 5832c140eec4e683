// README: User roles shared by the auth layer and the modules.
package types

import "strings"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleDriver   Role = "driver"
	RoleAdmin    Role = "admin"
)

func ParseRole(v string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(v)))
	switch r {
	case RoleCustomer, RoleDriver, RoleAdmin:
		return r, true
	}
	return "", false
}
