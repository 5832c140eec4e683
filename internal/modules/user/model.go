// README: User model and errors.
package user

import (
	"errors"
	"time"

	"courier/internal/types"
)

var (
	ErrNotFound    = errors.New("user not found")
	ErrExists      = errors.New("user already exists")
	ErrValidation  = errors.New("invalid user input")
	ErrNotCustomer = errors.New("only customers can redeem invite codes")
	ErrRoleChanged = errors.New("user role changed concurrently")
)

type User struct {
	ID        types.ID   `json:"id"`
	Role      types.Role `json:"role"`
	FullName  string     `json:"full_name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	CreatedAt time.Time  `json:"created_at"`
}
