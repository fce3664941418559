package types

import (
	"time"

	"github.com/google/uuid"
)

// UserRole is a closed set; anything else is rejected at the boundary.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleSubscriber UserRole = "SUBSCRIBER"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleSubscriber:
		return true
	}
	return false
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CreateUserParams struct {
	Name     string   `json:"name" validate:"required,min=2,max=100"`
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=8,max=72"`
	Role     UserRole `json:"role" validate:"omitempty,oneof=ADMIN SUBSCRIBER"`
}

type UpdateUserParams struct {
	Name  *string   `json:"name" validate:"omitempty,min=2,max=100"`
	Email *string   `json:"email" validate:"omitempty,email"`
	Role  *UserRole `json:"role" validate:"omitempty,oneof=ADMIN SUBSCRIBER"`
}
