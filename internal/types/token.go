package types

import (
	"time"

	"github.com/google/uuid"
)

// BlacklistedToken is a logged-out JWT. A token present here is rejected
// regardless of cryptographic validity; rows are prunable once ExpiresAt
// has passed.
type BlacklistedToken struct {
	ID        uuid.UUID `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
