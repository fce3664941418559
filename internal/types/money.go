package types

import (
	"fmt"
	"math"
)

// MaxAmount is the ceiling accepted for any monetary input, in currency units.
const MaxAmount = 1_000_000

// ValidateAmount checks the money rules applied everywhere an amount enters
// the system: positive, finite and at most MaxAmount.
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("amount must be a finite number: %w", ErrBadRequest)
	}
	if amount <= 0 {
		return fmt.Errorf("amount must be positive: %w", ErrBadRequest)
	}
	if amount > MaxAmount {
		return fmt.Errorf("amount exceeds maximum of %d: %w", MaxAmount, ErrBadRequest)
	}
	return nil
}
