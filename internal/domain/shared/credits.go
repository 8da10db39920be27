package shared

// Credits is the single in-game currency. Balances are whole units; all
// arithmetic goes through Debit/Credit so a balance can never go negative.
type Credits int64

// Debit subtracts amount, failing with INSUFFICIENT_CREDITS when the balance
// cannot cover it.
func (c Credits) Debit(amount Credits) (Credits, error) {
	if amount < 0 {
		return c, NewValidationError("amount", "must be non-negative")
	}
	if amount > c {
		return c, NewInsufficientCreditsError(int64(amount), int64(c))
	}
	return c - amount, nil
}

// Credit adds amount to the balance.
func (c Credits) Credit(amount Credits) (Credits, error) {
	if amount < 0 {
		return c, NewValidationError("amount", "must be non-negative")
	}
	return c + amount, nil
}
