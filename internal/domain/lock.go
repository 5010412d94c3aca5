package domain

import "time"

// AreaLock is a short-lived advisory claim on a (area, category, slot) taken
// while a checkout is in flight. It narrows the race window between the
// availability check and checkout-session creation; the ledger's database
// constraint remains the correctness guarantee.
type AreaLock struct {
	ID         string    `json:"id"`
	AreaID     string    `json:"area_id"`
	CategoryID string    `json:"category_id"`
	Slot       int       `json:"slot"`
	BusinessID string    `json:"business_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}
