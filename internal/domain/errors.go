package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSponsorshipNotFound = errors.New("sponsorship not found")
	ErrAreaNotFound        = errors.New("service area not found")
	ErrInvoiceNotFound     = errors.New("invoice not found")

	// ErrSlotTaken means a different business already holds an active-like
	// sponsorship for the (area, category, slot).
	ErrSlotTaken = errors.New("slot already taken by another business")

	// ErrAlreadySponsored means the requesting business already holds an
	// active-like sponsorship for the (area, category, slot).
	ErrAlreadySponsored = errors.New("business already sponsors this area")

	// ErrNoRemainingArea means the availability resolver found nothing left
	// to purchase in the requested area/category/slot.
	ErrNoRemainingArea = errors.New("no remaining purchasable area")

	// ErrOverlapConflict is the ledger rejecting a write that would create two
	// active-like sponsorships with intersecting geometry in the same
	// (area, category, slot). Callers must cancel the billing subscription.
	ErrOverlapConflict = errors.New("sponsorship geometry overlaps an existing claim")

	// ErrDuplicateSponsorship is the ledger rejecting a second active-like row
	// for the same (business, area, category, slot).
	ErrDuplicateSponsorship = errors.New("active sponsorship already exists for business")

	// ErrLockHeld means another checkout currently holds the advisory lock
	// for the (area, category, slot).
	ErrLockHeld = errors.New("checkout already in progress for this area")

	ErrLockNotFound = errors.New("lock not found or expired")

	ErrSponsorshipCanceled     = errors.New("sponsorship is canceled")
	ErrInvalidStatusTransition = errors.New("invalid sponsorship status transition")
)

// LockHeldError is ErrLockHeld carrying the competing holder's business ID,
// so a conflict response can name who owns the in-flight claim.
type LockHeldError struct {
	HolderBusinessID string
}

func (e *LockHeldError) Error() string {
	if e.HolderBusinessID == "" {
		return ErrLockHeld.Error()
	}
	return fmt.Sprintf("checkout lock held by business %s", e.HolderBusinessID)
}

func (e *LockHeldError) Is(target error) bool {
	return target == ErrLockHeld
}
