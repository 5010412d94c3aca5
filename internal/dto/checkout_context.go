package dto

import "strconv"

// Metadata keys attached to checkout sessions and subscriptions. The same
// keys are read back by the reconciler; nothing downstream touches the raw
// metadata map.
const (
	MetaBusinessID = "business_id"
	MetaAreaID     = "area_id"
	MetaCategoryID = "category_id"
	MetaSlot       = "slot"
	MetaLockID     = "lock_id"
	MetaAreaKm2    = "area_km2"
)

// CheckoutContext is the fully-typed purchase context reconstructed from
// billing metadata. It is built exactly once at the reconciler's boundary;
// business logic only ever sees this struct, never loose metadata strings.
type CheckoutContext struct {
	BusinessID string
	AreaID     string
	CategoryID string
	Slot       int
	LockID     string
	// AreaKm2Hint is the area priced at checkout time. Informational only:
	// the reconciler always re-resolves availability against current state.
	AreaKm2Hint float64
}

// ParseCheckoutContext normalizes a billing metadata map. Absent or
// malformed fields produce an incomplete context, not an error.
func ParseCheckoutContext(meta map[string]string) CheckoutContext {
	ctx := CheckoutContext{
		BusinessID: meta[MetaBusinessID],
		AreaID:     meta[MetaAreaID],
		CategoryID: meta[MetaCategoryID],
		LockID:     meta[MetaLockID],
	}
	if s := meta[MetaSlot]; s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 1 {
			ctx.Slot = n
		}
	}
	if s := meta[MetaAreaKm2]; s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
			ctx.AreaKm2Hint = f
		}
	}
	return ctx
}

// Incomplete reports whether the context is missing anything the ledger
// cannot accept a row without. An incomplete context must be skipped, never
// written: rows with a null area or slot are unconstrainable.
func (c CheckoutContext) Incomplete() bool {
	return c.BusinessID == "" || c.AreaID == "" || c.CategoryID == "" || c.Slot < 1
}

// ToMetadata renders the context back into a metadata map for the billing
// provider.
func (c CheckoutContext) ToMetadata() map[string]string {
	meta := map[string]string{
		MetaBusinessID: c.BusinessID,
		MetaAreaID:     c.AreaID,
		MetaCategoryID: c.CategoryID,
		MetaSlot:       strconv.Itoa(c.Slot),
	}
	if c.LockID != "" {
		meta[MetaLockID] = c.LockID
	}
	if c.AreaKm2Hint > 0 {
		meta[MetaAreaKm2] = strconv.FormatFloat(c.AreaKm2Hint, 'f', 6, 64)
	}
	return meta
}
