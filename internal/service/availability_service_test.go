package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinelocal/spotlight/internal/domain"
)

func TestAvailability_FullAreaWhenNoClaims(t *testing.T) {
	st := newTestStack(t)

	avail, err := st.availability.Remaining(context.Background(), testAreaID, testCategoryID, 1, "")
	require.NoError(t, err)

	assert.False(t, avail.SoldOut)
	assert.NotEmpty(t, avail.GeoJSON)
	// 0.1 degree square at the equator is roughly 123 km².
	assert.InDelta(t, 123.6, avail.AreaKm2, 2.0)
}

func TestAvailability_SoldOutWhenFullyClaimed(t *testing.T) {
	st := newTestStack(t)
	st.seedActive(t, "biz-x", "sub_x", squareGeoJSON(0, 0, 0.1), 123.6)

	avail, err := st.availability.Remaining(context.Background(), testAreaID, testCategoryID, 1, "")
	require.NoError(t, err)

	assert.True(t, avail.SoldOut)
	assert.Zero(t, avail.AreaKm2)
	assert.Empty(t, avail.GeoJSON)
}

func TestAvailability_SubtractsCompetitorClaims(t *testing.T) {
	st := newTestStack(t)
	// Competitor holds the south-west quarter.
	st.seedActive(t, "biz-x", "sub_x", squareGeoJSON(0, 0, 0.05), 30.9)

	avail, err := st.availability.Remaining(context.Background(), testAreaID, testCategoryID, 1, "biz-y")
	require.NoError(t, err)

	assert.False(t, avail.SoldOut)
	assert.InDelta(t, 123.6*0.75, avail.AreaKm2, 2.0)
}

func TestAvailability_ExcludesOwnClaimsForUpgradePreview(t *testing.T) {
	st := newTestStack(t)
	st.seedActive(t, "biz-x", "sub_x", squareGeoJSON(0, 0, 0.1), 123.6)

	avail, err := st.availability.Remaining(context.Background(), testAreaID, testCategoryID, 1, "biz-x")
	require.NoError(t, err)

	assert.False(t, avail.SoldOut)
	assert.InDelta(t, 123.6, avail.AreaKm2, 2.0)
}

func TestAvailability_ScopedByCategoryAndSlot(t *testing.T) {
	st := newTestStack(t)
	st.seedActive(t, "biz-x", "sub_x", squareGeoJSON(0, 0, 0.1), 123.6)

	avail, err := st.availability.Remaining(context.Background(), testAreaID, "cat-gardening", 1, "")
	require.NoError(t, err)
	assert.False(t, avail.SoldOut)

	avail, err = st.availability.Remaining(context.Background(), testAreaID, testCategoryID, 2, "")
	require.NoError(t, err)
	assert.False(t, avail.SoldOut)
}

func TestAvailability_UnknownAreaSurfaces(t *testing.T) {
	st := newTestStack(t)

	_, err := st.availability.Remaining(context.Background(), "area-nowhere", testCategoryID, 1, "")
	assert.ErrorIs(t, err, domain.ErrAreaNotFound)
}
