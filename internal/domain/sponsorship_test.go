package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSponsorship(t *testing.T) *Sponsorship {
	t.Helper()
	sp, err := NewSponsorship("biz-1", "area-1", "cat-1", 1,
		`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`,
		10, 150, "gbp")
	require.NoError(t, err)
	return sp
}

func TestNewSponsorship_StartsProvisional(t *testing.T) {
	sp := newTestSponsorship(t)
	assert.Equal(t, StatusProvisional, sp.Status)
	assert.True(t, sp.IsBlocking())
	assert.NotEmpty(t, sp.ID)
}

func TestNewSponsorship_Validation(t *testing.T) {
	_, err := NewSponsorship("", "area-1", "cat-1", 1, "{}", 10, 150, "gbp")
	assert.Error(t, err)

	_, err = NewSponsorship("biz-1", "area-1", "cat-1", 0, "{}", 10, 150, "gbp")
	assert.Error(t, err)

	_, err = NewSponsorship("biz-1", "area-1", "cat-1", 1, "", 10, 150, "gbp")
	assert.Error(t, err)

	_, err = NewSponsorship("biz-1", "area-1", "cat-1", 1, "{}", 0, 150, "gbp")
	assert.Error(t, err)
}

func TestConfirm_Transitions(t *testing.T) {
	sp := newTestSponsorship(t)

	require.NoError(t, sp.Confirm(StatusActive))
	assert.Equal(t, StatusActive, sp.Status)

	require.NoError(t, sp.Confirm(StatusPastDue))
	assert.Equal(t, StatusPastDue, sp.Status)

	assert.ErrorIs(t, sp.Confirm(StatusCanceled), ErrInvalidStatusTransition)
}

func TestConfirm_CanceledIsTerminal(t *testing.T) {
	sp := newTestSponsorship(t)
	sp.Cancel()

	assert.ErrorIs(t, sp.Confirm(StatusActive), ErrSponsorshipCanceled)
	assert.Equal(t, StatusCanceled, sp.Status)
	assert.False(t, sp.IsBlocking())
}

func TestScheduleCancelAndReactivate(t *testing.T) {
	sp := newTestSponsorship(t)
	require.NoError(t, sp.Confirm(StatusActive))

	require.NoError(t, sp.ScheduleCancel())
	assert.Equal(t, StatusCanceling, sp.Status)
	assert.True(t, sp.CancelAtPeriodEnd)
	assert.True(t, sp.IsBlocking())

	require.NoError(t, sp.Reactivate())
	assert.Equal(t, StatusActive, sp.Status)
	assert.False(t, sp.CancelAtPeriodEnd)

	// Reactivate only applies to a scheduled cancellation.
	assert.ErrorIs(t, sp.Reactivate(), ErrInvalidStatusTransition)
}

func TestExpired(t *testing.T) {
	sp := newTestSponsorship(t)
	require.NoError(t, sp.Confirm(StatusActive))
	require.NoError(t, sp.ScheduleCancel())

	end := time.Now().Add(-time.Hour).UTC()
	sp.CurrentPeriodEnd = &end
	assert.True(t, sp.Expired(time.Now()))

	future := time.Now().Add(time.Hour).UTC()
	sp.CurrentPeriodEnd = &future
	assert.False(t, sp.Expired(time.Now()))
}

func TestStatusFromBilling(t *testing.T) {
	assert.Equal(t, StatusActive, StatusFromBilling("active", false))
	assert.Equal(t, StatusCanceling, StatusFromBilling("active", true))
	assert.Equal(t, StatusTrialing, StatusFromBilling("trialing", false))
	assert.Equal(t, StatusPastDue, StatusFromBilling("past_due", false))
	assert.Equal(t, StatusCanceled, StatusFromBilling("canceled", false))
	assert.Equal(t, StatusCanceled, StatusFromBilling("incomplete_expired", false))
	assert.Equal(t, StatusProvisional, StatusFromBilling("something_new", false))
}

func TestActiveLikeSet(t *testing.T) {
	for _, st := range ActiveLikeStatuses {
		assert.True(t, st.IsActiveLike(), string(st))
	}
	assert.False(t, StatusCanceled.IsActiveLike())
}
