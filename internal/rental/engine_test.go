package rental

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plotmarket/internal/types"
)

func TestTermDuration(t *testing.T) {
	tests := []struct {
		term types.RentalTerm
		want time.Duration
	}{
		{types.TermMonthly, 30 * 24 * time.Hour},
		{types.TermQuarterly, 90 * 24 * time.Hour},
		{types.TermYearly, 365 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(string(tt.term), func(t *testing.T) {
			got, err := TermDuration(tt.term)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTermDuration_UnknownTerm(t *testing.T) {
	_, err := TermDuration(types.RentalTerm("weekly"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeValidationInvalidTerm))
}

func TestAmountCents(t *testing.T) {
	tests := []struct {
		name     string
		baseRate int64
		term     types.RentalTerm
		want     int64
	}{
		{"monthly no discount", 6000, types.TermMonthly, 6000},
		{"quarterly 10 percent off", 6000, types.TermQuarterly, 16200},
		{"yearly 20 percent off", 6000, types.TermYearly, 57600},
		{"default rate monthly", 6800, types.TermMonthly, 6800},
		{"default rate quarterly", 6800, types.TermQuarterly, 18360},
		{"default rate yearly", 6800, types.TermYearly, 65280},
		// 3333 * 3 * 90 = 899910; /100 with half-up rounds .10 down.
		{"fractional cent rounds half up", 3333, types.TermQuarterly, 8999},
		{"one cent base", 1, types.TermMonthly, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AmountCents(tt.baseRate, tt.term)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmountCents_InvalidInputs(t *testing.T) {
	_, err := AmountCents(6000, types.RentalTerm("forever"))
	assert.True(t, types.IsCode(err, types.ErrCodeValidationInvalidTerm))

	_, err = AmountCents(0, types.TermMonthly)
	assert.True(t, types.IsCode(err, types.ErrCodeValidationInvalidRate))

	_, err = AmountCents(-500, types.TermYearly)
	assert.True(t, types.IsCode(err, types.ErrCodeValidationInvalidRate))
}

func TestNewRental(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec, err := NewRental(7, "0xabc", "buyer@example.com", types.TermQuarterly, now)
	require.NoError(t, err)

	assert.Equal(t, 7, rec.ID)
	assert.Equal(t, "0xabc", rec.SoldTo)
	assert.Equal(t, "buyer@example.com", rec.UserEmail)
	assert.Equal(t, types.TermQuarterly, rec.RentalTerm)
	assert.Equal(t, now, rec.SoldAt)
	assert.Equal(t, now.Add(90*24*time.Hour), rec.RentalEndDate)
	assert.True(t, rec.ActiveAt(now))
}

func TestNewRental_UnknownTerm(t *testing.T) {
	_, err := NewRental(1, "0xabc", "a@b.co", types.RentalTerm("decade"), time.Now())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeValidationInvalidTerm))
}

func TestRenewedRental_ExtendsFromStoredEndDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := now.Add(10 * 24 * time.Hour)
	existing := &types.PlotRecord{
		ID:            3,
		SoldTo:        "0xabc",
		RentalTerm:    types.TermMonthly,
		SoldAt:        now.Add(-20 * 24 * time.Hour),
		RentalEndDate: end,
	}

	renewed, err := RenewedRental(existing, types.TermMonthly, now)
	require.NoError(t, err)

	// Ten unused days are preserved: the extension is from the stored end
	// date, not from now.
	assert.Equal(t, end.Add(30*24*time.Hour), renewed.RentalEndDate)
	assert.Equal(t, existing.SoldAt, renewed.SoldAt)
	assert.Equal(t, existing.SoldTo, renewed.SoldTo)

	// The original record is untouched.
	assert.Equal(t, end, existing.RentalEndDate)
}

func TestRenewedRental_TermChange(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	existing := &types.PlotRecord{
		ID:            3,
		RentalTerm:    types.TermMonthly,
		RentalEndDate: now.Add(5 * 24 * time.Hour),
	}

	renewed, err := RenewedRental(existing, types.TermYearly, now)
	require.NoError(t, err)
	assert.Equal(t, types.TermYearly, renewed.RentalTerm)
	assert.Equal(t, existing.RentalEndDate.Add(365*24*time.Hour), renewed.RentalEndDate)
}

func TestRenewedRental_ExpiredPlot(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	existing := &types.PlotRecord{
		ID:            3,
		RentalEndDate: now.Add(-time.Hour),
	}

	_, err := RenewedRental(existing, types.TermMonthly, now)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeConflictPlotNotActive))
}

func TestRenewedRental_EndDateExactlyNow(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	existing := &types.PlotRecord{ID: 3, RentalEndDate: now}

	// A plot expiring exactly at now is already inactive.
	_, err := RenewedRental(existing, types.TermMonthly, now)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeConflictPlotNotActive))
}

func TestRenewedRental_NilRecord(t *testing.T) {
	_, err := RenewedRental(nil, types.TermMonthly, time.Now())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeConflictPlotNotActive))
}
