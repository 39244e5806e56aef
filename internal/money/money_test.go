package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillpoint/backend/internal/domain"
)

func TestTaxRoundsHalfUp(t *testing.T) {
	cases := []struct {
		amount int64
		rate   string
		want   int64
	}{
		{1000, "0.08", 80},
		{1, "0.5", 1},
		{3, "0.5", 2},
		{125, "0.1", 13},
		{124, "0.1", 12},
		{999, "0.0825", 82},
		{0, "0.08", 0},
	}
	for _, tc := range cases {
		got, err := Tax(tc.amount, decimal.RequireFromString(tc.rate))
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "tax(%d, %s)", tc.amount, tc.rate)
	}
}

func TestTaxIdentityRates(t *testing.T) {
	for _, amount := range []int64{0, 1, 99, 1080, 123456789} {
		zero, err := Tax(amount, decimal.Zero)
		require.NoError(t, err)
		assert.Zero(t, zero)

		full, err := Tax(amount, decimal.NewFromInt(1))
		require.NoError(t, err)
		assert.Equal(t, amount, full)
	}
}

func TestTaxRejectsBadInput(t *testing.T) {
	_, err := Tax(-1, decimal.RequireFromString("0.08"))
	assert.ErrorIs(t, err, ErrNegativeAmount)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = Tax(100, decimal.RequireFromString("1.01"))
	assert.ErrorIs(t, err, ErrInvalidRate)

	_, err = Tax(100, decimal.RequireFromString("-0.01"))
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestLineTotal(t *testing.T) {
	got, err := LineTotal(500, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got)

	_, err = LineTotal(500, 0)
	if !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	_, err = LineTotal(500, -3)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestProcessingFee(t *testing.T) {
	fee, err := ProcessingFee(1080, decimal.RequireFromString("0.002"), 5)
	require.NoError(t, err)
	// round(2.16) + 5
	assert.Equal(t, int64(7), fee)

	fee, err = ProcessingFee(250000, decimal.RequireFromString("0.002"), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(505), fee)
}

func TestProrate(t *testing.T) {
	cases := []struct {
		total, orig, req int
		want             int64
	}{
		{1080, 2, 1, 540},
		{1000, 3, 1, 333},
		{1000, 3, 2, 667},
		{1001, 2, 1, 501},
		{999, 3, 3, 999},
	}
	for _, tc := range cases {
		got, err := Prorate(int64(tc.total), tc.orig, tc.req)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "prorate(%d, %d, %d)", tc.total, tc.orig, tc.req)
	}

	_, err := Prorate(1000, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestParseRate(t *testing.T) {
	rate, err := ParseRate(" 0.0825 ")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.0825")))

	_, err = ParseRate("eight percent")
	assert.ErrorIs(t, err, ErrInvalidRate)

	_, err = ParseRate("2")
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "$10.80", Format(1080))
	assert.Equal(t, "$0.05", Format(5))
	assert.Equal(t, "-$4.20", Format(-420))
}
