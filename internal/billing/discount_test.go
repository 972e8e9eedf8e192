package billing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputePercent(t *testing.T) {
	got := ComputeDiscount(150_000, Percent{Points: 10})
	require.Equal(t, int64(15_000), got)
	require.Equal(t, int64(135_000), ComputeGrandTotal(150_000, 0, got))
}

func TestComputePercentRoundsHalfUp(t *testing.T) {
	// 12345 * 10% = 1234.5
	require.Equal(t, int64(1235), ComputeDiscount(12_345, Percent{Points: 10}))
	// 12344 * 10% = 1234.4
	require.Equal(t, int64(1234), ComputeDiscount(12_344, Percent{Points: 10}))
	require.Equal(t, int64(0), ComputeDiscount(0, Percent{Points: 50}))
}

func TestComputePercentSaturates(t *testing.T) {
	require.Equal(t, int64(math.MaxInt64), ComputeDiscount(math.MaxInt64, Percent{Points: 1000}))
	require.Equal(t, int64(4_611_686_018_427_387_904), ComputeDiscount(math.MaxInt64, Percent{Points: 50}))
}

func TestFixedDiscountIsNotClamped(t *testing.T) {
	require.Equal(t, int64(999_999_999), ComputeDiscount(100_000, Fixed{Units: 999_999_999}))
	require.Equal(t, int64(0), ComputeGrandTotal(100_000, 0, 999_999_999))
}

func TestFixedExample(t *testing.T) {
	d := ComputeDiscount(350_000, Fixed{Units: 50_000})
	require.Equal(t, int64(300_000), ComputeGrandTotal(300_000, 50_000, d))
}

func TestGrandTotalMonotonicAndBounded(t *testing.T) {
	const subtotal = 100_000
	for _, kind := range []Kind{KindFixed, KindPercent} {
		prev := int64(math.MaxInt64)
		for v := int64(0); v <= 200_000; v += 997 {
			d, err := NewDiscount(kind, v)
			require.NoError(t, err)
			total := ComputeGrandTotal(subtotal, 0, ComputeDiscount(subtotal, d))
			require.GreaterOrEqual(t, total, int64(0))
			require.LessOrEqual(t, total, prev, "kind %s value %d", kind, v)
			prev = total
		}
	}
}

func TestParseDiscountInput(t *testing.T) {
	d, err := ParseDiscountInput("12a3b", "fixed")
	require.NoError(t, err)
	require.Equal(t, Fixed{Units: 123}, d)

	d, err = ParseDiscountInput("", "percent")
	require.NoError(t, err)
	require.Equal(t, Percent{Points: 0}, d)

	d, err = ParseDiscountInput("-15", "")
	require.NoError(t, err)
	require.Equal(t, KindFixed, d.Kind())
	require.Equal(t, int64(15), d.Value())

	_, err = ParseDiscountInput("10", "voucher")
	require.True(t, errors.Is(err, ErrUnknownKind))
}

func TestNilDiscountIsZero(t *testing.T) {
	require.Equal(t, int64(0), ComputeDiscount(10_000, nil))
}
