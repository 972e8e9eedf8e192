// Package billing holds the discount and grand-total arithmetic shared by
// every checkout surface of the console. The external API recomputes the same
// figures authoritatively; nothing here is persisted.
package billing

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strings"

	"github.com/noah-isme/petlog-console/internal/common"
	"github.com/noah-isme/petlog-console/internal/money"
)

// Kind is the wire tag of a discount, as accepted by the checkout endpoint.
type Kind string

const (
	KindFixed   Kind = "fixed"
	KindPercent Kind = "percent"
)

// ErrUnknownKind is returned when a discount tag is neither fixed nor percent.
var ErrUnknownKind = errors.New("billing: unknown discount type")

// ParseKind maps a wire tag to a Kind. An empty tag means fixed, matching the
// checkout form default.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case "", KindFixed:
		return KindFixed, nil
	case KindPercent:
		return KindPercent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

// Discount is a closed set of discount rules. Only this package can add
// implementations.
type Discount interface {
	// Kind reports the wire tag sent back to the API.
	Kind() Kind
	// Value is the raw user-entered number (currency units or percent points).
	Value() int64
	// amount computes the discount for the given subtotal.
	amount(subtotal money.Money) money.Money
}

// Fixed takes a flat number of currency units off the subtotal.
type Fixed struct{ Units money.Money }

// Percent takes a percentage of the subtotal, rounded half-up to whole units.
type Percent struct{ Points int64 }

func (Fixed) Kind() Kind { return KindFixed }

func (d Fixed) Value() int64 { return nonNegative(d.Units) }

func (Percent) Kind() Kind { return KindPercent }

func (d Percent) Value() int64 { return nonNegative(d.Points) }

func (d Fixed) amount(money.Money) money.Money {
	return nonNegative(d.Units)
}

func (d Percent) amount(subtotal money.Money) money.Money {
	return percentOf(nonNegative(subtotal), nonNegative(d.Points))
}

// NewDiscount builds the discount for kind with the given raw value.
func NewDiscount(kind Kind, value int64) (Discount, error) {
	switch kind {
	case KindFixed:
		return Fixed{Units: nonNegative(value)}, nil
	case KindPercent:
		return Percent{Points: nonNegative(value)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
}

// ParseDiscountInput turns the raw form fields into a Discount. Non-digit
// characters are stripped from text and empty text means 0; only an unknown
// kind is an error.
func ParseDiscountInput(text, kind string) (Discount, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}
	return NewDiscount(k, common.ParseDigits(text))
}

// NoDiscount is the zero fixed discount used when a draft is opened.
func NoDiscount() Discount { return Fixed{} }

// ComputeDiscount returns the discount amount for subtotal. A fixed discount
// is returned unclamped; its effect is bounded in ComputeGrandTotal. A nil
// discount is worth 0.
func ComputeDiscount(subtotal money.Money, d Discount) money.Money {
	if d == nil {
		return 0
	}
	return d.amount(subtotal)
}

// percentOf computes round_half_up(subtotal * points / 100) without
// overflowing, saturating at math.MaxInt64.
func percentOf(subtotal, points int64) int64 {
	if subtotal == 0 || points == 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(subtotal), uint64(points))
	lo, carry := bits.Add64(lo, 50, 0)
	hi += carry
	if hi >= 100 {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, 100)
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
