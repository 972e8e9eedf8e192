package billing

import (
	"math"

	"github.com/noah-isme/petlog-console/internal/money"
)

// Snapshot mirrors GET /bookings/{id}/billing. It is re-fetched every time a
// checkout is opened and never cached beyond that draft.
type Snapshot struct {
	RoomTotal     money.Money `json:"room_total"`
	ServicesTotal money.Money `json:"services_total"`
	Days          int         `json:"days"`
}

// Subtotal is room plus services, saturating on overflow.
func (s Snapshot) Subtotal() money.Money {
	return addSat(nonNegative(s.RoomTotal), nonNegative(s.ServicesTotal))
}

// Summary is the derived, advisory view of a checkout.
type Summary struct {
	RoomTotal       money.Money `json:"room_total"`
	ServicesTotal   money.Money `json:"services_total"`
	Days            int         `json:"days"`
	Subtotal        money.Money `json:"subtotal"`
	DiscountValue   int64       `json:"discount_value"`
	DiscountType    Kind        `json:"discount_type"`
	DiscountAmount  money.Money `json:"discount_amount"`
	AppliedDiscount money.Money `json:"applied_discount"`
	GrandTotal      money.Money `json:"grand_total"`
}

// ComputeGrandTotal returns max(0, room + services - discount).
func ComputeGrandTotal(roomTotal, servicesTotal, discount money.Money) money.Money {
	subtotal := addSat(nonNegative(roomTotal), nonNegative(servicesTotal))
	discount = nonNegative(discount)
	if discount >= subtotal {
		return 0
	}
	return subtotal - discount
}

// Preview derives the discount and grand total for snapshot under d.
func Preview(s Snapshot, d Discount) Summary {
	if d == nil {
		d = NoDiscount()
	}
	subtotal := s.Subtotal()
	discount := ComputeDiscount(subtotal, d)
	applied := discount
	if applied > subtotal {
		applied = subtotal
	}
	days := s.Days
	if days < 1 {
		days = 1
	}
	return Summary{
		RoomTotal:       nonNegative(s.RoomTotal),
		ServicesTotal:   nonNegative(s.ServicesTotal),
		Days:            days,
		Subtotal:        subtotal,
		DiscountValue:   d.Value(),
		DiscountType:    d.Kind(),
		DiscountAmount:  discount,
		AppliedDiscount: applied,
		GrandTotal:      ComputeGrandTotal(s.RoomTotal, s.ServicesTotal, discount),
	}
}

func addSat(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}
