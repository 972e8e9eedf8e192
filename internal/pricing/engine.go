package pricing

import (
	"math"

	"github.com/noah-isme/petlog-console/internal/money"
)

// AnnualMonths is the purchase length that earns the annual discount.
const AnnualMonths = 12

// annualRatePct is the share of the list price charged for an annual purchase.
const annualRatePct = 90

// Plan mirrors an entry of GET /payment/plans.
type Plan struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	DisplayName string      `json:"display_name"`
	Price       money.Money `json:"price"`
	MaxRooms    int         `json:"max_rooms"`
	Description string      `json:"description"`
}

// Purchase describes a new (non-upgrade) subscription order.
type Purchase struct {
	Plan           Plan
	Months         int
	ExtraRooms     int
	ExtraRoomPrice money.Money
}

// Estimate is the display-only breakdown of a new purchase. The payment
// endpoint computes the charged amount itself.
type Estimate struct {
	PlanCost        money.Money `json:"plan_cost"`
	ExtraCost       money.Money `json:"extra_cost"`
	Total           money.Money `json:"total"`
	TotalRooms      int         `json:"total_rooms"`
	Months          int         `json:"months"`
	AnnualDiscount  bool        `json:"annual_discount"`
	MonthlyPrice    money.Money `json:"monthly_price"`
	ExtraRoomPrice  money.Money `json:"extra_room_price"`
	ExtraRoomsCount int         `json:"extra_rooms"`
}

// Compute estimates a new purchase. A 12 month purchase pays 90% of the list
// price, rounded up to a whole unit. Upgrades are never estimated here; their
// amounts come from the proration quotes.
func Compute(p Purchase) Estimate {
	months := p.Months
	if months < 1 {
		months = 1
	}
	extra := p.ExtraRooms
	if extra < 0 {
		extra = 0
	}
	price := max(p.Plan.Price, 0)
	unit := max(p.ExtraRoomPrice, 0)

	planCost := mulSat(price, int64(months))
	annual := months == AnnualMonths
	if annual {
		planCost = ceilPct(planCost, annualRatePct)
	}
	extraCost := mulSat(mulSat(int64(extra), unit), int64(months))
	return Estimate{
		PlanCost:        planCost,
		ExtraCost:       extraCost,
		Total:           addSat(planCost, extraCost),
		TotalRooms:      p.Plan.MaxRooms + extra,
		Months:          months,
		AnnualDiscount:  annual,
		MonthlyPrice:    price,
		ExtraRoomPrice:  unit,
		ExtraRoomsCount: extra,
	}
}

// ceilPct returns ceil(v * pct / 100) for non-negative v.
func ceilPct(v int64, pct int64) int64 {
	whole := mulSat(v/100, pct)
	rest := (v%100*pct + 99) / 100
	return addSat(whole, rest)
}

func mulSat(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxInt64/b {
		return math.MaxInt64
	}
	return a * b
}

func addSat(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}
