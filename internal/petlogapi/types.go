package petlogapi

import (
	"time"

	"github.com/noah-isme/petlog-console/internal/money"
)

// Booking mirrors the booking projection returned by the API. Billing fields
// are only populated once the booking has been checked out.
type Booking struct {
	ID               int64        `json:"id"`
	RoomID           int64        `json:"room_id"`
	OwnerName        string       `json:"owner_name"`
	OwnerPhone       string       `json:"owner_phone"`
	DiaryToken       string       `json:"diary_token"`
	CheckInAt        time.Time    `json:"check_in_at"`
	CheckOutAt       *time.Time   `json:"check_out_at,omitempty"`
	ExpectedCheckout *time.Time   `json:"expected_checkout,omitempty"`
	Status           string       `json:"status"`
	DailyRate        money.Money  `json:"daily_rate,omitempty"`
	RoomTotal        money.Money  `json:"room_total,omitempty"`
	ServicesTotal    money.Money  `json:"services_total,omitempty"`
	Discount         int64        `json:"discount,omitempty"`
	DiscountType     string       `json:"discount_type,omitempty"`
	GrandTotal       money.Money  `json:"grand_total,omitempty"`
	InvoiceNumber    string       `json:"invoice_number,omitempty"`
	RoomTypeName     string       `json:"room_type_name,omitempty"`
	Services         []ServiceFee `json:"services,omitempty"`
	PaymentStatus    string       `json:"payment_status,omitempty"`
	PaymentMethod    string       `json:"payment_method,omitempty"`
	PaymentAmount    money.Money  `json:"payment_amount,omitempty"`
	PaidAt           *time.Time   `json:"paid_at,omitempty"`
}

// Booking statuses.
const (
	BookingActive    = "active"
	BookingCompleted = "completed"
)

// ServiceFee is one billed add-on service of a booking.
type ServiceFee struct {
	ID    int64       `json:"id"`
	Name  string      `json:"name"`
	Total money.Money `json:"total"`
}

// CheckoutRequest is the body of PATCH /bookings/{id}/checkout.
type CheckoutRequest struct {
	Discount     *int64     `json:"discount,omitempty"`
	DiscountType string     `json:"discount_type,omitempty"`
	CheckOutAt   *time.Time `json:"check_out_at,omitempty"`
}

// PaymentUpdate is the body of PATCH /bookings/{id}/payment.
type PaymentUpdate struct {
	PaymentStatus string      `json:"payment_status"`
	PaymentMethod string      `json:"payment_method"`
	PaymentAmount money.Money `json:"payment_amount"`
}

// Payment methods accepted when marking a booking paid.
const (
	PaymentCash = "cash"
	PaymentBank = "bank"
)

// UpgradeCost is the server-computed proration for switching plans.
type UpgradeCost struct {
	Type           string      `json:"type"`
	CurrentPlan    string      `json:"current_plan"`
	NewPlan        string      `json:"new_plan"`
	NewPlanDisplay string      `json:"new_plan_display"`
	NewPrice       money.Money `json:"new_price"`
	CurrentPrice   money.Money `json:"current_price"`
	DaysRemaining  int         `json:"days_remaining"`
	TotalDays      int         `json:"total_days"`
	ProratedAmount money.Money `json:"prorated_amount"`
	Amount         money.Money `json:"amount"`
	ExpiresAt      *time.Time  `json:"expires_at,omitempty"`
	Message        string      `json:"message"`
}

// ExtraRoomsCost is the server-computed cost of adding rooms mid-cycle.
type ExtraRoomsCost struct {
	Count         int         `json:"count"`
	PricePerRoom  money.Money `json:"price_per_room"`
	DaysRemaining int         `json:"days_remaining"`
	CurrentExtra  int         `json:"current_extra"`
	NewTotal      int         `json:"new_total"`
	MaxRoomsAfter int         `json:"max_rooms_after"`
	Amount        money.Money `json:"amount"`
	Message       string      `json:"message"`
}

// Subscription is the hotel's current plan.
type Subscription struct {
	Plan        string     `json:"plan"`
	MaxRooms    int        `json:"max_rooms"`
	ExtraRooms  int        `json:"extra_rooms"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
	IsActive    bool       `json:"is_active"`
}

// IsPaid reports whether the hotel is on a paid plan, in which case plan
// changes are upgrades priced by proration.
func (s Subscription) IsPaid() bool {
	return s.Plan != "" && s.Plan != "trial" && s.Plan != "free"
}

// PaymentRequest is the body of POST /payment/create.
type PaymentRequest struct {
	Plan       string `json:"plan"`
	Months     int    `json:"months"`
	Upgrade    bool   `json:"upgrade"`
	ExtraRooms int    `json:"extra_rooms"`
}

// PaymentLink is the gateway checkout returned by the API.
type PaymentLink struct {
	CheckoutURL string      `json:"checkoutUrl"`
	OrderCode   int64       `json:"orderCode"`
	Amount      money.Money `json:"amount"`
}
