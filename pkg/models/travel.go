package models

import "time"

// PromoSummary is the typed view of a promos row.
type PromoSummary struct {
	Name          string    `json:"name"`
	PromoCode     string    `json:"promo_code,omitempty"`
	DiscountType  string    `json:"discount_type,omitempty"`
	DiscountValue *float64  `json:"discount_value,omitempty"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	IsActive      int       `json:"is_active"`
}

// TripSummary is the typed view of a trips row.
type TripSummary struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Slug     string  `json:"slug"`
	Location string  `json:"location"`
	Duration string  `json:"duration"`
	Price    float64 `json:"price"`
	Status   string  `json:"status"`
	IsActive int     `json:"is_active"`
}

// BookingSummary is a booking joined with its trip name.
type BookingSummary struct {
	ID            int64     `json:"id"`
	BookingCode   string    `json:"booking_code"`
	TripID        int64     `json:"trip_id"`
	TripName      string    `json:"trip_name,omitempty"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	DepartureDate time.Time `json:"departure_date"`
	Participants  int       `json:"participants"`
	TotalAmount   float64   `json:"total_amount"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	CreatedAt     time.Time `json:"created_at"`
}
