package httpgin

import (
	"time"

	"github.com/freshcut/freshcut-go/internal/domain"
)

type CreateBookingRequest struct {
	ClientName  string   `json:"client_name" binding:"required"`
	ClientPhone string   `json:"client_phone" binding:"required"`
	ServiceIDs  []string `json:"service_ids" binding:"required,min=1,dive,uuid"`
	BarberID    string   `json:"barber_id" binding:"omitempty,uuid"`
	Mode        string   `json:"mode" binding:"required,oneof=walk_in fixed"`
	StartTime   string   `json:"start_time"`
}

type CreateBookingResponse struct {
	ConfirmationID string               `json:"confirmation_id"`
	Mode           string               `json:"mode"`
	BarberID       string               `json:"barber_id,omitempty"`
	TimeRemaining  domain.TimeRemaining `json:"time_remaining"`
}

type RegisterSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
	ClientID string `json:"client_id" binding:"omitempty,uuid"`
}

type RegisterSubscriptionResponse struct {
	SubscriptionID string `json:"subscription_id"`
}

type ReorderQueueRequest struct {
	EntryIDs []string `json:"entry_ids" binding:"required,min=1,dive,uuid"`
}

type TransitionRequest struct {
	Status string `json:"status" binding:"required,oneof=waiting notified in_progress done cancelled"`
}

type SetAppointmentStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=confirmed in_progress completed no_show cancelled"`
}

type SetShopStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=open break closed"`
}

type CreateBarberRequest struct {
	Name string `json:"name" binding:"required"`
}

type CreateServiceRequest struct {
	Name        string `json:"name" binding:"required"`
	PriceCents  int    `json:"price_cents" binding:"required,gte=0"`
	DurationMin int    `json:"duration_min" binding:"required,gt=0"`
}

type CreateProductRequest struct {
	Name       string `json:"name" binding:"required"`
	PriceCents int    `json:"price_cents" binding:"required,gte=0"`
	Stock      int    `json:"stock" binding:"gte=0"`
}

type CreatePromotionRequest struct {
	Name          string `json:"name" binding:"required"`
	DiscountType  string `json:"discount_type" binding:"required,oneof=percentage fixed"`
	DiscountValue int    `json:"discount_value" binding:"required,gt=0"`
	StartDate     string `json:"start_date" binding:"required"`
	EndDate       string `json:"end_date" binding:"required"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
