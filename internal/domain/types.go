package domain

import (
	"time"

	"github.com/google/uuid"
)

type ShopStatus string

const (
	ShopOpen   ShopStatus = "open"
	ShopBreak  ShopStatus = "break"
	ShopClosed ShopStatus = "closed"
)

type QueueStatus string

const (
	QueueWaiting    QueueStatus = "waiting"
	QueueNotified   QueueStatus = "notified"
	QueueInProgress QueueStatus = "in_progress"
	QueueDone       QueueStatus = "done"
	QueueCancelled  QueueStatus = "cancelled"
)

// Active reports whether the entry still occupies a position in the queue.
// Done and cancelled entries are excluded from position numbering.
func (s QueueStatus) Active() bool {
	switch s {
	case QueueWaiting, QueueNotified, QueueInProgress:
		return true
	}
	return false
}

type AppointmentStatus string

const (
	AppointmentScheduled  AppointmentStatus = "scheduled"
	AppointmentConfirmed  AppointmentStatus = "confirmed"
	AppointmentInProgress AppointmentStatus = "in_progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentNoShow     AppointmentStatus = "no_show"
	AppointmentCancelled  AppointmentStatus = "cancelled"
)

type BookingMode string

const (
	BookingWalkIn BookingMode = "walk_in"
	BookingFixed  BookingMode = "fixed"
)

type Shop struct {
	ID      uuid.UUID
	Name    string
	Address string
	Phone   string
	Status  ShopStatus
}

type Client struct {
	ID     uuid.UUID
	ShopID uuid.UUID
	Name   string
	Phone  string
}

type Barber struct {
	ID     uuid.UUID
	ShopID uuid.UUID
	Name   string
	Status string // active, pause, off
}

type Service struct {
	ID          uuid.UUID
	ShopID      uuid.UUID
	Name        string
	PriceCents  int
	DurationMin int
	IsActive    bool
}

type Product struct {
	ID         uuid.UUID
	ShopID     uuid.UUID
	Name       string
	PriceCents int
	Stock      int
	IsActive   bool
}

type Promotion struct {
	ID            uuid.UUID
	ShopID        uuid.UUID
	Name          string
	DiscountType  string // percentage, fixed
	DiscountValue int
	StartDate     time.Time
	EndDate       time.Time
	IsActive      bool
}

type QueueEntry struct {
	ID               uuid.UUID
	ShopID           uuid.UUID
	ClientID         uuid.UUID
	BarberID         *uuid.UUID
	ServiceIDs       []uuid.UUID
	Position         int
	Status           QueueStatus
	EstimatedWaitMin int
	LastNotifiedPos  *int
	JoinedAt         time.Time
	NotifiedAt       *time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

type Appointment struct {
	ID           uuid.UUID
	ShopID       uuid.UUID
	ClientID     uuid.UUID
	BarberID     uuid.UUID
	ServiceIDs   []uuid.UUID
	StartTime    time.Time
	EndTime      time.Time
	Status       AppointmentStatus
	TotalCents   int
	IsPaid       bool
	ReminderSent bool
}

type PushSubscription struct {
	ID       uuid.UUID
	Endpoint string
	P256dh   string
	Auth     string
	ClientID *uuid.UUID
}

// TimeRemaining is the countdown returned with a booking confirmation.
type TimeRemaining struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// TimeRemainingUntil splits the duration from now until t into days, hours
// and minutes, flooring negative durations at zero.
func TimeRemainingUntil(now, t time.Time) TimeRemaining {
	d := t.Sub(now)
	if d < 0 {
		d = 0
	}
	return TimeRemainingFromMinutes(int(d.Minutes()))
}

func TimeRemainingFromMinutes(min int) TimeRemaining {
	if min < 0 {
		min = 0
	}
	return TimeRemaining{
		Days:    min / (24 * 60),
		Hours:   (min % (24 * 60)) / 60,
		Minutes: min % 60,
	}
}
