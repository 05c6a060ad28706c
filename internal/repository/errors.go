package repository

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrShopClosed        = errors.New("shop is not accepting bookings")
	ErrBarberUnavailable = errors.New("no barber available")
	ErrStaleOrder        = errors.New("queue order is stale")
)
