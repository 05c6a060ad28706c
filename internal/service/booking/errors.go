package booking

import "errors"

var (
	ErrNoServices        = errors.New("no services selected")
	ErrUnknownService    = errors.New("unknown service selected")
	ErrInvalidPhone      = errors.New("invalid phone number")
	ErrInvalidName       = errors.New("client name required")
	ErrShopNotFound      = errors.New("shop not found")
	ErrShopClosed        = errors.New("shop is not accepting bookings")
	ErrStartInPast       = errors.New("requested start is in the past")
	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrNoBarberAvailable = errors.New("no barber available for the requested slot")
)
