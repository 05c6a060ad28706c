package booking

import (
	"strings"
	"time"

	"github.com/freshcut/freshcut-go/internal/domain"
)

// validate rejects malformed requests synchronously, before any store
// round-trip. Conflict detection happens later, inside the atomic unit.
func validate(req Request, now time.Time) error {
	if strings.TrimSpace(req.ClientName) == "" {
		return ErrInvalidName
	}

	if !validPhone(req.ClientPhone) {
		return ErrInvalidPhone
	}

	if len(req.ServiceIDs) == 0 {
		return ErrNoServices
	}

	if req.Mode == domain.BookingFixed && !req.RequestedStart.After(now) {
		return ErrStartInPast
	}

	return nil
}

// validPhone accepts the booking flow's 10-digit local format.
func validPhone(s string) bool {
	if len(s) != 10 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
