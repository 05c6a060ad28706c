package queue

import "errors"

var (
	ErrEntryNotFound      = errors.New("queue entry not found")
	ErrInvalidTransition  = errors.New("illegal status transition")
	ErrBarberBusy         = errors.New("barber already has a client in progress")
	ErrStaleOrder         = errors.New("queue order changed, re-fetch and retry")
	ErrIncompleteOrdering = errors.New("reorder must list every active entry exactly once")
)
