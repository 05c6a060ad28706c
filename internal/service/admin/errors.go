package admin

import "errors"

var (
	ErrShopNotFound        = errors.New("shop not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrInvalidInput        = errors.New("invalid input")
)
