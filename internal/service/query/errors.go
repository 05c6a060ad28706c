package query

import "errors"

var (
	ErrShopNotFound   = errors.New("shop not found")
	ErrClientNotFound = errors.New("client not found")
)
