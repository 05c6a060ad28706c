package push

import (
	"errors"

	"github.com/freshcut/freshcut-go/internal/domain"
)

var (
	// ErrSubscriptionGone marks a permanent delivery failure: the endpoint
	// is expired or revoked and the subscription row must be deleted.
	ErrSubscriptionGone = errors.New("push subscription gone")
)

// Payload is the message body delivered to the service worker.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
}

// DefaultIcon matches the PWA icon the service worker displays.
const DefaultIcon = "/pwa-192x192.png"

// Sender delivers one payload to one subscription. Implementations return
// ErrSubscriptionGone for permanent failures; any other error is transient.
type Sender interface {
	Send(sub domain.PushSubscription, p Payload) error
}
