package push

import (
	"encoding/json"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/freshcut/freshcut-go/internal/domain"
)

type VAPIDConfig struct {
	Subject    string
	PublicKey  string
	PrivateKey string
	TTL        int
}

// WebPush sends VAPID-signed web push messages.
type WebPush struct {
	cfg VAPIDConfig
}

func NewWebPush(cfg VAPIDConfig) *WebPush {
	if cfg.TTL <= 0 {
		cfg.TTL = 60
	}
	return &WebPush{cfg: cfg}
}

func (w *WebPush) Send(sub domain.PushSubscription, p Payload) error {
	const op = "push.WebPush.Send"

	if p.Icon == "" {
		p.Icon = DefaultIcon
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	resp, err := webpush.SendNotification(body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      w.cfg.Subject,
		VAPIDPublicKey:  w.cfg.PublicKey,
		VAPIDPrivateKey: w.cfg.PrivateKey,
		TTL:             w.cfg.TTL,
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusGone, http.StatusNotFound:
		return fmt.Errorf("%s: status %d:%w", op, resp.StatusCode, ErrSubscriptionGone)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: push endpoint returned %d", op, resp.StatusCode)
	}

	return nil
}
