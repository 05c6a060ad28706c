package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/freshcut/freshcut-go/internal/domain"
	postgresrepo "github.com/freshcut/freshcut-go/internal/repository/postgres"
)

var ErrInvalidSubscription = errors.New("invalid push subscription")

// Service registers browser push subscriptions so the notification
// scheduler can reach waiting clients.
type Service struct {
	store *postgresrepo.Store
}

func New(store *postgresrepo.Store) *Service {
	return &Service{store: store}
}

// Register upserts a subscription keyed by endpoint. ClientID is optional:
// a subscription registered before the client books is adopted once the
// booking links it.
func (s *Service) Register(
	ctx context.Context,
	endpoint, p256dh, auth string,
	clientID *uuid.UUID,
) (*domain.PushSubscription, error) {
	const op = "service.subscription.Register"

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" || p256dh == "" || auth == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidSubscription)
	}

	sub := &domain.PushSubscription{
		ID:       uuid.New(),
		Endpoint: endpoint,
		P256dh:   p256dh,
		Auth:     auth,
		ClientID: clientID,
	}

	if err := s.store.Subscriptions().Upsert(ctx, sub); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return sub, nil
}
