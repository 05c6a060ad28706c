package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freshcut/freshcut-go/internal/domain"
)

type SubscriptionRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *SubscriptionRepo) With(db DB) *SubscriptionRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *SubscriptionRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Upsert stores a push subscription keyed by endpoint. Re-registering an
// endpoint refreshes its keys and owner rather than duplicating the row.
func (r *SubscriptionRepo) Upsert(ctx context.Context, s *domain.PushSubscription) error {
	const op = "postgres.SubscriptionRepo.Upsert"

	err := r.handle().QueryRow(ctx,
		`INSERT INTO push_subscriptions (id, endpoint, p256dh, auth, client_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (endpoint)
		 DO UPDATE SET p256dh = EXCLUDED.p256dh,
		               auth = EXCLUDED.auth,
		               client_id = COALESCE(EXCLUDED.client_id, push_subscriptions.client_id)
		 RETURNING id`,
		s.ID, s.Endpoint, s.P256dh, s.Auth, s.ClientID,
	).Scan(&s.ID)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *SubscriptionRepo) ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.PushSubscription, error) {
	const op = "postgres.SubscriptionRepo.ListByClient"

	rows, err := r.handle().Query(ctx,
		`SELECT id, endpoint, p256dh, auth, client_id
		 FROM push_subscriptions
		 WHERE client_id = $1`,
		clientID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.PushSubscription
	for rows.Next() {
		var s domain.PushSubscription
		if err := rows.Scan(&s.ID, &s.Endpoint, &s.P256dh, &s.Auth, &s.ClientID); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// Delete removes a subscription whose endpoint the gateway reported as
// permanently gone. Deleting an already-removed row is not an error.
func (r *SubscriptionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.SubscriptionRepo.Delete"

	_, err := r.handle().Exec(ctx,
		`DELETE FROM push_subscriptions WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
