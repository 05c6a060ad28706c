package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freshcut/freshcut-go/internal/domain"
	"github.com/freshcut/freshcut-go/internal/repository"
)

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// EnsureClient finds the shop's client by phone or creates one. Walk-in and
// fixed bookings both funnel through it so repeat customers keep one row.
func (r *BookingRepo) EnsureClient(
	ctx context.Context,
	shopID uuid.UUID,
	name, phone string,
) (uuid.UUID, error) {
	const op = "postgres.BookingRepo.EnsureClient"

	db := r.handle()

	var id uuid.UUID
	err := db.QueryRow(ctx,
		`INSERT INTO clients (id, shop_id, name, phone)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (shop_id, phone)
		 DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		uuid.New(), shopID, name, phone,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, wrapDBErr(op, err)
	}

	return id, nil
}

// EnqueueWalkIn appends a queue entry at the tail of the shop's active queue.
// Position and the initial wait estimate are computed inside the caller's
// serializable transaction, so two concurrent walk-ins cannot claim the same
// position.
func (r *BookingRepo) EnqueueWalkIn(
	ctx context.Context,
	e *domain.QueueEntry,
) error {
	const op = "postgres.BookingRepo.EnqueueWalkIn"

	db := r.handle()

	var active int
	var avgMin float64
	err := db.QueryRow(ctx,
		`SELECT count(*),
		        COALESCE((SELECT avg(duration_min) FROM services
		                  WHERE shop_id = $1 AND is_active), 25)
		 FROM queue_items
		 WHERE shop_id = $1
		   AND status IN ('waiting', 'notified', 'in_progress')`,
		e.ShopID,
	).Scan(&active, &avgMin)
	if err != nil {
		return wrapDBErr(op, err)
	}

	var ownMin int
	err = db.QueryRow(ctx,
		`SELECT COALESCE(sum(duration_min), 0) FROM services WHERE id = ANY($1)`,
		e.ServiceIDs,
	).Scan(&ownMin)
	if err != nil {
		return wrapDBErr(op, err)
	}

	e.Position = active + 1
	e.EstimatedWaitMin = int(avgMin)*active + ownMin
	e.Status = domain.QueueWaiting

	_, err = db.Exec(ctx,
		`INSERT INTO queue_items
		 (id, shop_id, client_id, barber_id, service_ids, position, status,
		  estimated_wait_time, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.ShopID, e.ClientID, e.BarberID, e.ServiceIDs, e.Position,
		e.Status, e.EstimatedWaitMin, e.JoinedAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// ResolveBarber returns a barber free of non-cancelled appointments over
// [start, end). With a nil preference it picks the first active barber whose
// calendar is clear; with a preference it verifies that barber's calendar.
// Returns repository.ErrSlotUnavailable when the preferred barber is booked
// and repository.ErrBarberUnavailable when no barber is free.
func (r *BookingRepo) ResolveBarber(
	ctx context.Context,
	shopID uuid.UUID,
	preferred *uuid.UUID,
	start, end time.Time,
) (uuid.UUID, error) {
	const op = "postgres.BookingRepo.ResolveBarber"

	db := r.handle()

	if preferred != nil {
		var clash bool
		err := db.QueryRow(ctx,
			`SELECT EXISTS (
			   SELECT 1 FROM appointments
			   WHERE barber_id = $1
			     AND status <> 'cancelled'
			     AND start_time < $3
			     AND end_time > $2)`,
			*preferred, start, end,
		).Scan(&clash)
		if err != nil {
			return uuid.Nil, wrapDBErr(op, err)
		}
		if clash {
			return uuid.Nil, fmt.Errorf("%s:%w", op, repository.ErrSlotUnavailable)
		}
		return *preferred, nil
	}

	var id uuid.UUID
	err := db.QueryRow(ctx,
		`SELECT b.id FROM barbers b
		 WHERE b.shop_id = $1
		   AND b.status = 'active'
		   AND NOT EXISTS (
		     SELECT 1 FROM appointments a
		     WHERE a.barber_id = b.id
		       AND a.status <> 'cancelled'
		       AND a.start_time < $3
		       AND a.end_time > $2)
		 ORDER BY b.name
		 LIMIT 1`,
		shopID, start, end,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("%s:%w", op, repository.ErrBarberUnavailable)
		}
		return uuid.Nil, wrapDBErr(op, err)
	}

	return id, nil
}

// InsertAppointment persists a scheduled appointment. The barber-overlap
// exclusion constraint backstops the in-transaction check, so a concurrent
// conflicting booking surfaces as repository.ErrSlotUnavailable.
func (r *BookingRepo) InsertAppointment(ctx context.Context, a *domain.Appointment) error {
	const op = "postgres.BookingRepo.InsertAppointment"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO appointments
		 (id, shop_id, client_id, barber_id, service_ids, start_time, end_time,
		  status, total_price, is_paid, reminder_sent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.ShopID, a.ClientID, a.BarberID, a.ServiceIDs, a.StartTime,
		a.EndTime, a.Status, a.TotalCents, a.IsPaid, a.ReminderSent,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
