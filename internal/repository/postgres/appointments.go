package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freshcut/freshcut-go/internal/domain"
	"github.com/freshcut/freshcut-go/internal/repository"
)

type AppointmentRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *AppointmentRepo) With(db DB) *AppointmentRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *AppointmentRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const appointmentColumns = `id, shop_id, client_id, barber_id, service_ids,
	start_time, end_time, status, total_price, is_paid, reminder_sent`

func scanAppointment(row pgx.Row) (*domain.Appointment, error) {
	var a domain.Appointment
	err := row.Scan(
		&a.ID, &a.ShopID, &a.ClientID, &a.BarberID, &a.ServiceIDs,
		&a.StartTime, &a.EndTime, &a.Status, &a.TotalCents, &a.IsPaid,
		&a.ReminderSent,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AppointmentRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	const op = "postgres.AppointmentRepo.Get"

	a, err := scanAppointment(r.handle().QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return a, nil
}

func (r *AppointmentRepo) ListByShop(
	ctx context.Context,
	shopID uuid.UUID,
	from, to time.Time,
) ([]domain.Appointment, error) {
	const op = "postgres.AppointmentRepo.ListByShop"

	rows, err := r.handle().Query(ctx,
		`SELECT `+appointmentColumns+`
		 FROM appointments
		 WHERE shop_id = $1 AND start_time >= $2 AND start_time < $3
		 ORDER BY start_time`,
		shopID, from, to,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// DueReminders returns confirmed, unreminded appointments whose start time
// falls in [from, to). The window is inclusive at from and exclusive at to.
func (r *AppointmentRepo) DueReminders(
	ctx context.Context,
	from, to time.Time,
) ([]domain.Appointment, error) {
	const op = "postgres.AppointmentRepo.DueReminders"

	rows, err := r.handle().Query(ctx,
		`SELECT `+appointmentColumns+`
		 FROM appointments
		 WHERE status = 'confirmed'
		   AND reminder_sent = false
		   AND start_time >= $1
		   AND start_time < $2
		 ORDER BY start_time`,
		from, to,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// MarkReminderSent flips reminder_sent exactly once. The false guard keeps a
// concurrent second scan from claiming the same appointment.
func (r *AppointmentRepo) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.AppointmentRepo.MarkReminderSent"

	tag, err := r.handle().Exec(ctx,
		`UPDATE appointments
		 SET reminder_sent = true
		 WHERE id = $1 AND reminder_sent = false`,
		id,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	return nil
}

func (r *AppointmentRepo) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.AppointmentStatus,
) error {
	const op = "postgres.AppointmentRepo.UpdateStatus"

	tag, err := r.handle().Exec(ctx,
		`UPDATE appointments SET status = $2 WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}
