package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freshcut/freshcut-go/internal/domain"
	"github.com/freshcut/freshcut-go/internal/repository"
)

type QueueRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *QueueRepo) With(db DB) *QueueRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *QueueRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// PositionUpdate assigns a new dense position to one queue entry.
type PositionUpdate struct {
	ID       uuid.UUID
	Position int
	WaitMin  int
}

const queueColumns = `id, shop_id, client_id, barber_id, service_ids, position,
	status, estimated_wait_time, last_notified_position,
	joined_at, notified_at, started_at, completed_at`

func scanQueueEntry(row pgx.Row) (*domain.QueueEntry, error) {
	var e domain.QueueEntry
	err := row.Scan(
		&e.ID, &e.ShopID, &e.ClientID, &e.BarberID, &e.ServiceIDs, &e.Position,
		&e.Status, &e.EstimatedWaitMin, &e.LastNotifiedPos,
		&e.JoinedAt, &e.NotifiedAt, &e.StartedAt, &e.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *QueueRepo) Get(ctx context.Context, id uuid.UUID) (*domain.QueueEntry, error) {
	const op = "postgres.QueueRepo.Get"

	e, err := scanQueueEntry(r.handle().QueryRow(ctx,
		`SELECT `+queueColumns+` FROM queue_items WHERE id = $1`, id))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return e, nil
}

// ActiveEntries returns the shop's active queue (waiting, notified,
// in_progress) ordered by position, joined_at as a tie-break.
func (r *QueueRepo) ActiveEntries(ctx context.Context, shopID uuid.UUID) ([]domain.QueueEntry, error) {
	const op = "postgres.QueueRepo.ActiveEntries"

	rows, err := r.handle().Query(ctx,
		`SELECT `+queueColumns+`
		 FROM queue_items
		 WHERE shop_id = $1
		   AND status IN ('waiting', 'notified', 'in_progress')
		 ORDER BY position, joined_at`,
		shopID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	return collectQueueEntries(op, rows)
}

// ListActive returns every shop's active entries ordered by shop then
// position. The scheduler walks this once per cycle.
func (r *QueueRepo) ListActive(ctx context.Context) ([]domain.QueueEntry, error) {
	const op = "postgres.QueueRepo.ListActive"

	rows, err := r.handle().Query(ctx,
		`SELECT `+queueColumns+`
		 FROM queue_items
		 WHERE status IN ('waiting', 'notified', 'in_progress')
		 ORDER BY shop_id, position, joined_at`,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	return collectQueueEntries(op, rows)
}

// SavePositions writes a full new ordering in one batch. The batch runs in
// the caller's transaction; any row that no longer exists fails the whole
// write so the caller retries the reorder as a unit, never entry-by-entry.
func (r *QueueRepo) SavePositions(ctx context.Context, updates []PositionUpdate) error {
	const op = "postgres.QueueRepo.SavePositions"

	if len(updates) == 0 {
		return nil
	}

	db := r.handle()

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(
			`UPDATE queue_items
			 SET position = $2, estimated_wait_time = $3
			 WHERE id = $1
			   AND status IN ('waiting', 'notified', 'in_progress')`,
			u.ID, u.Position, u.WaitMin,
		)
	}

	br := db.SendBatch(ctx, batch)
	defer br.Close()

	for range updates {
		tag, err := br.Exec()
		if err != nil {
			return wrapDBErr(op, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%s:%w", op, repository.ErrStaleOrder)
		}
	}

	return nil
}

// SaveTransition persists a status change with its timestamps.
func (r *QueueRepo) SaveTransition(ctx context.Context, e *domain.QueueEntry) error {
	const op = "postgres.QueueRepo.SaveTransition"

	tag, err := r.handle().Exec(ctx,
		`UPDATE queue_items
		 SET status = $2, notified_at = $3, started_at = $4, completed_at = $5
		 WHERE id = $1`,
		e.ID, e.Status, e.NotifiedAt, e.StartedAt, e.CompletedAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// SetLastNotifiedPosition records the position a threshold notification was
// last attempted at, enforcing at-most-one push per threshold crossing.
func (r *QueueRepo) SetLastNotifiedPosition(ctx context.Context, id uuid.UUID, pos int) error {
	const op = "postgres.QueueRepo.SetLastNotifiedPosition"

	_, err := r.handle().Exec(ctx,
		`UPDATE queue_items SET last_notified_position = $2 WHERE id = $1`,
		id, pos,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// DecrementWaitTimes reduces every waiting entry's estimate by one minute,
// flooring at zero. Returns the number of rows touched.
func (r *QueueRepo) DecrementWaitTimes(ctx context.Context) (int64, error) {
	const op = "postgres.QueueRepo.DecrementWaitTimes"

	tag, err := r.handle().Exec(ctx,
		`UPDATE queue_items
		 SET estimated_wait_time = GREATEST(0, estimated_wait_time - 1)
		 WHERE status = 'waiting' AND estimated_wait_time > 0`,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

func collectQueueEntries(op string, rows pgx.Rows) ([]domain.QueueEntry, error) {
	var out []domain.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
