package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTx runs fn inside a transaction. Bookings and queue renumbering rely on
// serializable isolation, so that is the default.
func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	// Serialization failures can surface at COMMIT, not only inside fn.
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translateDBErr(err))
	}

	return nil
}

func (s *Store) Queue() *QueueRepo                { return &QueueRepo{pool: s.pool} }
func (s *Store) Bookings() *BookingRepo           { return &BookingRepo{pool: s.pool} }
func (s *Store) Appointments() *AppointmentRepo   { return &AppointmentRepo{pool: s.pool} }
func (s *Store) Subscriptions() *SubscriptionRepo { return &SubscriptionRepo{pool: s.pool} }
func (s *Store) Query() *QueryRepo                { return &QueryRepo{pool: s.pool} }
func (s *Store) Admin() *AdminRepo                { return &AdminRepo{pool: s.pool} }
