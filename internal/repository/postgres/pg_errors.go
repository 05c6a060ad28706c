package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/freshcut/freshcut-go/internal/repository"
)

// IsRetryable reports whether the error is a serialization failure or
// deadlock that callers may safely retry as a whole transaction.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return true
		}
	}

	return false
}

func translateDBErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}

	var pge *pgconn.PgError
	if errors.As(err, &pge) {
		switch pge.Code {
		// unique_violation
		case "23505":
			return repository.ErrConflict
		// exclusion_violation: the barber schedule overlap constraint
		case "23P01":
			return repository.ErrSlotUnavailable
		// serialization_failure, deadlock_detected
		case "40001", "40P01":
			return repository.ErrConflict
		}
	}

	return err
}

// wrapDBErr maps common DB errors to repository-level errors and wraps them
// with the provided operation name.
func wrapDBErr(op string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s:%w", op, translateDBErr(err))
}
