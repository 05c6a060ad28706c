package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/freshcut/freshcut-go/internal/domain"
	"github.com/freshcut/freshcut-go/internal/feed"
	"github.com/freshcut/freshcut-go/internal/repository"
	postgresrepo "github.com/freshcut/freshcut-go/internal/repository/postgres"
	redisrepo "github.com/freshcut/freshcut-go/internal/repository/redis"
	"github.com/freshcut/freshcut-go/internal/uow"
)

type Config struct {
	// DefaultServiceMin is the per-head wait multiplier for shops whose
	// service catalog is empty.
	DefaultServiceMin int
}

// Service owns the active queue's ordering and lifecycle: dense 1-based
// positions, the status state machine, and wait estimates.
type Service struct {
	store *postgresrepo.Store
	cache *redisrepo.Cache
	bus   *feed.Bus
	uow   *uow.UoW
	now   func() time.Time
	cfg   Config
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	bus *feed.Bus,
	cfg Config,
) *Service {
	if cfg.DefaultServiceMin <= 0 {
		cfg.DefaultServiceMin = 25
	}

	return &Service{
		store: store,
		cache: cache,
		bus:   bus,
		uow:   uow.NewUoW(store),
		now:   time.Now,
		cfg:   cfg,
	}
}

// Active returns the shop's active queue ordered by position.
func (s *Service) Active(ctx context.Context, shopID uuid.UUID) ([]domain.QueueEntry, error) {
	const op = "service.queue.Active"

	entries, err := s.store.Queue().ActiveEntries(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return entries, nil
}

// Reorder applies an admin's new full ordering of the active queue in one
// atomic batch, reassigning position = index+1 and recomputing every wait
// estimate. A partially-failed write aborts the whole batch: the persisted
// order never diverges from what the caller sees, and the caller retries
// the reorder as a whole. Concurrent reorders are last-write-wins; the
// loser's mirror is stale until the next delta arrives.
func (s *Service) Reorder(ctx context.Context, shopID uuid.UUID, orderedIDs []uuid.UUID) error {
	const op = "service.queue.Reorder"

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		repo := s.store.Queue().With(tx)

		active, err := repo.ActiveEntries(ctx, shopID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		reordered, ok := reindexByID(active, orderedIDs)
		if !ok {
			return fmt.Errorf("%s:%w", op, ErrIncompleteOrdering)
		}

		updates, err := s.plan(ctx, tx, shopID, reordered)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := repo.SavePositions(ctx, updates); err != nil {
			if errors.Is(err, repository.ErrStaleOrder) {
				return fmt.Errorf("%s:%w", op, ErrStaleOrder)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateShop(ctx, shopID)
			for i := range reordered {
				e := reordered[i]
				e.Position = updates[i].Position
				e.EstimatedWaitMin = updates[i].WaitMin
				_ = s.bus.PublishUpdate(ctx, "queue_items", e)
			}
		})

		return nil
	})

	return err
}

// Transition moves an entry through the status state machine
// (waiting -> notified -> in_progress -> done, cancelled from waiting or
// notified). Re-entering the current status is a no-op; illegal moves are
// rejected. A transition out of the active set renumbers the survivors in
// the same transaction, keeping positions contiguous.
func (s *Service) Transition(ctx context.Context, entryID uuid.UUID, to domain.QueueStatus) error {
	const op = "service.queue.Transition"

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		repo := s.store.Queue().With(tx)

		e, err := repo.Get(ctx, entryID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrEntryNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if e.Status == to {
			return nil
		}

		if !domain.CanTransition(e.Status, to) {
			return fmt.Errorf("%s: %s -> %s:%w", op, e.Status, to, ErrInvalidTransition)
		}

		active, err := repo.ActiveEntries(ctx, e.ShopID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		if to == domain.QueueInProgress && e.BarberID != nil {
			for _, other := range active {
				if other.ID != e.ID &&
					other.Status == domain.QueueInProgress &&
					other.BarberID != nil &&
					*other.BarberID == *e.BarberID {
					return fmt.Errorf("%s:%w", op, ErrBarberBusy)
				}
			}
		}

		e.Status = to
		domain.StampTransition(e, to, s.now())

		if err := repo.SaveTransition(ctx, e); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		var survivors []domain.QueueEntry
		if !to.Active() {
			for _, other := range active {
				if other.ID != e.ID {
					survivors = append(survivors, other)
				}
			}

			updates, err := s.plan(ctx, tx, e.ShopID, survivors)
			if err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}

			if err := repo.SavePositions(ctx, updates); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}

			for i := range survivors {
				survivors[i].Position = updates[i].Position
				survivors[i].EstimatedWaitMin = updates[i].WaitMin
			}
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateShop(ctx, e.ShopID)
			_ = s.bus.PublishUpdate(ctx, "queue_items", e)
			for i := range survivors {
				_ = s.bus.PublishUpdate(ctx, "queue_items", survivors[i])
			}
		})

		return nil
	})

	return err
}

// Remove cancels and deletes an entry from the admin's view of the queue.
func (s *Service) Remove(ctx context.Context, entryID uuid.UUID) error {
	return s.Transition(ctx, entryID, domain.QueueCancelled)
}

// plan recomputes dense positions and wait estimates for entries in order.
func (s *Service) plan(
	ctx context.Context,
	tx postgresrepo.DB,
	shopID uuid.UUID,
	entries []domain.QueueEntry,
) ([]postgresrepo.PositionUpdate, error) {
	query := s.store.Query().With(tx)

	avgMin, err := query.AvgServiceMin(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if avgMin <= 0 {
		avgMin = s.cfg.DefaultServiceMin
	}

	var ids []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, e := range entries {
		for _, sid := range e.ServiceIDs {
			if !seen[sid] {
				seen[sid] = true
				ids = append(ids, sid)
			}
		}
	}

	durations := make(map[uuid.UUID]int, len(ids))
	if len(ids) > 0 {
		services, err := query.ServicesByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, svc := range services {
			durations[svc.ID] = svc.DurationMin
		}
	}

	return planPositions(entries, avgMin, serviceMinutes(entries, durations)), nil
}
