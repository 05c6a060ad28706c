package booking

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
	// DefaultServiceMin seeds wait estimates for shops with no active
	// services yet.
	DefaultServiceMin int
}

// CatalogStore reads the shop state a booking decision depends on.
type CatalogStore interface {
	ShopStatus(ctx context.Context, id uuid.UUID) (domain.ShopStatus, error)
	ServicesByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Service, error)
}

// BookingStore carries the transactional writes of one booking.
type BookingStore interface {
	EnsureClient(ctx context.Context, shopID uuid.UUID, name, phone string) (uuid.UUID, error)
	EnqueueWalkIn(ctx context.Context, e *domain.QueueEntry) error
	ResolveBarber(ctx context.Context, shopID uuid.UUID, preferred *uuid.UUID, start, end time.Time) (uuid.UUID, error)
	InsertAppointment(ctx context.Context, a *domain.Appointment) error
}

// Atomic runs fn in one serializable transaction and, on commit, the
// registered after-commit hooks. *uow.UoW implements it.
type Atomic interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error) error
}

type Cache interface {
	InvalidateShop(ctx context.Context, shopID uuid.UUID) error
}

type Publisher interface {
	PublishInsert(ctx context.Context, table string, row any) error
}

type RateLimiter interface {
	Allow(ctx context.Context, suffix string) (allowed bool, current int64, retryAfter time.Duration, err error)
}

// Request is a booking submission, walk-in or fixed.
type Request struct {
	ShopID         uuid.UUID
	ClientName     string
	ClientPhone    string
	ServiceIDs     []uuid.UUID
	BarberID       *uuid.UUID // nil means "first available"
	Mode           domain.BookingMode
	RequestedStart time.Time // fixed mode only
}

// Result is a definitive booking confirmation.
type Result struct {
	ConfirmationID uuid.UUID
	Mode           domain.BookingMode
	BarberID       uuid.UUID
	TimeRemaining  domain.TimeRemaining
}

// Service is the transactional booking decision procedure. It is the only
// sanctioned path for creating a queued or scheduled booking; direct table
// inserts bypass the overlap check.
type Service struct {
	catalog  CatalogStore
	bookings func(tx postgresrepo.DB) BookingStore
	atomic   Atomic
	cache    Cache
	bus      Publisher
	limiter  RateLimiter
	now      func() time.Time
	cfg      Config
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	bus *feed.Bus,
	limiter *redisrepo.SlidingWindowLimiter,
	cfg Config,
) *Service {
	if cfg.DefaultServiceMin <= 0 {
		cfg.DefaultServiceMin = 25
	}

	s := &Service{
		catalog: store.Query(),
		bookings: func(tx postgresrepo.DB) BookingStore {
			return store.Bookings().With(tx)
		},
		atomic: uow.NewUoW(store),
		cache:  cache,
		bus:    bus,
		now:    time.Now,
		cfg:    cfg,
	}
	if limiter != nil {
		s.limiter = limiter
	}

	return s
}

// Book validates the request, then performs the booking as a single atomic
// unit under serializable isolation: walk-ins join the queue tail, fixed
// bookings allocate an appointment slot. Two concurrent requests for the
// same barber and overlapping window cannot both succeed; the loser gets
// ErrSlotUnavailable.
//
// Retries are not deduplicated here. The transport may replay responses for
// an Idempotency-Key, but true duplicates are rejected only by the overlap
// check itself.
func (s *Service) Book(ctx context.Context, req Request, rlKey string) (*Result, error) {
	const op = "service.booking.Book"

	if s.limiter != nil && rlKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s: rate limited, retry in %s", op, retry)
		}
	}

	if err := validate(req, s.now()); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	status, err := s.catalog.ShopStatus(ctx, req.ShopID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrShopNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	if status != domain.ShopOpen {
		return nil, fmt.Errorf("%s:%w", op, ErrShopClosed)
	}

	services, err := s.catalog.ServicesByIDs(ctx, req.ServiceIDs)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	if len(services) != len(req.ServiceIDs) {
		return nil, fmt.Errorf("%s:%w", op, ErrUnknownService)
	}

	switch req.Mode {
	case domain.BookingWalkIn:
		return s.bookWalkIn(ctx, req)
	default:
		return s.bookFixed(ctx, req, services)
	}
}

func (s *Service) bookWalkIn(ctx context.Context, req Request) (*Result, error) {
	const op = "service.booking.bookWalkIn"

	entry := &domain.QueueEntry{
		ID:         uuid.New(),
		ShopID:     req.ShopID,
		BarberID:   req.BarberID,
		ServiceIDs: req.ServiceIDs,
		JoinedAt:   s.now(),
	}

	err := s.atomic.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		repo := s.bookings(tx)

		clientID, err := repo.EnsureClient(ctx, req.ShopID, req.ClientName, req.ClientPhone)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		entry.ClientID = clientID

		if err := repo.EnqueueWalkIn(ctx, entry); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%s:%w", op, ErrSlotUnavailable)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateShop(ctx, req.ShopID)
			_ = s.bus.PublishInsert(ctx, "queue_items", entry)
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		ConfirmationID: entry.ID,
		Mode:           domain.BookingWalkIn,
		TimeRemaining:  domain.TimeRemainingFromMinutes(entry.EstimatedWaitMin),
	}, nil
}

func (s *Service) bookFixed(ctx context.Context, req Request, services []domain.Service) (*Result, error) {
	const op = "service.booking.bookFixed"

	var durationMin, totalCents int
	for _, svc := range services {
		durationMin += svc.DurationMin
		totalCents += svc.PriceCents
	}

	appt := &domain.Appointment{
		ID:         uuid.New(),
		ShopID:     req.ShopID,
		ServiceIDs: req.ServiceIDs,
		StartTime:  req.RequestedStart,
		EndTime:    req.RequestedStart.Add(time.Duration(durationMin) * time.Minute),
		Status:     domain.AppointmentScheduled,
		TotalCents: totalCents,
	}

	err := s.atomic.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		repo := s.bookings(tx)

		clientID, err := repo.EnsureClient(ctx, req.ShopID, req.ClientName, req.ClientPhone)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		appt.ClientID = clientID

		barberID, err := repo.ResolveBarber(ctx, req.ShopID, req.BarberID, appt.StartTime, appt.EndTime)
		if err != nil {
			switch {
			case errors.Is(err, repository.ErrSlotUnavailable):
				return fmt.Errorf("%s:%w", op, ErrSlotUnavailable)
			case errors.Is(err, repository.ErrBarberUnavailable):
				return fmt.Errorf("%s:%w", op, ErrNoBarberAvailable)
			}
			return fmt.Errorf("%s:%w", op, err)
		}
		appt.BarberID = barberID

		if err := repo.InsertAppointment(ctx, appt); err != nil {
			// The exclusion constraint and serialization failures both mean a
			// concurrent booking won the slot.
			if errors.Is(err, repository.ErrSlotUnavailable) ||
				errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%s:%w", op, ErrSlotUnavailable)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateShop(ctx, req.ShopID)
			_ = s.bus.PublishInsert(ctx, "appointments", appt)
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		ConfirmationID: appt.ID,
		Mode:           domain.BookingFixed,
		BarberID:       appt.BarberID,
		TimeRemaining:  domain.TimeRemainingUntil(s.now(), appt.StartTime),
	}, nil
}
