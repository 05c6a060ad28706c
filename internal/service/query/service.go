package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/freshcut/freshcut-go/internal/domain"
	"github.com/freshcut/freshcut-go/internal/repository"
	postgresrepo "github.com/freshcut/freshcut-go/internal/repository/postgres"
	redisrepo "github.com/freshcut/freshcut-go/internal/repository/redis"
)

type Config struct {
	ShopSummaryTTL time.Duration
	QueueTTL       time.Duration
	CatalogTTL     time.Duration
}

// Service answers the read surface: shop summary, queue snapshot, catalog
// listings. Reads are cached; after-commit hooks on the write side
// invalidate the keys.
type Service struct {
	store *postgresrepo.Store
	cache *redisrepo.Cache
	cfg   Config
}

func New(store *postgresrepo.Store, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.ShopSummaryTTL <= 0 {
		cfg.ShopSummaryTTL = 60 * time.Second
	}

	if cfg.QueueTTL <= 0 {
		cfg.QueueTTL = 5 * time.Second
	}

	if cfg.CatalogTTL <= 0 {
		cfg.CatalogTTL = 60 * time.Second
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

func (s *Service) GetShop(ctx context.Context, id uuid.UUID) (*domain.Shop, error) {
	const op = "service.query.GetShop"

	shop, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyShopSummary(id),
		s.cfg.ShopSummaryTTL,
		func(ctx context.Context) (domain.Shop, error) {
			sh, err := s.store.Query().GetShop(ctx, id)
			if err != nil {
				return domain.Shop{}, err
			}
			return *sh, nil
		},
	)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrShopNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &shop, nil
}

// ActiveQueue is the dashboard's and the booking page's shared snapshot of
// the live queue. Short TTL: deltas from the change feed keep mirrors
// fresher than this cache, which only shields the cold path.
func (s *Service) ActiveQueue(ctx context.Context, shopID uuid.UUID) ([]domain.QueueEntry, error) {
	const op = "service.query.ActiveQueue"

	entries, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyShopQueue(shopID),
		s.cfg.QueueTTL,
		func(ctx context.Context) ([]domain.QueueEntry, error) {
			return s.store.Queue().ActiveEntries(ctx, shopID)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return entries, nil
}

func (s *Service) ListBarbers(ctx context.Context, shopID uuid.UUID) ([]domain.Barber, error) {
	const op = "service.query.ListBarbers"

	barbers, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyShopBarbers(shopID),
		s.cfg.CatalogTTL,
		func(ctx context.Context) ([]domain.Barber, error) {
			return s.store.Query().ListBarbers(ctx, shopID)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return barbers, nil
}

func (s *Service) ListServices(ctx context.Context, shopID uuid.UUID) ([]domain.Service, error) {
	const op = "service.query.ListServices"

	services, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyShopServices(shopID),
		s.cfg.CatalogTTL,
		func(ctx context.Context) ([]domain.Service, error) {
			return s.store.Query().ListServices(ctx, shopID)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return services, nil
}

func (s *Service) ListAppointments(
	ctx context.Context,
	shopID uuid.UUID,
	from, to time.Time,
) ([]domain.Appointment, error) {
	const op = "service.query.ListAppointments"

	appts, err := s.store.Appointments().ListByShop(ctx, shopID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return appts, nil
}

func (s *Service) GetClient(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	const op = "service.query.GetClient"

	client, err := s.store.Query().GetClient(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrClientNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return client, nil
}

func (s *Service) ListProducts(ctx context.Context, shopID uuid.UUID) ([]domain.Product, error) {
	const op = "service.query.ListProducts"

	products, err := s.store.Query().ListProducts(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return products, nil
}

func (s *Service) ListPromotions(ctx context.Context, shopID uuid.UUID) ([]domain.Promotion, error) {
	const op = "service.query.ListPromotions"

	promos, err := s.store.Query().ListPromotions(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return promos, nil
}
