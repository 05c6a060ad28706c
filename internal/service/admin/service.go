package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/freshcut/freshcut-go/internal/domain"
	"github.com/freshcut/freshcut-go/internal/feed"
	"github.com/freshcut/freshcut-go/internal/repository"
	postgresrepo "github.com/freshcut/freshcut-go/internal/repository/postgres"
	redisrepo "github.com/freshcut/freshcut-go/internal/repository/redis"
	"github.com/freshcut/freshcut-go/internal/uow"
)

// Service carries the owner-facing mutations: the shop's operational gate
// and catalog management. Every write invalidates the shop's cached reads
// and publishes a delta once the transaction commits.
type Service struct {
	store *postgresrepo.Store
	cache *redisrepo.Cache
	bus   *feed.Bus
	uow   *uow.UoW
}

func New(store *postgresrepo.Store, cache *redisrepo.Cache, bus *feed.Bus, u *uow.UoW) *Service {
	return &Service{
		store: store,
		cache: cache,
		bus:   bus,
		uow:   u,
	}
}

func (s *Service) SetShopStatus(ctx context.Context, shopID uuid.UUID, status domain.ShopStatus) error {
	const op = "service.admin.SetShopStatus"

	switch status {
	case domain.ShopOpen, domain.ShopBreak, domain.ShopClosed:
	default:
		return fmt.Errorf("%s:%w", op, ErrInvalidStatus)
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		if err := s.store.Admin().With(tx).UpdateShopStatus(ctx, shopID, status); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateShop(ctx, shopID)
			_ = s.bus.PublishUpdate(ctx, "shops", domain.Shop{ID: shopID, Status: status})
		})

		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrShopNotFound)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// SetAppointmentStatus moves a fixed booking through its lifecycle
// (confirm, start, complete, no-show, cancel). Confirmation is what makes
// an appointment eligible for the 30-minute reminder.
func (s *Service) SetAppointmentStatus(
	ctx context.Context,
	apptID uuid.UUID,
	status domain.AppointmentStatus,
) error {
	const op = "service.admin.SetAppointmentStatus"

	switch status {
	case domain.AppointmentConfirmed, domain.AppointmentInProgress,
		domain.AppointmentCompleted, domain.AppointmentNoShow,
		domain.AppointmentCancelled:
	default:
		return fmt.Errorf("%s:%w", op, ErrInvalidStatus)
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		repo := s.store.Appointments().With(tx)

		appt, err := repo.Get(ctx, apptID)
		if err != nil {
			return err
		}

		if err := repo.UpdateStatus(ctx, apptID, status); err != nil {
			return err
		}
		appt.Status = status

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateShop(ctx, appt.ShopID)
			_ = s.bus.PublishUpdate(ctx, "appointments", appt)
		})

		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrAppointmentNotFound)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (s *Service) CreateBarber(ctx context.Context, shopID uuid.UUID, name string) (*domain.Barber, error) {
	const op = "service.admin.CreateBarber"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidInput)
	}

	b := &domain.Barber{
		ID:     uuid.New(),
		ShopID: shopID,
		Name:   name,
		Status: "active",
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		if err := s.store.Admin().With(tx).CreateBarber(ctx, b); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateShop(ctx, shopID)
			_ = s.bus.PublishInsert(ctx, "barbers", b)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, nil
}

func (s *Service) CreateService(
	ctx context.Context,
	shopID uuid.UUID,
	name string,
	priceCents, durationMin int,
) (*domain.Service, error) {
	const op = "service.admin.CreateService"

	name = strings.TrimSpace(name)
	if name == "" || priceCents < 0 || durationMin <= 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidInput)
	}

	svc := &domain.Service{
		ID:          uuid.New(),
		ShopID:      shopID,
		Name:        name,
		PriceCents:  priceCents,
		DurationMin: durationMin,
		IsActive:    true,
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		if err := s.store.Admin().With(tx).CreateService(ctx, svc); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateShop(ctx, shopID)
			_ = s.bus.PublishInsert(ctx, "services", svc)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return svc, nil
}

func (s *Service) CreateProduct(
	ctx context.Context,
	shopID uuid.UUID,
	name string,
	priceCents, stock int,
) (*domain.Product, error) {
	const op = "service.admin.CreateProduct"

	name = strings.TrimSpace(name)
	if name == "" || priceCents < 0 || stock < 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidInput)
	}

	p := &domain.Product{
		ID:         uuid.New(),
		ShopID:     shopID,
		Name:       name,
		PriceCents: priceCents,
		Stock:      stock,
		IsActive:   true,
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		if err := s.store.Admin().With(tx).CreateProduct(ctx, p); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			_ = s.bus.PublishInsert(ctx, "products", p)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return p, nil
}

func (s *Service) CreatePromotion(ctx context.Context, promo *domain.Promotion) (*domain.Promotion, error) {
	const op = "service.admin.CreatePromotion"

	promo.Name = strings.TrimSpace(promo.Name)
	if promo.Name == "" || promo.DiscountValue <= 0 || !promo.EndDate.After(promo.StartDate) {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidInput)
	}

	switch promo.DiscountType {
	case "percentage", "fixed":
	default:
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidInput)
	}

	promo.ID = uuid.New()
	promo.IsActive = true

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		if err := s.store.Admin().With(tx).CreatePromotion(ctx, promo); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			_ = s.bus.PublishInsert(ctx, "promotions", promo)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return promo, nil
}
