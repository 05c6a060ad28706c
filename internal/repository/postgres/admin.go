package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freshcut/freshcut-go/internal/domain"
	"github.com/freshcut/freshcut-go/internal/repository"
)

type AdminRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *AdminRepo) With(db DB) *AdminRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *AdminRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// UpdateShopStatus flips the operational gate (open/break/closed) that the
// booking procedure consults before accepting new work.
func (r *AdminRepo) UpdateShopStatus(ctx context.Context, shopID uuid.UUID, status domain.ShopStatus) error {
	const op = "postgres.AdminRepo.UpdateShopStatus"

	tag, err := r.handle().Exec(ctx,
		`UPDATE shops SET status = $2 WHERE id = $1`,
		shopID, status,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *AdminRepo) CreateBarber(ctx context.Context, b *domain.Barber) error {
	const op = "postgres.AdminRepo.CreateBarber"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO barbers (id, shop_id, name, status)
		 VALUES ($1, $2, $3, $4)`,
		b.ID, b.ShopID, b.Name, b.Status,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *AdminRepo) CreateService(ctx context.Context, s *domain.Service) error {
	const op = "postgres.AdminRepo.CreateService"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO services (id, shop_id, name, price_cents, duration_min, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.ShopID, s.Name, s.PriceCents, s.DurationMin, s.IsActive,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *AdminRepo) CreateProduct(ctx context.Context, p *domain.Product) error {
	const op = "postgres.AdminRepo.CreateProduct"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO products (id, shop_id, name, price_cents, stock, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.ShopID, p.Name, p.PriceCents, p.Stock, p.IsActive,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *AdminRepo) CreatePromotion(ctx context.Context, p *domain.Promotion) error {
	const op = "postgres.AdminRepo.CreatePromotion"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO promotions
		 (id, shop_id, name, discount_type, discount_value, start_date, end_date, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.ShopID, p.Name, p.DiscountType, p.DiscountValue,
		p.StartDate, p.EndDate, p.IsActive,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
