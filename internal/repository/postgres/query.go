package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freshcut/freshcut-go/internal/domain"
)

type QueryRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *QueryRepo) With(db DB) *QueryRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *QueryRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *QueryRepo) GetShop(ctx context.Context, id uuid.UUID) (*domain.Shop, error) {
	const op = "postgres.QueryRepo.GetShop"

	db := r.handle()

	var s domain.Shop
	err := db.QueryRow(ctx,
		`SELECT id, name, address, phone, status FROM shops WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.Name, &s.Address, &s.Phone, &s.Status)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &s, nil
}

func (r *QueryRepo) ShopStatus(ctx context.Context, id uuid.UUID) (domain.ShopStatus, error) {
	const op = "postgres.QueryRepo.ShopStatus"

	var status domain.ShopStatus
	err := r.handle().QueryRow(ctx,
		`SELECT status FROM shops WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return "", wrapDBErr(op, err)
	}

	return status, nil
}

func (r *QueryRepo) ListBarbers(ctx context.Context, shopID uuid.UUID) ([]domain.Barber, error) {
	const op = "postgres.QueryRepo.ListBarbers"

	rows, err := r.handle().Query(ctx,
		`SELECT id, shop_id, name, status
		 FROM barbers WHERE shop_id = $1 ORDER BY name`,
		shopID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Barber
	for rows.Next() {
		var b domain.Barber
		if err := rows.Scan(&b.ID, &b.ShopID, &b.Name, &b.Status); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *QueryRepo) ListServices(ctx context.Context, shopID uuid.UUID) ([]domain.Service, error) {
	const op = "postgres.QueryRepo.ListServices"

	rows, err := r.handle().Query(ctx,
		`SELECT id, shop_id, name, price_cents, duration_min, is_active
		 FROM services WHERE shop_id = $1 AND is_active ORDER BY name`,
		shopID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	return collectServices(op, rows)
}

// ServicesByIDs loads the selected services so booking can price the visit
// and sum durations. Missing IDs simply produce a shorter result; the caller
// compares lengths.
func (r *QueryRepo) ServicesByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Service, error) {
	const op = "postgres.QueryRepo.ServicesByIDs"

	rows, err := r.handle().Query(ctx,
		`SELECT id, shop_id, name, price_cents, duration_min, is_active
		 FROM services WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	return collectServices(op, rows)
}

// AvgServiceMin is the shop-wide mean active service duration used as the
// per-head multiplier in wait estimates. Shops with no active services fall
// back to the caller's default.
func (r *QueryRepo) AvgServiceMin(ctx context.Context, shopID uuid.UUID) (int, error) {
	const op = "postgres.QueryRepo.AvgServiceMin"

	var avg *float64
	err := r.handle().QueryRow(ctx,
		`SELECT avg(duration_min) FROM services
		 WHERE shop_id = $1 AND is_active`,
		shopID,
	).Scan(&avg)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}
	if avg == nil {
		return 0, nil
	}

	return int(*avg), nil
}

func (r *QueryRepo) GetClient(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	const op = "postgres.QueryRepo.GetClient"

	var c domain.Client
	err := r.handle().QueryRow(ctx,
		`SELECT id, shop_id, name, phone FROM clients WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.ShopID, &c.Name, &c.Phone)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &c, nil
}

func (r *QueryRepo) ListProducts(ctx context.Context, shopID uuid.UUID) ([]domain.Product, error) {
	const op = "postgres.QueryRepo.ListProducts"

	rows, err := r.handle().Query(ctx,
		`SELECT id, shop_id, name, price_cents, stock, is_active
		 FROM products WHERE shop_id = $1 AND is_active ORDER BY name`,
		shopID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.ShopID, &p.Name, &p.PriceCents, &p.Stock, &p.IsActive); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *QueryRepo) ListPromotions(ctx context.Context, shopID uuid.UUID) ([]domain.Promotion, error) {
	const op = "postgres.QueryRepo.ListPromotions"

	rows, err := r.handle().Query(ctx,
		`SELECT id, shop_id, name, discount_type, discount_value,
		        start_date, end_date, is_active
		 FROM promotions WHERE shop_id = $1 ORDER BY start_date DESC`,
		shopID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Promotion
	for rows.Next() {
		var p domain.Promotion
		if err := rows.Scan(
			&p.ID, &p.ShopID, &p.Name, &p.DiscountType, &p.DiscountValue,
			&p.StartDate, &p.EndDate, &p.IsActive,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func collectServices(op string, rows pgx.Rows) ([]domain.Service, error) {
	var out []domain.Service
	for rows.Next() {
		var s domain.Service
		if err := rows.Scan(&s.ID, &s.ShopID, &s.Name, &s.PriceCents, &s.DurationMin, &s.IsActive); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
