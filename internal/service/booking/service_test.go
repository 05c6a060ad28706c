package booking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/freshcut/freshcut-go/internal/domain"
	"github.com/freshcut/freshcut-go/internal/repository"
	postgresrepo "github.com/freshcut/freshcut-go/internal/repository/postgres"
	"github.com/freshcut/freshcut-go/internal/uow"
)

// fakeAtomic runs fn without a transaction and fires after-commit hooks on
// success, matching the commit semantics the real unit of work provides.
type fakeAtomic struct{}

func (fakeAtomic) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error,
) error {
	var hooks []uow.AfterCommit
	if err := fn(ctx, nil, func(h uow.AfterCommit) { hooks = append(hooks, h) }); err != nil {
		return err
	}
	for _, h := range hooks {
		h(ctx)
	}
	return nil
}

type fakeCatalog struct {
	status   domain.ShopStatus
	services map[uuid.UUID]domain.Service
}

func (f *fakeCatalog) ShopStatus(ctx context.Context, id uuid.UUID) (domain.ShopStatus, error) {
	if f.status == "" {
		return "", repository.ErrNotFound
	}
	return f.status, nil
}

func (f *fakeCatalog) ServicesByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Service, error) {
	var out []domain.Service
	for _, id := range ids {
		if svc, ok := f.services[id]; ok {
			out = append(out, svc)
		}
	}
	return out, nil
}

// fakeBookingStore mimics the database's concurrency guarantees: inserts
// are serialized and the appointment overlap check runs again at insert
// time, so of two racing bookings exactly one can claim a slot.
type fakeBookingStore struct {
	mu      sync.Mutex
	barbers []uuid.UUID
	clients map[string]uuid.UUID
	queue   []*domain.QueueEntry
	appts   []*domain.Appointment
}

func newFakeBookingStore(barbers ...uuid.UUID) *fakeBookingStore {
	return &fakeBookingStore{
		barbers: barbers,
		clients: make(map[string]uuid.UUID),
	}
}

func (f *fakeBookingStore) EnsureClient(
	ctx context.Context,
	shopID uuid.UUID,
	name, phone string,
) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := shopID.String() + ":" + phone
	id, ok := f.clients[key]
	if !ok {
		id = uuid.New()
		f.clients[key] = id
	}
	return id, nil
}

func (f *fakeBookingStore) EnqueueWalkIn(ctx context.Context, e *domain.QueueEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	e.Status = domain.QueueWaiting
	e.Position = len(f.queue) + 1
	e.EstimatedWaitMin = 25 * e.Position
	f.queue = append(f.queue, e)
	return nil
}

func (f *fakeBookingStore) overlapsLocked(barberID uuid.UUID, start, end time.Time) bool {
	for _, a := range f.appts {
		if a.BarberID == barberID &&
			a.Status != domain.AppointmentCancelled &&
			start.Before(a.EndTime) && a.StartTime.Before(end) {
			return true
		}
	}
	return false
}

func (f *fakeBookingStore) ResolveBarber(
	ctx context.Context,
	shopID uuid.UUID,
	preferred *uuid.UUID,
	start, end time.Time,
) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if preferred != nil {
		if f.overlapsLocked(*preferred, start, end) {
			return uuid.Nil, repository.ErrSlotUnavailable
		}
		return *preferred, nil
	}
	for _, b := range f.barbers {
		if !f.overlapsLocked(b, start, end) {
			return b, nil
		}
	}
	return uuid.Nil, repository.ErrBarberUnavailable
}

func (f *fakeBookingStore) InsertAppointment(ctx context.Context, a *domain.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Insert-time re-check: a racing booking may have claimed the slot
	// since ResolveBarber ran.
	if f.overlapsLocked(a.BarberID, a.StartTime, a.EndTime) {
		return repository.ErrSlotUnavailable
	}
	f.appts = append(f.appts, a)
	return nil
}

type fakeCache struct {
	mu          sync.Mutex
	invalidated []uuid.UUID
}

func (f *fakeCache) InvalidateShop(ctx context.Context, shopID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, shopID)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	tables []string
}

func (f *fakePublisher) PublishInsert(ctx context.Context, table string, row any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables = append(f.tables, table)
	return nil
}

type fakeLimiter struct{ allowed bool }

func (f *fakeLimiter) Allow(ctx context.Context, suffix string) (bool, int64, time.Duration, error) {
	return f.allowed, 0, time.Minute, nil
}

type bookingFixture struct {
	svc     *Service
	store   *fakeBookingStore
	cache   *fakeCache
	bus     *fakePublisher
	shopID  uuid.UUID
	svcID   uuid.UUID
	barber  uuid.UUID
	baseNow time.Time
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()

	fx := &bookingFixture{
		store:   nil,
		cache:   &fakeCache{},
		bus:     &fakePublisher{},
		shopID:  uuid.New(),
		svcID:   uuid.New(),
		barber:  uuid.New(),
		baseNow: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	fx.store = newFakeBookingStore(fx.barber)

	catalog := &fakeCatalog{
		status: domain.ShopOpen,
		services: map[uuid.UUID]domain.Service{
			fx.svcID: {ID: fx.svcID, ShopID: fx.shopID, Name: "cut", PriceCents: 2500, DurationMin: 30},
		},
	}

	fx.svc = &Service{
		catalog:  catalog,
		bookings: func(tx postgresrepo.DB) BookingStore { return fx.store },
		atomic:   fakeAtomic{},
		cache:    fx.cache,
		bus:      fx.bus,
		now:      func() time.Time { return fx.baseNow },
		cfg:      Config{DefaultServiceMin: 25},
	}
	return fx
}

func (fx *bookingFixture) fixedRequest(phone string, start time.Time) Request {
	return Request{
		ShopID:         fx.shopID,
		ClientName:     "Client " + phone,
		ClientPhone:    phone,
		ServiceIDs:     []uuid.UUID{fx.svcID},
		BarberID:       &fx.barber,
		Mode:           domain.BookingFixed,
		RequestedStart: start,
	}
}

func TestBookWalkIn(t *testing.T) {
	fx := newBookingFixture(t)

	res, err := fx.svc.Book(context.Background(), Request{
		ShopID:      fx.shopID,
		ClientName:  "Walk In",
		ClientPhone: "0612345678",
		ServiceIDs:  []uuid.UUID{fx.svcID},
		Mode:        domain.BookingWalkIn,
	}, "")
	if err != nil {
		t.Fatalf("Book = %v", err)
	}
	if res.Mode != domain.BookingWalkIn {
		t.Errorf("Mode = %s, want walk_in", res.Mode)
	}
	if len(fx.store.queue) != 1 || fx.store.queue[0].Position != 1 {
		t.Fatalf("queue = %+v, want one entry at position 1", fx.store.queue)
	}
	if len(fx.cache.invalidated) != 1 || fx.cache.invalidated[0] != fx.shopID {
		t.Errorf("invalidated = %v, want [%s]", fx.cache.invalidated, fx.shopID)
	}
	if len(fx.bus.tables) != 1 || fx.bus.tables[0] != "queue_items" {
		t.Errorf("published tables = %v, want [queue_items]", fx.bus.tables)
	}
}

func TestBookFixedConcurrentOverlapOneWinner(t *testing.T) {
	fx := newBookingFixture(t)

	start := fx.baseNow.Add(2 * time.Hour)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, phone := range []string{"0611111111", "0622222222"} {
		wg.Add(1)
		go func(phone string) {
			defer wg.Done()
			_, err := fx.svc.Book(context.Background(), fx.fixedRequest(phone, start), "")
			errs <- err
		}(phone)
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrSlotUnavailable):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if won != 1 || lost != 1 {
		t.Fatalf("won = %d, lost = %d, want exactly one of each", won, lost)
	}
	if len(fx.store.appts) != 1 {
		t.Fatalf("stored %d appointments, want 1", len(fx.store.appts))
	}
}

func TestBookFixedSequentialOverlapRejected(t *testing.T) {
	fx := newBookingFixture(t)

	start := fx.baseNow.Add(2 * time.Hour)

	if _, err := fx.svc.Book(context.Background(), fx.fixedRequest("0611111111", start), ""); err != nil {
		t.Fatalf("first booking = %v", err)
	}
	// Second request overlaps the taken slot by 15 minutes.
	_, err := fx.svc.Book(context.Background(), fx.fixedRequest("0622222222", start.Add(15*time.Minute)), "")
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("overlapping booking = %v, want ErrSlotUnavailable", err)
	}

	// A disjoint slot right after still books fine.
	if _, err := fx.svc.Book(context.Background(), fx.fixedRequest("0622222222", start.Add(30*time.Minute)), ""); err != nil {
		t.Fatalf("disjoint booking = %v", err)
	}
}

func TestBookFixedNoBarberAvailable(t *testing.T) {
	fx := newBookingFixture(t)

	start := fx.baseNow.Add(2 * time.Hour)
	req := fx.fixedRequest("0611111111", start)
	if _, err := fx.svc.Book(context.Background(), req, ""); err != nil {
		t.Fatalf("first booking = %v", err)
	}

	// No preference: the only barber is taken for the window.
	second := fx.fixedRequest("0622222222", start)
	second.BarberID = nil
	_, err := fx.svc.Book(context.Background(), second, "")
	if !errors.Is(err, ErrNoBarberAvailable) {
		t.Fatalf("Book = %v, want ErrNoBarberAvailable", err)
	}
}

func TestBookShopClosed(t *testing.T) {
	fx := newBookingFixture(t)
	fx.svc.catalog.(*fakeCatalog).status = domain.ShopClosed

	_, err := fx.svc.Book(context.Background(), Request{
		ShopID:      fx.shopID,
		ClientName:  "Walk In",
		ClientPhone: "0612345678",
		ServiceIDs:  []uuid.UUID{fx.svcID},
		Mode:        domain.BookingWalkIn,
	}, "")
	if !errors.Is(err, ErrShopClosed) {
		t.Fatalf("Book = %v, want ErrShopClosed", err)
	}
}

func TestBookUnknownService(t *testing.T) {
	fx := newBookingFixture(t)

	_, err := fx.svc.Book(context.Background(), Request{
		ShopID:      fx.shopID,
		ClientName:  "Walk In",
		ClientPhone: "0612345678",
		ServiceIDs:  []uuid.UUID{uuid.New()},
		Mode:        domain.BookingWalkIn,
	}, "")
	if !errors.Is(err, ErrUnknownService) {
		t.Fatalf("Book = %v, want ErrUnknownService", err)
	}
}

func TestBookRateLimited(t *testing.T) {
	fx := newBookingFixture(t)
	fx.svc.limiter = &fakeLimiter{allowed: false}

	_, err := fx.svc.Book(context.Background(), Request{
		ShopID:      fx.shopID,
		ClientName:  "Walk In",
		ClientPhone: "0612345678",
		ServiceIDs:  []uuid.UUID{fx.svcID},
		Mode:        domain.BookingWalkIn,
	}, "ip:203.0.113.9")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("Book = %v, want rate limited error", err)
	}
	if len(fx.store.queue) != 0 {
		t.Error("rate-limited request reached the store")
	}
}
